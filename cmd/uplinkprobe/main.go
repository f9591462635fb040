// Command uplinkprobe is a simple WebSocket test client for the uplink
// server. It connects, prints every envelope it receives, and can fire a
// single action request.
//
// Usage:
//
//	go run ./cmd/uplinkprobe [options] [ws://127.0.0.1:7465/ws]
//	go run ./cmd/uplinkprobe -action echo -params '{"x":1}'
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func main() {
	apiKey := flag.String("api-key", "", "API key to present as the apiKey query parameter")
	actionName := flag.String("action", "", "Action to invoke after the welcome envelope")
	params := flag.String("params", "{}", "JSON params for the action")
	requestID := flag.String("request-id", "", "Correlation id for the request (default: random)")
	flag.Parse()

	wsURL := "ws://127.0.0.1:7465/ws"
	if flag.NArg() > 0 {
		wsURL = flag.Arg(0)
	}
	if *apiKey != "" {
		u, err := url.Parse(wsURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid URL: %v\n", err)
			os.Exit(1)
		}
		q := u.Query()
		q.Set("apiKey", *apiKey)
		u.RawQuery = q.Encode()
		wsURL = u.String()
	}

	fmt.Printf("Connecting to %s...\n", wsURL)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Println("Connected! Waiting for envelopes...")

	// Handle interrupt signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	envelopeCount := 0

	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					fmt.Printf("Read error: %v\n", err)
				}
				return
			}

			envelopeCount++

			var msg map[string]interface{}
			if err := json.Unmarshal(data, &msg); err != nil {
				fmt.Printf("[%d] Raw: %s\n", envelopeCount, string(data))
				continue
			}

			msgType, _ := msg["type"].(string)
			fmt.Printf("[%d] type=%s", envelopeCount, msgType)

			switch msgType {
			case "welcome":
				fmt.Printf(" clientId=%v actions=%v", msg["clientId"], msg["actions"])
			case "actionResponse":
				fmt.Printf(" requestId=%v success=%v", msg["requestId"], msg["success"])
				if errMsg, ok := msg["error"].(string); ok {
					fmt.Printf(" error=%q", errMsg)
				} else if result, err := json.Marshal(msg["result"]); err == nil {
					fmt.Printf(" result=%s", result)
				}
			case "error":
				fmt.Printf(" error=%v", msg["error"])
			}
			fmt.Println()

			// Fire the requested action once, after the welcome.
			if msgType == "welcome" && *actionName != "" {
				id := *requestID
				if id == "" {
					id = uuid.NewString()
				}
				req := map[string]interface{}{
					"type":      "action",
					"action":    *actionName,
					"params":    json.RawMessage(*params),
					"requestId": id,
				}
				if err := conn.WriteJSON(req); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to send action: %v\n", err)
					return
				}
				fmt.Printf("--> action=%s requestId=%s params=%s\n", *actionName, id, *params)
			}
		}
	}()

	// Wait for interrupt or connection close
	select {
	case <-done:
		fmt.Println("Connection closed")
	case <-interrupt:
		fmt.Println("Interrupted")
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}

	fmt.Printf("Total envelopes received: %d\n", envelopeCount)
}
