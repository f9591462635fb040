package main

import (
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// statusInfo mirrors the /api/info response body.
type statusInfo struct {
	Name             string   `json:"name"`
	Version          string   `json:"version"`
	Actions          []string `json:"actions"`
	ClientsConnected int      `json:"clientsConnected"`
}

// statusHealth mirrors the /health response body.
type statusHealth struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}

func runStatus(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:7465", "Uplink server address")
	useTLS := fs.Bool("tls", false, "Connect over HTTPS (server started with --tls-cert/--tls-key)")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	scheme := "http"
	if *useTLS {
		scheme = "https"
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			// Self-signed certificates are the norm for LAN uplinks.
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	var health statusHealth
	if err := statusGet(client, scheme, *addr, "/health", &health); err != nil {
		fmt.Fprintf(stderr, "Error: uplink server not reachable at %s: %v\n", *addr, err)
		return 1
	}

	var info statusInfo
	if err := statusGet(client, scheme, *addr, "/api/info", &info); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(map[string]any{
			"health": health,
			"info":   info,
		})
		return 0
	}

	// Human-readable output.
	fmt.Fprintf(stdout, "Server:   %s %s (%s)\n", info.Name, info.Version, *addr)
	fmt.Fprintf(stdout, "Status:   %s\n", health.Status)
	fmt.Fprintf(stdout, "Uptime:   %s\n", (time.Duration(health.Uptime) * time.Second).String())
	fmt.Fprintf(stdout, "Clients:  %d\n", info.ClientsConnected)
	fmt.Fprintf(stdout, "Actions:  %s\n", strings.Join(info.Actions, ", "))
	return 0
}

func statusGet(client *http.Client, scheme, addr, path string, out any) error {
	url := fmt.Sprintf("%s://%s%s", scheme, addr, path)
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
