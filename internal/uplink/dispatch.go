package uplink

import (
	"context"
	"fmt"
	"log"
	"time"

	apperrors "github.com/agentdeck/uplink/internal/errors"
	"github.com/agentdeck/uplink/internal/stats"
)

// dispatch processes one inbound frame. Frames are parsed in arrival
// order on the read goroutine; resolved action requests then execute on
// their own goroutines, so two requests from the same connection may run
// concurrently. Handlers must tolerate concurrent self-invocation.
func (c *Client) dispatch(data []byte) {
	req, err := parseRequest(data)
	if err != nil {
		// Parse failures are connection-scoped, not fatal: report and
		// keep reading. No requestId is available, so none is echoed.
		log.Printf("uplink: client %s sent malformed frame: %v", c.id, err)
		c.trySend(NewErrorEnvelope(fmt.Sprintf("Failed to process message: %v", err)))
		return
	}

	// Only "action" envelopes are dispatched. Anything else is ignored
	// without a response, reserving room for future envelope types.
	if req.Type != EnvelopeTypeAction {
		log.Printf("uplink: ignoring envelope type %q from client %s", req.Type, c.id)
		return
	}

	go c.invoke(req)
}

// invoke resolves and executes one action request, emitting exactly one
// actionResponse envelope with the request's correlation token.
func (c *Client) invoke(req RequestEnvelope) {
	start := time.Now()
	result, err := c.execute(req)
	duration := time.Since(start)

	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeActionUnknown) {
			// The handler was never invoked; nothing to record.
			log.Printf("uplink: client %s requested unknown action %q", c.id, req.Action)
			c.trySend(NewActionError(req.RequestID, apperrors.GetMessage(err)))
			return
		}

		// The full error stays in the server log; only the message
		// string crosses the wire.
		log.Printf("uplink: action %q failed for client %s: %v", req.Action, c.id, err)
		c.server.recordInvocation(req.Action, c.id, false, apperrors.GetMessage(err), duration)
		c.trySend(NewActionError(req.RequestID, apperrors.GetMessage(err)))
		return
	}

	c.server.recordInvocation(req.Action, c.id, true, "", duration)
	c.trySend(NewActionResponse(req.RequestID, result))
}

// execute runs the handler, enforcing the configured request timeout when
// one is set. With no timeout (the default), the handler runs as long as
// it likes; if its connection closes in the meantime the response is
// computed and then dropped by trySend.
func (c *Client) execute(req RequestEnvelope) (any, error) {
	timeout := c.server.opts.RequestTimeout
	if timeout <= 0 {
		return c.server.opts.Registry.Invoke(context.Background(), req.Action, req.Params, c.id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	// Buffered so a handler finishing after the deadline doesn't leak
	// its goroutine on the send.
	ch := make(chan outcome, 1)

	go func() {
		result, err := c.server.opts.Registry.Invoke(ctx, req.Action, req.Params, c.id)
		ch <- outcome{result, err}
	}()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-ctx.Done():
		return nil, apperrors.HandlerTimeout(req.Action)
	}
}

// recordInvocation appends one dispatched action to the invocation log.
// The log is optional; persistence failures are logged and never affect
// the client-visible outcome.
func (s *Server) recordInvocation(actionName, clientID string, success bool, errMsg string, duration time.Duration) {
	if s.opts.Stats == nil {
		return
	}

	err := s.opts.Stats.Record(stats.Invocation{
		Action:    actionName,
		ClientID:  clientID,
		Success:   success,
		Error:     errMsg,
		Duration:  duration,
		CreatedAt: time.Now(),
	})
	if err != nil {
		log.Printf("uplink: failed to record invocation of %q: %v", actionName, err)
	}
}
