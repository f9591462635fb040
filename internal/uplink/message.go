// Package uplink provides the WebSocket action server for remote
// orchestrators. It accepts authenticated connections, announces the
// available actions, and dispatches inbound action requests to registered
// handlers, replying with correlated responses on the same connection.
package uplink

import (
	"encoding/json"
)

// EnvelopeType identifies the kind of envelope exchanged over the WebSocket.
// Every envelope is one JSON object tagged with a type field.
type EnvelopeType string

const (
	// EnvelopeTypeWelcome is sent by the server after admission.
	// Carries the minted client id and the current action names.
	EnvelopeTypeWelcome EnvelopeType = "welcome"

	// EnvelopeTypeError is sent by the server for connection-scoped
	// failures: rejected credentials and unparseable frames.
	EnvelopeTypeError EnvelopeType = "error"

	// EnvelopeTypeAction is sent by clients to invoke a named action.
	EnvelopeTypeAction EnvelopeType = "action"

	// EnvelopeTypeActionResponse is sent by the server with the outcome
	// of an action request, correlated by requestId.
	EnvelopeTypeActionResponse EnvelopeType = "actionResponse"
)

// authFailedMessage is the fixed wire message for rejected credentials.
// Clients match on this string, so it must not change.
const authFailedMessage = "Authentication failed. Invalid API key."

// RequestEnvelope is an inbound client frame. Immutable once received.
// Envelopes whose Type is not "action" are ignored without a response;
// this reserves room for future envelope types.
type RequestEnvelope struct {
	// Type identifies the envelope kind. Only "action" is dispatched.
	Type EnvelopeType `json:"type"`

	// Action is the name of the action to invoke.
	Action string `json:"action"`

	// Params is the action's input, passed through to the handler
	// without interpretation.
	Params json.RawMessage `json:"params"`

	// RequestID is the client-supplied correlation token. It is echoed
	// verbatim on the response envelope.
	RequestID string `json:"requestId"`
}

// WelcomeEnvelope is the first frame sent to an admitted client.
type WelcomeEnvelope struct {
	Type EnvelopeType `json:"type"`

	// ClientID is the server-minted opaque id for this connection.
	ClientID string `json:"clientId"`

	// Actions is a snapshot of the registered action names at connect
	// time. The listActions action refreshes it without reconnecting.
	Actions []string `json:"actions"`
}

// ErrorEnvelope reports a connection-scoped failure. The connection stays
// open after a parse error; it is closed after an authentication failure.
type ErrorEnvelope struct {
	Type  EnvelopeType `json:"type"`
	Error string       `json:"error"`
}

// ActionResponseEnvelope is the outcome of one action request. Exactly one
// is emitted per inbound action envelope, on the same connection, with the
// request's correlation token echoed.
type ActionResponseEnvelope struct {
	Type      EnvelopeType `json:"type"`
	RequestID string       `json:"requestId"`
	Success   bool         `json:"success"`

	// Result is the handler's return value. Present on success.
	Result any `json:"result,omitempty"`

	// Error is the failure message. Present when Success is false.
	// Only the message crosses the wire; stacks and wrapped causes
	// stay in the server log.
	Error string `json:"error,omitempty"`
}

// parseRequest decodes one inbound frame into a RequestEnvelope.
// The frame must be a JSON object; the dispatcher turns any decode error
// into a wire-level error envelope.
func parseRequest(data []byte) (RequestEnvelope, error) {
	var req RequestEnvelope
	if err := json.Unmarshal(data, &req); err != nil {
		return RequestEnvelope{}, err
	}
	return req, nil
}

// NewWelcomeEnvelope creates the post-admission greeting.
func NewWelcomeEnvelope(clientID string, actions []string) WelcomeEnvelope {
	return WelcomeEnvelope{
		Type:     EnvelopeTypeWelcome,
		ClientID: clientID,
		Actions:  actions,
	}
}

// NewErrorEnvelope creates a connection-scoped error envelope.
func NewErrorEnvelope(message string) ErrorEnvelope {
	return ErrorEnvelope{
		Type:  EnvelopeTypeError,
		Error: message,
	}
}

// NewActionResponse creates a successful action response.
func NewActionResponse(requestID string, result any) ActionResponseEnvelope {
	return ActionResponseEnvelope{
		Type:      EnvelopeTypeActionResponse,
		RequestID: requestID,
		Success:   true,
		Result:    result,
	}
}

// NewActionError creates a failed action response.
func NewActionError(requestID, message string) ActionResponseEnvelope {
	return ActionResponseEnvelope{
		Type:      EnvelopeTypeActionResponse,
		RequestID: requestID,
		Success:   false,
		Error:     message,
	}
}
