// Package errors provides standardized error codes for the uplink server.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (transport, auth, protocol, action, handler)
//   - error: The specific error type within that domain
//
// These codes are stable and can be used by clients and operators for
// programmatic error handling. Human-readable messages are provided
// alongside codes. Only the message half ever reaches the wire; codes
// are for logs and tests.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
// These are stable identifiers that callers can rely on for error handling.
const (
	// Transport domain - listener and HTTP server errors.
	// These are fatal to startup and must be surfaced to the operator.
	CodeTransportBindFailed    = "transport.bind_failed"    // Could not bind the configured address
	CodeTransportTLSFailed     = "transport.tls_failed"     // TLS certificate load failed
	CodeTransportAlreadyActive = "transport.already_active" // Start called while running

	// Auth domain - connection admission errors. Connection-scoped.
	CodeAuthRequired    = "auth.required"     // Credential required but missing
	CodeAuthInvalid     = "auth.invalid"      // Credential mismatch
	CodeAuthRateLimited = "auth.rate_limited" // Too many failed attempts

	// Protocol domain - malformed inbound frames. Connection-scoped.
	CodeProtocolParseFailed  = "protocol.parse_failed"  // Frame is not valid JSON
	CodeProtocolInvalidFrame = "protocol.invalid_frame" // Frame decoded but is unusable

	// Action domain - request resolution errors. Request-scoped.
	CodeActionUnknown = "action.unknown" // Action name not registered

	// Handler domain - action execution errors. Request-scoped.
	CodeHandlerFailed  = "handler.failed"  // Handler returned an error
	CodeHandlerTimeout = "handler.timeout" // Handler exceeded the request timeout

	// Stats domain - invocation log persistence errors.
	CodeStatsOpenFailed  = "stats.open_failed"  // Database open failed
	CodeStatsQueryFailed = "stats.query_failed" // Database query failed
	CodeStatsWriteFailed = "stats.write_failed" // Failed to record an invocation

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal server error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "action.unknown")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// If the error is a CodedError, returns its code.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to client responses.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common error constructors for frequently used error types.

// BindFailed creates a "transport.bind_failed" error.
// This is fatal to Start() and leaves the server in the not-running state.
func BindFailed(addr string, cause error) *CodedError {
	return Wrap(CodeTransportBindFailed, fmt.Sprintf("failed to listen on %s", addr), cause)
}

// TLSFailed creates a "transport.tls_failed" error.
func TLSFailed(cause error) *CodedError {
	return Wrap(CodeTransportTLSFailed, "failed to load TLS certificate", cause)
}

// AuthInvalid creates an "auth.invalid" error.
// The wire message for this case is fixed by the protocol; see the uplink
// package. This constructor is for logs and internal propagation.
func AuthInvalid() *CodedError {
	return New(CodeAuthInvalid, "invalid API key")
}

// AuthRequired creates an "auth.required" error.
func AuthRequired() *CodedError {
	return New(CodeAuthRequired, "API key required")
}

// AuthRateLimited creates an "auth.rate_limited" error.
func AuthRateLimited() *CodedError {
	return New(CodeAuthRateLimited, "too many failed authentication attempts, try again later")
}

// ParseFailed creates a "protocol.parse_failed" error.
func ParseFailed(cause error) *CodedError {
	return Wrap(CodeProtocolParseFailed, "malformed message", cause)
}

// UnknownAction creates an "action.unknown" error.
// The message deliberately contains the action name so clients can
// report which name failed to resolve.
func UnknownAction(name string) *CodedError {
	return New(CodeActionUnknown, fmt.Sprintf("Unknown action: %s", name))
}

// HandlerFailed creates a "handler.failed" error wrapping the handler's error.
func HandlerFailed(action string, cause error) *CodedError {
	return Wrap(CodeHandlerFailed, fmt.Sprintf("action %s failed", action), cause)
}

// HandlerTimeout creates a "handler.timeout" error.
func HandlerTimeout(action string) *CodedError {
	return New(CodeHandlerTimeout, fmt.Sprintf("action %s timed out", action))
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
