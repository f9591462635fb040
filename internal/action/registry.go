// Package action provides the named-action registry for the uplink server.
//
// An action is a server-side operation a connected client can invoke by name.
// Collaborating subsystems (agent management, workflow tooling, provider
// configuration) register their operations here at startup; the dispatcher
// resolves inbound requests against the registry and has no knowledge of
// handler internals.
package action

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	apperrors "github.com/agentdeck/uplink/internal/errors"
)

// Handler is a named server-side operation invocable by a connected client.
// Implementations may block; the dispatcher runs each invocation on its own
// goroutine, so two requests from the same connection can execute
// concurrently. Handlers must be safe under concurrent self-invocation.
type Handler interface {
	// Invoke executes the action with the client-supplied params and the
	// server-minted id of the invoking connection. The returned value is
	// serialized into the actionResponse result field. A returned error
	// reaches the client as a message string only; the full error is
	// logged server-side.
	Invoke(ctx context.Context, params json.RawMessage, clientID string) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, params json.RawMessage, clientID string) (any, error)

// Invoke implements Handler.
func (f HandlerFunc) Invoke(ctx context.Context, params json.RawMessage, clientID string) (any, error) {
	return f(ctx, params, clientID)
}

// Registry is a thread-safe name→handler map.
// Registering under an existing name overwrites the prior handler silently;
// this is deliberate so collaborators can replace built-ins.
type Registry struct {
	mu sync.RWMutex

	// handlers maps action names to their handlers.
	handlers map[string]Handler

	// invocations counts how many times each action has been invoked.
	// Unknown-action requests never touch these counters.
	invocations map[string]uint64
}

// NewRegistry creates an empty action registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers:    make(map[string]Handler),
		invocations: make(map[string]uint64),
	}
}

// Register adds or replaces the handler for the given name.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// RegisterFunc is a convenience wrapper over Register for plain functions.
func (r *Registry) RegisterFunc(name string, fn HandlerFunc) {
	r.Register(name, fn)
}

// Has reports whether a handler is registered under the given name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Get returns the handler registered under the given name.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns all registered action names, sorted for stable output.
// The welcome envelope and /api/info both report this list.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns how many times the named action has been invoked.
func (r *Registry) Count(name string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.invocations[name]
}

// Invoke resolves and executes the named action, incrementing its
// invocation counter. Returns an "action.unknown" coded error without
// touching any counter when the name is not registered, so callers can
// distinguish resolution failures from handler failures via
// apperrors.IsCode(err, apperrors.CodeActionUnknown).
func (r *Registry) Invoke(ctx context.Context, name string, params json.RawMessage, clientID string) (any, error) {
	r.mu.Lock()
	h, ok := r.handlers[name]
	if !ok {
		r.mu.Unlock()
		return nil, apperrors.UnknownAction(name)
	}
	r.invocations[name]++
	r.mu.Unlock()

	return h.Invoke(ctx, params, clientID)
}
