package action

import (
	"context"
	"encoding/json"
	"runtime"
	"time"

	"github.com/agentdeck/uplink/internal/stats"
)

// BuiltinDeps carries the server-side state the built-in actions report on.
// The registry itself stays dependency-free; built-ins are plain handlers
// registered like any collaborator's.
type BuiltinDeps struct {
	// StartedAt is when the hosting process started, used for uptime.
	StartedAt time.Time

	// ClientCount returns the number of live authenticated connections.
	ClientCount func() int

	// Stats is the invocation log. May be nil when the log is disabled;
	// the stats action then reports an in-memory view from the registry.
	Stats *stats.Store
}

// RegisterBuiltins installs the default actions on the registry:
//
//	echo        - returns {echo: params}, the standard liveness check
//	systemInfo  - process uptime, runtime identifiers, connected clients
//	listActions - current action names, refreshable without reconnecting
//	stats       - invocation totals from the persistent log
func RegisterBuiltins(r *Registry, deps BuiltinDeps) {
	r.RegisterFunc("echo", func(ctx context.Context, params json.RawMessage, clientID string) (any, error) {
		// Echo back exactly what was sent. Null params echo as null.
		if params == nil {
			params = json.RawMessage("null")
		}
		return map[string]any{"echo": params}, nil
	})

	r.RegisterFunc("systemInfo", func(ctx context.Context, params json.RawMessage, clientID string) (any, error) {
		clients := 0
		if deps.ClientCount != nil {
			clients = deps.ClientCount()
		}
		return map[string]any{
			"uptime":           time.Since(deps.StartedAt).Seconds(),
			"platform":         runtime.GOOS,
			"arch":             runtime.GOARCH,
			"runtime":          runtime.Version(),
			"numCpu":           runtime.NumCPU(),
			"numGoroutine":     runtime.NumGoroutine(),
			"clientsConnected": clients,
		}, nil
	})

	r.RegisterFunc("listActions", func(ctx context.Context, params json.RawMessage, clientID string) (any, error) {
		return map[string]any{"actions": r.Names()}, nil
	})

	r.RegisterFunc("stats", func(ctx context.Context, params json.RawMessage, clientID string) (any, error) {
		if deps.Stats == nil {
			// No persistent log configured: fall back to the in-process
			// counters so the action still answers.
			byAction := make(map[string]uint64)
			for _, name := range r.Names() {
				if count := r.Count(name); count > 0 {
					byAction[name] = count
				}
			}
			return map[string]any{"byAction": byAction, "persistent": false}, nil
		}

		sum, err := deps.Stats.Summary()
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"totalInvocations": sum.TotalInvocations,
			"failures":         sum.Failures,
			"byAction":         sum.ByAction,
			"persistent":       true,
		}, nil
	})
}
