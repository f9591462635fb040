package action

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/agentdeck/uplink/internal/errors"
)

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	r.RegisterFunc("double", func(ctx context.Context, params json.RawMessage, clientID string) (any, error) {
		return nil, nil
	})

	if !r.Has("double") {
		t.Error("Has(double) = false after Register")
	}
	if r.Has("triple") {
		t.Error("Has(triple) = true, never registered")
	}
	if _, ok := r.Get("double"); !ok {
		t.Error("Get(double) not found after Register")
	}
}

func TestRegisterOverwritesSilently(t *testing.T) {
	r := NewRegistry()

	r.RegisterFunc("greet", func(ctx context.Context, params json.RawMessage, clientID string) (any, error) {
		return "first", nil
	})
	r.RegisterFunc("greet", func(ctx context.Context, params json.RawMessage, clientID string) (any, error) {
		return "second", nil
	})

	result, err := r.Invoke(context.Background(), "greet", nil, "c1")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result != "second" {
		t.Errorf("result = %v, want the later registration to win", result)
	}
	if len(r.Names()) != 1 {
		t.Errorf("Names() has %d entries, want 1 (names stay unique)", len(r.Names()))
	}
}

func TestNamesSorted(t *testing.T) {
	r := NewRegistry()
	noop := HandlerFunc(func(ctx context.Context, params json.RawMessage, clientID string) (any, error) {
		return nil, nil
	})
	r.Register("zeta", noop)
	r.Register("alpha", noop)
	r.Register("mid", noop)

	names := r.Names()
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}
}

func TestInvokeUnknownAction(t *testing.T) {
	r := NewRegistry()

	_, err := r.Invoke(context.Background(), "doesNotExist", nil, "c1")
	if err == nil {
		t.Fatal("Invoke of unregistered action should fail")
	}
	if !apperrors.IsCode(err, apperrors.CodeActionUnknown) {
		t.Errorf("error code = %s, want %s", apperrors.GetCode(err), apperrors.CodeActionUnknown)
	}
	if r.Count("doesNotExist") != 0 {
		t.Errorf("Count(doesNotExist) = %d, unknown actions must not count", r.Count("doesNotExist"))
	}
}

func TestInvokeCountsInvocations(t *testing.T) {
	r := NewRegistry()
	r.RegisterFunc("ping", func(ctx context.Context, params json.RawMessage, clientID string) (any, error) {
		return "pong", nil
	})
	r.RegisterFunc("fail", func(ctx context.Context, params json.RawMessage, clientID string) (any, error) {
		return nil, errors.New("boom")
	})

	for i := 0; i < 3; i++ {
		if _, err := r.Invoke(context.Background(), "ping", nil, "c1"); err != nil {
			t.Fatalf("Invoke(ping) failed: %v", err)
		}
	}
	// Failed invocations still count - the handler ran.
	if _, err := r.Invoke(context.Background(), "fail", nil, "c1"); err == nil {
		t.Fatal("Invoke(fail) should return the handler's error")
	}

	if r.Count("ping") != 3 {
		t.Errorf("Count(ping) = %d, want 3", r.Count("ping"))
	}
	if r.Count("fail") != 1 {
		t.Errorf("Count(fail) = %d, want 1", r.Count("fail"))
	}
}

func TestInvokePassesParamsAndClientID(t *testing.T) {
	r := NewRegistry()

	var gotParams string
	var gotClient string
	r.RegisterFunc("inspect", func(ctx context.Context, params json.RawMessage, clientID string) (any, error) {
		gotParams = string(params)
		gotClient = clientID
		return nil, nil
	})

	if _, err := r.Invoke(context.Background(), "inspect", json.RawMessage(`{"n":21}`), "client-42"); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if gotParams != `{"n":21}` {
		t.Errorf("params = %q, want raw JSON passthrough", gotParams)
	}
	if gotClient != "client-42" {
		t.Errorf("clientID = %q, want client-42", gotClient)
	}
}

func TestConcurrentRegisterAndInvoke(t *testing.T) {
	r := NewRegistry()
	r.RegisterFunc("work", func(ctx context.Context, params json.RawMessage, clientID string) (any, error) {
		return nil, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Invoke(context.Background(), "work", nil, "c1")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.RegisterFunc("work", func(ctx context.Context, params json.RawMessage, clientID string) (any, error) {
					return nil, nil
				})
				r.Names()
			}
		}()
	}
	wg.Wait()

	if r.Count("work") != 400 {
		t.Errorf("Count(work) = %d, want 400", r.Count("work"))
	}
}

func TestBuiltinEcho(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, BuiltinDeps{StartedAt: time.Now()})

	result, err := r.Invoke(context.Background(), "echo", json.RawMessage(`{"x":1}`), "c1")
	if err != nil {
		t.Fatalf("Invoke(echo) failed: %v", err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if string(data) != `{"echo":{"x":1}}` {
		t.Errorf("echo result = %s, want {\"echo\":{\"x\":1}}", data)
	}
}

func TestBuiltinSystemInfo(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, BuiltinDeps{
		StartedAt:   time.Now().Add(-2 * time.Second),
		ClientCount: func() int { return 3 },
	})

	result, err := r.Invoke(context.Background(), "systemInfo", nil, "c1")
	if err != nil {
		t.Fatalf("Invoke(systemInfo) failed: %v", err)
	}

	info, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("systemInfo result is %T, want map", result)
	}
	if info["clientsConnected"] != 3 {
		t.Errorf("clientsConnected = %v, want 3", info["clientsConnected"])
	}
	uptime, ok := info["uptime"].(float64)
	if !ok || uptime < 2 {
		t.Errorf("uptime = %v, want >= 2 seconds", info["uptime"])
	}
	if info["platform"] == "" || info["runtime"] == "" {
		t.Errorf("systemInfo missing runtime identifiers: %v", info)
	}
}

func TestBuiltinListActions(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, BuiltinDeps{StartedAt: time.Now()})
	r.RegisterFunc("custom", func(ctx context.Context, params json.RawMessage, clientID string) (any, error) {
		return nil, nil
	})

	result, err := r.Invoke(context.Background(), "listActions", nil, "c1")
	if err != nil {
		t.Fatalf("Invoke(listActions) failed: %v", err)
	}

	listing, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("listActions result is %T, want map", result)
	}
	names, ok := listing["actions"].([]string)
	if !ok {
		t.Fatalf("actions is %T, want []string", listing["actions"])
	}

	want := map[string]bool{"echo": true, "systemInfo": true, "listActions": true, "stats": true, "custom": true}
	if len(names) != len(want) {
		t.Fatalf("actions = %v, want %d names", names, len(want))
	}
	for _, name := range names {
		if !want[name] {
			t.Errorf("unexpected action %q in listing", name)
		}
	}
}

func TestBuiltinStatsWithoutStore(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, BuiltinDeps{StartedAt: time.Now()})

	// Invoke echo twice, then ask for stats.
	r.Invoke(context.Background(), "echo", nil, "c1")
	r.Invoke(context.Background(), "echo", nil, "c1")

	result, err := r.Invoke(context.Background(), "stats", nil, "c1")
	if err != nil {
		t.Fatalf("Invoke(stats) failed: %v", err)
	}

	view, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("stats result is %T, want map", result)
	}
	if view["persistent"] != false {
		t.Errorf("persistent = %v, want false without a store", view["persistent"])
	}
	byAction, ok := view["byAction"].(map[string]uint64)
	if !ok {
		t.Fatalf("byAction is %T, want map[string]uint64", view["byAction"])
	}
	if byAction["echo"] != 2 {
		t.Errorf("byAction[echo] = %d, want 2", byAction["echo"])
	}
}
