package stats

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndSummary(t *testing.T) {
	s := newTestStore(t)

	invocations := []Invocation{
		{Action: "echo", ClientID: "c1", Success: true, Duration: 2 * time.Millisecond},
		{Action: "echo", ClientID: "c2", Success: true, Duration: time.Millisecond},
		{Action: "systemInfo", ClientID: "c1", Success: true, Duration: time.Millisecond},
		{Action: "deploy", ClientID: "c1", Success: false, Error: "no such workflow", Duration: 5 * time.Millisecond},
	}
	for _, inv := range invocations {
		if err := s.Record(inv); err != nil {
			t.Fatalf("Record(%q) failed: %v", inv.Action, err)
		}
	}

	sum, err := s.Summary()
	if err != nil {
		t.Fatalf("Summary() failed: %v", err)
	}

	if sum.TotalInvocations != 4 {
		t.Errorf("TotalInvocations = %d, want 4", sum.TotalInvocations)
	}
	if sum.Failures != 1 {
		t.Errorf("Failures = %d, want 1", sum.Failures)
	}
	if sum.ByAction["echo"] != 2 {
		t.Errorf("ByAction[echo] = %d, want 2", sum.ByAction["echo"])
	}
	if sum.ByAction["systemInfo"] != 1 {
		t.Errorf("ByAction[systemInfo] = %d, want 1", sum.ByAction["systemInfo"])
	}
}

func TestSummaryEmpty(t *testing.T) {
	s := newTestStore(t)

	sum, err := s.Summary()
	if err != nil {
		t.Fatalf("Summary() failed: %v", err)
	}
	if sum.TotalInvocations != 0 || sum.Failures != 0 {
		t.Errorf("empty store summary = %+v, want zeros", sum)
	}
	if len(sum.ByAction) != 0 {
		t.Errorf("empty store ByAction has %d entries", len(sum.ByAction))
	}
}

func TestCountFor(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		if err := s.Record(Invocation{Action: "echo", ClientID: "c1", Success: true}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	count, err := s.CountFor("echo")
	if err != nil {
		t.Fatalf("CountFor failed: %v", err)
	}
	if count != 3 {
		t.Errorf("CountFor(echo) = %d, want 3", count)
	}

	count, err = s.CountFor("never-invoked")
	if err != nil {
		t.Fatalf("CountFor failed: %v", err)
	}
	if count != 0 {
		t.Errorf("CountFor(never-invoked) = %d, want 0", count)
	}
}

func TestClosedStore(t *testing.T) {
	s := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Double close is a no-op
	if err := s.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if err := s.Record(Invocation{Action: "echo"}); err != ErrClosed {
		t.Errorf("Record on closed store = %v, want ErrClosed", err)
	}
	if _, err := s.Summary(); err != ErrClosed {
		t.Errorf("Summary on closed store = %v, want ErrClosed", err)
	}
}
