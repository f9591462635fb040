package auth

import (
	"testing"

	apperrors "github.com/agentdeck/uplink/internal/errors"
)

func TestAdmitWhenNotRequired(t *testing.T) {
	g := NewGate(GateConfig{Require: false})

	if err := g.Admit(""); err != nil {
		t.Errorf("Admit with no credential = %v, want admission when not required", err)
	}
	if err := g.Admit("anything"); err != nil {
		t.Errorf("Admit with arbitrary credential = %v, want admission when not required", err)
	}
}

func TestAdmitPlaintextKey(t *testing.T) {
	g := NewGate(GateConfig{Require: true, Key: "correct-horse"})

	if err := g.Admit("correct-horse"); err != nil {
		t.Errorf("Admit with correct key = %v, want nil", err)
	}

	err := g.Admit("wrong-key")
	if err == nil {
		t.Fatal("Admit with wrong key should fail")
	}
	if !apperrors.IsCode(err, apperrors.CodeAuthInvalid) {
		t.Errorf("error code = %s, want %s", apperrors.GetCode(err), apperrors.CodeAuthInvalid)
	}

	err = g.Admit("")
	if err == nil {
		t.Fatal("Admit with missing key should fail")
	}
	if !apperrors.IsCode(err, apperrors.CodeAuthRequired) {
		t.Errorf("error code = %s, want %s", apperrors.GetCode(err), apperrors.CodeAuthRequired)
	}
}

func TestAdmitHashedKey(t *testing.T) {
	hash, err := HashKey("s3cret")
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}

	g := NewGate(GateConfig{Require: true, KeyHash: hash})

	if err := g.Admit("s3cret"); err != nil {
		t.Errorf("Admit with correct key against hash = %v, want nil", err)
	}
	if err := g.Admit("guess"); err == nil {
		t.Error("Admit with wrong key against hash should fail")
	}
}

func TestHashTakesPrecedenceOverPlaintext(t *testing.T) {
	hash, err := HashKey("hashed-secret")
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}

	g := NewGate(GateConfig{Require: true, Key: "plain-secret", KeyHash: hash})

	if err := g.Admit("hashed-secret"); err != nil {
		t.Errorf("Admit with hashed secret = %v, want nil (hash wins)", err)
	}
	if err := g.Admit("plain-secret"); err == nil {
		t.Error("Admit with plaintext secret should fail when a hash is configured")
	}
}

func TestFailureRateLimiting(t *testing.T) {
	// Tiny burst so the test trips the limiter quickly.
	g := NewGate(GateConfig{
		Require:           true,
		Key:               "right",
		FailuresPerSecond: 0.001,
		FailureBurst:      2,
	})

	// First failures report the real reason.
	for i := 0; i < 2; i++ {
		if err := g.Admit("wrong"); !apperrors.IsCode(err, apperrors.CodeAuthInvalid) {
			t.Fatalf("attempt %d: error code = %s, want %s", i, apperrors.GetCode(err), apperrors.CodeAuthInvalid)
		}
	}

	// Budget exhausted: further failures are throttled.
	if err := g.Admit("wrong"); !apperrors.IsCode(err, apperrors.CodeAuthRateLimited) {
		t.Errorf("error code after burst = %s, want %s", apperrors.GetCode(err), apperrors.CodeAuthRateLimited)
	}

	// A correct key is still admitted - successes never consume budget.
	if err := g.Admit("right"); err != nil {
		t.Errorf("Admit with correct key while throttled = %v, want nil", err)
	}
}
