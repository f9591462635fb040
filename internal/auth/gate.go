// Package auth provides the shared-secret admission gate for uplink
// connections.
//
// The gate validates the apiKey credential presented at WebSocket handshake
// time. It supports a plaintext key or a bcrypt hash of the key (so the
// plaintext never has to live in the config file), and throttles failed
// attempts to slow brute forcing. Admission decisions are connection-scoped;
// a rejection never affects other connections or the server itself.
package auth

import (
	"crypto/subtle"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	apperrors "github.com/agentdeck/uplink/internal/errors"
)

// GateConfig holds configuration for the admission gate.
type GateConfig struct {
	// Require enables credential checking. When false, every connection
	// is admitted and the key fields are ignored.
	Require bool

	// Key is the expected shared secret, compared in constant time.
	Key string

	// KeyHash is a bcrypt hash of the expected secret. When set it takes
	// precedence over Key.
	KeyHash string

	// FailuresPerSecond is the sustained rate of failed attempts allowed
	// before further failures are throttled. Default: 1.
	FailuresPerSecond float64

	// FailureBurst is how many failed attempts may arrive back-to-back
	// before throttling kicks in. Default: 10.
	FailureBurst int
}

// Gate validates connection credentials.
// A Gate is safe for concurrent use by the accept path.
type Gate struct {
	mu sync.Mutex

	config GateConfig

	// failures throttles failed attempts. Successful admissions never
	// consume a token, so a well-behaved orchestrator reconnecting in a
	// loop is unaffected.
	failures *rate.Limiter
}

// NewGate creates an admission gate from the given configuration.
func NewGate(cfg GateConfig) *Gate {
	if cfg.FailuresPerSecond <= 0 {
		cfg.FailuresPerSecond = 1
	}
	if cfg.FailureBurst <= 0 {
		cfg.FailureBurst = 10
	}
	return &Gate{
		config:   cfg,
		failures: rate.NewLimiter(rate.Limit(cfg.FailuresPerSecond), cfg.FailureBurst),
	}
}

// Required reports whether the gate enforces a credential.
func (g *Gate) Required() bool {
	return g.config.Require
}

// Admit validates the presented credential. A nil return admits the
// connection. The returned coded errors distinguish missing, invalid, and
// throttled attempts for logging; the wire-level rejection message is fixed
// by the protocol regardless.
func (g *Gate) Admit(key string) error {
	if !g.config.Require {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if key == "" {
		return g.fail(apperrors.AuthRequired())
	}

	if g.config.KeyHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(g.config.KeyHash), []byte(key)); err != nil {
			return g.fail(apperrors.AuthInvalid())
		}
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(g.config.Key), []byte(key)) != 1 {
		return g.fail(apperrors.AuthInvalid())
	}

	return nil
}

// fail charges the failure limiter and returns either the original error or
// a rate-limited error once the budget is exhausted. Callers hold g.mu.
func (g *Gate) fail(err error) error {
	if !g.failures.Allow() {
		return apperrors.AuthRateLimited()
	}
	return err
}

// HashKey produces a bcrypt hash of a shared secret suitable for the
// api_key_hash config field. Used by the 'uplink hash-key' CLI command.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
