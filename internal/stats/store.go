// Package stats persists the action invocation log.
//
// Every dispatched action is recorded with its outcome and duration so the
// stats built-in action and the /api/stats endpoint can report totals
// without holding counters in process memory across restarts.
package stats

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	// SQLite driver - imported for side effects (registers the driver).
	// Using modernc.org/sqlite which is a pure-Go implementation that
	// doesn't require CGO, making cross-compilation and testing easier.
	"database/sql"

	_ "modernc.org/sqlite"
)

// ErrClosed is returned when an operation is attempted on a closed store.
var ErrClosed = errors.New("stats store is closed")

// Invocation is one recorded action dispatch.
type Invocation struct {
	// Action is the invoked action name.
	Action string

	// ClientID is the server-minted id of the invoking connection.
	ClientID string

	// Success reports whether the handler completed without error.
	Success bool

	// Error is the handler's error message for failed invocations,
	// empty on success. Only the message is stored, matching the
	// information-hiding policy on the wire.
	Error string

	// Duration is how long the handler ran.
	Duration time.Duration

	// CreatedAt is when the invocation completed.
	CreatedAt time.Time
}

// Summary aggregates the invocation log for reporting.
type Summary struct {
	// TotalInvocations is the count of all recorded invocations.
	TotalInvocations int64 `json:"totalInvocations"`

	// Failures is the count of invocations whose handler returned an error.
	Failures int64 `json:"failures"`

	// ByAction maps action names to their invocation counts.
	ByAction map[string]int64 `json:"byAction"`
}

// Store implements the invocation log using SQLite for persistence.
// It creates the database and tables on first use and supports
// concurrent access through internal locking.
type Store struct {
	db     *sql.DB      // Database connection handle.
	mu     sync.RWMutex // Guards all database operations for thread safety.
	closed bool
}

// schema creates the invocation log table and its indexes.
// CREATE TABLE IF NOT EXISTS makes initialization idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS invocations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	action      TEXT    NOT NULL,
	client_id   TEXT    NOT NULL,
	success     INTEGER NOT NULL,
	error       TEXT    NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invocations_action ON invocations(action);
CREATE INDEX IF NOT EXISTS idx_invocations_created_at ON invocations(created_at);
`

// Open opens or creates a SQLite database at the given path.
// It initializes the schema if the tables don't exist.
// Use ":memory:" for an in-memory database (useful for testing).
func Open(path string) (*Store, error) {
	log.Printf("stats: opening invocation log at %s", path)

	// Open database with a busy_timeout to tolerate concurrent access
	// from the running server and CLI queries.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: the store serializes access anyway, and pooled
	// connections would each see their own ":memory:" database.
	db.SetMaxOpenConns(1)

	// Verify the connection is working.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Record appends one invocation to the log.
func (s *Store) Record(inv Invocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	success := 0
	if inv.Success {
		success = 1
	}

	createdAt := inv.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.Exec(
		`INSERT INTO invocations (action, client_id, success, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		inv.Action, inv.ClientID, success, inv.Error,
		inv.Duration.Milliseconds(), createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record invocation: %w", err)
	}
	return nil
}

// Summary aggregates the full invocation log.
func (s *Store) Summary() (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	sum := &Summary{ByAction: make(map[string]int64)}

	row := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0) FROM invocations`)
	if err := row.Scan(&sum.TotalInvocations, &sum.Failures); err != nil {
		return nil, fmt.Errorf("summarize invocations: %w", err)
	}

	rows, err := s.db.Query(`SELECT action, COUNT(*) FROM invocations GROUP BY action`)
	if err != nil {
		return nil, fmt.Errorf("summarize by action: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scan action count: %w", err)
		}
		sum.ByAction[name] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action counts: %w", err)
	}

	return sum, nil
}

// CountFor returns the invocation count for a single action name.
func (s *Store) CountFor(name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}

	var count int64
	row := s.db.QueryRow(`SELECT COUNT(*) FROM invocations WHERE action = ?`, name)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count invocations: %w", err)
	}
	return count, nil
}
