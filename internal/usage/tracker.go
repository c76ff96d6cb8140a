// Package usage implements the usage tracker: an append-only
// SQLite record of every LLM call, with aggregation queries and cost
// estimation. Writes are fire-and-forget — a tracking failure is logged
// and never blocks the turn that triggered it.
package usage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one immutable usage event.
type Record struct {
	Timestamp         time.Time
	SessionKey        string
	Model             string
	Provider          string
	Agent             string // "default", "coding", "consolidation", "subagent:<id>", ...
	InputTokens       int
	OutputTokens      int
	TotalTokens       int
	CachedInputTokens int
	CallType          string
}

// Tracker is a process-local SQLite-backed usage ledger.
type Tracker struct {
	mu sync.Mutex // serializes writers on this connection
	db *sql.DB
}

// Open creates or opens the usage database at dbPath.
func Open(dbPath string) (*Tracker, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create usage db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}
	db.SetMaxOpenConns(1)

	t := &Tracker{db: db}
	if err := t.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return t, nil
}

func (t *Tracker) Close() error { return t.db.Close() }

func (t *Tracker) migrate() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS usage (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			session_key TEXT NOT NULL,
			model TEXT NOT NULL,
			provider TEXT NOT NULL,
			agent TEXT NOT NULL,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			total_tokens INTEGER NOT NULL,
			cached_input_tokens INTEGER NOT NULL,
			call_type TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_session ON usage(session_key);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_model ON usage(model);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_provider ON usage(provider);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_agent ON usage(agent);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage(timestamp);`,
	}
	for _, s := range stmts {
		if _, err := t.db.Exec(s); err != nil {
			return fmt.Errorf("usage db schema: %w", err)
		}
	}
	return nil
}

// Record writes one usage event. On failure it logs a warning and returns;
// a tracking failure never fails the turn that triggered it.
func (t *Tracker) Record(r Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	_, err := t.db.Exec(
		`INSERT INTO usage(timestamp, session_key, model, provider, agent, input_tokens, output_tokens, total_tokens, cached_input_tokens, call_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp.UnixMilli(), r.SessionKey, r.Model, r.Provider, r.Agent,
		r.InputTokens, r.OutputTokens, r.TotalTokens, r.CachedInputTokens, r.CallType,
	)
	if err != nil {
		slog.Warn("usage tracker: failed to record usage", "error", err)
	}
}
