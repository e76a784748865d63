// Package audit records tool invocations in a small SQLite log.
//
// It is an independent, best-effort subsystem: if it fails to
// initialize the gateway keeps working and the history action reports
// it as unavailable. The default database lives in memory, so nothing
// survives a restart unless a file path is configured explicitly.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// Entry is one recorded tool invocation.
type Entry struct {
	ID         int64  `json:"id"`
	Mode       string `json:"mode"`
	Action     string `json:"action,omitempty"`
	Outcome    string `json:"outcome"` // "ok" or "error"
	Detail     string `json:"detail,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

// Store is the invocation log.
type Store struct {
	db *sql.DB
}

// New opens the audit database at path (":memory:" for the ephemeral
// default) and applies the schema.
func New(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	// The in-memory database disappears when its last connection
	// closes; pin a single connection so the log survives pool churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("audit: pragma: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("audit: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS invocations (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			mode        TEXT NOT NULL,
			action      TEXT NOT NULL DEFAULT '',
			outcome     TEXT NOT NULL,
			detail      TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_invocations_created
			ON invocations(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends one invocation. Errors are returned so the caller
// can log them, but the caller never fails a request over them.
func (s *Store) Record(e Entry) error {
	_, err := s.db.Exec(
		`INSERT INTO invocations (mode, action, outcome, detail, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Mode, e.Action, e.Outcome, e.Detail, e.DurationMS,
		timeNow().UTC().Format(time.RFC3339),
	)
	return err
}

// Recent returns the newest limit entries, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, mode, action, outcome, detail, duration_ms, created_at
		 FROM invocations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Mode, &e.Action, &e.Outcome, &e.Detail, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
