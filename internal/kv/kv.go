// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kv provides a small durable key-value store used for
// conversation and settings persistence.
package kv

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/term"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// RESULT TYPE
// =============================================================================

// Result reports the outcome of a best-effort write operation.
type Result int

const (
	// ResultOK means the write was persisted.
	ResultOK Result = iota
	// ResultUnavailable means no backing store is attached; the write
	// was silently dropped.
	ResultUnavailable
	// ResultFailed means the backing store rejected the write.
	ResultFailed
)

// String returns the string representation of the result.
func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultUnavailable:
		return "unavailable"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// OK reports whether the write was persisted.
func (r Result) OK() bool {
	return r == ResultOK
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is a synchronous best-effort key-value store.
//
// RELIABILITY: Set and Remove never return errors. A degraded store
// reports its state through Result and Available so callers on hot
// paths (every message append writes through here) stay branch-free.
type Store interface {
	// Get returns the value for key. The boolean is false when the key
	// is absent or the store is unavailable.
	Get(key string) (string, bool)

	// Set stores value under key.
	Set(key, value string) Result

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) Result

	// Keys returns all keys with the given prefix, sorted.
	Keys(prefix string) []string

	// Available reports whether writes can be persisted.
	Available() bool

	// Close releases the underlying resources.
	Close() error
}

// =============================================================================
// SQLITE STORE
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// SQLiteStore is a Store backed by a single SQLite table.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *log.Logger

	// Tracks whether the current failure streak has been logged, so a
	// broken disk produces one log line instead of one per keystroke.
	failLogged bool
}

// Open opens (or creates) the store at path.
func Open(path string) (*SQLiteStore, error) {
	return OpenWithLogger(path, log.New(os.Stderr, "[kv] ", log.LstdFlags))
}

// OpenWithLogger is Open with an explicit logger.
func OpenWithLogger(path string, logger *log.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// OpenDefault opens the store in the standard data directory, falling
// back to the unavailable NullStore when the process has no usable data
// directory or runs in a non-interactive context where prompting or
// failing loudly would be wrong.
func OpenDefault(logger *log.Logger) Store {
	dir := DataDir()
	if dir == "" {
		if logger != nil {
			logger.Printf("no data directory available, persistence disabled")
		}
		return Null()
	}

	store, err := OpenWithLogger(filepath.Join(dir, "state.db"), logger)
	if err != nil {
		if logger != nil && interactive() {
			logger.Printf("failed to open store: %v, persistence disabled", err)
		}
		return Null()
	}
	return store
}

// DataDir returns the data directory, honoring SPRYCHAT_DATA_DIR.
// Returns "" when no directory can be resolved.
func DataDir() string {
	if dir := os.Getenv("SPRYCHAT_DATA_DIR"); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "sprychat")
}

// interactive reports whether stdin is a terminal.
func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Get returns the value for key.
func (s *SQLiteStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// Set stores value under key.
func (s *SQLiteStore) Set(key, value string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UnixMilli())
	if err != nil {
		s.logFailure("set", key, err)
		return ResultFailed
	}
	s.failLogged = false
	return ResultOK
}

// Remove deletes key.
func (s *SQLiteStore) Remove(key string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		s.logFailure("remove", key, err)
		return ResultFailed
	}
	s.failLogged = false
	return ResultOK
}

// Keys returns all keys with the given prefix, sorted.
func (s *SQLiteStore) Keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		"SELECT key FROM kv WHERE key LIKE ? ESCAPE '\\' ORDER BY key",
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return keys
		}
		keys = append(keys, key)
	}
	return keys
}

// Available reports whether writes can be persisted.
func (s *SQLiteStore) Available() bool {
	return s.db != nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// logFailure logs the first failure of a streak.
func (s *SQLiteStore) logFailure(op, key string, err error) {
	if s.failLogged || s.logger == nil {
		return
	}
	s.failLogged = true
	s.logger.Printf("%s %q failed: %v (further failures suppressed)", op, key, err)
}

// escapeLike escapes LIKE metacharacters in a literal prefix.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// =============================================================================
// NULL STORE
// =============================================================================

// NullStore is a Store with no backing storage. Every read misses and
// every write reports ResultUnavailable.
type NullStore struct{}

// Null returns the shared unavailable store.
func Null() *NullStore {
	return &NullStore{}
}

func (*NullStore) Get(string) (string, bool) { return "", false }
func (*NullStore) Set(string, string) Result { return ResultUnavailable }
func (*NullStore) Remove(string) Result      { return ResultUnavailable }
func (*NullStore) Keys(string) []string      { return nil }
func (*NullStore) Available() bool           { return false }
func (*NullStore) Close() error              { return nil }
