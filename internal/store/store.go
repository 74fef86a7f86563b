// Package store provides the SQLite storage layer for intake.
//
// A single database file holds:
// - Turns: every user message and assistant response, per session
// - Records: the partial record of each (kind, session) pair as JSON
// - Settings: operator switches such as chat_enabled
//
// A turn and the record writes it produced are committed in one transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hurttlocker/intake/internal/record"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.intake/intake.db"

// ErrNotFound is returned when a record or setting does not exist.
var ErrNotFound = errors.New("not found")

// RecordUpdate is the write set of one turn.
type RecordUpdate struct {
	// Writes are applied only to fields that are still absent.
	Writes map[string]record.Value
	// Complete marks the record completed. Completion is one-way.
	Complete bool
	// Expected replaces the record's expected-field tag.
	Expected []string
}

// CommitResult reports what a CommitTurn actually changed.
type CommitResult struct {
	Record *record.Record
	// Written lists the fields set by this commit, sorted.
	Written []string
	// Completed is true when this commit flipped the record to completed.
	Completed bool
}

// ListOpts controls pagination for ListRecords.
type ListOpts struct {
	Limit  int
	Offset int
}

// RecordStats summarizes the records of one kind.
type RecordStats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Today      int `json:"today"`
}

// StoreStats holds observability statistics about the store.
type StoreStats struct {
	TurnCount   int64 `json:"turn_count"`
	RecordCount int64 `json:"record_count"`
	DBSizeBytes int64 `json:"db_size_bytes"`
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// Store defines the storage interface.
type Store interface {
	// Turns
	History(ctx context.Context, kind record.Kind, sessionID string, limit int) ([]record.Turn, error)
	CountTurns(ctx context.Context, kind record.Kind, sessionID string) (int, error)

	// Records
	GetRecord(ctx context.Context, kind record.Kind, sessionID string) (*record.Record, error)
	CommitTurn(ctx context.Context, turn *record.Turn, upd RecordUpdate) (*CommitResult, error)
	UpdateFields(ctx context.Context, kind record.Kind, sessionID string, values map[string]record.Value, overwrite bool) (*CommitResult, error)
	ListRecords(ctx context.Context, kind record.Kind, opts ListOpts) ([]*record.Record, error)
	RecordStats(ctx context.Context, kind record.Kind, now time.Time) (*RecordStats, error)
	DeleteSession(ctx context.Context, kind record.Kind, sessionID string) error

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Observability
	Stats(ctx context.Context) (*StoreStats, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	cfg.DBPath = expandPath(cfg.DBPath)

	// Create parent directory for non-memory databases
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Every connection to ":memory:" is its own database.
	if cfg.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Stats returns row counts and the database file size.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	st := &StoreStats{}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM turns").Scan(&st.TurnCount); err != nil {
		return nil, fmt.Errorf("counting turns: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&st.RecordCount); err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}
	if s.dbPath != ":memory:" {
		if info, err := os.Stat(s.dbPath); err == nil {
			st.DBSizeBytes = info.Size()
		}
	}
	return st, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
