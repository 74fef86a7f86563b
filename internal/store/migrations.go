package store

import (
	"database/sql"
	"fmt"
	"time"
)

// schemaVersion is bumped whenever runBootstrapDDL changes shape.
const schemaVersion = "1"

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLiteStore) migrate() error {
	done, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}
	if done {
		return nil
	}

	if err := s.runBootstrapDDL(); err != nil {
		return err
	}
	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}
	if _, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_bootstrap_complete', 'true')"); err != nil {
		return fmt.Errorf("marking bootstrap complete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) runBootstrapDDL() error {
	statements := []string{
		// Conversation turns, append-only
		`CREATE TABLE IF NOT EXISTS turns (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			kind               TEXT NOT NULL CHECK(kind IN ('interview','survey')),
			session_id         TEXT NOT NULL,
			seq                INTEGER NOT NULL,
			user_message       TEXT NOT NULL,
			assistant_response TEXT NOT NULL,
			user_ip            TEXT,
			user_agent         TEXT,
			created_at         DATETIME NOT NULL,
			UNIQUE(kind, session_id, seq)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(kind, session_id, seq)`,

		// One partial record per (kind, session)
		`CREATE TABLE IF NOT EXISTS records (
			kind       TEXT NOT NULL CHECK(kind IN ('interview','survey')),
			session_id TEXT NOT NULL,
			fields     TEXT NOT NULL DEFAULT '{}',
			expected   TEXT NOT NULL DEFAULT '[]',
			completed  INTEGER NOT NULL DEFAULT 0,
			user_ip    TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY(kind, session_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_records_created ON records(kind, created_at)`,

		// Operator settings
		`CREATE TABLE IF NOT EXISTS settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		// Metadata table
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", truncate(stmt, 80), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}
	return nil
}

func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

// seedMeta initializes the meta table with defaults if not already set.
func (s *SQLiteStore) seedMeta() error {
	defaults := map[string]string{
		"schema_version": schemaVersion,
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range defaults {
		if _, err := s.db.Exec("INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

// truncate shortens a string for error messages.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
