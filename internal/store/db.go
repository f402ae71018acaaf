// Package store persists conversations, quick actions and settings in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// FileName is the database file created inside the data directory.
const FileName = "talkback.db"

// SQLite implements the conversation, quick action and settings repositories.
type SQLite struct {
	db *sql.DB
}

// Open initializes the database at dir/talkback.db, creating dir if needed.
func Open(dir string) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	_ = os.Chmod(dir, 0o700)

	// Pragmas in the DSN apply to every pooled connection.
	dbPath := filepath.Join(dir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	_ = os.Chmod(dbPath, 0o600)

	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := userVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: initial schema
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS conversations (
		  id         TEXT PRIMARY KEY,
		  created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS turns (
		  id                 TEXT PRIMARY KEY,
		  conversation_id    TEXT NOT NULL REFERENCES conversations(id),
		  seq                INTEGER NOT NULL,
		  created_at         INTEGER NOT NULL,
		  transcript         TEXT NOT NULL,
		  ai_response        TEXT,
		  context_used       TEXT,
		  system_prompt_used TEXT,
		  quick_action_id    TEXT,
		  UNIQUE (conversation_id, seq)
		);

		CREATE TABLE IF NOT EXISTS quick_actions (
		  id              TEXT PRIMARY KEY,
		  label           TEXT NOT NULL,
		  prompt_template TEXT NOT NULL,
		  created_at      INTEGER NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_quick_actions_label
		ON quick_actions(label);

		CREATE TABLE IF NOT EXISTS settings (
		  key   TEXT PRIMARY KEY,
		  value TEXT NOT NULL
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: turns become immutable at the storage layer
	if version < 2 {
		schema := `
		CREATE TRIGGER IF NOT EXISTS turns_no_update
		BEFORE UPDATE ON turns
		BEGIN
		  SELECT RAISE(ABORT, 'conversation turns are immutable');
		END;

		CREATE TRIGGER IF NOT EXISTS turns_no_delete
		BEFORE DELETE ON turns
		BEGIN
		  SELECT RAISE(ABORT, 'conversation turns are immutable');
		END;
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := setUserVersion(db, 2); err != nil {
			return err
		}
	}

	return nil
}

func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

func userVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

func setUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// isUniqueConstraintError checks for a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	value := ns.String
	return &value
}
