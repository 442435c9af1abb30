// Package store persists agent sessions and evaluation runs in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"safetycopilot/internal/logging"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// LocalStore implements session.Service and the evaluation-run history on a
// single SQLite file.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	now    func() time.Time
}

// NewLocalStore opens (or creates) the database at path.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	logging.Store("Initializing LocalStore at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.StoreError("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign keys: %v", err)
	}

	store := &LocalStore{db: db, dbPath: path, now: time.Now}
	if err := store.initialize(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	logging.StoreDebug("Database schema initialized successfully")
	return store, nil
}

// Path returns the database file path.
func (s *LocalStore) Path() string { return s.dbPath }

// Close closes the database.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	app_name   TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	id         TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (app_name, user_id, id)
);

CREATE TABLE IF NOT EXISTS session_turns (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	app_name   TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	session_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	author     TEXT NOT NULL DEFAULT '',
	text       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	FOREIGN KEY (app_name, user_id, session_id)
		REFERENCES sessions (app_name, user_id, id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_session_turns_key
	ON session_turns (app_name, user_id, session_id, seq);

CREATE TABLE IF NOT EXISTS eval_runs (
	id           TEXT PRIMARY KEY,
	standard     TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	reports_json TEXT NOT NULL
);
`

// migration adds a column to a table that predates it.
type migration struct {
	Table  string
	Column string
	Def    string
}

var pendingMigrations = []migration{
	{"eval_runs", "provider", "TEXT NOT NULL DEFAULT ''"},
	{"eval_runs", "model", "TEXT NOT NULL DEFAULT ''"},
}

func (s *LocalStore) initialize() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	for _, m := range pendingMigrations {
		exists, err := s.columnExists(m.Table, m.Column)
		if err != nil {
			return fmt.Errorf("failed to inspect %s: %w", m.Table, err)
		}
		if exists {
			continue
		}
		if _, err := s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)); err != nil {
			return fmt.Errorf("failed to add %s.%s: %w", m.Table, m.Column, err)
		}
		logging.Store("Migrated schema: added %s.%s", m.Table, m.Column)
	}
	return nil
}

func (s *LocalStore) columnExists(table, column string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Timestamps are stored as RFC 3339 text in UTC.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		logging.StoreDebug("Unparseable timestamp %q: %v", s, err)
		return time.Time{}
	}
	return t
}
