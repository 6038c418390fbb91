package report

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps runs in a SQLite database so they survive restarts and
// can be shared between server processes on one host.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("report: create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("report: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("report: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id         TEXT PRIMARY KEY,
			kind       TEXT    NOT NULL,
			created_at INTEGER NOT NULL,
			minidump   TEXT    NOT NULL,
			payload    BLOB    NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("report: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save inserts or replaces run.
func (s *SQLiteStore) Save(run *Run) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshalling run %s: %w", run.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO runs (id, kind, created_at, minidump, payload) VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.CreatedAt.UnixMilli(), run.Minidump, payload,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	return nil
}

// Load reads one run by ID.
func (s *SQLiteStore) Load(runID string) (*Run, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM runs WHERE id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	run, err := decodeRun(payload)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling run %s: %w", runID, err)
	}
	return run, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
