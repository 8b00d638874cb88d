// Package localstore is the device-local authoritative store. Every engine
// mutation lands here synchronously; the remote store only ever sees what
// this store already holds.
package localstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open opens the local SQLite database, creating the data directory and
// schema if needed. WAL mode keeps reads available during writes; a single
// writer connection matches SQLite's locking model.
func Open(dataDir string) (*sql.DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "spieltag.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenMemory opens an in-memory store. Used by tests.
func OpenMemory() (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS matches (
	id                 TEXT PRIMARY KEY,
	tournament_id      TEXT NOT NULL,
	home_team_id       TEXT NOT NULL,
	away_team_id       TEXT NOT NULL,
	status             TEXT NOT NULL,
	score_home         INTEGER NOT NULL DEFAULT 0,
	score_away         INTEGER NOT NULL DEFAULT 0,
	timer_started_at   TIMESTAMP,
	timer_accumulated_ns INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMP NOT NULL,
	updated_at         TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_matches_tournament ON matches(tournament_id);

CREATE TABLE IF NOT EXISTS match_events (
	id          TEXT PRIMARY KEY,
	match_id    TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	event_type  TEXT NOT NULL,
	team_id     TEXT,
	player_ref  INTEGER,
	at_seconds  INTEGER NOT NULL,
	score_home  INTEGER NOT NULL,
	score_away  INTEGER NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	UNIQUE (match_id, seq)
);

CREATE TABLE IF NOT EXISTS sync_queue (
	id            TEXT PRIMARY KEY,
	match_id      TEXT NOT NULL,
	tournament_id TEXT NOT NULL,
	payload       TEXT NOT NULL,
	local_version INTEGER NOT NULL,
	status        TEXT NOT NULL DEFAULT 'PENDING',
	attempts      INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, created_at);
`

// Migrate creates the schema. Statements are idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate local store: %w", err)
	}
	return nil
}
