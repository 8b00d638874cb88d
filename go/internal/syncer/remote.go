// Package syncer reconciles the local authoritative store with the remote
// durable store. Local state always wins: pending local mutations are applied
// to the remote unconditionally, on the assumption that exactly one device
// operates a match's cockpit at a time. Two devices editing the same live
// match concurrently is out of scope and deliberately unhandled.
package syncer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/mlutz/spieltag/go/internal/models"
	"github.com/sqlc-dev/pqtype"
)

// RemoteStore receives whole-state match projections. Implementations must
// treat every push as authoritative (last write wins, no merge).
type RemoteStore interface {
	PushMatchState(ctx context.Context, p models.MatchProjection) error
}

// PostgresRemote writes projections to the remote Postgres store.
type PostgresRemote struct {
	db *sql.DB
}

// OpenPostgresRemote connects to the remote store.
func OpenPostgresRemote(dsn string) (*PostgresRemote, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote store: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping remote store: %w", err)
	}
	return &PostgresRemote{db: db}, nil
}

// NewPostgresRemote wraps an existing connection.
func NewPostgresRemote(db *sql.DB) *PostgresRemote {
	return &PostgresRemote{db: db}
}

const upsertMatchState = `
INSERT INTO matches (id, tournament_id, status, score_home, score_away,
	timer_started_at, timer_accumulated_seconds, events, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	score_home = EXCLUDED.score_home,
	score_away = EXCLUDED.score_away,
	timer_started_at = EXCLUDED.timer_started_at,
	timer_accumulated_seconds = EXCLUDED.timer_accumulated_seconds,
	events = EXCLUDED.events,
	updated_at = EXCLUDED.updated_at
`

// PushMatchState upserts the full projection. The events array travels as a
// JSONB column; the remote never receives partial diffs.
func (r *PostgresRemote) PushMatchState(ctx context.Context, p models.MatchProjection) error {
	eventsJSON, err := json.Marshal(p.Events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	var startedAt sql.NullTime
	if p.TimerStartedAt != nil {
		startedAt = sql.NullTime{Time: *p.TimerStartedAt, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, upsertMatchState,
		p.MatchID, p.TournamentID, string(p.Status), p.ScoreHome, p.ScoreAway,
		startedAt, p.TimerAccumulated,
		pqtype.NullRawMessage{RawMessage: eventsJSON, Valid: true},
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to push match state: %w", err)
	}
	return nil
}

// Close closes the remote connection.
func (r *PostgresRemote) Close() error {
	return r.db.Close()
}
