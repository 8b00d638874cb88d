package localstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/mlutz/spieltag/go/internal/models"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries bundles the hand-written statements against the local schema.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx binds the queries to a transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// MatchRow mirrors the matches table.
type MatchRow struct {
	ID                 uuid.UUID
	TournamentID       uuid.UUID
	HomeTeamID         uuid.UUID
	AwayTeamID         uuid.UUID
	Status             string
	ScoreHome          int
	ScoreAway          int
	TimerStartedAt     sql.NullTime
	TimerAccumulatedNs int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// MatchEventRow mirrors the match_events table.
type MatchEventRow struct {
	ID        uuid.UUID
	MatchID   uuid.UUID
	Seq       int
	EventType string
	TeamID    sql.NullString
	PlayerRef sql.NullInt64
	AtSeconds int
	ScoreHome int
	ScoreAway int
	CreatedAt time.Time
}

// SyncEntryRow mirrors the sync_queue table.
type SyncEntryRow struct {
	ID           uuid.UUID
	MatchID      uuid.UUID
	TournamentID uuid.UUID
	Payload      []byte
	LocalVersion int64
	Status       string
	Attempts     int
	CreatedAt    time.Time
}

const upsertMatch = `
INSERT INTO matches (id, tournament_id, home_team_id, away_team_id, status,
	score_home, score_away, timer_started_at, timer_accumulated_ns, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	status = excluded.status,
	score_home = excluded.score_home,
	score_away = excluded.score_away,
	timer_started_at = excluded.timer_started_at,
	timer_accumulated_ns = excluded.timer_accumulated_ns,
	updated_at = excluded.updated_at
`

func (q *Queries) UpsertMatch(ctx context.Context, row MatchRow) error {
	_, err := q.db.ExecContext(ctx, upsertMatch,
		row.ID.String(), row.TournamentID.String(), row.HomeTeamID.String(), row.AwayTeamID.String(),
		row.Status, row.ScoreHome, row.ScoreAway, row.TimerStartedAt, row.TimerAccumulatedNs,
		row.CreatedAt, row.UpdatedAt)
	return err
}

const getMatch = `
SELECT id, tournament_id, home_team_id, away_team_id, status, score_home, score_away,
	timer_started_at, timer_accumulated_ns, created_at, updated_at
FROM matches WHERE id = ?
`

func (q *Queries) GetMatch(ctx context.Context, id uuid.UUID) (MatchRow, error) {
	return scanMatchRow(q.db.QueryRowContext(ctx, getMatch, id.String()))
}

const getRunningMatch = `
SELECT id, tournament_id, home_team_id, away_team_id, status, score_home, score_away,
	timer_started_at, timer_accumulated_ns, created_at, updated_at
FROM matches WHERE tournament_id = ? AND status = 'RUNNING'
`

func (q *Queries) GetRunningMatch(ctx context.Context, tournamentID uuid.UUID) (MatchRow, error) {
	return scanMatchRow(q.db.QueryRowContext(ctx, getRunningMatch, tournamentID.String()))
}

const listMatchesByTournament = `
SELECT id, tournament_id, home_team_id, away_team_id, status, score_home, score_away,
	timer_started_at, timer_accumulated_ns, created_at, updated_at
FROM matches WHERE tournament_id = ? ORDER BY created_at, id
`

func (q *Queries) ListMatchesByTournament(ctx context.Context, tournamentID uuid.UUID) ([]MatchRow, error) {
	rows, err := q.db.QueryContext(ctx, listMatchesByTournament, tournamentID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MatchRow
	for rows.Next() {
		row, err := scanMatchRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(s rowScanner) (MatchRow, error) {
	var row MatchRow
	var id, tid, home, away string
	err := s.Scan(&id, &tid, &home, &away, &row.Status, &row.ScoreHome, &row.ScoreAway,
		&row.TimerStartedAt, &row.TimerAccumulatedNs, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return MatchRow{}, err
	}
	row.ID = uuid.MustParse(id)
	row.TournamentID = uuid.MustParse(tid)
	row.HomeTeamID = uuid.MustParse(home)
	row.AwayTeamID = uuid.MustParse(away)
	return row, nil
}

func scanMatchRow(r *sql.Row) (MatchRow, error)   { return scanMatch(r) }
func scanMatchRows(r *sql.Rows) (MatchRow, error) { return scanMatch(r) }

const deleteMatchEvents = `DELETE FROM match_events WHERE match_id = ?`

func (q *Queries) DeleteMatchEvents(ctx context.Context, matchID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteMatchEvents, matchID.String())
	return err
}

const insertMatchEvent = `
INSERT INTO match_events (id, match_id, seq, event_type, team_id, player_ref,
	at_seconds, score_home, score_away, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertMatchEvent(ctx context.Context, row MatchEventRow) error {
	_, err := q.db.ExecContext(ctx, insertMatchEvent,
		row.ID.String(), row.MatchID.String(), row.Seq, row.EventType,
		row.TeamID, row.PlayerRef, row.AtSeconds, row.ScoreHome, row.ScoreAway, row.CreatedAt)
	return err
}

const listMatchEvents = `
SELECT id, match_id, seq, event_type, team_id, player_ref, at_seconds,
	score_home, score_away, created_at
FROM match_events WHERE match_id = ? ORDER BY seq
`

func (q *Queries) ListMatchEvents(ctx context.Context, matchID uuid.UUID) ([]MatchEventRow, error) {
	rows, err := q.db.QueryContext(ctx, listMatchEvents, matchID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MatchEventRow
	for rows.Next() {
		var row MatchEventRow
		var id, mid string
		if err := rows.Scan(&id, &mid, &row.Seq, &row.EventType, &row.TeamID, &row.PlayerRef,
			&row.AtSeconds, &row.ScoreHome, &row.ScoreAway, &row.CreatedAt); err != nil {
			return nil, err
		}
		row.ID = uuid.MustParse(id)
		row.MatchID = uuid.MustParse(mid)
		out = append(out, row)
	}
	return out, rows.Err()
}

// InsertSyncEntry enqueues a projection push and supersedes any older
// pending entries for the same match: only the latest local state is ever
// pushed, never a replay of intermediate mutations.
func (q *Queries) InsertSyncEntry(ctx context.Context, row SyncEntryRow) error {
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE match_id = ? AND status = ?`,
		row.MatchID.String(), string(models.SyncStatusPending)); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO sync_queue (id, match_id, tournament_id, payload, local_version, status, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		row.ID.String(), row.MatchID.String(), row.TournamentID.String(),
		string(row.Payload), row.LocalVersion, string(models.SyncStatusPending), row.CreatedAt)
	return err
}

const fetchPendingSync = `
SELECT id, match_id, tournament_id, payload, local_version, status, attempts, created_at
FROM sync_queue WHERE status = ? ORDER BY created_at LIMIT ?
`

func (q *Queries) FetchPendingSync(ctx context.Context, limit int32) ([]SyncEntryRow, error) {
	rows, err := q.db.QueryContext(ctx, fetchPendingSync, string(models.SyncStatusPending), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncEntryRow
	for rows.Next() {
		var row SyncEntryRow
		var id, mid, tid, payload string
		if err := rows.Scan(&id, &mid, &tid, &payload, &row.LocalVersion,
			&row.Status, &row.Attempts, &row.CreatedAt); err != nil {
			return nil, err
		}
		row.ID = uuid.MustParse(id)
		row.MatchID = uuid.MustParse(mid)
		row.TournamentID = uuid.MustParse(tid)
		row.Payload = []byte(payload)
		out = append(out, row)
	}
	return out, rows.Err()
}

// MarkSyncSent acknowledges pushed entries.
func (q *Queries) MarkSyncSent(ctx context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		if _, err := q.db.ExecContext(ctx,
			`UPDATE sync_queue SET status = ? WHERE id = ?`,
			string(models.SyncStatusSent), id.String()); err != nil {
			return err
		}
	}
	return nil
}

// IncrementSyncAttempts records a failed push attempt.
func (q *Queries) IncrementSyncAttempts(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE sync_queue SET attempts = attempts + 1 WHERE id = ?`, id.String())
	return err
}

const countPendingSync = `SELECT COUNT(*) FROM sync_queue WHERE status = ?`

// CountPendingSync backs the "not yet synced" indicator.
func (q *Queries) CountPendingSync(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, countPendingSync, string(models.SyncStatusPending)).Scan(&n)
	return n, err
}
