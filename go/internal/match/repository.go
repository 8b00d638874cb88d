package match

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mlutz/spieltag/go/internal/localstore"
	"github.com/mlutz/spieltag/go/internal/models"
)

// SQLRepository persists matches, their event logs, and sync queue entries
// in the local store. SaveMatch is the write-ahead point of the engine:
// projection, event rows, and the sync entry land in a single transaction.
type SQLRepository struct {
	db      *sql.DB
	queries *localstore.Queries
	clock   Clock
}

var _ Repository = (*SQLRepository)(nil)

func NewSQLRepository(db *sql.DB, clock Clock) *SQLRepository {
	return &SQLRepository{
		db:      db,
		queries: localstore.New(db),
		clock:   clock,
	}
}

func (r *SQLRepository) CreateMatch(ctx context.Context, req CreateMatchRequest) (*models.Match, error) {
	now := r.clock.Now()
	m := &models.Match{
		ID:           req.ID,
		TournamentID: req.TournamentID,
		HomeTeamID:   req.HomeTeamID,
		AwayTeamID:   req.AwayTeamID,
		Status:       req.Status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.SaveMatch(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *SQLRepository) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	row, err := r.queries.GetMatch(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
		}
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	events, err := r.queries.ListMatchEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list match events: %w", err)
	}
	return rowToMatch(row, events), nil
}

func (r *SQLRepository) ListMatchesByTournament(ctx context.Context, tournamentID uuid.UUID) ([]*models.Match, error) {
	rows, err := r.queries.ListMatchesByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	out := make([]*models.Match, 0, len(rows))
	for _, row := range rows {
		events, err := r.queries.ListMatchEvents(ctx, row.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list match events: %w", err)
		}
		out = append(out, rowToMatch(row, events))
	}
	return out, nil
}

func (r *SQLRepository) GetRunningMatch(ctx context.Context, tournamentID uuid.UUID) (*models.Match, error) {
	row, err := r.queries.GetRunningMatch(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get running match: %w", err)
	}
	events, err := r.queries.ListMatchEvents(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list match events: %w", err)
	}
	return rowToMatch(row, events), nil
}

func (r *SQLRepository) SaveMatch(ctx context.Context, m *models.Match) error {
	payload, err := json.Marshal(m.Projection())
	if err != nil {
		return fmt.Errorf("failed to marshal projection: %w", err)
	}

	return localstore.RunTx(ctx, r.db, r.queries, func(q *localstore.Queries) error {
		if err := q.UpsertMatch(ctx, matchToRow(m)); err != nil {
			return fmt.Errorf("failed to upsert match: %w", err)
		}
		// The event log is rewritten whole: undo drops the tail row and an
		// append adds one, and the sequence column keeps order stable.
		if err := q.DeleteMatchEvents(ctx, m.ID); err != nil {
			return fmt.Errorf("failed to clear match events: %w", err)
		}
		for i, ev := range m.Events {
			if err := q.InsertMatchEvent(ctx, eventToRow(ev, i)); err != nil {
				return fmt.Errorf("failed to insert match event: %w", err)
			}
		}
		entry := localstore.SyncEntryRow{
			ID:           uuid.New(),
			MatchID:      m.ID,
			TournamentID: m.TournamentID,
			Payload:      payload,
			LocalVersion: m.UpdatedAt.UnixNano(),
			CreatedAt:    m.UpdatedAt,
		}
		if err := q.InsertSyncEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to enqueue sync entry: %w", err)
		}
		return nil
	})
}

// Row <-> model converters.

func matchToRow(m *models.Match) localstore.MatchRow {
	var startedAt sql.NullTime
	if m.TimerStartedAt != nil {
		startedAt = sql.NullTime{Time: *m.TimerStartedAt, Valid: true}
	}
	return localstore.MatchRow{
		ID:                 m.ID,
		TournamentID:       m.TournamentID,
		HomeTeamID:         m.HomeTeamID,
		AwayTeamID:         m.AwayTeamID,
		Status:             string(m.Status),
		ScoreHome:          m.ScoreHome,
		ScoreAway:          m.ScoreAway,
		TimerStartedAt:     startedAt,
		TimerAccumulatedNs: int64(m.TimerAccumulated),
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func rowToMatch(row localstore.MatchRow, eventRows []localstore.MatchEventRow) *models.Match {
	m := &models.Match{
		ID:               row.ID,
		TournamentID:     row.TournamentID,
		HomeTeamID:       row.HomeTeamID,
		AwayTeamID:       row.AwayTeamID,
		Status:           models.MatchStatus(row.Status),
		ScoreHome:        row.ScoreHome,
		ScoreAway:        row.ScoreAway,
		TimerAccumulated: time.Duration(row.TimerAccumulatedNs),
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
	if row.TimerStartedAt.Valid {
		t := row.TimerStartedAt.Time
		m.TimerStartedAt = &t
	}
	m.Events = make([]models.MatchEvent, 0, len(eventRows))
	for _, er := range eventRows {
		m.Events = append(m.Events, rowToEvent(er))
	}
	return m
}

func eventToRow(ev models.MatchEvent, seq int) localstore.MatchEventRow {
	var teamID sql.NullString
	if ev.TeamID != nil {
		teamID = sql.NullString{String: ev.TeamID.String(), Valid: true}
	}
	var playerRef sql.NullInt64
	if ev.PlayerRef != nil {
		playerRef = sql.NullInt64{Int64: int64(*ev.PlayerRef), Valid: true}
	}
	return localstore.MatchEventRow{
		ID:        ev.ID,
		MatchID:   ev.MatchID,
		Seq:       seq,
		EventType: string(ev.Type),
		TeamID:    teamID,
		PlayerRef: playerRef,
		AtSeconds: ev.AtSeconds,
		ScoreHome: ev.Score.Home,
		ScoreAway: ev.Score.Away,
		CreatedAt: ev.CreatedAt,
	}
}

func rowToEvent(row localstore.MatchEventRow) models.MatchEvent {
	ev := models.MatchEvent{
		ID:        row.ID,
		MatchID:   row.MatchID,
		Type:      models.MatchEventType(row.EventType),
		AtSeconds: row.AtSeconds,
		Score:     models.ScoreSnapshot{Home: row.ScoreHome, Away: row.ScoreAway},
		CreatedAt: row.CreatedAt,
	}
	if row.TeamID.Valid {
		id := uuid.MustParse(row.TeamID.String)
		ev.TeamID = &id
	}
	if row.PlayerRef.Valid {
		ref := int(row.PlayerRef.Int64)
		ev.PlayerRef = &ref
	}
	return ev
}
