package match

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mlutz/spieltag/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Repository defines what the match app layer needs from the local store.
// SaveMatch must persist the full match projection and its sync queue entry
// in a single transaction (write-ahead: the operation is complete only once
// the local store has it).
type Repository interface {
	CreateMatch(ctx context.Context, req CreateMatchRequest) (*models.Match, error)
	GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error)
	ListMatchesByTournament(ctx context.Context, tournamentID uuid.UUID) ([]*models.Match, error)
	GetRunningMatch(ctx context.Context, tournamentID uuid.UUID) (*models.Match, error)
	SaveMatch(ctx context.Context, m *models.Match) error
}

// Notifier receives the committed state of a match after every engine
// mutation. The websocket gateway implements this; a nil notifier is valid.
type Notifier interface {
	MatchUpdated(m *models.Match)
}

// Config holds engine policy knobs.
type Config struct {
	// AllowPausedBookkeeping permits disciplinary and note events while the
	// match is paused. Goal-type events always require a running match.
	AllowPausedBookkeeping bool
	// CaptureTimeout bounds the goal capture window. Zero means the default
	// of 10 seconds.
	CaptureTimeout time.Duration
}

const defaultCaptureTimeout = 10 * time.Second

// App owns match status transitions and the append-only event log. All
// operations against the same App are serialized; within one device no two
// transitions race each other.
type App struct {
	repo     Repository
	timer    *Timer
	clock    Clock
	cfg      Config
	notifier Notifier

	mu       sync.Mutex
	captures map[uuid.UUID]*Capture
}

// NewApp creates a match engine App.
func NewApp(repo Repository, clock Clock, cfg Config) *App {
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = defaultCaptureTimeout
	}
	return &App{
		repo:     repo,
		timer:    NewTimer(clock),
		clock:    clock,
		cfg:      cfg,
		captures: make(map[uuid.UUID]*Capture),
	}
}

// SetNotifier attaches a broadcast sink for committed match state.
func (a *App) SetNotifier(n Notifier) {
	a.notifier = n
}

// Timer exposes the timer engine for read-only elapsed computations.
func (a *App) Timer() *Timer {
	return a.timer
}

// CreateMatchRequest carries the fields schedule generation provides.
type CreateMatchRequest struct {
	ID           uuid.UUID
	TournamentID uuid.UUID
	HomeTeamID   uuid.UUID
	AwayTeamID   uuid.UUID
	Status       models.MatchStatus
}

// CreateMatch registers a scheduled match. Scheduling itself is an external
// concern; the engine only accepts matches in an initial status.
func (a *App) CreateMatch(ctx context.Context, req CreateMatchRequest) (*models.Match, error) {
	if req.ID == uuid.Nil {
		return nil, fmt.Errorf("id is required")
	}
	if req.TournamentID == uuid.Nil {
		return nil, fmt.Errorf("tournament_id is required")
	}
	if req.Status == "" {
		req.Status = models.MatchStatusScheduled
	}
	switch req.Status {
	case models.MatchStatusScheduled, models.MatchStatusWaiting:
	default:
		return nil, fmt.Errorf("matches must be created as SCHEDULED or WAITING, got %s", req.Status)
	}

	m, err := a.repo.CreateMatch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}
	return m, nil
}

// GetMatch retrieves a match by ID from the local store.
func (a *App) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	return a.repo.GetMatch(ctx, id)
}

// ListMatches lists a tournament's matches from the local store.
func (a *App) ListMatches(ctx context.Context, tournamentID uuid.UUID) ([]*models.Match, error) {
	return a.repo.ListMatchesByTournament(ctx, tournamentID)
}

// RunningMatch returns the currently running match of a tournament, or nil.
func (a *App) RunningMatch(ctx context.Context, tournamentID uuid.UUID) (*models.Match, error) {
	return a.repo.GetRunningMatch(ctx, tournamentID)
}

// Elapsed returns the current match clock reading.
func (a *App) Elapsed(ctx context.Context, id uuid.UUID) (time.Duration, error) {
	m, err := a.repo.GetMatch(ctx, id)
	if err != nil {
		return 0, err
	}
	return a.timer.Elapsed(m), nil
}

// validateStatusTransition validates if a status transition is allowed.
func validateStatusTransition(current, next models.MatchStatus) error {
	allowedTransitions := map[models.MatchStatus][]models.MatchStatus{
		models.MatchStatusScheduled: {models.MatchStatusRunning, models.MatchStatusSkipped},
		models.MatchStatusWaiting:   {models.MatchStatusRunning, models.MatchStatusSkipped},
		models.MatchStatusRunning:   {models.MatchStatusPaused, models.MatchStatusFinished},
		models.MatchStatusPaused:    {models.MatchStatusRunning, models.MatchStatusFinished},
		models.MatchStatusFinished:  {},
		models.MatchStatusSkipped:   {},
	}

	allowedNext, exists := allowedTransitions[current]
	if !exists {
		return fmt.Errorf("unknown current status: %s", current)
	}
	for _, allowed := range allowedNext {
		if next == allowed {
			return nil
		}
	}
	return newInvalidTransition(current, next)
}

// transition loads the match, validates the status change, applies fn to a
// clone, persists, and only then makes the new state observable. Either the
// durable write and the in-memory effect both happen or neither does.
func (a *App) transition(ctx context.Context, id uuid.UUID, next models.MatchStatus, fn func(*models.Match) error) (*models.Match, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transitionLocked(ctx, id, next, fn)
}

func (a *App) transitionLocked(ctx context.Context, id uuid.UUID, next models.MatchStatus, fn func(*models.Match) error) (*models.Match, error) {
	current, err := a.repo.GetMatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateStatusTransition(current.Status, next); err != nil {
		return nil, err
	}
	if next == models.MatchStatusRunning {
		// The exclusivity invariant holds on every entry into RUNNING, not
		// just the coordinator's start path: resuming a paused match while
		// another one runs is rejected the same way.
		running, err := a.repo.GetRunningMatch(ctx, current.TournamentID)
		if err != nil {
			return nil, fmt.Errorf("failed to check running match: %w", err)
		}
		if running != nil && running.ID != id {
			return nil, fmt.Errorf("%w: %s", ErrAnotherMatchRunning, running.ID)
		}
	}

	m := current.Clone()
	if fn != nil {
		if err := fn(m); err != nil {
			return nil, err
		}
	}
	from := m.Status
	m.Status = next
	m.UpdatedAt = a.clock.Now()

	if err := a.repo.SaveMatch(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to persist transition %s -> %s: %w", from, next, err)
	}

	log.Info().
		Str("match_id", m.ID.String()).
		Str("from", string(from)).
		Str("to", string(next)).
		Msg("match transition")

	a.notify(m)
	return m, nil
}

// Start transitions a scheduled or waiting match to running and opens the
// first running interval.
func (a *App) Start(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	return a.transition(ctx, id, models.MatchStatusRunning, func(m *models.Match) error {
		return a.timer.Start(m)
	})
}

// Pause freezes a running match.
func (a *App) Pause(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	return a.transition(ctx, id, models.MatchStatusPaused, func(m *models.Match) error {
		return a.timer.Pause(m)
	})
}

// Resume reopens the clock of a paused match. Accumulated time is preserved.
func (a *App) Resume(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	return a.transition(ctx, id, models.MatchStatusRunning, func(m *models.Match) error {
		return a.timer.Start(m)
	})
}

// Finish ends a match from running or paused. Finishing a running match
// folds the open interval into the accumulated time first; requiring a
// pause before finish is a UI policy, not an engine rule.
func (a *App) Finish(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finishLocked(ctx, id)
}

func (a *App) finishLocked(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	return a.transitionLocked(ctx, id, models.MatchStatusFinished, func(m *models.Match) error {
		if m.TimerStartedAt != nil {
			return a.timer.Pause(m)
		}
		return nil
	})
}

// Skip marks a not-yet-started match as skipped.
func (a *App) Skip(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	return a.transition(ctx, id, models.MatchStatusSkipped, nil)
}

// EventInput carries the caller-provided fields of a new event.
type EventInput struct {
	Type      models.MatchEventType
	TeamID    *uuid.UUID
	PlayerRef *int
}

func validEventType(t models.MatchEventType) bool {
	switch t {
	case models.EventTypeGoal, models.EventTypeOwnGoal, models.EventTypePenaltyGoal,
		models.EventTypePenaltyMiss, models.EventTypeYellowCard, models.EventTypeRedCard,
		models.EventTypeTimePenalty, models.EventTypeSubstitution, models.EventTypeNote:
		return true
	default:
		return false
	}
}

// recompute rebuilds both cached scores from the event sequence. Scores are
// derived state; this is the only place they are written.
func recompute(m *models.Match) {
	home, away := 0, 0
	for _, ev := range m.Events {
		if !ev.Type.IsScoring() || ev.TeamID == nil {
			continue
		}
		scoringTeam := *ev.TeamID
		if ev.Type == models.EventTypeOwnGoal {
			// An own goal counts for the opposing side.
			if scoringTeam == m.HomeTeamID {
				scoringTeam = m.AwayTeamID
			} else {
				scoringTeam = m.HomeTeamID
			}
		}
		if scoringTeam == m.HomeTeamID {
			home++
		} else {
			away++
		}
	}
	m.ScoreHome = home
	m.ScoreAway = away
}

// AppendEvent appends an event to the match log. Goal-type events require a
// running match; bookkeeping events are additionally allowed while paused
// when configured. The event's clock value is taken from the timer at append
// time and the post-append score is snapshotted onto it.
func (a *App) AppendEvent(ctx context.Context, matchID uuid.UUID, in EventInput) (*models.MatchEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.appendEventLocked(ctx, matchID, in)
}

func (a *App) appendEventLocked(ctx context.Context, matchID uuid.UUID, in EventInput) (*models.MatchEvent, error) {
	if !validEventType(in.Type) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, in.Type)
	}

	current, err := a.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	switch current.Status {
	case models.MatchStatusRunning:
	case models.MatchStatusPaused:
		if in.Type.IsScoring() || !a.cfg.AllowPausedBookkeeping {
			return nil, fmt.Errorf("cannot append %s event to match with status %s", in.Type, current.Status)
		}
	default:
		return nil, fmt.Errorf("cannot append %s event to match with status %s", in.Type, current.Status)
	}

	if in.Type.IsScoring() && in.TeamID == nil {
		return nil, fmt.Errorf("scoring events require a team")
	}
	if in.TeamID != nil && *in.TeamID != current.HomeTeamID && *in.TeamID != current.AwayTeamID {
		return nil, fmt.Errorf("team %s does not play in match %s", in.TeamID, matchID)
	}

	m := current.Clone()
	ev := models.MatchEvent{
		ID:        uuid.New(),
		MatchID:   matchID,
		Type:      in.Type,
		TeamID:    in.TeamID,
		PlayerRef: in.PlayerRef,
		AtSeconds: a.timer.ElapsedSeconds(m),
		CreatedAt: a.clock.Now(),
	}
	m.Events = append(m.Events, ev)
	recompute(m)
	m.Events[len(m.Events)-1].Score = models.ScoreSnapshot{Home: m.ScoreHome, Away: m.ScoreAway}
	m.UpdatedAt = a.clock.Now()

	if err := a.repo.SaveMatch(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to persist event: %w", err)
	}

	log.Info().
		Str("match_id", matchID.String()).
		Str("event_type", string(in.Type)).
		Int("at_seconds", ev.AtSeconds).
		Int("score_home", m.ScoreHome).
		Int("score_away", m.ScoreAway).
		Msg("event appended")

	a.notify(m)
	appended := m.Events[len(m.Events)-1]
	return &appended, nil
}

// UndoLast removes and returns the most recently appended event, recomputing
// the cached scores from the remaining sequence. Undo is strictly LIFO; there
// is no arbitrary-index removal. Calling it on an empty log is a no-op and
// returns nil, nil.
func (a *App) UndoLast(ctx context.Context, matchID uuid.UUID) (*models.MatchEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	current, err := a.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if len(current.Events) == 0 {
		return nil, nil
	}

	m := current.Clone()
	removed := m.Events[len(m.Events)-1]
	m.Events = m.Events[:len(m.Events)-1]
	recompute(m)
	m.UpdatedAt = a.clock.Now()

	if err := a.repo.SaveMatch(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to persist undo: %w", err)
	}

	log.Info().
		Str("match_id", matchID.String()).
		Str("event_type", string(removed.Type)).
		Msg("event undone")

	a.notify(m)
	return &removed, nil
}

func (a *App) notify(m *models.Match) {
	if a.notifier != nil {
		a.notifier.MatchUpdated(m.Clone())
	}
}
