package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchStatus defines the lifecycle status of a match.
type MatchStatus string

const (
	MatchStatusScheduled MatchStatus = "SCHEDULED"
	MatchStatusWaiting   MatchStatus = "WAITING"
	MatchStatusRunning   MatchStatus = "RUNNING"
	MatchStatusPaused    MatchStatus = "PAUSED"
	MatchStatusFinished  MatchStatus = "FINISHED"
	MatchStatusSkipped   MatchStatus = "SKIPPED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s MatchStatus) IsTerminal() bool {
	return s == MatchStatusFinished || s == MatchStatusSkipped
}

// IsLive reports whether the match currently owns a cockpit (running or paused).
func (s MatchStatus) IsLive() bool {
	return s == MatchStatusRunning || s == MatchStatusPaused
}

// MatchEventType defines the kind of occurrence recorded in the event log.
type MatchEventType string

const (
	EventTypeGoal         MatchEventType = "GOAL"
	EventTypeOwnGoal      MatchEventType = "OWN_GOAL"
	EventTypePenaltyGoal  MatchEventType = "PENALTY_GOAL"
	EventTypePenaltyMiss  MatchEventType = "PENALTY_MISS"
	EventTypeYellowCard   MatchEventType = "YELLOW_CARD"
	EventTypeRedCard      MatchEventType = "RED_CARD"
	EventTypeTimePenalty  MatchEventType = "TIME_PENALTY"
	EventTypeSubstitution MatchEventType = "SUBSTITUTION"
	EventTypeNote         MatchEventType = "NOTE"
)

// IsScoring reports whether the event type changes the score when counted
// against its attributed side.
func (t MatchEventType) IsScoring() bool {
	switch t {
	case EventTypeGoal, EventTypeOwnGoal, EventTypePenaltyGoal:
		return true
	default:
		return false
	}
}

// ScoreSnapshot is the score of a match immediately after an event was
// appended. Kept on the event for audit and display.
type ScoreSnapshot struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// MatchEvent is one discrete occurrence in a match. Events are append-only;
// the only removal is an undo of the most recent event.
type MatchEvent struct {
	ID        uuid.UUID      `json:"id"`
	MatchID   uuid.UUID      `json:"match_id"`
	Type      MatchEventType `json:"type"`
	TeamID    *uuid.UUID     `json:"team_id,omitempty"`    // nil for neutral notes
	PlayerRef *int           `json:"player_ref,omitempty"` // jersey number, nil = unattributed
	AtSeconds int            `json:"at_seconds"`
	Score     ScoreSnapshot  `json:"score"`
	CreatedAt time.Time      `json:"created_at"`
}

// Match is one scheduled contest within a tournament.
//
// ScoreHome/ScoreAway are derived from Events and cached for fast reads; they
// are never mutated independently of the event log. TimerStartedAt and
// TimerAccumulated together fully determine elapsed time, so timer state
// survives a process restart without extra bookkeeping.
type Match struct {
	ID               uuid.UUID     `json:"id"`
	TournamentID     uuid.UUID     `json:"tournament_id"`
	HomeTeamID       uuid.UUID     `json:"home_team_id"`
	AwayTeamID       uuid.UUID     `json:"away_team_id"`
	Status           MatchStatus   `json:"status"`
	ScoreHome        int           `json:"score_home"`
	ScoreAway        int           `json:"score_away"`
	TimerStartedAt   *time.Time    `json:"timer_started_at,omitempty"`
	TimerAccumulated time.Duration `json:"timer_accumulated"`
	Events           []MatchEvent  `json:"events"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Clone returns a deep copy of the match. Engine operations mutate a clone
// and swap it in only after the durable write succeeds.
func (m *Match) Clone() *Match {
	cp := *m
	if m.TimerStartedAt != nil {
		t := *m.TimerStartedAt
		cp.TimerStartedAt = &t
	}
	cp.Events = make([]MatchEvent, len(m.Events))
	copy(cp.Events, m.Events)
	return &cp
}

// MatchProjection is the whole-state shape pushed to the remote store and
// broadcast to read-side consumers. Sync is whole-state, not event replay.
type MatchProjection struct {
	MatchID          uuid.UUID    `json:"match_id"`
	TournamentID     uuid.UUID    `json:"tournament_id"`
	Status           MatchStatus  `json:"status"`
	ScoreHome        int          `json:"score_home"`
	ScoreAway        int          `json:"score_away"`
	TimerStartedAt   *time.Time   `json:"timer_started_at,omitempty"`
	TimerAccumulated float64      `json:"timer_accumulated_seconds"`
	Events           []MatchEvent `json:"events"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Projection builds the sync projection for the match.
func (m *Match) Projection() MatchProjection {
	return MatchProjection{
		MatchID:          m.ID,
		TournamentID:     m.TournamentID,
		Status:           m.Status,
		ScoreHome:        m.ScoreHome,
		ScoreAway:        m.ScoreAway,
		TimerStartedAt:   m.TimerStartedAt,
		TimerAccumulated: m.TimerAccumulated.Seconds(),
		Events:           m.Events,
		UpdatedAt:        m.UpdatedAt,
	}
}
