package events

import (
	"time"

	"github.com/mlutz/spieltag/go/internal/models"
)

// Payload types shared between the syncer and gateway packages.

// MatchStatePayload is the whole-state notification published after a match
// projection reaches the remote store and broadcast to websocket clients.
// Read-side consumers get full state, never an event diff to replay.
type MatchStatePayload struct {
	MatchID          string              `json:"match_id"`
	TournamentID     string              `json:"tournament_id"`
	Status           string              `json:"status"`
	ScoreHome        int                 `json:"score_home"`
	ScoreAway        int                 `json:"score_away"`
	TimerRunning     bool                `json:"timer_running"`
	TimerAccumulated float64             `json:"timer_accumulated_seconds"`
	TimerStartedAt   *time.Time          `json:"timer_started_at,omitempty"`
	Events           []models.MatchEvent `json:"events"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// FromProjection converts a sync projection into the wire payload.
func FromProjection(p models.MatchProjection) MatchStatePayload {
	return MatchStatePayload{
		MatchID:          p.MatchID.String(),
		TournamentID:     p.TournamentID.String(),
		Status:           string(p.Status),
		ScoreHome:        p.ScoreHome,
		ScoreAway:        p.ScoreAway,
		TimerRunning:     p.Status == models.MatchStatusRunning,
		TimerAccumulated: p.TimerAccumulated,
		TimerStartedAt:   p.TimerStartedAt,
		Events:           p.Events,
		UpdatedAt:        p.UpdatedAt,
	}
}
