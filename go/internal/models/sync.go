package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SyncStatus defines the lifecycle of a queued local mutation.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "PENDING"
	SyncStatusSent    SyncStatus = "SENT"
)

// SyncQueueEntry is a local mutation not yet acknowledged by the remote
// store. One entry per durable write; the worker coalesces to the newest
// entry per match, so only the latest projection is ever pushed.
type SyncQueueEntry struct {
	ID           uuid.UUID       `json:"id"`
	MatchID      uuid.UUID       `json:"match_id"`
	TournamentID uuid.UUID       `json:"tournament_id"`
	Payload      json.RawMessage `json:"payload"` // MatchProjection JSON
	LocalVersion int64           `json:"local_version"`
	Status       SyncStatus      `json:"status"`
	Attempts     int             `json:"attempts"`
	CreatedAt    time.Time       `json:"created_at"`
}
