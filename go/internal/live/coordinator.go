// Package live enforces the exclusivity invariant: at most one match per
// tournament is running at any instant. Switching the live match is a
// deliberate, confirmed, two-phase handover, never a side effect.
package live

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mlutz/spieltag/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrHandoverFailed wraps a failure in phase two of a confirmed handover.
// The abandoned match stays finished; recovery is manual, not a rollback.
var ErrHandoverFailed = errors.New("handover failed after finishing previous match")

// MatchApp is what the coordinator needs from the match engine.
type MatchApp interface {
	Start(ctx context.Context, id uuid.UUID) (*models.Match, error)
	Finish(ctx context.Context, id uuid.UUID) (*models.Match, error)
	GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error)
	RunningMatch(ctx context.Context, tournamentID uuid.UUID) (*models.Match, error)
}

// StartResult is the outcome of a start request.
type StartResult struct {
	// Started is set when the match went straight to running.
	Started *models.Match
	// Conflict is set when another match is live and the operator must
	// confirm the handover before anything changes.
	Conflict *ConflictRequiresConfirmation
}

// ConflictRequiresConfirmation carries the match currently running. Nothing
// has been mutated; the caller presents the choice and either confirms the
// handover or cancels, which leaves the running match untouched.
type ConflictRequiresConfirmation struct {
	Running *models.Match
	// Requested is the match the operator asked to start.
	Requested uuid.UUID
}

// Coordinator serializes live-match control per tournament. It is
// instantiated per engine, not global, so independent tournaments run
// independent coordinators.
type Coordinator struct {
	app MatchApp

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex // per-tournament serialization
}

func NewCoordinator(app MatchApp) *Coordinator {
	return &Coordinator{
		app:   app,
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (c *Coordinator) tournamentLock(tournamentID uuid.UUID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[tournamentID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[tournamentID] = l
	}
	return l
}

// RequestStart starts the match if the tournament has no running match,
// otherwise reports the conflict without mutating anything.
func (c *Coordinator) RequestStart(ctx context.Context, tournamentID, matchID uuid.UUID) (*StartResult, error) {
	l := c.tournamentLock(tournamentID)
	l.Lock()
	defer l.Unlock()

	running, err := c.app.RunningMatch(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check running match: %w", err)
	}

	if running != nil && running.ID != matchID {
		log.Info().
			Str("tournament_id", tournamentID.String()).
			Str("running_match", running.ID.String()).
			Str("requested_match", matchID.String()).
			Msg("start request conflicts with running match")
		return &StartResult{Conflict: &ConflictRequiresConfirmation{
			Running:   running,
			Requested: matchID,
		}}, nil
	}
	if running != nil {
		// The requested match already runs; nothing to do.
		return &StartResult{Started: running}, nil
	}

	m, err := c.app.Start(ctx, matchID)
	if err != nil {
		return nil, err
	}
	return &StartResult{Started: m}, nil
}

// ConfirmHandover executes the confirmed two-phase switch: finish the
// currently running match, then start the requested one. The finish is
// committed even when the second phase fails; in that case the error wraps
// ErrHandoverFailed and the tournament is left with no running match.
func (c *Coordinator) ConfirmHandover(ctx context.Context, tournamentID, matchID uuid.UUID) (*models.Match, error) {
	l := c.tournamentLock(tournamentID)
	l.Lock()
	defer l.Unlock()

	running, err := c.app.RunningMatch(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check running match: %w", err)
	}
	if running != nil && running.ID == matchID {
		// Confirming a handover to the match already running is a no-op,
		// same as RequestStart treats it.
		return running, nil
	}

	if running != nil && running.ID != matchID {
		if _, err := c.app.Finish(ctx, running.ID); err != nil {
			return nil, fmt.Errorf("failed to finish running match %s: %w", running.ID, err)
		}
		log.Info().
			Str("tournament_id", tournamentID.String()).
			Str("finished_match", running.ID.String()).
			Str("next_match", matchID.String()).
			Msg("handover: previous match finished")
	}

	m, err := c.app.Start(ctx, matchID)
	if err != nil {
		if running != nil && running.ID != matchID {
			return nil, fmt.Errorf("%w: %s not started: %v", ErrHandoverFailed, matchID, err)
		}
		return nil, err
	}
	return m, nil
}

// CancelHandover exists for symmetry with the confirmation flow: cancelling
// performs no mutation at all.
func (c *Coordinator) CancelHandover(ctx context.Context, tournamentID uuid.UUID) {
	log.Debug().Str("tournament_id", tournamentID.String()).Msg("handover cancelled")
}
