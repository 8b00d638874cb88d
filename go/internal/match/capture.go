package match

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mlutz/spieltag/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Capture is an open goal capture window: the bounded period between a
// scoring action and the confirmation of its detail (jersey number). The
// scoring fact is fixed the moment the window opens; the timeout only closes
// the attribution question. A timeout therefore always resolves to an
// append, never to a rollback.
type Capture struct {
	app       *App
	matchID   uuid.UUID
	input     EventInput
	atSeconds int
	timer     clockwork.Timer

	mu       sync.Mutex
	resolved bool
	done     chan struct{}
}

// OpenCapture opens a capture window for a scoring event. The match clock
// value is read now, so a slow operator does not shift the goal minute. An
// already-open window for the same match is committed unattributed first.
func (a *App) OpenCapture(ctx context.Context, matchID uuid.UUID, in EventInput) (*Capture, error) {
	if !in.Type.IsScoring() {
		return nil, fmt.Errorf("capture windows are for scoring events, got %s", in.Type)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	m, err := a.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != models.MatchStatusRunning {
		return nil, fmt.Errorf("cannot capture %s event on match with status %s", in.Type, m.Status)
	}
	if in.TeamID == nil {
		return nil, fmt.Errorf("scoring events require a team")
	}
	if *in.TeamID != m.HomeTeamID && *in.TeamID != m.AwayTeamID {
		return nil, fmt.Errorf("team %s does not play in match %s", in.TeamID, matchID)
	}

	if prev, ok := a.captures[matchID]; ok {
		if prev.markResolved() {
			prev.timer.Stop()
			a.commitCaptureLocked(ctx, prev, prev.input.PlayerRef)
		}
		delete(a.captures, matchID)
	}

	c := &Capture{
		app:       a,
		matchID:   matchID,
		input:     in,
		atSeconds: a.timer.ElapsedSeconds(m),
		done:      make(chan struct{}),
	}
	c.timer = a.clock.NewTimer(a.cfg.CaptureTimeout)
	a.captures[matchID] = c

	go c.watch()

	log.Debug().
		Str("match_id", matchID.String()).
		Str("event_type", string(in.Type)).
		Dur("timeout", a.cfg.CaptureTimeout).
		Msg("capture window opened")

	return c, nil
}

// AtSeconds reports the match clock value the window was opened at.
func (c *Capture) AtSeconds() int {
	return c.atSeconds
}

// openCaptureFor returns the currently open window for a match.
func (a *App) openCaptureFor(matchID uuid.UUID) (*Capture, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.captures[matchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoOpenCapture, matchID)
	}
	return c, nil
}

// ConfirmCapture commits the open capture window of a match with the given
// attribution.
func (a *App) ConfirmCapture(matchID uuid.UUID, playerRef *int) error {
	c, err := a.openCaptureFor(matchID)
	if err != nil {
		return err
	}
	return c.Confirm(playerRef)
}

// CancelCapture abandons the open capture window of a match.
func (a *App) CancelCapture(matchID uuid.UUID) error {
	c, err := a.openCaptureFor(matchID)
	if err != nil {
		return err
	}
	return c.Cancel()
}

func (c *Capture) watch() {
	select {
	case <-c.timer.Chan():
		// Grace period expired: commit with the default attribution.
		if err := c.resolve(c.input.PlayerRef); err != nil {
			return
		}
		log.Debug().Str("match_id", c.matchID.String()).Msg("capture window timed out, committed unattributed")
	case <-c.done:
	}
}

// markResolved flips the window to resolved exactly once.
func (c *Capture) markResolved() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved {
		return false
	}
	c.resolved = true
	close(c.done)
	return true
}

func (c *Capture) resolve(playerRef *int) error {
	if !c.markResolved() {
		return ErrCaptureAlreadyResolved
	}
	c.timer.Stop()

	a := c.app
	a.mu.Lock()
	defer a.mu.Unlock()
	// A new window may have replaced this one while we waited for the lock;
	// only evict the registry entry if it is still ours.
	if a.captures[c.matchID] == c {
		delete(a.captures, c.matchID)
	}
	a.commitCaptureLocked(context.Background(), c, playerRef)
	return nil
}

// Confirm commits the captured event with the given attribution. Confirming
// after the timeout already committed returns ErrCaptureAlreadyResolved.
func (c *Capture) Confirm(playerRef *int) error {
	return c.resolve(playerRef)
}

// Cancel abandons the window without appending. This is the operator
// explicitly taking the goal back before confirmation, which is distinct
// from a timeout: timeouts commit.
func (c *Capture) Cancel() error {
	if !c.markResolved() {
		return ErrCaptureAlreadyResolved
	}
	c.timer.Stop()

	a := c.app
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.captures[c.matchID] == c {
		delete(a.captures, c.matchID)
	}

	log.Debug().Str("match_id", c.matchID.String()).Msg("capture window cancelled")
	return nil
}

// commitCaptureLocked appends the captured event using the clock value read
// when the window opened. The legality of the scoring fact was checked at
// open time; only a since-finished match drops the event, and loudly.
func (a *App) commitCaptureLocked(ctx context.Context, c *Capture, playerRef *int) {
	current, err := a.repo.GetMatch(ctx, c.matchID)
	if err != nil {
		log.Error().Err(err).Str("match_id", c.matchID.String()).Msg("capture commit: match load failed")
		return
	}
	if current.Status.IsTerminal() {
		log.Warn().
			Str("match_id", c.matchID.String()).
			Str("status", string(current.Status)).
			Msg("capture commit: match already terminal, dropping event")
		return
	}

	m := current.Clone()
	ev := models.MatchEvent{
		ID:        uuid.New(),
		MatchID:   c.matchID,
		Type:      c.input.Type,
		TeamID:    c.input.TeamID,
		PlayerRef: playerRef,
		AtSeconds: c.atSeconds,
		CreatedAt: a.clock.Now(),
	}
	m.Events = append(m.Events, ev)
	recompute(m)
	m.Events[len(m.Events)-1].Score = models.ScoreSnapshot{Home: m.ScoreHome, Away: m.ScoreAway}
	m.UpdatedAt = a.clock.Now()

	if err := a.repo.SaveMatch(ctx, m); err != nil {
		log.Error().Err(err).Str("match_id", c.matchID.String()).Msg("capture commit: persist failed")
		return
	}
	a.notify(m)
}
