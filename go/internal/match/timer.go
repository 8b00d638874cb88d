package match

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mlutz/spieltag/go/internal/models"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

var _ Clock = clockwork.NewRealClock()

// Timer computes elapsed match time from persisted fields and the current
// wall clock. There is no ticking counter anywhere: elapsed time is
// recomputed on every read, so it is correct immediately after the process
// resumes from an arbitrarily long suspension.
type Timer struct {
	clock Clock
}

// NewTimer creates a timer engine on the given clock.
func NewTimer(clock Clock) *Timer {
	return &Timer{clock: clock}
}

// Start begins a running interval. The caller must already have validated
// the status transition; Start only touches the timer fields. When resuming
// from a pause the accumulated duration is preserved and only the running
// origin is reset.
func (t *Timer) Start(m *models.Match) error {
	if m.TimerStartedAt != nil {
		return newInvalidTransition(m.Status, models.MatchStatusRunning)
	}
	now := t.clock.Now()
	m.TimerStartedAt = &now
	return nil
}

// Pause freezes the timer: the current running interval is folded into the
// accumulated duration at sub-second precision and the running origin is
// cleared. Pausing a timer that is not running is a programming error.
func (t *Timer) Pause(m *models.Match) error {
	if m.TimerStartedAt == nil {
		return newInvalidTransition(m.Status, models.MatchStatusPaused)
	}
	m.TimerAccumulated += t.clock.Now().Sub(*m.TimerStartedAt)
	m.TimerStartedAt = nil
	return nil
}

// Elapsed returns the total match time. Pure function of the stored timer
// fields and the current clock reading.
func (t *Timer) Elapsed(m *models.Match) time.Duration {
	d := m.TimerAccumulated
	if m.Status == models.MatchStatusRunning && m.TimerStartedAt != nil {
		d += t.clock.Now().Sub(*m.TimerStartedAt)
	}
	return d
}

// ElapsedSeconds floors the elapsed time to whole seconds. Flooring happens
// only here, at the display boundary; internal accumulation keeps sub-second
// precision so rounding error does not compound across pause cycles.
func (t *Timer) ElapsedSeconds(m *models.Match) int {
	return int(t.Elapsed(m) / time.Second)
}
