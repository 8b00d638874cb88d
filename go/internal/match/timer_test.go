package match

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mlutz/spieltag/go/internal/models"
)

func runningMatch(clock Clock) *models.Match {
	now := clock.Now()
	return &models.Match{
		Status:         models.MatchStatusRunning,
		TimerStartedAt: &now,
	}
}

// TestTimerElapsed_pauseCycles verifies that only running intervals count:
// run 3s, pause 5s, run 2s gives 5s of match time regardless of how much
// wall-clock time passed in between.
func TestTimerElapsed_pauseCycles(t *testing.T) {
	fc := clockwork.NewFakeClock()
	timer := NewTimer(fc)
	m := &models.Match{Status: models.MatchStatusScheduled}

	if err := timer.Start(m); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m.Status = models.MatchStatusRunning
	fc.Advance(3 * time.Second)

	if err := timer.Pause(m); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	m.Status = models.MatchStatusPaused
	fc.Advance(5 * time.Second)

	if got := timer.Elapsed(m); got != 3*time.Second {
		t.Errorf("Elapsed() while paused = %v, want %v", got, 3*time.Second)
	}

	if err := timer.Start(m); err != nil {
		t.Fatalf("Start() after pause error = %v", err)
	}
	m.Status = models.MatchStatusRunning
	fc.Advance(2 * time.Second)

	if err := timer.Pause(m); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	m.Status = models.MatchStatusFinished

	if got := timer.Elapsed(m); got != 5*time.Second {
		t.Errorf("Elapsed() = %v, want %v", got, 5*time.Second)
	}
}

// TestTimerElapsed_whileRunning verifies the open interval is included in
// reads without any field being mutated.
func TestTimerElapsed_whileRunning(t *testing.T) {
	fc := clockwork.NewFakeClock()
	timer := NewTimer(fc)
	m := runningMatch(fc)

	fc.Advance(42 * time.Second)

	if got := timer.Elapsed(m); got != 42*time.Second {
		t.Errorf("Elapsed() = %v, want %v", got, 42*time.Second)
	}
	if m.TimerAccumulated != 0 {
		t.Errorf("TimerAccumulated mutated by read: %v", m.TimerAccumulated)
	}
}

// TestTimerElapsed_survivesSuspension simulates a long process suspension:
// elapsed time is a pure function of the stored fields and the clock, so the
// first read after waking up is already correct.
func TestTimerElapsed_survivesSuspension(t *testing.T) {
	fc := clockwork.NewFakeClock()
	timer := NewTimer(fc)
	m := runningMatch(fc)

	// Tab in the background for an hour while the match runs on.
	fc.Advance(time.Hour)

	if got := timer.Elapsed(m); got != time.Hour {
		t.Errorf("Elapsed() after suspension = %v, want %v", got, time.Hour)
	}

	// A paused match gains nothing from the same suspension.
	paused := &models.Match{
		Status:           models.MatchStatusPaused,
		TimerAccumulated: 90 * time.Second,
	}
	fc.Advance(time.Hour)
	if got := timer.Elapsed(paused); got != 90*time.Second {
		t.Errorf("Elapsed() paused after suspension = %v, want %v", got, 90*time.Second)
	}
}

func TestTimerStart_alreadyRunning(t *testing.T) {
	fc := clockwork.NewFakeClock()
	timer := NewTimer(fc)
	m := runningMatch(fc)

	if err := timer.Start(m); !IsInvalidTransition(err) {
		t.Errorf("Start() on running timer error = %v, want invalid transition", err)
	}
}

func TestTimerPause_notRunning(t *testing.T) {
	fc := clockwork.NewFakeClock()
	timer := NewTimer(fc)
	m := &models.Match{Status: models.MatchStatusPaused}

	if err := timer.Pause(m); !IsInvalidTransition(err) {
		t.Errorf("Pause() on stopped timer error = %v, want invalid transition", err)
	}
}

// TestTimerElapsedSeconds_flooredOnceAtRead verifies sub-second remainders
// accumulate across pause cycles instead of being floored per interval. Two
// 700ms intervals are 1.4s of match time, which reads as 1 whole second; had
// each interval been floored on pause the result would be 0.
func TestTimerElapsedSeconds_flooredOnceAtRead(t *testing.T) {
	fc := clockwork.NewFakeClock()
	timer := NewTimer(fc)
	m := &models.Match{Status: models.MatchStatusScheduled}

	for i := 0; i < 2; i++ {
		if err := timer.Start(m); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		m.Status = models.MatchStatusRunning
		fc.Advance(700 * time.Millisecond)
		if err := timer.Pause(m); err != nil {
			t.Fatalf("Pause() error = %v", err)
		}
		m.Status = models.MatchStatusPaused
	}

	if got := timer.ElapsedSeconds(m); got != 1 {
		t.Errorf("ElapsedSeconds() = %d, want 1", got)
	}
	if m.TimerAccumulated != 1400*time.Millisecond {
		t.Errorf("TimerAccumulated = %v, want %v", m.TimerAccumulated, 1400*time.Millisecond)
	}
}
