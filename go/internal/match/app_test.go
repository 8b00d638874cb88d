package match

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mlutz/spieltag/go/internal/localstore"
	"github.com/mlutz/spieltag/go/internal/models"
)

type testEngine struct {
	app   *App
	repo  *SQLRepository
	db    *sql.DB
	clock *clockwork.FakeClock

	tournamentID uuid.UUID
	homeTeam     uuid.UUID
	awayTeam     uuid.UUID
}

func newTestEngine(t *testing.T, cfg Config) *testEngine {
	t.Helper()

	db, err := localstore.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fc := clockwork.NewFakeClock()
	repo := NewSQLRepository(db, fc)
	return &testEngine{
		app:          NewApp(repo, fc, cfg),
		repo:         repo,
		db:           db,
		clock:        fc,
		tournamentID: uuid.New(),
		homeTeam:     uuid.New(),
		awayTeam:     uuid.New(),
	}
}

func (e *testEngine) createMatch(t *testing.T, status models.MatchStatus) *models.Match {
	t.Helper()
	m, err := e.app.CreateMatch(context.Background(), CreateMatchRequest{
		ID:           uuid.New(),
		TournamentID: e.tournamentID,
		HomeTeamID:   e.homeTeam,
		AwayTeamID:   e.awayTeam,
		Status:       status,
	})
	if err != nil {
		t.Fatalf("CreateMatch() error = %v", err)
	}
	return m
}

func (e *testEngine) startMatch(t *testing.T) *models.Match {
	t.Helper()
	m := e.createMatch(t, models.MatchStatusScheduled)
	started, err := e.app.Start(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return started
}

func (e *testEngine) goal(t *testing.T, matchID, teamID uuid.UUID) *models.MatchEvent {
	t.Helper()
	ev, err := e.app.AppendEvent(context.Background(), matchID, EventInput{
		Type:   models.EventTypeGoal,
		TeamID: &teamID,
	})
	if err != nil {
		t.Fatalf("AppendEvent(GOAL) error = %v", err)
	}
	return ev
}

func TestAppLifecycle(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := context.Background()
	m := e.createMatch(t, models.MatchStatusScheduled)

	started, err := e.app.Start(ctx, m.ID)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if started.Status != models.MatchStatusRunning {
		t.Errorf("status after start = %s, want RUNNING", started.Status)
	}
	if started.TimerStartedAt == nil {
		t.Error("TimerStartedAt not set after start")
	}

	paused, err := e.app.Pause(ctx, m.ID)
	if err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if paused.Status != models.MatchStatusPaused {
		t.Errorf("status after pause = %s, want PAUSED", paused.Status)
	}
	if paused.TimerStartedAt != nil {
		t.Error("TimerStartedAt still set after pause")
	}

	resumed, err := e.app.Resume(ctx, m.ID)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.Status != models.MatchStatusRunning {
		t.Errorf("status after resume = %s, want RUNNING", resumed.Status)
	}

	finished, err := e.app.Finish(ctx, m.ID)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if finished.Status != models.MatchStatusFinished {
		t.Errorf("status after finish = %s, want FINISHED", finished.Status)
	}
	if finished.TimerStartedAt != nil {
		t.Error("TimerStartedAt still set after finish")
	}
}

func TestAppIllegalTransitions(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := context.Background()

	scheduled := e.createMatch(t, models.MatchStatusScheduled)
	if _, err := e.app.Pause(ctx, scheduled.ID); !IsInvalidTransition(err) {
		t.Errorf("Pause(SCHEDULED) error = %v, want invalid transition", err)
	}
	if _, err := e.app.Finish(ctx, scheduled.ID); !IsInvalidTransition(err) {
		t.Errorf("Finish(SCHEDULED) error = %v, want invalid transition", err)
	}

	running := e.startMatch(t)
	if _, err := e.app.Start(ctx, running.ID); !IsInvalidTransition(err) {
		t.Errorf("Start(RUNNING) error = %v, want invalid transition", err)
	}
	if _, err := e.app.Skip(ctx, running.ID); !IsInvalidTransition(err) {
		t.Errorf("Skip(RUNNING) error = %v, want invalid transition", err)
	}

	finished, err := e.app.Finish(ctx, running.ID)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	for name, op := range map[string]func(context.Context, uuid.UUID) (*models.Match, error){
		"Start":  e.app.Start,
		"Pause":  e.app.Pause,
		"Resume": e.app.Resume,
		"Finish": e.app.Finish,
		"Skip":   e.app.Skip,
	} {
		if _, err := op(ctx, finished.ID); !IsInvalidTransition(err) {
			t.Errorf("%s(FINISHED) error = %v, want invalid transition", name, err)
		}
	}
}

func TestAppSkip(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := context.Background()

	m := e.createMatch(t, models.MatchStatusWaiting)
	skipped, err := e.app.Skip(ctx, m.ID)
	if err != nil {
		t.Fatalf("Skip() error = %v", err)
	}
	if skipped.Status != models.MatchStatusSkipped {
		t.Errorf("status = %s, want SKIPPED", skipped.Status)
	}
	if _, err := e.app.Start(ctx, skipped.ID); !IsInvalidTransition(err) {
		t.Errorf("Start(SKIPPED) error = %v, want invalid transition", err)
	}
}

// TestAppFinishFromRunning verifies a direct finish folds the open interval
// into the accumulated time, same as an explicit pause first would.
func TestAppFinishFromRunning(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := context.Background()
	m := e.startMatch(t)

	e.clock.Advance(7 * time.Minute)

	finished, err := e.app.Finish(ctx, m.ID)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if finished.TimerAccumulated != 7*time.Minute {
		t.Errorf("TimerAccumulated = %v, want %v", finished.TimerAccumulated, 7*time.Minute)
	}
}

// TestAppStartBlockedByRunningMatch verifies a bare engine start, taken
// without going through the coordinator, still refuses a second running
// match in the same tournament.
func TestAppStartBlockedByRunningMatch(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := context.Background()
	a := e.startMatch(t)
	b := e.createMatch(t, models.MatchStatusScheduled)

	if _, err := e.app.Start(ctx, b.ID); !errors.Is(err, ErrAnotherMatchRunning) {
		t.Fatalf("Start() error = %v, want ErrAnotherMatchRunning", err)
	}

	running, err := e.app.RunningMatch(ctx, e.tournamentID)
	if err != nil {
		t.Fatalf("RunningMatch() error = %v", err)
	}
	if running == nil || running.ID != a.ID {
		t.Errorf("running match = %v, want %s", running, a.ID)
	}
}

// TestAppResumeBlockedByRunningMatch covers the resume path: pausing one
// match, starting another, then resuming the first must not yield two
// running matches.
func TestAppResumeBlockedByRunningMatch(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := context.Background()

	a := e.startMatch(t)
	if _, err := e.app.Pause(ctx, a.ID); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}

	b := e.createMatch(t, models.MatchStatusScheduled)
	if _, err := e.app.Start(ctx, b.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := e.app.Resume(ctx, a.ID); !errors.Is(err, ErrAnotherMatchRunning) {
		t.Fatalf("Resume() error = %v, want ErrAnotherMatchRunning", err)
	}

	got, err := e.app.GetMatch(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetMatch() error = %v", err)
	}
	if got.Status != models.MatchStatusPaused {
		t.Errorf("first match status = %s, want PAUSED", got.Status)
	}
	running, err := e.app.RunningMatch(ctx, e.tournamentID)
	if err != nil {
		t.Fatalf("RunningMatch() error = %v", err)
	}
	if running == nil || running.ID != b.ID {
		t.Errorf("running match = %v, want %s", running, b.ID)
	}
}

func TestAppGetMatch_notFound(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, err := e.app.GetMatch(context.Background(), uuid.New())
	if !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("GetMatch() error = %v, want ErrMatchNotFound", err)
	}
}

func TestAppAppendAndUndo(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := context.Background()
	m := e.startMatch(t)

	e.goal(t, m.ID, e.homeTeam)
	e.goal(t, m.ID, e.homeTeam)
	third := e.goal(t, m.ID, e.homeTeam)

	got, err := e.app.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMatch() error = %v", err)
	}
	if got.ScoreHome != 3 || got.ScoreAway != 0 {
		t.Errorf("score = %d:%d, want 3:0", got.ScoreHome, got.ScoreAway)
	}
	if third.Score.Home != 3 {
		t.Errorf("event score snapshot = %d, want 3", third.Score.Home)
	}

	removed, err := e.app.UndoLast(ctx, m.ID)
	if err != nil {
		t.Fatalf("UndoLast() error = %v", err)
	}
	if removed == nil || removed.ID != third.ID {
		t.Errorf("UndoLast() removed %v, want the most recent event", removed)
	}
	if _, err := e.app.UndoLast(ctx, m.ID); err != nil {
		t.Fatalf("UndoLast() error = %v", err)
	}

	got, err = e.app.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMatch() error = %v", err)
	}
	if got.ScoreHome != 1 || got.ScoreAway != 0 {
		t.Errorf("score after two undos = %d:%d, want 1:0", got.ScoreHome, got.ScoreAway)
	}
	if len(got.Events) != 1 {
		t.Errorf("events remaining = %d, want 1", len(got.Events))
	}
}

// TestAppUndoEmptyLog verifies undo on an empty log is a silent no-op, not an
// error. The button may be pressed one time too many.
func TestAppUndoEmptyLog(t *testing.T) {
	e := newTestEngine(t, Config{})
	m := e.startMatch(t)

	removed, err := e.app.UndoLast(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("UndoLast() on empty log error = %v", err)
	}
	if removed != nil {
		t.Errorf("UndoLast() on empty log = %v, want nil", removed)
	}
}

func TestAppOwnGoalCountsForOpponent(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := context.Background()
	m := e.startMatch(t)

	if _, err := e.app.AppendEvent(ctx, m.ID, EventInput{
		Type:   models.EventTypeOwnGoal,
		TeamID: &e.homeTeam,
	}); err != nil {
		t.Fatalf("AppendEvent(OWN_GOAL) error = %v", err)
	}

	got, err := e.app.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMatch() error = %v", err)
	}
	if got.ScoreHome != 0 || got.ScoreAway != 1 {
		t.Errorf("score = %d:%d, want 0:1", got.ScoreHome, got.ScoreAway)
	}
}

func TestAppAppendStatusGate(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := context.Background()

	scheduled := e.createMatch(t, models.MatchStatusScheduled)
	if _, err := e.app.AppendEvent(ctx, scheduled.ID, EventInput{
		Type:   models.EventTypeGoal,
		TeamID: &e.homeTeam,
	}); err == nil {
		t.Error("AppendEvent on SCHEDULED match succeeded, want error")
	}

	m := e.startMatch(t)
	if _, err := e.app.Pause(ctx, m.ID); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	// AllowPausedBookkeeping is off: nothing is appendable while paused.
	if _, err := e.app.AppendEvent(ctx, m.ID, EventInput{
		Type:   models.EventTypeYellowCard,
		TeamID: &e.homeTeam,
	}); err == nil {
		t.Error("AppendEvent(YELLOW_CARD) on paused match succeeded, want error")
	}
}

func TestAppPausedBookkeeping(t *testing.T) {
	e := newTestEngine(t, Config{AllowPausedBookkeeping: true})
	ctx := context.Background()
	m := e.startMatch(t)
	if _, err := e.app.Pause(ctx, m.ID); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}

	if _, err := e.app.AppendEvent(ctx, m.ID, EventInput{
		Type:   models.EventTypeYellowCard,
		TeamID: &e.awayTeam,
	}); err != nil {
		t.Errorf("AppendEvent(YELLOW_CARD) on paused match error = %v", err)
	}

	// Goals still require a running clock.
	if _, err := e.app.AppendEvent(ctx, m.ID, EventInput{
		Type:   models.EventTypeGoal,
		TeamID: &e.awayTeam,
	}); err == nil {
		t.Error("AppendEvent(GOAL) on paused match succeeded, want error")
	}
}

func TestAppAppendValidation(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := context.Background()
	m := e.startMatch(t)

	if _, err := e.app.AppendEvent(ctx, m.ID, EventInput{Type: "THROW_IN"}); !errors.Is(err, ErrUnknownEventType) {
		t.Errorf("AppendEvent(THROW_IN) error = %v, want ErrUnknownEventType", err)
	}

	if _, err := e.app.AppendEvent(ctx, m.ID, EventInput{Type: models.EventTypeGoal}); err == nil {
		t.Error("AppendEvent(GOAL) without team succeeded, want error")
	}

	stranger := uuid.New()
	if _, err := e.app.AppendEvent(ctx, m.ID, EventInput{
		Type:   models.EventTypeGoal,
		TeamID: &stranger,
	}); err == nil {
		t.Error("AppendEvent(GOAL) with foreign team succeeded, want error")
	}

	// Neutral notes carry no team at all.
	if _, err := e.app.AppendEvent(ctx, m.ID, EventInput{Type: models.EventTypeNote}); err != nil {
		t.Errorf("AppendEvent(NOTE) without team error = %v", err)
	}
}

func TestAppEventClockValue(t *testing.T) {
	e := newTestEngine(t, Config{})
	m := e.startMatch(t)

	e.clock.Advance(90 * time.Second)
	ev := e.goal(t, m.ID, e.awayTeam)

	if ev.AtSeconds != 90 {
		t.Errorf("AtSeconds = %d, want 90", ev.AtSeconds)
	}
}

// TestAppRestartReconstruction replays the restart path: a second engine over
// the same store must see the identical match, including a still-running
// timer whose elapsed value kept growing while no process was around.
func TestAppRestartReconstruction(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := context.Background()
	m := e.startMatch(t)

	e.clock.Advance(10 * time.Second)
	e.goal(t, m.ID, e.homeTeam)
	e.clock.Advance(35 * time.Second)

	// New repo and app over the same database, as after a crash.
	reborn := NewApp(NewSQLRepository(e.db, e.clock), e.clock, Config{})

	got, err := reborn.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMatch() after restart error = %v", err)
	}
	if got.Status != models.MatchStatusRunning {
		t.Errorf("status after restart = %s, want RUNNING", got.Status)
	}
	if got.ScoreHome != 1 {
		t.Errorf("score after restart = %d, want 1", got.ScoreHome)
	}
	if len(got.Events) != 1 || got.Events[0].AtSeconds != 10 {
		t.Errorf("events after restart = %+v, want one goal at 10s", got.Events)
	}
	if elapsed := reborn.Timer().Elapsed(got); elapsed != 45*time.Second {
		t.Errorf("Elapsed() after restart = %v, want %v", elapsed, 45*time.Second)
	}
}

// failingRepo wraps a Repository and fails every save.
type failingRepo struct {
	Repository
}

var errStoreDown = errors.New("disk full")

func (f *failingRepo) SaveMatch(ctx context.Context, m *models.Match) error {
	return errStoreDown
}

// TestAppFailedSaveLeavesStateUnchanged verifies the write-ahead contract:
// when the durable write fails the operation reports the failure and nothing
// becomes observable.
func TestAppFailedSaveLeavesStateUnchanged(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := context.Background()
	m := e.startMatch(t)
	e.goal(t, m.ID, e.homeTeam)

	broken := NewApp(&failingRepo{Repository: e.repo}, e.clock, Config{})

	if _, err := broken.AppendEvent(ctx, m.ID, EventInput{
		Type:   models.EventTypeGoal,
		TeamID: &e.homeTeam,
	}); !errors.Is(err, errStoreDown) {
		t.Errorf("AppendEvent() error = %v, want wrapped store failure", err)
	}
	if _, err := broken.Pause(ctx, m.ID); !errors.Is(err, errStoreDown) {
		t.Errorf("Pause() error = %v, want wrapped store failure", err)
	}

	got, err := e.app.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMatch() error = %v", err)
	}
	if got.Status != models.MatchStatusRunning || got.ScoreHome != 1 || len(got.Events) != 1 {
		t.Errorf("state changed despite failed save: status=%s score=%d events=%d",
			got.Status, got.ScoreHome, len(got.Events))
	}
}

// recordingNotifier collects every committed state it is handed.
type recordingNotifier struct {
	updates []*models.Match
}

func (n *recordingNotifier) MatchUpdated(m *models.Match) {
	n.updates = append(n.updates, m)
}

func TestAppNotifiesAfterCommit(t *testing.T) {
	e := newTestEngine(t, Config{})
	n := &recordingNotifier{}
	e.app.SetNotifier(n)

	m := e.startMatch(t)
	e.goal(t, m.ID, e.homeTeam)

	if len(n.updates) != 2 {
		t.Fatalf("notifier received %d updates, want 2", len(n.updates))
	}
	last := n.updates[len(n.updates)-1]
	if last.ScoreHome != 1 || last.Status != models.MatchStatusRunning {
		t.Errorf("notified state = status=%s score=%d, want RUNNING 1", last.Status, last.ScoreHome)
	}
}
