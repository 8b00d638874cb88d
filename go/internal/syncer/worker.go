package syncer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mlutz/spieltag/go/internal/events"
	"github.com/mlutz/spieltag/go/internal/localstore"
	"github.com/mlutz/spieltag/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Clock is the subset of clockwork used by the worker.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
	NewTimer(d time.Duration) clockwork.Timer
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int32
	MaxRetries   int
	RetryDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		MaxRetries:   3,
		RetryDelay:   time.Second,
	}
}

// Worker drains the local sync queue in the background. Failures are retried
// with backoff and never surface as data loss: the local store stays
// authoritative and the only user-visible symptom of a dead remote is a
// growing pending count.
type Worker struct {
	db          *sql.DB
	queries     *localstore.Queries
	remote      RemoteStore
	broadcaster Broadcaster
	config      Config
	clock       Clock

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewWorker(db *sql.DB, remote RemoteStore, broadcaster Broadcaster, cfg Config, clock Clock) *Worker {
	return &Worker{
		db:          db,
		queries:     localstore.New(db),
		remote:      remote,
		broadcaster: broadcaster,
		config:      cfg,
		clock:       clock,
		stopChan:    make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	log.Info().
		Dur("poll_interval", w.config.PollInterval).
		Int32("batch_size", w.config.BatchSize).
		Msg("sync worker started")
	return nil
}

func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	log.Info().Msg("sync worker stopped")
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := w.clock.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Drain whatever survived the last shutdown before the first tick.
	w.ProcessQueue(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.Chan():
			w.ProcessQueue(ctx)
		}
	}
}

// ProcessQueue pushes every pending entry once (with per-entry retries).
// Entries that still fail stay pending for the next pass.
func (w *Worker) ProcessQueue(ctx context.Context) {
	entries, err := w.queries.FetchPendingSync(ctx, w.config.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch pending sync entries")
		return
	}
	if len(entries) == 0 {
		return
	}

	log.Debug().Int("count", len(entries)).Msg("processing sync queue")

	var sentIDs []uuid.UUID
	for _, entry := range entries {
		var projection models.MatchProjection
		if err := json.Unmarshal(entry.Payload, &projection); err != nil {
			// A corrupt payload can never succeed; drop it rather than wedge
			// the queue. The next local mutation re-enqueues full state.
			log.Error().Err(err).Str("entry_id", entry.ID.String()).Msg("dropping corrupt sync entry")
			sentIDs = append(sentIDs, entry.ID)
			continue
		}

		if err := w.pushWithRetry(ctx, projection); err != nil {
			log.Warn().
				Err(err).
				Str("match_id", entry.MatchID.String()).
				Int("attempts", entry.Attempts+1).
				Msg("sync push failed, will retry next pass")
			if err := w.queries.IncrementSyncAttempts(ctx, entry.ID); err != nil {
				log.Error().Err(err).Msg("failed to record sync attempt")
			}
			continue
		}

		sentIDs = append(sentIDs, entry.ID)

		if w.broadcaster != nil {
			if err := w.broadcaster.BroadcastState(ctx, events.FromProjection(projection)); err != nil {
				log.Warn().Err(err).Str("match_id", entry.MatchID.String()).Msg("state broadcast failed")
			}
		}
	}

	if len(sentIDs) > 0 {
		if err := w.queries.MarkSyncSent(ctx, sentIDs); err != nil {
			log.Error().Err(err).Msg("failed to mark sync entries as sent")
			return
		}
		log.Info().
			Int("total", len(entries)).
			Int("synced", len(sentIDs)).
			Msg("sync queue processed")
	}
}

func (w *Worker) pushWithRetry(ctx context.Context, p models.MatchProjection) error {
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := w.clock.NewTimer(w.config.RetryDelay * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.Chan():
			}
		}

		if err := w.remote.PushMatchState(ctx, p); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}

// PendingCount reports how many local mutations still await remote
// acknowledgement. Backs the non-blocking "not yet synced" indicator.
func (w *Worker) PendingCount(ctx context.Context) (int, error) {
	return w.queries.CountPendingSync(ctx)
}

// PendingEntries returns the queued mutations awaiting remote
// acknowledgement, oldest first.
func (w *Worker) PendingEntries(ctx context.Context) ([]models.SyncQueueEntry, error) {
	rows, err := w.queries.FetchPendingSync(ctx, w.config.BatchSize)
	if err != nil {
		return nil, err
	}
	out := make([]models.SyncQueueEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.SyncQueueEntry{
			ID:           r.ID,
			MatchID:      r.MatchID,
			TournamentID: r.TournamentID,
			Payload:      json.RawMessage(r.Payload),
			LocalVersion: r.LocalVersion,
			Status:       models.SyncStatus(r.Status),
			Attempts:     r.Attempts,
			CreatedAt:    r.CreatedAt,
		})
	}
	return out, nil
}
