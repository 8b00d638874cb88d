package main

import (
	"database/sql"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mlutz/spieltag/go/internal/gateway"
	"github.com/mlutz/spieltag/go/internal/live"
	"github.com/mlutz/spieltag/go/internal/match"
	"github.com/mlutz/spieltag/go/internal/syncer"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Matches     *match.App
	Coordinator *live.Coordinator
	Gateway     *gateway.ConnectionManager
	SyncWorker  *syncer.Worker
}

func setupServices(localDB *sql.DB, remote *syncer.PostgresRemote, config *Config) *Services {
	// Dependency chain: local store -> repository -> app -> coordinator,
	// with the gateway listening on committed state and the sync worker
	// draining the queue in the background.
	clock := clockwork.NewRealClock()

	repo := match.NewSQLRepository(localDB, clock)
	matchApp := match.NewApp(repo, clock, match.Config{
		AllowPausedBookkeeping: config.Engine.AllowPausedBookkeeping,
		CaptureTimeout:         config.captureTimeout(),
	})

	gw := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	matchApp.SetNotifier(gw)

	coordinator := live.NewCoordinator(matchApp)

	var broadcaster syncer.Broadcaster
	if config.Nats.Enabled {
		jsCfg := syncer.DefaultJetStreamConfig()
		if config.Nats.URL != "" {
			jsCfg.URL = config.Nats.URL
		}
		js, err := syncer.NewJetStreamBroadcaster(jsCfg)
		if err != nil {
			log.Error().Err(err).Msg("NATS broadcaster unavailable, continuing without")
		} else {
			broadcaster = js
		}
	}

	syncCfg := syncer.DefaultConfig()
	if config.Sync.PollIntervalSec > 0 {
		syncCfg.PollInterval = time.Duration(config.Sync.PollIntervalSec) * time.Second
	}
	if config.Sync.BatchSize > 0 {
		syncCfg.BatchSize = config.Sync.BatchSize
	}
	if config.Sync.MaxRetries > 0 {
		syncCfg.MaxRetries = config.Sync.MaxRetries
	}
	if config.Sync.RetryDelayMs > 0 {
		syncCfg.RetryDelay = time.Duration(config.Sync.RetryDelayMs) * time.Millisecond
	}

	var worker *syncer.Worker
	if remote != nil {
		worker = syncer.NewWorker(localDB, remote, broadcaster, syncCfg, clock)
	}

	return &Services{
		Matches:     matchApp,
		Coordinator: coordinator,
		Gateway:     gw,
		SyncWorker:  worker,
	}
}
