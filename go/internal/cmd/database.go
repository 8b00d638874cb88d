package main

import (
	"database/sql"
	"fmt"

	"github.com/mlutz/spieltag/go/internal/dbconfig"
	"github.com/mlutz/spieltag/go/internal/localstore"
	"github.com/mlutz/spieltag/go/internal/syncer"
	"github.com/rs/zerolog/log"
)

func setupLocalStore() (*sql.DB, error) {
	dataDir := getEnv("DATA_DIR", "./data")
	db, err := localstore.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	log.Info().Str("data_dir", dataDir).Msg("local store ready")
	return db, nil
}

// setupRemoteStore connects to the remote Postgres store when configured.
// Returns nil without error when no remote is set up: the device operates
// offline and the sync queue just grows until a remote appears.
func setupRemoteStore() (*syncer.PostgresRemote, error) {
	if !dbconfig.Configured() {
		log.Warn().Msg("no remote store configured, running local-only")
		return nil, nil
	}

	cfg := dbconfig.NewRemoteConfigFromEnv()
	remote, err := syncer.OpenPostgresRemote(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect remote store: %w", err)
	}
	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to remote store")
	return remote, nil
}
