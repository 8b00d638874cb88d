package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if getEnv("LOG_PRETTY", "") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	config, err := loadConfig(getEnv("CONFIG_FILE", "spieltag.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	localDB, err := setupLocalStore()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open local store")
	}
	defer localDB.Close()

	remote, err := setupRemoteStore()
	if err != nil {
		// A dead remote is not fatal: the engine keeps operating locally and
		// the queue drains once connectivity returns.
		log.Error().Err(err).Msg("remote store unavailable, running local-only")
	}

	services := setupServices(localDB, remote, config)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if services.SyncWorker != nil {
		if err := services.SyncWorker.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start sync worker")
		}
	}

	server := setupServer(services)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("engine listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if services.SyncWorker != nil {
		if err := services.SyncWorker.Stop(); err != nil {
			log.Error().Err(err).Msg("sync worker shutdown failed")
		}
	}
}
