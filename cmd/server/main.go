// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

// Package main is the entry point for the Cratedig server.
//
// Cratedig is a self-hosted music discovery engine. It ingests Last.fm
// scrobble history, models each listener's taste with a time-decay
// recency profile, and generates recommendation candidates from four
// sources (similar artists, similar tags, deep cuts, old favorites),
// consolidated into a single ranked list per user.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered load (defaults, config.yaml, env)
//  2. Database: DuckDB for plays, dimensions, and candidate tables
//  3. Last.fm client: rate-limited, circuit-broken API access
//  4. Ingest and engine: scrobble importer and candidate generation
//  5. Supervisor tree: Suture-managed scheduler and HTTP server
//
// # Configuration
//
// Highest priority wins:
//   - Environment variables (LASTFM_API_KEY, HTTP_PORT, ...)
//   - Config file (config.yaml)
//   - Built-in defaults
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the supervisor
// stops the scheduler, drains in-flight HTTP requests, and closes the
// database.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/cratedig/internal/api"
	"github.com/tomtom215/cratedig/internal/candidates"
	"github.com/tomtom215/cratedig/internal/config"
	"github.com/tomtom215/cratedig/internal/identity"
	"github.com/tomtom215/cratedig/internal/ingest"
	"github.com/tomtom215/cratedig/internal/lastfm"
	"github.com/tomtom215/cratedig/internal/logging"
	"github.com/tomtom215/cratedig/internal/recency"
	"github.com/tomtom215/cratedig/internal/store"
	"github.com/tomtom215/cratedig/internal/supervisor"
	"github.com/tomtom215/cratedig/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("scheduler", cfg.Scheduler.Enabled).
		Bool("ingest", cfg.Ingest.Enabled).
		Msg("Starting Cratedig")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	client := lastfm.NewClient(cfg.LastFM)
	if cfg.LastFM.APIKey != "" {
		if err := client.Ping(ctx); err != nil {
			logging.Warn().Err(err).Msg("Last.fm not reachable at startup (will retry)")
		} else {
			logging.Info().Msg("Connected to Last.fm")
		}
	}

	norm, err := identity.NewNormalizer(identity.DefaultPatterns())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to compile normalization patterns")
	}

	params := recency.Params{
		SpanDivisor:     cfg.Recency.SpanDivisor,
		MinHalfLifeDays: cfg.Recency.MinHalfLifeDays,
	}
	engine, err := candidates.NewEngine(db, client, norm, cfg.Candidates, params)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build candidate engine")
	}

	importer := ingest.NewImporter(client, db, norm, cfg.Ingest)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	if cfg.Scheduler.Enabled {
		tree.AddJobService(services.NewSchedulerService(db, importer, engine, cfg.Scheduler, cfg.Ingest))
		logging.Info().
			Dur("interval", cfg.Scheduler.Interval).
			Int("concurrency", cfg.Scheduler.UserConcurrency).
			Msg("Scheduler added to supervisor tree")
	} else {
		logging.Info().Msg("Scheduler disabled, runs must be triggered via the API")
	}

	apiServer := api.NewServer(db, engine, cfg.Server, cfg.Scheduler.RunTimeout)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Cratedig stopped gracefully")
}
