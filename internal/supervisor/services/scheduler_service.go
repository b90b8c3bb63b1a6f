// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package services

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/cratedig/internal/candidates"
	"github.com/tomtom215/cratedig/internal/config"
	"github.com/tomtom215/cratedig/internal/ingest"
	"github.com/tomtom215/cratedig/internal/logging"
)

// UserLister enumerates the users known to the store.
type UserLister interface {
	Users(ctx context.Context) ([]string, error)
}

// Ingestor pulls new scrobbles for a user before generation.
type Ingestor interface {
	ImportUser(ctx context.Context, userID string) (*ingest.Result, error)
}

// Runner executes a full candidate generation run for a user.
type Runner interface {
	RunUser(ctx context.Context, userID string) (*candidates.RunSummary, error)
}

// SchedulerService runs the periodic refresh cycle: for every known user it
// optionally ingests fresh plays, then regenerates and consolidates
// candidates. Users are processed by a bounded worker pool; one user's
// failure never blocks the others.
type SchedulerService struct {
	lister   UserLister
	ingestor Ingestor
	runner   Runner
	cfg      config.SchedulerConfig
	ingest   config.IngestConfig
}

func NewSchedulerService(lister UserLister, ingestor Ingestor, runner Runner, cfg config.SchedulerConfig, ingestCfg config.IngestConfig) *SchedulerService {
	return &SchedulerService{
		lister:   lister,
		ingestor: ingestor,
		runner:   runner,
		cfg:      cfg,
		ingest:   ingestCfg,
	}
}

// Serve implements suture.Service. One cycle runs immediately on start,
// then every Interval until the context is canceled.
func (s *SchedulerService) Serve(ctx context.Context) error {
	log := logging.With("component", "scheduler")
	log.Info().Dur("interval", s.cfg.Interval).Msg("Scheduler started")

	s.runCycle(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle processes all users with at most UserConcurrency in flight.
func (s *SchedulerService) runCycle(ctx context.Context) {
	log := logging.With("component", "scheduler")

	users, err := s.collectUsers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Listing users failed, skipping cycle")
		return
	}
	if len(users) == 0 {
		log.Info().Msg("No users to process")
		return
	}

	started := time.Now()
	log.Info().Int("users", len(users)).Msg("Refresh cycle started")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.UserConcurrency)
	for _, user := range users {
		g.Go(func() error {
			s.processUser(gctx, user)
			// Per-user failures are logged, not propagated, so the
			// group never cancels sibling users.
			return nil
		})
	}
	_ = g.Wait()

	log.Info().
		Int("users", len(users)).
		Dur("elapsed", time.Since(started)).
		Msg("Refresh cycle finished")
}

func (s *SchedulerService) processUser(ctx context.Context, userID string) {
	log := logging.With("component", "scheduler", "user", userID)

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	if s.ingest.Enabled && s.ingestor != nil {
		res, err := s.ingestor.ImportUser(runCtx, userID)
		if err != nil {
			log.Error().Err(err).Msg("Ingest failed, generating from stored plays")
		} else {
			log.Info().Int("plays", res.PlaysStored).Msg("Ingest complete")
		}
	}

	summary, err := s.runner.RunUser(runCtx, userID)
	if err != nil {
		log.Error().Err(err).Msg("Candidate run failed")
		return
	}
	log.Info().
		Str("run_id", summary.RunID).
		Int("consolidated", summary.Consolidated).
		Dur("elapsed", summary.Duration).
		Msg("Candidate run complete")
}

// collectUsers merges the configured ingest users with users already in the
// store, deduplicated and sorted for a stable processing order.
func (s *SchedulerService) collectUsers(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var users []string

	if s.ingest.Enabled {
		for _, u := range s.ingest.Users {
			if _, ok := seen[u]; !ok {
				seen[u] = struct{}{}
				users = append(users, u)
			}
		}
	}

	stored, err := s.lister.Users(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range stored {
		if _, ok := seen[u]; !ok {
			seen[u] = struct{}{}
			users = append(users, u)
		}
	}

	sort.Strings(users)
	return users, nil
}

// String identifies the service in suture log messages.
func (s *SchedulerService) String() string {
	return "scheduler"
}
