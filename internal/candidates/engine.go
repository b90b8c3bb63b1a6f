// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package candidates

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cratedig/internal/config"
	"github.com/tomtom215/cratedig/internal/identity"
	"github.com/tomtom215/cratedig/internal/logging"
	"github.com/tomtom215/cratedig/internal/metrics"
	"github.com/tomtom215/cratedig/internal/recency"
	"github.com/tomtom215/cratedig/internal/store"
)

// persistTimeout bounds the storage writes at the end of a run once
// the run's own deadline no longer applies.
const persistTimeout = 30 * time.Second

// Storage is the slice of the store the engine needs.
type Storage interface {
	PlaysForUser(ctx context.Context, userID string) ([]store.Play, error)
	ArtistTags(ctx context.Context, artistKeys []string) (map[string][]string, error)
	ReplaceCandidates(ctx context.Context, userID, source string, rows []store.CandidateRow) error
	ReplaceConsolidated(ctx context.Context, userID string, rows []store.ConsolidatedRow) error
}

// RunSummary reports what one generation run produced.
type RunSummary struct {
	RunID        string           `json:"run_id"`
	UserID       string           `json:"user_id"`
	StartedAt    time.Time        `json:"started_at"`
	Duration     time.Duration    `json:"duration"`
	PerSource    map[Source]int   `json:"per_source"`
	Failed       []Source         `json:"failed_sources,omitempty"`
	Consolidated int              `json:"consolidated"`
	HalfLifeDays float64          `json:"half_life_days"`
}

// Engine runs the four generators for a user, consolidates their
// output, and persists the result as a full refresh.
type Engine struct {
	storage    Storage
	generators []Generator
	policy     AggregatePolicy
	norm       *identity.Normalizer
	params     recency.Params
	log        zerolog.Logger
}

// NewEngine wires the standard four generators from configuration.
func NewEngine(storage Storage, lookup Lookup, norm *identity.Normalizer, cfg config.CandidatesConfig, params recency.Params) (*Engine, error) {
	policy, err := PolicyFor(cfg.Aggregation)
	if err != nil {
		return nil, err
	}
	return &Engine{
		storage: storage,
		generators: []Generator{
			NewSimilarArtistGenerator(lookup, cfg.SimilarArtist, cfg.MaxPerSource),
			NewSimilarTagGenerator(lookup, cfg.SimilarTag, cfg.MaxPerSource),
			NewDeepCutGenerator(lookup, cfg.DeepCut, cfg.MaxPerSource),
			NewOldFavoriteGenerator(cfg.OldFavorite, cfg.MaxPerSource),
		},
		policy: policy,
		norm:   norm,
		params: params,
		log:    logging.With("component", "engine"),
	}, nil
}

// NewEngineWithGenerators is NewEngine with an explicit generator set,
// used by tests.
func NewEngineWithGenerators(storage Storage, norm *identity.Normalizer, gens []Generator, policy AggregatePolicy, params recency.Params) *Engine {
	return &Engine{
		storage:    storage,
		generators: gens,
		policy:     policy,
		norm:       norm,
		params:     params,
		log:        logging.With("component", "engine"),
	}
}

// RunUser executes one full generation run for a user: snapshot the
// history, run all generators concurrently, wait for every one of them,
// consolidate, and replace the user's stored candidates.
//
// A failing generator is logged and skipped; its source simply
// contributes nothing. Only snapshot and persistence errors fail the
// run.
func (e *Engine) RunUser(ctx context.Context, userID string) (*RunSummary, error) {
	start := time.Now()
	summary := &RunSummary{
		RunID:     uuid.NewString(),
		UserID:    userID,
		StartedAt: start.UTC(),
		PerSource: make(map[Source]int, len(e.generators)),
	}

	uc, err := e.snapshot(ctx, userID, start.UTC())
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("building user snapshot for %s: %w", userID, err)
	}
	summary.HalfLifeDays = uc.Profile.HalfLifeDays

	e.log.Info().
		Str("user", userID).
		Str("run_id", summary.RunID).
		Int("plays", len(uc.Plays)).
		Float64("half_life_days", uc.Profile.HalfLifeDays).
		Msg("Starting candidate generation run")

	// Fan out, then a strict barrier: consolidation starts only after
	// every generator has returned or failed.
	results := make([][]Record, len(e.generators))
	errs := make([]error, len(e.generators))
	var wg sync.WaitGroup
	for i, gen := range e.generators {
		wg.Add(1)
		go func(i int, gen Generator) {
			defer wg.Done()
			genStart := time.Now()
			results[i], errs[i] = gen.Generate(ctx, uc)
			metrics.GeneratorDuration.WithLabelValues(string(gen.Name())).
				Observe(time.Since(genStart).Seconds())
		}(i, gen)
	}
	wg.Wait()

	bySource := make(map[Source][]Record, len(e.generators))
	for i, gen := range e.generators {
		source := gen.Name()
		if errs[i] != nil {
			e.log.Error().Err(errs[i]).
				Str("user", userID).
				Str("source", string(source)).
				Msg("Generator failed, consolidating without it")
			metrics.GeneratorFailures.WithLabelValues(string(source)).Inc()
			summary.Failed = append(summary.Failed, source)
			continue
		}
		bySource[source] = results[i]
		summary.PerSource[source] = len(results[i])
		metrics.GeneratorCandidates.WithLabelValues(string(source)).Add(float64(len(results[i])))
	}

	// Persist with a context detached from the run deadline. Generators
	// stop collecting when the deadline fires, but whatever they gathered
	// must still reach storage instead of turning into a failed run.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	now := time.Now().UTC()
	for source, records := range bySource {
		rows := make([]store.CandidateRow, 0, len(records))
		for rank, rec := range records {
			rows = append(rows, store.CandidateRow{
				UserID:     userID,
				Source:     string(source),
				RunID:      summary.RunID,
				TrackKey:   rec.TrackKey,
				TrackName:  rec.TrackName,
				ArtistName: rec.ArtistName,
				RawScore:   rec.RawScore,
				Rank:       rank + 1,
				CreatedAt:  now,
			})
		}
		if err := e.storage.ReplaceCandidates(persistCtx, userID, string(source), rows); err != nil {
			metrics.RunsTotal.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("persisting %s candidates: %w", source, err)
		}
	}

	consolidated := Consolidate(bySource, e.policy)
	rows := make([]store.ConsolidatedRow, 0, len(consolidated))
	for _, c := range consolidated {
		_, fromSA := c.Percentiles[SourceSimilarArtist]
		_, fromST := c.Percentiles[SourceSimilarTag]
		_, fromDC := c.Percentiles[SourceDeepCut]
		_, fromOF := c.Percentiles[SourceOldFavorite]
		rows = append(rows, store.ConsolidatedRow{
			UserID:            userID,
			RunID:             summary.RunID,
			TrackKey:          c.TrackKey,
			TrackName:         c.TrackName,
			ArtistName:        c.ArtistName,
			FinalScore:        c.FinalScore,
			Rank:              c.Rank,
			FromSimilarArtist: fromSA,
			FromSimilarTag:    fromST,
			FromDeepCut:       fromDC,
			FromOldFavorite:   fromOF,
			CreatedAt:         now,
		})
	}
	if err := e.storage.ReplaceConsolidated(persistCtx, userID, rows); err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("persisting consolidated candidates: %w", err)
	}
	summary.Consolidated = len(consolidated)
	summary.Duration = time.Since(start)

	outcome := "completed"
	if len(summary.Failed) > 0 {
		outcome = "partial"
	}
	metrics.RunsTotal.WithLabelValues(outcome).Inc()
	metrics.RunDuration.Observe(summary.Duration.Seconds())
	metrics.ConsolidatedCandidates.WithLabelValues(userID).Set(float64(summary.Consolidated))

	e.log.Info().
		Str("user", userID).
		Str("run_id", summary.RunID).
		Str("outcome", outcome).
		Int("consolidated", summary.Consolidated).
		Dur("duration", summary.Duration).
		Msg("Candidate generation run finished")
	return summary, nil
}

// snapshot builds the read-only UserContext a run works from. The asOf
// instant fixes every recency computation in the run.
func (e *Engine) snapshot(ctx context.Context, userID string, asOf time.Time) (*UserContext, error) {
	plays, err := e.storage.PlaysForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	uc := &UserContext{
		UserID:      userID,
		Plays:       make([]recency.Play, 0, len(plays)),
		Tracks:      make(map[string]TrackRef),
		ArtistNames: make(map[string]string),
		Norm:        e.norm,
	}
	for _, p := range plays {
		uc.Plays = append(uc.Plays, recency.Play{
			TrackKey:  p.TrackKey,
			ArtistKey: p.ArtistKey,
			PlayedAt:  p.PlayedAt,
		})
		uc.Tracks[p.TrackKey] = TrackRef{Name: p.TrackName, Artist: p.ArtistName}
		uc.ArtistNames[p.ArtistKey] = p.ArtistName
	}

	uc.Profile = recency.ComputeProfile(userID, uc.Plays, asOf, e.params)
	uc.TrackScores = recency.TrackScores(uc.Plays, uc.Profile)
	uc.ArtistScores = recency.ArtistScores(uc.Plays, uc.Profile)

	artistKeys := make([]string, 0, len(uc.ArtistNames))
	for key := range uc.ArtistNames {
		artistKeys = append(artistKeys, key)
	}
	tags, err := e.storage.ArtistTags(ctx, artistKeys)
	if err != nil {
		return nil, err
	}
	uc.ArtistTags = tags
	return uc, nil
}
