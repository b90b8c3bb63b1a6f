// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package candidates

import (
	"context"

	"github.com/tomtom215/cratedig/internal/config"
)

// OldFavoriteGenerator resurfaces tracks the user used to love but has
// stopped playing. It works entirely from the local play history: a
// track qualifies when it has enough lifetime plays and its normalized
// recency score has decayed below the threshold. Score is
// play_count * (1 - recency), so the most played and most faded
// favorites rank first.
//
// This is the one generator whose output is, by definition, tracks the
// user has already played.
type OldFavoriteGenerator struct {
	cfg config.OldFavoriteConfig
	max int
}

func NewOldFavoriteGenerator(cfg config.OldFavoriteConfig, maxPerSource int) *OldFavoriteGenerator {
	return &OldFavoriteGenerator{cfg: cfg, max: maxPerSource}
}

func (g *OldFavoriteGenerator) Name() Source { return SourceOldFavorite }

// Generate works purely from the snapshot, so an expired run deadline
// never costs this source its output.
func (g *OldFavoriteGenerator) Generate(ctx context.Context, uc *UserContext) ([]Record, error) {
	out := newCollector(SourceOldFavorite)
	for key, score := range uc.TrackScores {
		if score.PlayCount < g.cfg.MinPlayCount {
			continue
		}
		if score.Recency >= g.cfg.MaxRecency {
			continue
		}
		ref := uc.Tracks[key]
		out.add(key, ref.Name, ref.Artist, float64(score.PlayCount)*(1.0-score.Recency))
	}
	return capRecords(out.records, g.max), nil
}
