// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package candidates

import (
	"context"
	"hash/fnv"
	"sort"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cratedig/internal/config"
	"github.com/tomtom215/cratedig/internal/logging"
)

// SimilarArtistGenerator proposes tracks by artists similar to the ones
// the user already plays.
//
// A deterministic sample of the user's artists is looked up via
// artist.getSimilar. Matches above the similarity cutoff are dropped:
// near-1.0 similarity almost always means an alias or split catalog
// entry of the same act, which the user has by definition already
// heard. Each surviving similar artist contributes its top tracks,
// scored similarity times global playcount.
type SimilarArtistGenerator struct {
	lookup Lookup
	cfg    config.SimilarArtistConfig
	max    int
	log    zerolog.Logger
}

func NewSimilarArtistGenerator(lookup Lookup, cfg config.SimilarArtistConfig, maxPerSource int) *SimilarArtistGenerator {
	return &SimilarArtistGenerator{
		lookup: lookup,
		cfg:    cfg,
		max:    maxPerSource,
		log:    logging.With("source", string(SourceSimilarArtist)),
	}
}

func (g *SimilarArtistGenerator) Name() Source { return SourceSimilarArtist }

func (g *SimilarArtistGenerator) Generate(ctx context.Context, uc *UserContext) ([]Record, error) {
	seeds := sampleArtists(uc, g.cfg.SampleRate)
	out := newCollector(SourceSimilarArtist)

	for _, seed := range seeds {
		if ctx.Err() != nil {
			// Deadline hit mid-run. Stop new lookups but keep what the
			// earlier seeds produced.
			g.log.Warn().Str("artist", seed).Msg("Run deadline reached, keeping partial results")
			break
		}

		similar, err := g.lookup.SimilarArtists(ctx, seed, 100)
		if err != nil {
			g.log.Warn().Err(err).Str("artist", seed).Msg("Similar artist lookup failed, skipping seed")
			continue
		}

		kept := 0
		for _, sa := range similar {
			if kept >= g.cfg.MaxSimilarPerArtist {
				break
			}
			if sa.Match > g.cfg.SimilarityCutoff || sa.Name == "" {
				continue
			}
			kept++

			tracks, err := g.lookup.ArtistTopTracks(ctx, sa.Name, g.cfg.TracksPerArtist)
			if err != nil {
				g.log.Warn().Err(err).Str("artist", sa.Name).Msg("Top tracks lookup failed, skipping artist")
				continue
			}
			for _, t := range tracks {
				if t.Listeners < g.cfg.MinListeners {
					continue
				}
				artist := t.Artist
				if artist == "" {
					artist = sa.Name
				}
				key := uc.Norm.TrackKey(t.Name, artist)
				if uc.Played(key) {
					continue
				}
				out.add(key, t.Name, artist, sa.Match*float64(t.Playcount))
			}
		}
	}
	return capRecords(out.records, g.max), nil
}

// sampleArtists deterministically samples the configured fraction of
// the user's played artists, returning display names sorted for stable
// iteration. The same user always gets the same sample until their
// artist set changes.
func sampleArtists(uc *UserContext, rate float64) []string {
	keys := make([]string, 0, len(uc.ArtistScores))
	for key := range uc.ArtistScores {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	threshold := uint64(rate * 1000)
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		h := fnv.New64a()
		h.Write([]byte(uc.UserID))
		h.Write([]byte{0})
		h.Write([]byte(key))
		if h.Sum64()%1000 < threshold {
			if name, ok := uc.ArtistNames[key]; ok && name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}
