// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package candidates

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cratedig/internal/config"
	"github.com/tomtom215/cratedig/internal/logging"
)

// DeepCutGenerator digs into the catalogs of the user's most played
// artists for tracks they have not heard yet.
//
// For each top artist it fetches top albums and their track listings.
// Album-level playcount stands in for per-track stats, since
// album.getInfo track entries carry none. Only albums in the low end
// of the artist's playcount distribution survive the obscurity filter;
// the score rewards devotion to the artist and obscurity of the cut:
// artist_play_count * 1 / (1 + album_playcount).
type DeepCutGenerator struct {
	lookup Lookup
	cfg    config.DeepCutConfig
	max    int
	log    zerolog.Logger
}

func NewDeepCutGenerator(lookup Lookup, cfg config.DeepCutConfig, maxPerSource int) *DeepCutGenerator {
	return &DeepCutGenerator{
		lookup: lookup,
		cfg:    cfg,
		max:    maxPerSource,
		log:    logging.With("source", string(SourceDeepCut)),
	}
}

func (g *DeepCutGenerator) Name() Source { return SourceDeepCut }

func (g *DeepCutGenerator) Generate(ctx context.Context, uc *UserContext) ([]Record, error) {
	top := topArtists(uc, g.cfg.TopArtists)
	out := newCollector(SourceDeepCut)

	for _, ta := range top {
		if ctx.Err() != nil {
			g.log.Warn().Str("artist", ta.name).Msg("Run deadline reached, keeping partial results")
			break
		}

		albums, err := g.lookup.ArtistTopAlbums(ctx, ta.name, 15)
		if err != nil {
			g.log.Warn().Err(err).Str("artist", ta.name).Msg("Top albums lookup failed, skipping artist")
			continue
		}

		// Obscurity threshold over this artist's album playcounts.
		counts := make([]int64, 0, len(albums))
		for _, a := range albums {
			if a.Playcount >= g.cfg.MinPlaycount {
				counts = append(counts, a.Playcount)
			}
		}
		if len(counts) == 0 {
			continue
		}
		cutoff := percentileValue(counts, g.cfg.ObscurityPercentile)

		processed := 0
		for _, album := range albums {
			if processed >= g.cfg.AlbumsPerArtist {
				break
			}
			if album.Name == "" || album.Playcount < g.cfg.MinPlaycount || album.Playcount > cutoff {
				continue
			}
			processed++

			tracks, err := g.lookup.AlbumTracks(ctx, ta.name, album.Name)
			if err != nil {
				g.log.Warn().Err(err).
					Str("artist", ta.name).
					Str("album", album.Name).
					Msg("Album tracks lookup failed, skipping album")
				continue
			}
			for _, t := range tracks {
				if t.Name == "" {
					continue
				}
				artist := t.Artist
				if artist == "" {
					artist = ta.name
				}
				key := uc.Norm.TrackKey(t.Name, artist)
				if uc.Played(key) {
					continue
				}
				score := float64(ta.playCount) / (1.0 + float64(album.Playcount))
				out.add(key, t.Name, artist, score)
			}
		}
	}
	return capRecords(out.records, g.max), nil
}

type rankedArtist struct {
	name      string
	playCount int
}

// topArtists returns the user's most played artists by play count,
// ties broken by artist key for determinism.
func topArtists(uc *UserContext, n int) []rankedArtist {
	type entry struct {
		key   string
		count int
	}
	entries := make([]entry, 0, len(uc.ArtistScores))
	for key, score := range uc.ArtistScores {
		entries = append(entries, entry{key: key, count: score.PlayCount})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})

	out := make([]rankedArtist, 0, n)
	for _, e := range entries {
		if len(out) >= n {
			break
		}
		if name := uc.ArtistNames[e.key]; name != "" {
			out = append(out, rankedArtist{name: name, playCount: e.count})
		}
	}
	return out
}

// percentileValue returns the value at the given percentile (0-1) of
// the sorted counts, using the nearest-rank method.
func percentileValue(counts []int64, p float64) int64 {
	sorted := make([]int64, len(counts))
	copy(sorted, counts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
