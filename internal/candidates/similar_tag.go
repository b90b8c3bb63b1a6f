// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package candidates

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cratedig/internal/config"
	"github.com/tomtom215/cratedig/internal/logging"
)

// SimilarTagGenerator proposes tracks from the tags the user listens to
// most. Tag frequency is the play-count-weighted count of plays of
// artists carrying the tag; the top K tags are kept and each track
// proposed for a tag scores that tag's share of the total frequency.
// A track proposed by several tags accumulates their shares.
type SimilarTagGenerator struct {
	lookup Lookup
	cfg    config.SimilarTagConfig
	max    int
	log    zerolog.Logger
}

func NewSimilarTagGenerator(lookup Lookup, cfg config.SimilarTagConfig, maxPerSource int) *SimilarTagGenerator {
	return &SimilarTagGenerator{
		lookup: lookup,
		cfg:    cfg,
		max:    maxPerSource,
		log:    logging.With("source", string(SourceSimilarTag)),
	}
}

func (g *SimilarTagGenerator) Name() Source { return SourceSimilarTag }

func (g *SimilarTagGenerator) Generate(ctx context.Context, uc *UserContext) ([]Record, error) {
	shares := tagShares(uc, g.cfg.TopTags)
	if len(shares) == 0 {
		return nil, nil
	}
	out := newCollector(SourceSimilarTag)

	for _, ts := range shares {
		if ctx.Err() != nil {
			g.log.Warn().Str("tag", ts.tag).Msg("Run deadline reached, keeping partial results")
			break
		}

		tags := []string{ts.tag}
		if g.cfg.ExpandTags {
			similar, err := g.lookup.SimilarTags(ctx, ts.tag)
			if err != nil {
				g.log.Warn().Err(err).Str("tag", ts.tag).Msg("Similar tags lookup failed, using tag alone")
			}
			for i, st := range similar {
				if i >= 5 {
					break
				}
				if st.Name != "" {
					tags = append(tags, st.Name)
				}
			}
		}

		for _, tag := range tags {
			tracks, err := g.lookup.TagTopTracks(ctx, tag, g.cfg.TracksPerTag)
			if err != nil {
				g.log.Warn().Err(err).Str("tag", tag).Msg("Tag top tracks lookup failed, skipping tag")
				continue
			}
			for _, t := range tracks {
				if t.Listeners < g.cfg.MinListeners || t.Artist == "" {
					continue
				}
				key := uc.Norm.TrackKey(t.Name, t.Artist)
				if uc.Played(key) {
					continue
				}
				out.addAccum(key, t.Name, t.Artist, ts.share)
			}
		}
	}
	return capRecords(out.records, g.max), nil
}

type tagShare struct {
	tag   string
	share float64
}

// tagShares computes the user's top K tags and each tag's share of the
// total tag frequency, ordered by descending share then tag name.
func tagShares(uc *UserContext, topK int) []tagShare {
	freq := make(map[string]float64)
	var total float64
	for artistKey, score := range uc.ArtistScores {
		weight := float64(score.PlayCount)
		for _, tag := range uc.ArtistTags[artistKey] {
			if tag == "" {
				continue
			}
			freq[tag] += weight
			total += weight
		}
	}
	if total == 0 {
		return nil
	}

	out := make([]tagShare, 0, len(freq))
	for tag, f := range freq {
		out = append(out, tagShare{tag: tag, share: f / total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].share != out[j].share {
			return out[i].share > out[j].share
		}
		return out[i].tag < out[j].tag
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
