// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

// Package candidates implements the four candidate generators and the
// consolidator that merges their output into one ranked list per user.
package candidates

import (
	"context"
	"sort"

	"github.com/tomtom215/cratedig/internal/identity"
	"github.com/tomtom215/cratedig/internal/lastfm"
	"github.com/tomtom215/cratedig/internal/recency"
)

// Source identifies a candidate generator.
type Source string

const (
	SourceSimilarArtist Source = "similar_artist"
	SourceSimilarTag    Source = "similar_tag"
	SourceDeepCut       Source = "deep_cut"
	SourceOldFavorite   Source = "old_favorite"
)

// Sources lists all generators in their fixed presentation order.
var Sources = []Source{SourceSimilarArtist, SourceSimilarTag, SourceDeepCut, SourceOldFavorite}

// Record is one scored candidate from a single generator. RawScore is
// only comparable within the same source; the consolidator converts it
// to a percentile before mixing sources.
type Record struct {
	TrackKey   string
	TrackName  string
	ArtistName string
	Source     Source
	RawScore   float64
}

// Consolidated is one entry of the final cross-source ranking.
type Consolidated struct {
	TrackKey   string
	TrackName  string
	ArtistName string

	// FinalScore aggregates the per-source percentile ranks.
	FinalScore float64

	// Rank is 1-based, best first.
	Rank int

	// Percentiles holds the per-source percentile rank for every source
	// that proposed the track.
	Percentiles map[Source]float64
}

// TrackRef is a track's display names, keyed by canonical key in
// UserContext.Tracks.
type TrackRef struct {
	Name   string
	Artist string
}

// UserContext is the read-only snapshot a generation run works from.
// All generators share one instance; none may mutate it.
type UserContext struct {
	UserID  string
	Profile recency.Profile

	// Plays is the full history, oldest first.
	Plays []recency.Play

	// TrackScores and ArtistScores are normalized recency aggregates
	// keyed by canonical track and artist key.
	TrackScores  map[string]recency.Score
	ArtistScores map[string]recency.Score

	// Tracks maps canonical track keys to display names.
	Tracks map[string]TrackRef

	// ArtistNames maps canonical artist keys to display names.
	ArtistNames map[string]string

	// ArtistTags maps canonical artist keys to their Last.fm tags.
	ArtistTags map[string][]string

	Norm *identity.Normalizer
}

// Played reports whether the user has already played the canonical key.
func (uc *UserContext) Played(trackKey string) bool {
	_, ok := uc.TrackScores[trackKey]
	return ok
}

// Lookup is the slice of the Last.fm client the generators consume.
type Lookup interface {
	SimilarArtists(ctx context.Context, artist string, limit int) ([]lastfm.SimilarArtist, error)
	ArtistTopTracks(ctx context.Context, artist string, limit int) ([]lastfm.TopTrack, error)
	ArtistTopAlbums(ctx context.Context, artist string, limit int) ([]lastfm.TopAlbum, error)
	AlbumTracks(ctx context.Context, artist, album string) ([]lastfm.AlbumTrack, error)
	TagTopTracks(ctx context.Context, tag string, limit int) ([]lastfm.TopTrack, error)
	SimilarTags(ctx context.Context, tag string) ([]lastfm.Tag, error)
}

// Generator produces scored candidates for one user from one strategy.
type Generator interface {
	Name() Source
	Generate(ctx context.Context, uc *UserContext) ([]Record, error)
}

// capRecords sorts records best first (ties broken by ascending track
// key for determinism) and truncates to max.
func capRecords(records []Record, max int) []Record {
	sort.Slice(records, func(i, j int) bool {
		if records[i].RawScore != records[j].RawScore {
			return records[i].RawScore > records[j].RawScore
		}
		return records[i].TrackKey < records[j].TrackKey
	})
	if max > 0 && len(records) > max {
		records = records[:max]
	}
	return records
}

// collector accumulates candidates, deduplicating by canonical key and
// keeping the highest raw score per key.
type collector struct {
	source  Source
	byKey   map[string]int
	records []Record
}

func newCollector(source Source) *collector {
	return &collector{source: source, byKey: make(map[string]int)}
}

func (c *collector) add(trackKey, trackName, artistName string, score float64) {
	if i, ok := c.byKey[trackKey]; ok {
		if score > c.records[i].RawScore {
			c.records[i].RawScore = score
		}
		return
	}
	c.byKey[trackKey] = len(c.records)
	c.records = append(c.records, Record{
		TrackKey:   trackKey,
		TrackName:  trackName,
		ArtistName: artistName,
		Source:     c.source,
		RawScore:   score,
	})
}

// addAccum is add but summing scores for repeated keys instead of
// keeping the max. Used where repeated proposals are extra evidence.
func (c *collector) addAccum(trackKey, trackName, artistName string, score float64) {
	if i, ok := c.byKey[trackKey]; ok {
		c.records[i].RawScore += score
		return
	}
	c.byKey[trackKey] = len(c.records)
	c.records = append(c.records, Record{
		TrackKey:   trackKey,
		TrackName:  trackName,
		ArtistName: artistName,
		Source:     c.source,
		RawScore:   score,
	})
}
