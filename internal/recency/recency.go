// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

// Package recency implements the per-user exponential decay model.
//
// Each user gets a half-life derived from their listening span, so a
// ten-year listener's taste decays gently while a new user's recent
// plays dominate. Per-entity scores are normalized by play count: a
// track played 100 times scores the same as a track played once at the
// same moments, which keeps heavy rotation from drowning out the rest
// of the library.
package recency

import (
	"math"
	"time"
)

const hoursPerDay = 24.0

// Params controls half-life derivation.
type Params struct {
	// SpanDivisor divides the listening span to produce the half-life.
	SpanDivisor float64

	// MinHalfLifeDays floors the half-life for short histories.
	MinHalfLifeDays float64
}

// DefaultParams returns the standard decay parameters: half-life is a
// tenth of the listening span, never below 30 days.
func DefaultParams() Params {
	return Params{SpanDivisor: 10.0, MinHalfLifeDays: 30.0}
}

// Profile is a user's decay model, derived fresh from the full play
// history on every recomputation, never patched incrementally.
type Profile struct {
	UserID            string    `json:"user_id"`
	HalfLifeDays      float64   `json:"half_life_days"`
	ListeningSpanDays float64   `json:"listening_span_days"`
	ComputedAt        time.Time `json:"computed_at"`
}

// Play is one play event as the decay model sees it.
type Play struct {
	TrackKey  string
	ArtistKey string
	PlayedAt  time.Time
}

// Score is the aggregated decay score for one track or artist.
type Score struct {
	// PlayCount is the number of plays of the entity.
	PlayCount int

	// Recency is the normalized recency score in (0, 1]: the mean decay
	// contribution across the entity's plays.
	Recency float64
}

// ComputeProfile derives a user's decay profile from their play
// history. An empty history gets the floor half-life and a zero span.
func ComputeProfile(userID string, plays []Play, asOf time.Time, p Params) Profile {
	prof := Profile{
		UserID:       userID,
		HalfLifeDays: p.MinHalfLifeDays,
		ComputedAt:   asOf,
	}
	if len(plays) == 0 {
		return prof
	}

	first, last := plays[0].PlayedAt, plays[0].PlayedAt
	for _, pl := range plays[1:] {
		if pl.PlayedAt.Before(first) {
			first = pl.PlayedAt
		}
		if pl.PlayedAt.After(last) {
			last = pl.PlayedAt
		}
	}
	prof.ListeningSpanDays = last.Sub(first).Hours() / hoursPerDay
	prof.HalfLifeDays = math.Max(prof.ListeningSpanDays/p.SpanDivisor, p.MinHalfLifeDays)
	return prof
}

// TrackScores aggregates normalized recency per track key. Every play
// in the slice uses the same as-of instant from the profile, so a run's
// scores are reproducible. Plays timestamped after the as-of instant
// contribute as if played at it.
func TrackScores(plays []Play, prof Profile) map[string]Score {
	return aggregate(plays, prof, func(p Play) string { return p.TrackKey })
}

// ArtistScores aggregates normalized recency per artist key.
func ArtistScores(plays []Play, prof Profile) map[string]Score {
	return aggregate(plays, prof, func(p Play) string { return p.ArtistKey })
}

func aggregate(plays []Play, prof Profile, keyOf func(Play) string) map[string]Score {
	type acc struct {
		count int
		sum   float64
	}
	accs := make(map[string]*acc)
	for _, p := range plays {
		key := keyOf(p)
		if key == "" {
			continue
		}
		a := accs[key]
		if a == nil {
			a = &acc{}
			accs[key] = a
		}
		a.count++
		a.sum += contribution(p.PlayedAt, prof)
	}

	out := make(map[string]Score, len(accs))
	for key, a := range accs {
		out[key] = Score{
			PlayCount: a.count,
			Recency:   a.sum / float64(a.count),
		}
	}
	return out
}

// contribution is exp(-days_since / half_life) for a single play,
// clamped so future-dated plays contribute exactly 1.
func contribution(playedAt time.Time, prof Profile) float64 {
	days := prof.ComputedAt.Sub(playedAt).Hours() / hoursPerDay
	if days < 0 {
		days = 0
	}
	return math.Exp(-days / prof.HalfLifeDays)
}
