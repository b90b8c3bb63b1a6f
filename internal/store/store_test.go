// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package store

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/cratedig/internal/config"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ts(day int) time.Time {
	return time.Date(2026, time.January, 1+day, 12, 0, 0, 0, time.UTC)
}

func TestAppendAndReadPlays(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	plays := []Play{
		{UserID: "alice", TrackKey: "burn|deep purple", ArtistKey: "deep purple",
			TrackName: "Burn", ArtistName: "Deep Purple", Album: "Burn", PlayedAt: ts(1)},
		{UserID: "alice", TrackKey: "burn|deep purple", ArtistKey: "deep purple",
			TrackName: "Burn", ArtistName: "Deep Purple", Album: "Burn", PlayedAt: ts(2)},
		{UserID: "bob", TrackKey: "stargazer|rainbow", ArtistKey: "rainbow",
			TrackName: "Stargazer", ArtistName: "Rainbow", PlayedAt: ts(1)},
	}
	n, err := s.AppendPlays(ctx, plays)
	if err != nil {
		t.Fatalf("AppendPlays() error = %v", err)
	}
	if n != 3 {
		t.Errorf("written = %d, want 3", n)
	}

	// Re-appending the same rows is a no-op.
	n, err = s.AppendPlays(ctx, plays)
	if err != nil {
		t.Fatalf("AppendPlays() repeat error = %v", err)
	}
	if n != 0 {
		t.Errorf("repeat written = %d, want 0", n)
	}

	got, err := s.PlaysForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("PlaysForUser() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !got[0].PlayedAt.Before(got[1].PlayedAt) {
		t.Error("plays not ordered oldest first")
	}

	users, err := s.Users(ctx)
	if err != nil {
		t.Fatalf("Users() error = %v", err)
	}
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Errorf("Users() = %v, want [alice bob]", users)
	}
}

func TestLatestPlayAt(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	got, err := s.LatestPlayAt(ctx, "nobody")
	if err != nil {
		t.Fatalf("LatestPlayAt() error = %v", err)
	}
	if !got.IsZero() {
		t.Errorf("LatestPlayAt for unknown user = %v, want zero", got)
	}

	_, err = s.AppendPlays(ctx, []Play{
		{UserID: "alice", TrackKey: "a|x", ArtistKey: "x", TrackName: "A", ArtistName: "X", PlayedAt: ts(1)},
		{UserID: "alice", TrackKey: "b|x", ArtistKey: "x", TrackName: "B", ArtistName: "X", PlayedAt: ts(5)},
	})
	if err != nil {
		t.Fatalf("AppendPlays() error = %v", err)
	}

	got, err = s.LatestPlayAt(ctx, "alice")
	if err != nil {
		t.Fatalf("LatestPlayAt() error = %v", err)
	}
	if !got.Equal(ts(5)) {
		t.Errorf("LatestPlayAt = %v, want %v", got, ts(5))
	}
}

func TestUpsertDimensions(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	err := s.UpsertArtists(ctx, []ArtistDim{
		{ArtistKey: "deep purple", Name: "Deep Purple", Listeners: 100, Playcount: 1000,
			Tags: []string{"hard rock", "classic rock"}},
	})
	if err != nil {
		t.Fatalf("UpsertArtists() error = %v", err)
	}

	// Upsert with a lower playcount keeps the max.
	err = s.UpsertArtists(ctx, []ArtistDim{
		{ArtistKey: "deep purple", Name: "Deep Purple", Listeners: 50, Playcount: 500,
			Tags: []string{"hard rock"}},
	})
	if err != nil {
		t.Fatalf("UpsertArtists() update error = %v", err)
	}

	tags, err := s.ArtistTags(ctx, []string{"deep purple", "missing"})
	if err != nil {
		t.Fatalf("ArtistTags() error = %v", err)
	}
	if len(tags) != 1 {
		t.Fatalf("ArtistTags() len = %d, want 1", len(tags))
	}
	if got := tags["deep purple"]; len(got) != 1 || got[0] != "hard rock" {
		t.Errorf("tags = %v, want [hard rock]", got)
	}

	err = s.UpsertTracks(ctx, []TrackDim{
		{TrackKey: "burn|deep purple", Name: "Burn", ArtistKey: "deep purple",
			ArtistName: "Deep Purple", Playcount: 900},
		{TrackKey: "burn|deep purple", Name: "Burn", ArtistKey: "deep purple",
			ArtistName: "Deep Purple", Playcount: 400},
	})
	if err != nil {
		t.Fatalf("UpsertTracks() error = %v", err)
	}
}

func TestReplaceCandidatesIsFullRefresh(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := []CandidateRow{
		{UserID: "alice", Source: "similar_artist", RunID: "run-1",
			TrackKey: "old|one", TrackName: "Old", ArtistName: "One",
			RawScore: 1, Rank: 1, CreatedAt: ts(1)},
		{UserID: "alice", Source: "similar_artist", RunID: "run-1",
			TrackKey: "older|two", TrackName: "Older", ArtistName: "Two",
			RawScore: 0.5, Rank: 2, CreatedAt: ts(1)},
	}
	if err := s.ReplaceCandidates(ctx, "alice", "similar_artist", first); err != nil {
		t.Fatalf("ReplaceCandidates() error = %v", err)
	}

	second := []CandidateRow{
		{UserID: "alice", Source: "similar_artist", RunID: "run-2",
			TrackKey: "new|three", TrackName: "New", ArtistName: "Three",
			RawScore: 2, Rank: 1, CreatedAt: ts(2)},
	}
	if err := s.ReplaceCandidates(ctx, "alice", "similar_artist", second); err != nil {
		t.Fatalf("ReplaceCandidates() refresh error = %v", err)
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM candidates WHERE user_id = 'alice' AND source = 'similar_artist'`).
		Scan(&count)
	if err != nil {
		t.Fatalf("counting candidates: %v", err)
	}
	if count != 1 {
		t.Errorf("candidate count after refresh = %d, want 1 (replace, not merge)", count)
	}
}

func TestConsolidatedRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rows := []ConsolidatedRow{
		{UserID: "alice", RunID: "run-1", TrackKey: "a|x", TrackName: "A", ArtistName: "X",
			FinalScore: 1.7, Rank: 1, FromSimilarArtist: true, FromSimilarTag: true, CreatedAt: ts(1)},
		{UserID: "alice", RunID: "run-1", TrackKey: "b|y", TrackName: "B", ArtistName: "Y",
			FinalScore: 0.9, Rank: 2, FromDeepCut: true, CreatedAt: ts(1)},
		{UserID: "alice", RunID: "run-1", TrackKey: "c|z", TrackName: "C", ArtistName: "Z",
			FinalScore: 0.4, Rank: 3, FromOldFavorite: true, CreatedAt: ts(1)},
	}
	if err := s.ReplaceConsolidated(ctx, "alice", rows); err != nil {
		t.Fatalf("ReplaceConsolidated() error = %v", err)
	}

	got, err := s.ConsolidatedForUser(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("ConsolidatedForUser() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (limit)", len(got))
	}
	if got[0].TrackKey != "a|x" || got[1].TrackKey != "b|y" {
		t.Errorf("order = [%s %s], want rank order", got[0].TrackKey, got[1].TrackKey)
	}
	if !got[0].FromSimilarArtist || !got[0].FromSimilarTag || got[0].FromDeepCut {
		t.Errorf("source flags = %+v", got[0])
	}

	// Unknown user yields an empty, non-error result.
	empty, err := s.ConsolidatedForUser(ctx, "nobody", 0)
	if err != nil {
		t.Fatalf("ConsolidatedForUser(nobody) error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("len = %d, want 0", len(empty))
	}
}
