// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package candidates

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/cratedig/internal/identity"
	"github.com/tomtom215/cratedig/internal/recency"
	"github.com/tomtom215/cratedig/internal/store"
)

type fakeStorage struct {
	mu           sync.Mutex
	plays        []store.Play
	tags         map[string][]string
	candidates   map[string][]store.CandidateRow // by source
	consolidated []store.ConsolidatedRow
	failWrites   bool
}

func (f *fakeStorage) PlaysForUser(ctx context.Context, userID string) ([]store.Play, error) {
	return f.plays, nil
}

func (f *fakeStorage) ArtistTags(ctx context.Context, keys []string) (map[string][]string, error) {
	return f.tags, nil
}

func (f *fakeStorage) ReplaceCandidates(ctx context.Context, userID, source string, rows []store.CandidateRow) error {
	if f.failWrites {
		return errors.New("disk full")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.candidates == nil {
		f.candidates = make(map[string][]store.CandidateRow)
	}
	f.candidates[source] = rows
	return nil
}

func (f *fakeStorage) ReplaceConsolidated(ctx context.Context, userID string, rows []store.ConsolidatedRow) error {
	if f.failWrites {
		return errors.New("disk full")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consolidated = rows
	return nil
}

type stubGenerator struct {
	source  Source
	records []Record
	err     error
	started chan struct{}
	release chan struct{}
}

func (s *stubGenerator) Name() Source { return s.source }

func (s *stubGenerator) Generate(ctx context.Context, uc *UserContext) ([]Record, error) {
	if s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		<-s.release
	}
	return s.records, s.err
}

func testEngine(storage Storage, gens []Generator) *Engine {
	norm := identity.MustNormalizer(identity.DefaultPatterns())
	return NewEngineWithGenerators(storage, norm, gens, SumPolicy, recency.DefaultParams())
}

func storedPlays() []store.Play {
	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	return []store.Play{
		{UserID: "alice", TrackKey: "burn|deep purple", ArtistKey: "deep purple",
			TrackName: "Burn", ArtistName: "Deep Purple", PlayedAt: base},
		{UserID: "alice", TrackKey: "burn|deep purple", ArtistKey: "deep purple",
			TrackName: "Burn", ArtistName: "Deep Purple", PlayedAt: base.AddDate(0, 0, 10)},
	}
}

func TestRunUserPersistsRankedOutput(t *testing.T) {
	storage := &fakeStorage{plays: storedPlays()}
	gens := []Generator{
		&stubGenerator{source: SourceSimilarArtist, records: []Record{
			rec(SourceSimilarArtist, "a|x", 10),
			rec(SourceSimilarArtist, "b|y", 5),
		}},
		&stubGenerator{source: SourceDeepCut, records: []Record{
			rec(SourceDeepCut, "a|x", 3),
		}},
	}

	summary, err := testEngine(storage, gens).RunUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("RunUser() error = %v", err)
	}
	if summary.RunID == "" {
		t.Error("RunID empty")
	}
	if len(summary.Failed) != 0 {
		t.Errorf("Failed = %v, want none", summary.Failed)
	}
	if summary.PerSource[SourceSimilarArtist] != 2 || summary.PerSource[SourceDeepCut] != 1 {
		t.Errorf("PerSource = %v", summary.PerSource)
	}
	if summary.Consolidated != 2 {
		t.Errorf("Consolidated = %d, want 2 distinct keys", summary.Consolidated)
	}

	saRows := storage.candidates[string(SourceSimilarArtist)]
	if len(saRows) != 2 || saRows[0].Rank != 1 || saRows[1].Rank != 2 {
		t.Errorf("similar_artist rows = %+v", saRows)
	}
	if saRows[0].RunID != summary.RunID {
		t.Errorf("row RunID = %q, want %q", saRows[0].RunID, summary.RunID)
	}

	if len(storage.consolidated) != 2 {
		t.Fatalf("consolidated rows = %d, want 2", len(storage.consolidated))
	}
	top := storage.consolidated[0]
	if top.TrackKey != "a|x" || top.Rank != 1 {
		t.Errorf("top consolidated = %+v", top)
	}
	if !top.FromSimilarArtist || !top.FromDeepCut || top.FromOldFavorite {
		t.Errorf("source flags = %+v", top)
	}
}

func TestRunUserPartialFailure(t *testing.T) {
	storage := &fakeStorage{plays: storedPlays()}
	gens := []Generator{
		&stubGenerator{source: SourceSimilarArtist, err: errors.New("lastfm down")},
		&stubGenerator{source: SourceOldFavorite, records: []Record{
			rec(SourceOldFavorite, "c|z", 2),
		}},
	}

	summary, err := testEngine(storage, gens).RunUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("RunUser() error = %v, want partial success", err)
	}
	if len(summary.Failed) != 1 || summary.Failed[0] != SourceSimilarArtist {
		t.Errorf("Failed = %v, want [similar_artist]", summary.Failed)
	}
	if summary.Consolidated != 1 {
		t.Errorf("Consolidated = %d, want 1", summary.Consolidated)
	}
	if _, ok := storage.candidates[string(SourceSimilarArtist)]; ok {
		t.Error("failed source wrote candidates")
	}
}

func TestRunUserBarrierWaitsForAllGenerators(t *testing.T) {
	slowStarted := make(chan struct{})
	slowRelease := make(chan struct{})
	storage := &fakeStorage{plays: storedPlays()}
	gens := []Generator{
		&stubGenerator{source: SourceSimilarArtist, records: []Record{rec(SourceSimilarArtist, "a|x", 1)}},
		&stubGenerator{source: SourceDeepCut, started: slowStarted, release: slowRelease,
			records: []Record{rec(SourceDeepCut, "b|y", 1)}},
	}

	done := make(chan *RunSummary, 1)
	go func() {
		summary, err := testEngine(storage, gens).RunUser(context.Background(), "alice")
		if err != nil {
			t.Errorf("RunUser() error = %v", err)
		}
		done <- summary
	}()

	<-slowStarted
	select {
	case <-done:
		t.Fatal("run finished before the slow generator returned")
	case <-time.After(50 * time.Millisecond):
	}
	close(slowRelease)

	summary := <-done
	if summary == nil {
		t.Fatal("no summary")
	}
	if summary.Consolidated != 2 {
		t.Errorf("Consolidated = %d, want 2 (both generators contributed)", summary.Consolidated)
	}
}

func TestRunUserEmptyHistory(t *testing.T) {
	storage := &fakeStorage{}
	gens := []Generator{
		&stubGenerator{source: SourceOldFavorite},
	}

	summary, err := testEngine(storage, gens).RunUser(context.Background(), "newuser")
	if err != nil {
		t.Fatalf("RunUser() error = %v, want empty success", err)
	}
	if summary.Consolidated != 0 {
		t.Errorf("Consolidated = %d, want 0", summary.Consolidated)
	}
	if summary.HalfLifeDays != 30.0 {
		t.Errorf("HalfLifeDays = %v, want floor 30", summary.HalfLifeDays)
	}
}

// ctxCheckStorage rejects writes arriving on an expired context, the
// way a real database driver would.
type ctxCheckStorage struct {
	fakeStorage
}

func (f *ctxCheckStorage) ReplaceCandidates(ctx context.Context, userID, source string, rows []store.CandidateRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.fakeStorage.ReplaceCandidates(ctx, userID, source, rows)
}

func (f *ctxCheckStorage) ReplaceConsolidated(ctx context.Context, userID string, rows []store.ConsolidatedRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.fakeStorage.ReplaceConsolidated(ctx, userID, rows)
}

func TestRunUserExpiredDeadlineStillPersists(t *testing.T) {
	storage := &ctxCheckStorage{fakeStorage: fakeStorage{plays: storedPlays()}}
	gens := []Generator{
		&stubGenerator{source: SourceSimilarArtist, records: []Record{
			rec(SourceSimilarArtist, "a|x", 10),
		}},
	}

	// The run context expires while generators hold partial results.
	// Persistence must still land instead of turning the run into a
	// zero-output failure.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := testEngine(storage, gens).RunUser(ctx, "alice")
	if err != nil {
		t.Fatalf("RunUser() error = %v, want partial results persisted", err)
	}
	if summary.Consolidated != 1 {
		t.Errorf("Consolidated = %d, want 1", summary.Consolidated)
	}
	if len(storage.consolidated) != 1 {
		t.Errorf("consolidated rows = %d, want 1", len(storage.consolidated))
	}
	if rows := storage.candidates[string(SourceSimilarArtist)]; len(rows) != 1 {
		t.Errorf("candidate rows = %d, want 1", len(rows))
	}
}

func TestRunUserStorageFailure(t *testing.T) {
	storage := &fakeStorage{plays: storedPlays(), failWrites: true}
	gens := []Generator{
		&stubGenerator{source: SourceOldFavorite, records: []Record{rec(SourceOldFavorite, "a|x", 1)}},
	}

	if _, err := testEngine(storage, gens).RunUser(context.Background(), "alice"); err == nil {
		t.Fatal("RunUser() error = nil, want persistence error")
	}
}

func TestRunUserDeterministicOutput(t *testing.T) {
	records := []Record{
		rec(SourceSimilarArtist, "c|x", 5),
		rec(SourceSimilarArtist, "a|x", 5),
		rec(SourceSimilarArtist, "b|x", 9),
	}
	run := func() []store.ConsolidatedRow {
		storage := &fakeStorage{plays: storedPlays()}
		gens := []Generator{&stubGenerator{source: SourceSimilarArtist, records: append([]Record{}, records...)}}
		if _, err := testEngine(storage, gens).RunUser(context.Background(), "alice"); err != nil {
			t.Fatalf("RunUser() error = %v", err)
		}
		return storage.consolidated
	}

	first, second := run(), run()
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("lens = %d, %d; want 3", len(first), len(second))
	}
	for i := range first {
		if first[i].TrackKey != second[i].TrackKey || first[i].Rank != second[i].Rank {
			t.Errorf("run output differs at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
	if first[0].TrackKey != "b|x" || first[1].TrackKey != "a|x" || first[2].TrackKey != "c|x" {
		t.Errorf("order = [%s %s %s], want score desc then key asc",
			first[0].TrackKey, first[1].TrackKey, first[2].TrackKey)
	}
}
