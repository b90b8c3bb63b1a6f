// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cratedig/internal/candidates"
	"github.com/tomtom215/cratedig/internal/config"
	"github.com/tomtom215/cratedig/internal/store"
)

type fakeReader struct {
	rows      []store.ConsolidatedRow
	users     []string
	err       error
	lastUser  string
	lastLimit int
}

func (f *fakeReader) ConsolidatedForUser(_ context.Context, userID string, limit int) ([]store.ConsolidatedRow, error) {
	f.lastUser = userID
	f.lastLimit = limit
	return f.rows, f.err
}

func (f *fakeReader) Users(_ context.Context) ([]string, error) {
	return f.users, f.err
}

type fakeRunner struct {
	mu    sync.Mutex
	users []string
	done  chan struct{}
	err   error
}

func (f *fakeRunner) RunUser(_ context.Context, userID string) (*candidates.RunSummary, error) {
	f.mu.Lock()
	f.users = append(f.users, userID)
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return &candidates.RunSummary{UserID: userID}, f.err
}

func newTestServer(reader Reader, runner Runner) *httptest.Server {
	cfg := config.ServerConfig{
		CORSOrigins:       []string{"*"},
		RateLimitRequests: 0,
	}
	s := NewServer(reader, runner, cfg, time.Minute)
	return httptest.NewServer(s.Router())
}

func TestRecommendations(t *testing.T) {
	reader := &fakeReader{
		rows: []store.ConsolidatedRow{
			{
				Rank: 1, TrackKey: "kashmir|led zeppelin", TrackName: "Kashmir",
				ArtistName: "Led Zeppelin", FinalScore: 1.7, RunID: "run-1",
				FromSimilarArtist: true, FromDeepCut: true,
			},
			{
				Rank: 2, TrackKey: "stargazer|rainbow", TrackName: "Stargazer",
				ArtistName: "Rainbow", FinalScore: 0.9, RunID: "run-1",
				FromSimilarTag: true,
			},
		},
	}
	srv := newTestServer(reader, &fakeRunner{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/users/alice/recommendations?limit=25")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if reader.lastUser != "alice" || reader.lastLimit != 25 {
		t.Errorf("reader called with (%q, %d), want (alice, 25)", reader.lastUser, reader.lastLimit)
	}

	var got []recommendation
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(got))
	}
	if got[0].Rank != 1 || got[0].TrackName != "Kashmir" {
		t.Errorf("unexpected first recommendation: %+v", got[0])
	}
	wantSources := []string{"similar_artist", "deep_cut"}
	if len(got[0].Sources) != 2 || got[0].Sources[0] != wantSources[0] || got[0].Sources[1] != wantSources[1] {
		t.Errorf("sources = %v, want %v", got[0].Sources, wantSources)
	}
}

func TestRecommendationsDefaultLimit(t *testing.T) {
	reader := &fakeReader{}
	srv := newTestServer(reader, &fakeRunner{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/users/alice/recommendations")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if reader.lastLimit != defaultRecommendationLimit {
		t.Errorf("limit = %d, want %d", reader.lastLimit, defaultRecommendationLimit)
	}
}

func TestRecommendationsUnknownUserIsEmptyArray(t *testing.T) {
	srv := newTestServer(&fakeReader{}, &fakeRunner{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/users/nobody/recommendations")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got []recommendation
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("want empty array, got %v", got)
	}
}

func TestRecommendationsBadLimit(t *testing.T) {
	srv := newTestServer(&fakeReader{}, &fakeRunner{})
	defer srv.Close()

	for _, raw := range []string{"zero", "0", "-5"} {
		resp, err := http.Get(srv.URL + "/api/v1/users/alice/recommendations?limit=" + raw)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("limit=%q: status = %d, want 400", raw, resp.StatusCode)
		}
	}
}

func TestRecommendationsReaderError(t *testing.T) {
	srv := newTestServer(&fakeReader{err: errors.New("db gone")}, &fakeRunner{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/users/alice/recommendations")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestTriggerRun(t *testing.T) {
	runner := &fakeRunner{done: make(chan struct{})}
	srv := newTestServer(&fakeReader{}, runner)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/users/bob/runs", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("run was never started")
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.users) != 1 || runner.users[0] != "bob" {
		t.Errorf("runner saw users %v, want [bob]", runner.users)
	}
}

func TestListUsers(t *testing.T) {
	srv := newTestServer(&fakeReader{users: []string{"alice", "bob"}}, &fakeRunner{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/users")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got []string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "alice" {
		t.Errorf("users = %v, want [alice bob]", got)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeReader{}, &fakeRunner{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&fakeReader{}, &fakeRunner{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
