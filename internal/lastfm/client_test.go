// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package lastfm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/cratedig/internal/config"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.LastFMConfig{
		APIKey:            "test-key",
		BaseURL:           srv.URL,
		RequestsPerSecond: 1000,
		RetryAttempts:     3,
		RetryBaseDelay:    time.Millisecond,
		Timeout:           5 * time.Second,
	})
}

func TestSimilarArtists(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("method"); got != "artist.getSimilar" {
			t.Errorf("method = %q, want artist.getSimilar", got)
		}
		if got := r.URL.Query().Get("api_key"); got != "test-key" {
			t.Errorf("api_key = %q", got)
		}
		w.Write([]byte(`{"similarartists":{"artist":[
			{"name":"Rainbow","mbid":"mb-1","match":"0.95"},
			{"name":"Whitesnake","mbid":"","match":"0.72"}
		]}}`))
	}))

	got, err := c.SimilarArtists(context.Background(), "Deep Purple", 100)
	if err != nil {
		t.Fatalf("SimilarArtists() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "Rainbow" || got[0].Match != 0.95 {
		t.Errorf("got[0] = %+v", got[0])
	}
}

func TestSingleObjectToleratedAsList(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Last.fm collapses single-element lists into bare objects.
		w.Write([]byte(`{"toptracks":{"track":{"name":"Only Song","playcount":"123","listeners":"45","artist":{"name":"Solo Act"}}}}`))
	}))

	got, err := c.ArtistTopTracks(context.Background(), "Solo Act", 50)
	if err != nil {
		t.Fatalf("ArtistTopTracks() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Name != "Only Song" || got[0].Playcount != 123 || got[0].Listeners != 45 {
		t.Errorf("got[0] = %+v", got[0])
	}
}

func TestNotFoundIsEmptyResult(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":6,"message":"The artist you supplied could not be found"}`))
	}))

	got, err := c.SimilarArtists(context.Background(), "No Such Band", 100)
	if err != nil {
		t.Fatalf("SimilarArtists() error = %v, want nil for not-found", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestNotFoundSurfacesOnInfoLookups(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":6,"message":"not found"}`))
	}))

	_, err := c.ArtistInfo(context.Background(), "No Such Band")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ArtistInfo() error = %v, want ErrNotFound", err)
	}
}

func TestTransientRetriedThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"toptracks":{"track":[]}}`))
	}))

	_, err := c.ArtistTopTracks(context.Background(), "Flaky", 10)
	if err != nil {
		t.Fatalf("ArtistTopTracks() error = %v, want success after retries", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := c.ArtistTopTracks(context.Background(), "Down", 10)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("error = %v, want ErrTransient", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3 (retry budget)", got)
	}
}

func TestPermanentAPIErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"error":10,"message":"Invalid API key"}`))
	}))

	_, err := c.ArtistTopTracks(context.Background(), "Any", 10)
	if err == nil {
		t.Fatal("error = nil, want invalid-key error")
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want a permanent error", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1 (no retry)", got)
	}
}

func TestMalformedResponse(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))

	_, err := c.ArtistTopTracks(context.Background(), "Any", 10)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
}

func TestArtistInfoTags(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"artist":{"name":"Deep Purple","mbid":"mb-dp",
			"stats":{"listeners":"2000000","playcount":"90000000"},
			"tags":{"tag":[{"name":"hard rock","count":100},{"name":"classic rock","count":80}]}}}`))
	}))

	info, err := c.ArtistInfo(context.Background(), "Deep Purple")
	if err != nil {
		t.Fatalf("ArtistInfo() error = %v", err)
	}
	if info.Listeners != 2000000 {
		t.Errorf("Listeners = %d, want 2000000", info.Listeners)
	}
	if len(info.Tags) != 2 || info.Tags[0].Name != "hard rock" {
		t.Errorf("Tags = %+v", info.Tags)
	}
}

func TestRecentTracks(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("from"); got != "1700000000" {
			t.Errorf("from = %q, want 1700000000", got)
		}
		w.Write([]byte(`{"recenttracks":{
			"track":[
				{"name":"Now Spinning","artist":{"#text":"Live Artist"},"album":{"#text":""},"@attr":{"nowplaying":"true"}},
				{"name":"Burn","mbid":"mb-t","artist":{"#text":"Deep Purple","mbid":"mb-a"},"album":{"#text":"Burn"},"date":{"uts":"1700001234"}}
			],
			"@attr":{"page":"1","totalPages":"4"}}}`))
	}))

	page, err := c.RecentTracks(context.Background(), "someuser", time.Unix(1700000000, 0), 1, 200)
	if err != nil {
		t.Fatalf("RecentTracks() error = %v", err)
	}
	if page.TotalPages != 4 || page.Page != 1 {
		t.Errorf("pagination = %+v", page)
	}
	if len(page.Tracks) != 2 {
		t.Fatalf("len = %d, want 2", len(page.Tracks))
	}
	if !page.Tracks[0].NowPlaying {
		t.Error("first track should be now-playing")
	}
	if page.Tracks[1].PlayedAt.Unix() != 1700001234 {
		t.Errorf("PlayedAt = %v", page.Tracks[1].PlayedAt)
	}
	if page.Tracks[1].Artist != "Deep Purple" {
		t.Errorf("Artist = %q", page.Tracks[1].Artist)
	}
}
