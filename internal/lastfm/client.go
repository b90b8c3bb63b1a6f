// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

// Package lastfm is a client for the Last.fm web service.
//
// All requests pass through a shared rate limiter (Last.fm asks for at
// most 5 req/s), a circuit breaker, and bounded retry with exponential
// backoff for transient failures. "Not found" responses (API error 6)
// surface as ErrNotFound so callers can treat them as empty results.
package lastfm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/cratedig/internal/config"
	"github.com/tomtom215/cratedig/internal/logging"
	"github.com/tomtom215/cratedig/internal/metrics"
)

const maxResponseBytes = 8 << 20

// Client talks to the Last.fm API. Safe for concurrent use; the rate
// limiter and circuit breaker are shared across all goroutines.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]

	retryAttempts  int
	retryBaseDelay time.Duration

	log zerolog.Logger
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.LastFMConfig) *Client {
	c := &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		retryAttempts:  cfg.RetryAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		log:            logging.With("component", "lastfm"),
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "lastfm",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			switch to {
			case gobreaker.StateClosed:
				metrics.CircuitBreakerState.Set(0)
			case gobreaker.StateHalfOpen:
				metrics.CircuitBreakerState.Set(1)
			case gobreaker.StateOpen:
				metrics.CircuitBreakerState.Set(2)
			}
		},
		IsSuccessful: func(err error) bool {
			// Not-found is a well-formed answer, not a service failure.
			return err == nil || errors.Is(err, ErrNotFound)
		},
	})
	return c
}

// request performs one API call with rate limiting, circuit breaking
// and retry, then decodes the body into out.
func (c *Client) request(ctx context.Context, method string, params url.Values, out any) error {
	start := time.Now()
	body, err := c.requestRaw(ctx, method, params)
	metrics.LastFMRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	metrics.LastFMRequestsTotal.WithLabelValues(method, outcome(err)).Inc()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", ErrMalformed, method, err)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "rejected"
	}
}

func (c *Client) requestRaw(ctx context.Context, method string, params url.Values) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			metrics.LastFMRetriesTotal.Inc()
			delay := c.retryBaseDelay << (attempt - 1)
			c.log.Debug().
				Str("method", method).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying request")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.breaker.Execute(func() ([]byte, error) {
			return c.doOnce(ctx, method, params)
		})
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !errors.Is(err, ErrTransient) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s after %d attempts: %w", method, c.retryAttempts, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method string, params url.Values) ([]byte, error) {
	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("method", method)
	q.Set("api_key", c.apiKey)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "cratedig/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrTransient, err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: http %d", ErrTransient, resp.StatusCode)
	}

	// Last.fm reports API errors in the body, usually with HTTP 200.
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if envelope.Error != 0 {
		apiErr := &apiError{Code: envelope.Error, Message: envelope.Message}
		if wrapped := apiErr.Unwrap(); wrapped != nil {
			return nil, fmt.Errorf("%w: %s", wrapped, apiErr.Error())
		}
		return nil, apiErr
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lastfm: unexpected http %d", resp.StatusCode)
	}
	return body, nil
}

// SimilarArtists returns artists similar to the given one, with match
// scores in [0, 1]. A missing artist returns an empty slice.
func (c *Client) SimilarArtists(ctx context.Context, artist string, limit int) ([]SimilarArtist, error) {
	params := url.Values{
		"artist":      {artist},
		"limit":       {strconv.Itoa(limit)},
		"autocorrect": {"1"},
	}
	var resp similarArtistsResponse
	if err := c.request(ctx, "artist.getSimilar", params, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]SimilarArtist, 0, len(resp.SimilarArtists.Artist))
	for _, a := range resp.SimilarArtists.Artist {
		out = append(out, SimilarArtist{Name: a.Name, MBID: a.MBID, Match: float64(a.Match)})
	}
	return out, nil
}

// ArtistTopTracks returns an artist's globally most played tracks.
// A missing artist returns an empty slice.
func (c *Client) ArtistTopTracks(ctx context.Context, artist string, limit int) ([]TopTrack, error) {
	params := url.Values{
		"artist":      {artist},
		"limit":       {strconv.Itoa(limit)},
		"autocorrect": {"1"},
	}
	var resp topTracksResponse
	if err := c.request(ctx, "artist.getTopTracks", params, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return convertTracks(resp.TopTracks.Track), nil
}

// ArtistTopAlbums returns an artist's globally most played albums.
// A missing artist returns an empty slice.
func (c *Client) ArtistTopAlbums(ctx context.Context, artist string, limit int) ([]TopAlbum, error) {
	params := url.Values{
		"artist":      {artist},
		"limit":       {strconv.Itoa(limit)},
		"autocorrect": {"1"},
	}
	var resp topAlbumsResponse
	if err := c.request(ctx, "artist.getTopAlbums", params, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]TopAlbum, 0, len(resp.TopAlbums.Album))
	for _, a := range resp.TopAlbums.Album {
		out = append(out, TopAlbum{
			Name:      a.Name,
			MBID:      a.MBID,
			Artist:    a.Artist.name(),
			Playcount: int64(a.Playcount),
		})
	}
	return out, nil
}

// AlbumTracks returns an album's track listing in rank order.
func (c *Client) AlbumTracks(ctx context.Context, artist, album string) ([]AlbumTrack, error) {
	params := url.Values{
		"artist":      {artist},
		"album":       {album},
		"autocorrect": {"1"},
	}
	var resp albumInfoResponse
	if err := c.request(ctx, "album.getInfo", params, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]AlbumTrack, 0, len(resp.Album.Tracks.Track))
	for _, t := range resp.Album.Tracks.Track {
		name := t.Artist.name()
		if name == "" {
			name = resp.Album.Artist
		}
		out = append(out, AlbumTrack{Name: t.Name, Artist: name, Rank: int(t.Attr.Rank)})
	}
	return out, nil
}

// ArtistInfo returns an artist's global stats and top tags.
func (c *Client) ArtistInfo(ctx context.Context, artist string) (*ArtistInfo, error) {
	params := url.Values{
		"artist":      {artist},
		"autocorrect": {"1"},
	}
	var resp artistInfoResponse
	if err := c.request(ctx, "artist.getInfo", params, &resp); err != nil {
		return nil, err
	}
	info := &ArtistInfo{
		Name:      resp.Artist.Name,
		MBID:      resp.Artist.MBID,
		Listeners: int64(resp.Artist.Stats.Listeners),
		Playcount: int64(resp.Artist.Stats.Playcount),
	}
	for _, t := range resp.Artist.Tags.Tag {
		info.Tags = append(info.Tags, Tag{Name: t.Name, Count: int64(t.Count)})
	}
	return info, nil
}

// TagTopTracks returns the globally most played tracks for a tag.
// An unknown tag returns an empty slice.
func (c *Client) TagTopTracks(ctx context.Context, tag string, limit int) ([]TopTrack, error) {
	params := url.Values{
		"tag":   {tag},
		"limit": {strconv.Itoa(limit)},
	}
	var resp tagTopTracksResponse
	if err := c.request(ctx, "tag.getTopTracks", params, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return convertTracks(resp.Tracks.Track), nil
}

// SimilarTags returns tags related to the given one. An unknown tag
// returns an empty slice.
func (c *Client) SimilarTags(ctx context.Context, tag string) ([]Tag, error) {
	params := url.Values{"tag": {tag}}
	var resp similarTagsResponse
	if err := c.request(ctx, "tag.getSimilar", params, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Tag, 0, len(resp.SimilarTags.Tag))
	for _, t := range resp.SimilarTags.Tag {
		out = append(out, Tag{Name: t.Name, Count: int64(t.Count)})
	}
	return out, nil
}

// RecentTracks returns one page of a user's scrobble history, newest
// first. since is a lower bound on the scrobble time; pass the zero
// time for the full history.
func (c *Client) RecentTracks(ctx context.Context, user string, since time.Time, page, limit int) (*RecentTracksPage, error) {
	params := url.Values{
		"user":  {user},
		"page":  {strconv.Itoa(page)},
		"limit": {strconv.Itoa(limit)},
	}
	if !since.IsZero() {
		params.Set("from", strconv.FormatInt(since.Unix(), 10))
	}
	var resp recentTracksResponse
	if err := c.request(ctx, "user.getRecentTracks", params, &resp); err != nil {
		return nil, err
	}

	out := &RecentTracksPage{
		Page:       int(resp.RecentTracks.Attr.Page),
		TotalPages: int(resp.RecentTracks.Attr.TotalPages),
	}
	for _, t := range resp.RecentTracks.Track {
		rt := RecentTrack{
			Name:       t.Name,
			MBID:       t.MBID,
			Artist:     t.Artist.name(),
			ArtistMBID: t.Artist.MBID,
			Album:      t.Album.Text,
			NowPlaying: t.Attr.NowPlaying == "true",
		}
		if uts := int64(t.Date.UTS); uts > 0 {
			rt.PlayedAt = time.Unix(uts, 0).UTC()
		}
		out.Tracks = append(out.Tracks, rt)
	}
	return out, nil
}

// Ping verifies the API is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	params := url.Values{"limit": {"1"}}
	var resp struct{}
	return c.request(ctx, "chart.getTopArtists", params, &resp)
}

func convertTracks(payloads []topTrackPayload) []TopTrack {
	out := make([]TopTrack, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, p.toTopTrack())
	}
	return out
}
