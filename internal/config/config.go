// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

// Package config provides layered configuration for Cratedig using Koanf v2.
//
// Configuration is loaded with clear precedence (highest wins):
//  1. Built-in defaults
//  2. YAML config file (config.yaml, or CONFIG_PATH)
//  3. Environment variables (LASTFM_API_KEY, HTTP_PORT, ...)
package config

import (
	"time"
)

// Config is the root configuration for the Cratedig server.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Database   DatabaseConfig   `koanf:"database"`
	LastFM     LastFMConfig     `koanf:"lastfm"`
	Recency    RecencyConfig    `koanf:"recency"`
	Candidates CandidatesConfig `koanf:"candidates"`
	Scheduler  SchedulerConfig  `koanf:"scheduler"`
	Ingest     IngestConfig     `koanf:"ingest"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Host is the bind address. Default: 0.0.0.0.
	Host string `koanf:"host"`

	// Port is the HTTP listen port. Default: 3846.
	Port int `koanf:"port" validate:"gte=1,lte=65535"`

	// ShutdownTimeout is the graceful shutdown window.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins lists allowed CORS origins. Default: ["*"].
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitRequests is the per-IP request budget per RateLimitWindow.
	// Zero disables API rate limiting.
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level. Default: info.
	Level string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal disabled"`

	// Format is json or console. Default: json.
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller includes file:line in log output.
	Caller bool `koanf:"caller"`
}

// DatabaseConfig contains DuckDB settings.
type DatabaseConfig struct {
	// Path is the DuckDB database file. ":memory:" for ephemeral use.
	Path string `koanf:"path" validate:"required"`

	// MaxMemory is the DuckDB memory limit (e.g. "1GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 = DuckDB default.
	Threads int `koanf:"threads" validate:"gte=0"`
}

// LastFMConfig contains Last.fm API client settings.
type LastFMConfig struct {
	// APIKey authenticates requests to the Last.fm web service.
	APIKey string `koanf:"api_key"`

	// BaseURL is the API endpoint. Overridden in tests.
	BaseURL string `koanf:"base_url" validate:"required"`

	// RequestsPerSecond is the shared client-side rate limit across all
	// concurrent lookups. Last.fm asks for no more than 5 req/s.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gt=0"`

	// RetryAttempts is the per-lookup retry budget for transient failures.
	RetryAttempts int `koanf:"retry_attempts" validate:"gte=1"`

	// RetryBaseDelay seeds the exponential backoff (base, 2x base, 4x base...).
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`

	// Timeout bounds a single HTTP request.
	Timeout time.Duration `koanf:"timeout"`
}

// RecencyConfig contains the per-user decay model parameters.
type RecencyConfig struct {
	// SpanDivisor derives the half-life from the listening span:
	// half_life_days = max(span_days / SpanDivisor, MinHalfLifeDays).
	SpanDivisor float64 `koanf:"span_divisor" validate:"gt=0"`

	// MinHalfLifeDays is the half-life floor for short histories.
	MinHalfLifeDays float64 `koanf:"min_half_life_days" validate:"gt=0"`
}

// CandidatesConfig contains generator and consolidation parameters.
type CandidatesConfig struct {
	// MaxPerSource caps each generator's output before consolidation.
	MaxPerSource int `koanf:"max_per_source" validate:"gte=1"`

	// Aggregation selects the consolidation score policy: "sum" or "max".
	Aggregation string `koanf:"aggregation" validate:"oneof=sum max"`

	SimilarArtist SimilarArtistConfig `koanf:"similar_artist"`
	SimilarTag    SimilarTagConfig    `koanf:"similar_tag"`
	DeepCut       DeepCutConfig       `koanf:"deep_cut"`
	OldFavorite   OldFavoriteConfig   `koanf:"old_favorite"`
}

// SimilarArtistConfig tunes the similar-artist generator.
type SimilarArtistConfig struct {
	// SampleRate is the fraction of the user's played artists to look up.
	SampleRate float64 `koanf:"sample_rate" validate:"gt=0,lte=1"`

	// SimilarityCutoff drops similar-artist matches above this value;
	// near-1.0 matches are almost always aliases or duplicate entries.
	SimilarityCutoff float64 `koanf:"similarity_cutoff" validate:"gt=0,lte=1"`

	// MaxSimilarPerArtist bounds similar artists processed per seed artist.
	MaxSimilarPerArtist int `koanf:"max_similar_per_artist" validate:"gte=1"`

	// TracksPerArtist bounds top tracks fetched per similar artist.
	TracksPerArtist int `koanf:"tracks_per_artist" validate:"gte=1"`

	// MinListeners is a quality floor for candidate tracks.
	MinListeners int64 `koanf:"min_listeners" validate:"gte=0"`
}

// SimilarTagConfig tunes the similar-tag generator.
type SimilarTagConfig struct {
	// TopTags is how many of the user's most frequent tags to use.
	TopTags int `koanf:"top_tags" validate:"gte=1"`

	// ExpandTags also fetches tags similar to the user's top tags.
	ExpandTags bool `koanf:"expand_tags"`

	// TracksPerTag bounds top tracks fetched per tag.
	TracksPerTag int `koanf:"tracks_per_tag" validate:"gte=1"`

	// MinListeners is a quality floor for candidate tracks.
	MinListeners int64 `koanf:"min_listeners" validate:"gte=0"`
}

// DeepCutConfig tunes the deep-cut generator.
type DeepCutConfig struct {
	// TopArtists is how many of the user's most played artists to dig into.
	TopArtists int `koanf:"top_artists" validate:"gte=1"`

	// AlbumsPerArtist bounds albums fetched per artist.
	AlbumsPerArtist int `koanf:"albums_per_artist" validate:"gte=1"`

	// ObscurityPercentile keeps only tracks whose global playcount falls
	// below this percentile of the artist's fetched catalog (0-1).
	ObscurityPercentile float64 `koanf:"obscurity_percentile" validate:"gt=0,lte=1"`

	// MinPlaycount filters out junk entries with no listeners at all.
	MinPlaycount int64 `koanf:"min_playcount" validate:"gte=0"`
}

// OldFavoriteConfig tunes the old-favorite generator.
type OldFavoriteConfig struct {
	// MinPlayCount is the minimum historical play count.
	MinPlayCount int `koanf:"min_play_count" validate:"gte=1"`

	// MaxRecency excludes tracks the user still plays; only tracks with a
	// normalized recency score strictly below this are resurfaced.
	MaxRecency float64 `koanf:"max_recency" validate:"gt=0,lte=1"`
}

// SchedulerConfig contains batch run scheduling settings.
type SchedulerConfig struct {
	// Enabled controls whether the background scheduler runs.
	Enabled bool `koanf:"enabled"`

	// Interval is the time between scheduled generation sweeps.
	Interval time.Duration `koanf:"interval"`

	// UserConcurrency bounds how many users are processed in parallel.
	UserConcurrency int `koanf:"user_concurrency" validate:"gte=1"`

	// RunTimeout bounds a single user's generation run. When exceeded the
	// run stops issuing new lookups and consolidates what it has.
	RunTimeout time.Duration `koanf:"run_timeout"`
}

// IngestConfig contains scrobble ingestion settings.
type IngestConfig struct {
	// Enabled controls whether scrobble ingestion runs before generation.
	Enabled bool `koanf:"enabled"`

	// Users lists the Last.fm usernames to ingest plays for.
	Users []string `koanf:"users"`

	// PageSize is the recent-tracks page size (Last.fm max 200).
	PageSize int `koanf:"page_size" validate:"gte=1,lte=200"`
}

// defaultConfig returns a Config with all sensible default values.
// These are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              3846,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Database: DatabaseConfig{
			Path:      "/data/cratedig.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		LastFM: LastFMConfig{
			APIKey:            "",
			BaseURL:           "https://ws.audioscrobbler.com/2.0/",
			RequestsPerSecond: 5,
			RetryAttempts:     3,
			RetryBaseDelay:    time.Second,
			Timeout:           30 * time.Second,
		},
		Recency: RecencyConfig{
			SpanDivisor:     10.0,
			MinHalfLifeDays: 30.0,
		},
		Candidates: CandidatesConfig{
			MaxPerSource: 500,
			Aggregation:  "sum",
			SimilarArtist: SimilarArtistConfig{
				SampleRate:          0.2,
				SimilarityCutoff:    0.9,
				MaxSimilarPerArtist: 10,
				TracksPerArtist:     10,
				MinListeners:        1000,
			},
			SimilarTag: SimilarTagConfig{
				TopTags:      10,
				ExpandTags:   false,
				TracksPerTag: 25,
				MinListeners: 1000,
			},
			DeepCut: DeepCutConfig{
				TopArtists:          30,
				AlbumsPerArtist:     10,
				ObscurityPercentile: 0.25,
				MinPlaycount:        100,
			},
			OldFavorite: OldFavoriteConfig{
				MinPlayCount: 3,
				MaxRecency:   0.5,
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			Interval:        24 * time.Hour,
			UserConcurrency: 4,
			RunTimeout:      30 * time.Minute,
		},
		Ingest: IngestConfig{
			Enabled:  false,
			Users:    []string{},
			PageSize: 200,
		},
	}
}
