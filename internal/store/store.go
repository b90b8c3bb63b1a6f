// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

// Package store persists plays, track/artist dimensions, and candidate
// tables in an embedded DuckDB database.
//
// Candidate writes are full refreshes: each run replaces the previous
// output for that user and source inside one transaction, so readers
// never see a half-written run and writers never need row locks.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cratedig/internal/config"
	"github.com/tomtom215/cratedig/internal/logging"
	"github.com/tomtom215/cratedig/internal/metrics"
)

// Store wraps the DuckDB handle. Safe for concurrent use; DuckDB
// serializes writers internally.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the DuckDB database at the configured
// path and applies the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	dsn := cfg.Path
	params := url.Values{}
	if cfg.MaxMemory != "" {
		params.Set("max_memory", cfg.MaxMemory)
	}
	if cfg.Threads > 0 {
		params.Set("threads", strconv.Itoa(cfg.Threads))
	}
	if len(params) > 0 {
		dsn += "?" + params.Encode()
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb at %s: %w", cfg.Path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging duckdb: %w", err)
	}

	s := &Store{db: db, log: logging.With("component", "store")}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.log.Info().Str("path", cfg.Path).Msg("Database opened")
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS plays (
		user_id     VARCHAR NOT NULL,
		track_key   VARCHAR NOT NULL,
		artist_key  VARCHAR NOT NULL,
		track_name  VARCHAR NOT NULL,
		artist_name VARCHAR NOT NULL,
		album       VARCHAR,
		played_at   TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, track_key, played_at)
	)`,
	`CREATE TABLE IF NOT EXISTS tracks (
		track_key   VARCHAR PRIMARY KEY,
		name        VARCHAR NOT NULL,
		artist_key  VARCHAR NOT NULL,
		artist_name VARCHAR NOT NULL,
		mbid        VARCHAR,
		artist_mbid VARCHAR,
		playcount   BIGINT NOT NULL DEFAULT 0,
		listeners   BIGINT NOT NULL DEFAULT 0,
		is_video    BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS artists (
		artist_key VARCHAR PRIMARY KEY,
		name       VARCHAR NOT NULL,
		mbid       VARCHAR,
		listeners  BIGINT NOT NULL DEFAULT 0,
		playcount  BIGINT NOT NULL DEFAULT 0,
		tags       VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS candidates (
		user_id     VARCHAR NOT NULL,
		source      VARCHAR NOT NULL,
		run_id      VARCHAR NOT NULL,
		track_key   VARCHAR NOT NULL,
		track_name  VARCHAR NOT NULL,
		artist_name VARCHAR NOT NULL,
		raw_score   DOUBLE NOT NULL,
		rank        INTEGER NOT NULL,
		created_at  TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS consolidated_candidates (
		user_id             VARCHAR NOT NULL,
		run_id              VARCHAR NOT NULL,
		track_key           VARCHAR NOT NULL,
		track_name          VARCHAR NOT NULL,
		artist_name         VARCHAR NOT NULL,
		final_score         DOUBLE NOT NULL,
		rank                INTEGER NOT NULL,
		from_similar_artist BOOLEAN NOT NULL DEFAULT FALSE,
		from_similar_tag    BOOLEAN NOT NULL DEFAULT FALSE,
		from_deep_cut       BOOLEAN NOT NULL DEFAULT FALSE,
		from_old_favorite   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at          TIMESTAMP NOT NULL
	)`,
}

func (s *Store) init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

// observe records a query duration under the given operation label.
func observe(op string, start time.Time) {
	metrics.DBQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
