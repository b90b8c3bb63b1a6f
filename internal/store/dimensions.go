// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TrackDim is one row of the canonical track dimension.
type TrackDim struct {
	TrackKey   string
	Name       string
	ArtistKey  string
	ArtistName string
	MBID       string
	ArtistMBID string
	Playcount  int64
	Listeners  int64
	IsVideo    bool
}

// ArtistDim is one row of the canonical artist dimension. Tags are
// stored comma-separated.
type ArtistDim struct {
	ArtistKey string
	Name      string
	MBID      string
	Listeners int64
	Playcount int64
	Tags      []string
}

// UpsertTracks writes canonical track rows, replacing existing rows by
// key. Playcount keeps the maximum of old and new.
func (s *Store) UpsertTracks(ctx context.Context, tracks []TrackDim) error {
	if len(tracks) == 0 {
		return nil
	}
	defer observe("upsert_tracks", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tracks
			(track_key, name, artist_key, artist_name, mbid, artist_mbid,
			 playcount, listeners, is_video)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (track_key) DO UPDATE SET
			name = excluded.name,
			artist_name = excluded.artist_name,
			mbid = excluded.mbid,
			artist_mbid = excluded.artist_mbid,
			playcount = greatest(tracks.playcount, excluded.playcount),
			listeners = greatest(tracks.listeners, excluded.listeners),
			is_video = excluded.is_video`)
	if err != nil {
		return fmt.Errorf("preparing track upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tracks {
		if _, err := stmt.ExecContext(ctx,
			t.TrackKey, t.Name, t.ArtistKey, t.ArtistName, t.MBID, t.ArtistMBID,
			t.Playcount, t.Listeners, t.IsVideo); err != nil {
			return fmt.Errorf("upserting track %s: %w", t.TrackKey, err)
		}
	}
	return tx.Commit()
}

// UpsertArtists writes canonical artist rows, replacing existing rows
// by key.
func (s *Store) UpsertArtists(ctx context.Context, artists []ArtistDim) error {
	if len(artists) == 0 {
		return nil
	}
	defer observe("upsert_artists", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO artists (artist_key, name, mbid, listeners, playcount, tags)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (artist_key) DO UPDATE SET
			name = excluded.name,
			mbid = excluded.mbid,
			listeners = greatest(artists.listeners, excluded.listeners),
			playcount = greatest(artists.playcount, excluded.playcount),
			tags = excluded.tags`)
	if err != nil {
		return fmt.Errorf("preparing artist upsert: %w", err)
	}
	defer stmt.Close()

	for _, a := range artists {
		if _, err := stmt.ExecContext(ctx,
			a.ArtistKey, a.Name, a.MBID, a.Listeners, a.Playcount,
			strings.Join(a.Tags, ",")); err != nil {
			return fmt.Errorf("upserting artist %s: %w", a.ArtistKey, err)
		}
	}
	return tx.Commit()
}

// ArtistTags returns the stored tags per artist key. Artists without a
// stored row or without tags are absent from the map.
func (s *Store) ArtistTags(ctx context.Context, artistKeys []string) (map[string][]string, error) {
	if len(artistKeys) == 0 {
		return map[string][]string{}, nil
	}
	defer observe("artist_tags", time.Now())

	placeholders := strings.Repeat("?,", len(artistKeys))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(artistKeys))
	for i, k := range artistKeys {
		args[i] = k
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT artist_key, tags FROM artists
		 WHERE artist_key IN (`+placeholders+`) AND tags IS NOT NULL AND tags != ''`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("querying artist tags: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var key, tags string
		if err := rows.Scan(&key, &tags); err != nil {
			return nil, fmt.Errorf("scanning artist tags: %w", err)
		}
		out[key] = strings.Split(tags, ",")
	}
	return out, rows.Err()
}
