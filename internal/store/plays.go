// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Play is one stored play event.
type Play struct {
	UserID     string
	TrackKey   string
	ArtistKey  string
	TrackName  string
	ArtistName string
	Album      string
	PlayedAt   time.Time
}

// AppendPlays inserts play events, silently skipping rows that collide
// with an already stored (user, track, timestamp). Returns the number
// of rows actually written.
func (s *Store) AppendPlays(ctx context.Context, plays []Play) (int, error) {
	if len(plays) == 0 {
		return 0, nil
	}
	defer observe("append_plays", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO plays
			(user_id, track_key, artist_key, track_name, artist_name, album, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, p := range plays {
		res, err := stmt.ExecContext(ctx,
			p.UserID, p.TrackKey, p.ArtistKey, p.TrackName, p.ArtistName, p.Album, p.PlayedAt)
		if err != nil {
			return 0, fmt.Errorf("inserting play %s/%s: %w", p.UserID, p.TrackKey, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			written += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing plays: %w", err)
	}
	return written, nil
}

// PlaysForUser returns a user's full play history, oldest first.
func (s *Store) PlaysForUser(ctx context.Context, userID string) ([]Play, error) {
	defer observe("plays_for_user", time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, track_key, artist_key, track_name, artist_name,
		       coalesce(album, ''), played_at
		FROM plays
		WHERE user_id = ?
		ORDER BY played_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying plays: %w", err)
	}
	defer rows.Close()

	var out []Play
	for rows.Next() {
		var p Play
		if err := rows.Scan(&p.UserID, &p.TrackKey, &p.ArtistKey,
			&p.TrackName, &p.ArtistName, &p.Album, &p.PlayedAt); err != nil {
			return nil, fmt.Errorf("scanning play: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LatestPlayAt returns the timestamp of a user's most recent stored
// play, or the zero time when the user has no plays.
func (s *Store) LatestPlayAt(ctx context.Context, userID string) (time.Time, error) {
	defer observe("latest_play_at", time.Now())

	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT max(played_at) FROM plays WHERE user_id = ?`, userID).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("querying latest play: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time, nil
}

// Users returns every user with at least one stored play.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	defer observe("users", time.Now())

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM plays ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
