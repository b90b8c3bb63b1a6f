// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package store

import (
	"context"
	"fmt"
	"time"
)

// CandidateRow is one per-source candidate as persisted.
type CandidateRow struct {
	UserID     string
	Source     string
	RunID      string
	TrackKey   string
	TrackName  string
	ArtistName string
	RawScore   float64
	Rank       int
	CreatedAt  time.Time
}

// ConsolidatedRow is one final ranked candidate as persisted. The
// from_* flags record which generators proposed the track.
type ConsolidatedRow struct {
	UserID            string
	RunID             string
	TrackKey          string
	TrackName         string
	ArtistName        string
	FinalScore        float64
	Rank              int
	FromSimilarArtist bool
	FromSimilarTag    bool
	FromDeepCut       bool
	FromOldFavorite   bool
	CreatedAt         time.Time
}

// ReplaceCandidates atomically replaces a user's candidates for one
// source with the given rows.
func (s *Store) ReplaceCandidates(ctx context.Context, userID, source string, rows []CandidateRow) error {
	defer observe("replace_candidates", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM candidates WHERE user_id = ? AND source = ?`, userID, source); err != nil {
		return fmt.Errorf("clearing candidates for %s/%s: %w", userID, source, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candidates
			(user_id, source, run_id, track_key, track_name, artist_name,
			 raw_score, rank, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing candidate insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.UserID, r.Source, r.RunID, r.TrackKey, r.TrackName, r.ArtistName,
			r.RawScore, r.Rank, r.CreatedAt); err != nil {
			return fmt.Errorf("inserting candidate %s: %w", r.TrackKey, err)
		}
	}
	return tx.Commit()
}

// ReplaceConsolidated atomically replaces a user's consolidated
// candidate list.
func (s *Store) ReplaceConsolidated(ctx context.Context, userID string, rows []ConsolidatedRow) error {
	defer observe("replace_consolidated", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM consolidated_candidates WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clearing consolidated candidates for %s: %w", userID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO consolidated_candidates
			(user_id, run_id, track_key, track_name, artist_name, final_score, rank,
			 from_similar_artist, from_similar_tag, from_deep_cut, from_old_favorite,
			 created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing consolidated insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.UserID, r.RunID, r.TrackKey, r.TrackName, r.ArtistName, r.FinalScore, r.Rank,
			r.FromSimilarArtist, r.FromSimilarTag, r.FromDeepCut, r.FromOldFavorite,
			r.CreatedAt); err != nil {
			return fmt.Errorf("inserting consolidated candidate %s: %w", r.TrackKey, err)
		}
	}
	return tx.Commit()
}

// ConsolidatedForUser returns a user's final ranked candidates, best
// first, up to limit. limit <= 0 returns all.
func (s *Store) ConsolidatedForUser(ctx context.Context, userID string, limit int) ([]ConsolidatedRow, error) {
	defer observe("consolidated_for_user", time.Now())

	q := `
		SELECT user_id, run_id, track_key, track_name, artist_name, final_score, rank,
		       from_similar_artist, from_similar_tag, from_deep_cut, from_old_favorite,
		       created_at
		FROM consolidated_candidates
		WHERE user_id = ?
		ORDER BY rank`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying consolidated candidates: %w", err)
	}
	defer rows.Close()

	var out []ConsolidatedRow
	for rows.Next() {
		var r ConsolidatedRow
		if err := rows.Scan(&r.UserID, &r.RunID, &r.TrackKey, &r.TrackName, &r.ArtistName,
			&r.FinalScore, &r.Rank, &r.FromSimilarArtist, &r.FromSimilarTag,
			&r.FromDeepCut, &r.FromOldFavorite, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning consolidated candidate: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
