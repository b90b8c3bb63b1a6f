// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

// Package ingest pulls scrobble history from Last.fm into the local
// store, canonicalizing identities on the way in.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cratedig/internal/config"
	"github.com/tomtom215/cratedig/internal/identity"
	"github.com/tomtom215/cratedig/internal/lastfm"
	"github.com/tomtom215/cratedig/internal/logging"
	"github.com/tomtom215/cratedig/internal/metrics"
	"github.com/tomtom215/cratedig/internal/store"
)

// Client is the slice of the Last.fm client the importer needs.
type Client interface {
	RecentTracks(ctx context.Context, user string, since time.Time, page, limit int) (*lastfm.RecentTracksPage, error)
	ArtistInfo(ctx context.Context, artist string) (*lastfm.ArtistInfo, error)
}

// Storage is the slice of the store the importer needs.
type Storage interface {
	LatestPlayAt(ctx context.Context, userID string) (time.Time, error)
	AppendPlays(ctx context.Context, plays []store.Play) (int, error)
	UpsertTracks(ctx context.Context, tracks []store.TrackDim) error
	UpsertArtists(ctx context.Context, artists []store.ArtistDim) error
	ArtistTags(ctx context.Context, artistKeys []string) (map[string][]string, error)
}

// Result summarizes one user's import.
type Result struct {
	UserID          string
	PlaysFetched    int
	PlaysStored     int
	ArtistsEnriched int
}

// Importer ingests scrobbles incrementally: each run fetches only what
// Last.fm has seen since the newest stored play.
type Importer struct {
	client  Client
	storage Storage
	norm    *identity.Normalizer
	cfg     config.IngestConfig
	log     zerolog.Logger
}

func NewImporter(client Client, storage Storage, norm *identity.Normalizer, cfg config.IngestConfig) *Importer {
	return &Importer{
		client:  client,
		storage: storage,
		norm:    norm,
		cfg:     cfg,
		log:     logging.With("component", "ingest"),
	}
}

// ImportUser fetches a user's new scrobbles, stores the plays, updates
// the track dimension, and enriches the artist dimension with tags for
// artists not seen before.
func (im *Importer) ImportUser(ctx context.Context, userID string) (*Result, error) {
	res := &Result{UserID: userID}

	since, err := im.storage.LatestPlayAt(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reading latest play: %w", err)
	}

	resolver := identity.NewResolver(im.norm)
	var plays []store.Play
	for page := 1; ; page++ {
		pageData, err := im.client.RecentTracks(ctx, userID, since, page, im.cfg.PageSize)
		if err != nil {
			return nil, fmt.Errorf("fetching recent tracks page %d: %w", page, err)
		}
		for _, rt := range pageData.Tracks {
			// Now-playing entries have no timestamp yet; malformed rows
			// are skipped rather than failing the import.
			if rt.NowPlaying || rt.PlayedAt.IsZero() || rt.Name == "" || rt.Artist == "" {
				continue
			}
			res.PlaysFetched++
			track := resolver.Observe(rt.Name, rt.Artist, rt.MBID, rt.ArtistMBID, 0, 0)
			plays = append(plays, store.Play{
				UserID:     userID,
				TrackKey:   track.Key,
				ArtistKey:  track.ArtistKey,
				TrackName:  track.Name,
				ArtistName: track.Artist,
				Album:      rt.Album,
				PlayedAt:   rt.PlayedAt,
			})
		}
		if pageData.TotalPages == 0 || page >= pageData.TotalPages {
			break
		}
	}

	stored, err := im.storage.AppendPlays(ctx, plays)
	if err != nil {
		return nil, fmt.Errorf("storing plays: %w", err)
	}
	res.PlaysStored = stored
	metrics.IngestedPlays.Add(float64(stored))

	tracks := resolver.Tracks()
	dims := make([]store.TrackDim, 0, len(tracks))
	for _, t := range tracks {
		dims = append(dims, store.TrackDim{
			TrackKey:   t.Key,
			Name:       t.Name,
			ArtistKey:  t.ArtistKey,
			ArtistName: t.Artist,
			MBID:       t.MBID,
			ArtistMBID: t.ArtistMBID,
			Playcount:  t.Playcount,
			Listeners:  t.Listeners,
			IsVideo:    t.IsVideo,
		})
	}
	if err := im.storage.UpsertTracks(ctx, dims); err != nil {
		return nil, fmt.Errorf("updating track dimension: %w", err)
	}

	enriched, err := im.enrichArtists(ctx, tracks)
	if err != nil {
		return nil, err
	}
	res.ArtistsEnriched = enriched

	im.log.Info().
		Str("user", userID).
		Int("fetched", res.PlaysFetched).
		Int("stored", res.PlaysStored).
		Int("artists_enriched", res.ArtistsEnriched).
		Msg("Import finished")
	return res, nil
}

// enrichArtists fetches tags and global stats for artists that have no
// tags stored yet. Lookup failures for single artists are logged and
// skipped so one bad artist cannot sink the import.
func (im *Importer) enrichArtists(ctx context.Context, tracks []*identity.Track) (int, error) {
	names := make(map[string]string)
	for _, t := range tracks {
		if _, ok := names[t.ArtistKey]; !ok {
			names[t.ArtistKey] = t.Artist
		}
	}
	keys := make([]string, 0, len(names))
	for key := range names {
		keys = append(keys, key)
	}

	existing, err := im.storage.ArtistTags(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("reading artist tags: %w", err)
	}

	enriched := 0
	for key, name := range names {
		if _, ok := existing[key]; ok {
			continue
		}
		info, err := im.client.ArtistInfo(ctx, name)
		if err != nil {
			if errors.Is(err, lastfm.ErrNotFound) {
				continue
			}
			im.log.Warn().Err(err).Str("artist", name).Msg("Artist info lookup failed, skipping")
			continue
		}
		tags := make([]string, 0, len(info.Tags))
		for _, tag := range info.Tags {
			tags = append(tags, tag.Name)
		}
		if err := im.storage.UpsertArtists(ctx, []store.ArtistDim{{
			ArtistKey: key,
			Name:      name,
			MBID:      info.MBID,
			Listeners: info.Listeners,
			Playcount: info.Playcount,
			Tags:      tags,
		}}); err != nil {
			return enriched, fmt.Errorf("updating artist dimension: %w", err)
		}
		enriched++
	}
	return enriched, nil
}
