// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package identity

// Track is the canonical representative of all observed variants that
// share one canonical key.
type Track struct {
	Key        string
	Name       string
	Artist     string
	ArtistKey  string
	MBID       string
	ArtistMBID string

	// Playcount is the maximum global playcount observed across all
	// variants, regardless of which variant was kept.
	Playcount int64

	Listeners int64
	IsVideo   bool
}

// Resolver deduplicates observed track variants down to one canonical
// Track per key. Preference among variants of the same key:
//
//  1. a non-video variant beats a video variant
//  2. among equals, the higher global playcount wins
//  3. otherwise the first-seen variant is kept
//
// The kept Track always carries the maximum playcount seen for the key.
// Resolver is not safe for concurrent use.
type Resolver struct {
	norm  *Normalizer
	byKey map[string]*Track
	order []string
}

// NewResolver returns an empty Resolver using the given normalizer.
func NewResolver(norm *Normalizer) *Resolver {
	return &Resolver{
		norm:  norm,
		byKey: make(map[string]*Track),
	}
}

// Observe records one track variant and returns the canonical Track for
// its key, which may or may not be the variant just observed.
func (r *Resolver) Observe(name, artist, mbid, artistMBID string, playcount, listeners int64) *Track {
	key := r.norm.TrackKey(name, artist)
	isVideo := r.norm.IsMusicVideo(name)

	existing, ok := r.byKey[key]
	if !ok {
		t := &Track{
			Key:        key,
			Name:       name,
			Artist:     artist,
			ArtistKey:  r.norm.ArtistKey(artist),
			MBID:       mbid,
			ArtistMBID: artistMBID,
			Playcount:  playcount,
			Listeners:  listeners,
			IsVideo:    isVideo,
		}
		r.byKey[key] = t
		r.order = append(r.order, key)
		return t
	}

	if replaces(existing, isVideo, playcount) {
		existing.Name = name
		existing.Artist = artist
		existing.MBID = mbid
		existing.ArtistMBID = artistMBID
		existing.IsVideo = isVideo
		if listeners > existing.Listeners {
			existing.Listeners = listeners
		}
	}
	if playcount > existing.Playcount {
		existing.Playcount = playcount
	}
	return existing
}

// replaces reports whether a newly observed variant should become the
// canonical representative over the existing one.
func replaces(existing *Track, isVideo bool, playcount int64) bool {
	if existing.IsVideo != isVideo {
		return existing.IsVideo
	}
	return playcount > existing.Playcount
}

// Lookup returns the canonical Track for a raw name pair, if any
// variant of it has been observed.
func (r *Resolver) Lookup(name, artist string) (*Track, bool) {
	t, ok := r.byKey[r.norm.TrackKey(name, artist)]
	return t, ok
}

// Tracks returns all canonical tracks in first-seen order.
func (r *Resolver) Tracks() []*Track {
	out := make([]*Track, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byKey[key])
	}
	return out
}

// Len returns the number of distinct canonical keys observed.
func (r *Resolver) Len() int {
	return len(r.byKey)
}
