// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package lastfm

import (
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// The Last.fm API serializes most numbers as JSON strings, and
// collapses single-element lists into bare objects. The flex types
// below absorb both quirks at the decoding boundary so the public
// result types can use plain Go types.

// flexInt decodes from a JSON number or a numeric string.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some fields ("userplaycount" on unloved tracks) carry junk;
		// zero beats failing the whole payload.
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

// flexFloat decodes from a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// oneOrMany decodes from either a JSON array or a single object.
type oneOrMany[T any] []T

func (m *oneOrMany[T]) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	// Absent collections sometimes arrive as null or an empty string.
	if trimmed == "null" || trimmed == "" || strings.HasPrefix(trimmed, `"`) {
		*m = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var items []T
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		*m = items
		return nil
	}
	var single T
	if err := json.Unmarshal(b, &single); err != nil {
		return err
	}
	*m = oneOrMany[T]{single}
	return nil
}

// artistRef appears nested in track and album payloads. Depending on
// the method it carries the name in "name" or "#text".
type artistRef struct {
	Name string `json:"name"`
	Text string `json:"#text"`
	MBID string `json:"mbid"`
}

func (a artistRef) name() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Text
}

// Public result types.

// SimilarArtist is one artist.getSimilar result.
type SimilarArtist struct {
	Name  string
	MBID  string
	Match float64 // similarity in [0, 1]
}

// TopTrack is one artist.getTopTracks or tag.getTopTracks result.
type TopTrack struct {
	Name       string
	MBID       string
	Artist     string
	ArtistMBID string
	Playcount  int64
	Listeners  int64
	Rank       int
}

// TopAlbum is one artist.getTopAlbums result.
type TopAlbum struct {
	Name      string
	MBID      string
	Artist    string
	Playcount int64
}

// AlbumTrack is one track from album.getInfo.
type AlbumTrack struct {
	Name   string
	Artist string
	Rank   int
}

// Tag is one tag with its weight, from artist.getInfo toptags or
// tag.getSimilar.
type Tag struct {
	Name  string
	Count int64
}

// ArtistInfo is the artist.getInfo result: global stats plus top tags.
type ArtistInfo struct {
	Name      string
	MBID      string
	Listeners int64
	Playcount int64
	Tags      []Tag
}

// RecentTrack is one scrobble from user.getRecentTracks.
type RecentTrack struct {
	Name       string
	MBID       string
	Artist     string
	ArtistMBID string
	Album      string
	PlayedAt   time.Time
	NowPlaying bool
}

// RecentTracksPage is one page of a user's scrobble history, newest
// first.
type RecentTracksPage struct {
	Tracks     []RecentTrack
	Page       int
	TotalPages int
}

// Wire payloads, decoded with the flex types then converted.

type errorEnvelope struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

type similarArtistsResponse struct {
	SimilarArtists struct {
		Artist oneOrMany[struct {
			Name  string    `json:"name"`
			MBID  string    `json:"mbid"`
			Match flexFloat `json:"match"`
		}] `json:"artist"`
	} `json:"similarartists"`
}

type topTracksResponse struct {
	TopTracks struct {
		Track oneOrMany[topTrackPayload] `json:"track"`
	} `json:"toptracks"`
}

type tagTopTracksResponse struct {
	Tracks struct {
		Track oneOrMany[topTrackPayload] `json:"track"`
	} `json:"tracks"`
}

type topTrackPayload struct {
	Name      string    `json:"name"`
	MBID      string    `json:"mbid"`
	Playcount flexInt   `json:"playcount"`
	Listeners flexInt   `json:"listeners"`
	Artist    artistRef `json:"artist"`
	Attr      struct {
		Rank flexInt `json:"rank"`
	} `json:"@attr"`
}

func (p topTrackPayload) toTopTrack() TopTrack {
	return TopTrack{
		Name:       p.Name,
		MBID:       p.MBID,
		Artist:     p.Artist.name(),
		ArtistMBID: p.Artist.MBID,
		Playcount:  int64(p.Playcount),
		Listeners:  int64(p.Listeners),
		Rank:       int(p.Attr.Rank),
	}
}

type topAlbumsResponse struct {
	TopAlbums struct {
		Album oneOrMany[struct {
			Name      string    `json:"name"`
			MBID      string    `json:"mbid"`
			Playcount flexInt   `json:"playcount"`
			Artist    artistRef `json:"artist"`
		}] `json:"album"`
	} `json:"topalbums"`
}

type albumInfoResponse struct {
	Album struct {
		Name   string `json:"name"`
		Artist string `json:"artist"`
		Tracks struct {
			Track oneOrMany[struct {
				Name string `json:"name"`
				Attr struct {
					Rank flexInt `json:"rank"`
				} `json:"@attr"`
				Artist artistRef `json:"artist"`
			}] `json:"track"`
		} `json:"tracks"`
	} `json:"album"`
}

type artistInfoResponse struct {
	Artist struct {
		Name  string `json:"name"`
		MBID  string `json:"mbid"`
		Stats struct {
			Listeners flexInt `json:"listeners"`
			Playcount flexInt `json:"playcount"`
		} `json:"stats"`
		Tags struct {
			Tag oneOrMany[tagPayload] `json:"tag"`
		} `json:"tags"`
	} `json:"artist"`
}

type tagPayload struct {
	Name  string  `json:"name"`
	Count flexInt `json:"count"`
}

type similarTagsResponse struct {
	SimilarTags struct {
		Tag oneOrMany[tagPayload] `json:"tag"`
	} `json:"similartags"`
}

type recentTracksResponse struct {
	RecentTracks struct {
		Track oneOrMany[struct {
			Name   string    `json:"name"`
			MBID   string    `json:"mbid"`
			Artist artistRef `json:"artist"`
			Album  struct {
				Text string `json:"#text"`
			} `json:"album"`
			Date struct {
				UTS flexInt `json:"uts"`
			} `json:"date"`
			Attr struct {
				NowPlaying string `json:"nowplaying"`
			} `json:"@attr"`
		}] `json:"track"`
		Attr struct {
			Page       flexInt `json:"page"`
			TotalPages flexInt `json:"totalPages"`
		} `json:"@attr"`
	} `json:"recenttracks"`
}
