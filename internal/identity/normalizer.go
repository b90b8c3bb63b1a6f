// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

// Package identity canonicalizes track and artist names.
//
// Scrobble data and Last.fm catalog data name the same recording many
// ways: "Highway Star", "Highway Star (Remastered 2012)", "Highway Star
// - Live at the NEC". The Normalizer strips release qualifiers so every
// variant maps to one canonical key, and the Resolver picks a single
// representative record per key.
package identity

import (
	"fmt"
	"regexp"
	"strings"
)

// PatternConfig holds the qualifier patterns the Normalizer strips.
// Each entry is a regular expression fragment; fragments in the same
// group are joined into one alternation. Patterns are matched case
// insensitively against the lowercased input.
type PatternConfig struct {
	// DashSuffixes match after " - " and remove everything that follows,
	// e.g. "Song - Radio Edit", "Song - 2004 Remastered Edition".
	DashSuffixes []string

	// BracketQualifiers match exactly inside () or [],
	// e.g. "(Remastered)", "[Mono]", "(Radio Edit)".
	BracketQualifiers []string

	// BracketPrefixes match inside () or [] with arbitrary trailing
	// detail, e.g. "(Live at Wembley Stadium, 1986)".
	BracketPrefixes []string

	// TrailingSuffixes match at the end of a name with no separator,
	// e.g. "Song Name demo", "Song Name official video".
	TrailingSuffixes []string

	// VideoMarkers identify music-video rips anywhere in a raw name.
	VideoMarkers []string

	// StripFeaturing removes featured-artist clauses ("feat.", "ft.").
	StripFeaturing bool

	// StripYears removes bare four-digit years.
	StripYears bool
}

// DefaultPatterns returns the built-in qualifier pattern set.
func DefaultPatterns() PatternConfig {
	return PatternConfig{
		DashSuffixes: []string{
			`\d{4}\s+(remaster(ed)?(\s+edition)?|mix|version)`,
			`remaster(ed)?(\s+\d{4}|\s+edition)?`, `re-master(ed)?`,
			`radio\s+edit`, `remix`, `extended`, `single`,
			`(early\s+)?demo`, `early\s+take`, `take\s+\d+`,
			`(\w+\s+)*(instrumental|demo|take|rehearsal|rough)`,
			`sessions?(\s+\w+)*\s*((&|and)\s*)?outtakes?`, `outtakes?`,
			`alternate\s+mix`,
			`(\w+\s+)+mix`,
			`live(\s+at\s+\w+.*)?`, `at\s+\w+.*`,
			`mono(\s*/\s*remastered.*)?`, `stereo`,
			`instrumental`, `acoustic(\s+\w+)*`,
			`official\s+(music\s+)?video`, `music\s+video`,
			`official\s+(hd|4k|animated)?\s*video`,
			`(official\s+)?lyric\s+video`,
			`(hd|4k)\s+video`, `visuali[sz]er`, `official\s+audio`,
			`shortened\s+edit`, `vocal\s+version`,
			`from\s+.+`,
		},
		BracketQualifiers: []string{
			`remaster(ed)?`, `re-master(ed)?`,
			`\d{4}\s+remaster(ed)?`, `remaster(ed)?\s+\d{4}`,
			`.*?\s+version`, `.*?\s+mix`, `.*?\s+edit`, `.*?\s+remix`,
			`.*?\s+take`, `single\s+version`, `album\s+version`,
			`radio\s+edit`, `extended\s+(version|mix|edit)?`, `remix`,
			`explicit`, `clean`, `censored`,
			`stereo`, `mono`, `stereo\s+mix`, `mono\s+mix`,
			`stereo\s+version`, `mono\s+version`,
			`original\s+(stereo|mono)`, `true\s+stereo`, `simulated\s+stereo`,
			`demo`, `early\s+demo`, `take\s+\d+`, `early\s+take`,
			`instrumental`, `acoustic`,
			`(.*\s*-\s*)?(official\s+)?(music\s+)?video`,
			`(.*\s*-\s*)?(official\s+)?(hd|4k|animated)?\s*video`,
			`(.*\s*-\s*)?(official\s+)?lyric\s+video`,
			`(.*\s*-\s*)?visuali[sz]er`,
			`(.*\s*-\s*)?official\s+audio`,
			`outtakes?`, `sessions?`, `alternate`, `dub`,
		},
		BracketPrefixes: []string{
			`live`, `live\s+(at|from|in|on)`, `live\s+\d{4}`,
			`live\s+version`, `live\s+recording`,
		},
		TrailingSuffixes: []string{
			`demo`, `take\s+\d+`, `instrumental`,
			`official\s+(music\s+)?video`,
			`(official\s+)?(hd|4k|animated)\s+video`,
			`(official\s+)?lyric\s+video`,
			`(official\s+)?visuali[sz]er`, `official\s+audio`,
			`at\s+\w+(\s+\w+)*`,
			`mono`, `stereo`,
			`excerpt\s+\d+`,
			`dub`,
		},
		VideoMarkers: []string{
			`music\s+video`, `official\s+video`, `video\s+clip`,
			`visuali[sz]er`, `lyric\s+video`, `official\s+audio`,
		},
		StripFeaturing: true,
		StripYears:     true,
	}
}

// Normalizer strips release qualifiers from track and artist names.
// It is immutable after construction and safe for concurrent use.
type Normalizer struct {
	dashSuffix    *regexp.Regexp
	bracketExact  *regexp.Regexp
	bracketPrefix *regexp.Regexp
	trailing      *regexp.Regexp
	video         *regexp.Regexp
	feat          *regexp.Regexp
	year          *regexp.Regexp
	punct         *regexp.Regexp
	whitespace    *regexp.Regexp
}

// NewNormalizer compiles the given pattern set. Returns an error if any
// fragment fails to compile.
func NewNormalizer(pc PatternConfig) (*Normalizer, error) {
	n := &Normalizer{
		punct:      regexp.MustCompile(`[^\p{L}\p{N}\s_-]`),
		whitespace: regexp.MustCompile(`\s+`),
	}
	var err error
	if n.dashSuffix, err = compileGroup(`\s+-\s+(?:`, pc.DashSuffixes, `).*$`); err != nil {
		return nil, fmt.Errorf("dash suffix patterns: %w", err)
	}
	if n.bracketExact, err = compileGroup(`\s*[(\[](?:`, pc.BracketQualifiers, `)[)\]]`); err != nil {
		return nil, fmt.Errorf("bracket qualifier patterns: %w", err)
	}
	if n.bracketPrefix, err = compileGroup(`\s*[(\[](?:`, pc.BracketPrefixes, `)\b[^)\]]*[)\]]`); err != nil {
		return nil, fmt.Errorf("bracket prefix patterns: %w", err)
	}
	if n.trailing, err = compileGroup(`\s+(?:`, pc.TrailingSuffixes, `)$`); err != nil {
		return nil, fmt.Errorf("trailing suffix patterns: %w", err)
	}
	if n.video, err = compileGroup(`(?:`, pc.VideoMarkers, `)`); err != nil {
		return nil, fmt.Errorf("video marker patterns: %w", err)
	}
	if pc.StripFeaturing {
		n.feat = regexp.MustCompile(`(?i)(?:\s*[(\[]\s*(?:feat\.?|ft\.?|featuring|with|vs\.?|versus)\b.*$|\s+(?:feat\.?|ft\.?|featuring|vs\.?|versus)\s.*$)`)
	}
	if pc.StripYears {
		n.year = regexp.MustCompile(`\s*[(\[]?\d{4}[)\]]?\s*`)
	}
	return n, nil
}

// MustNormalizer is NewNormalizer that panics on invalid patterns.
// Intended for use with DefaultPatterns.
func MustNormalizer(pc PatternConfig) *Normalizer {
	n, err := NewNormalizer(pc)
	if err != nil {
		panic(err)
	}
	return n
}

func compileGroup(prefix string, alts []string, suffix string) (*regexp.Regexp, error) {
	if len(alts) == 0 {
		// A pattern that can never match.
		return regexp.Compile(`\A\z.`)
	}
	return regexp.Compile(`(?i)` + prefix + strings.Join(alts, "|") + suffix)
}

// Normalize lowercases the name and strips release qualifiers, featured
// artist clauses, years, and punctuation other than hyphens, then
// collapses whitespace. Empty input returns "". The function is
// idempotent: normalizing an already normalized name is a no-op.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}
	s := strings.TrimSpace(strings.ToLower(text))

	// Dash suffixes first: "song - 2004 remastered edition" must be
	// caught before year removal splits the phrase.
	s = n.dashSuffix.ReplaceAllString(s, "")
	s = n.bracketPrefix.ReplaceAllString(s, "")
	s = n.bracketExact.ReplaceAllString(s, "")
	if n.feat != nil {
		s = n.feat.ReplaceAllString(s, "")
	}
	if n.year != nil {
		s = n.year.ReplaceAllString(s, " ")
	}
	// Trailing qualifiers stack ("song take 3 demo"), and the anchored
	// pattern strips one per match, so iterate until the name settles.
	for {
		stripped := n.trailing.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	s = n.punct.ReplaceAllString(s, "")

	// Punctuation removal can expose a dash suffix that was previously
	// hidden by an unbalanced bracket, e.g. "song - (instrumental".
	s = n.dashSuffix.ReplaceAllString(s, "")

	s = n.whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// IsMusicVideo reports whether a raw track name carries a music-video
// marker. Checked against the raw name, not the normalized one, since
// normalization removes exactly these markers.
func (n *Normalizer) IsMusicVideo(trackName string) bool {
	if trackName == "" {
		return false
	}
	return n.video.MatchString(trackName)
}

// TrackKey returns the canonical key "normalized_track|normalized_artist".
// If normalization strips a name to nothing, the lowercased raw name is
// used instead so the key is never empty on either side.
func (n *Normalizer) TrackKey(trackName, artistName string) string {
	track := n.Normalize(trackName)
	artist := n.Normalize(artistName)
	if track == "" {
		track = strings.TrimSpace(strings.ToLower(trackName))
	}
	if artist == "" {
		artist = strings.TrimSpace(strings.ToLower(artistName))
	}
	return track + "|" + artist
}

// ArtistKey returns the canonical artist key, falling back to the
// lowercased raw name when normalization strips everything.
func (n *Normalizer) ArtistKey(artistName string) string {
	if key := n.Normalize(artistName); key != "" {
		return key
	}
	return strings.TrimSpace(strings.ToLower(artistName))
}
