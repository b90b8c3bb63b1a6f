// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package lastfm

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the artist, tag, album or user does not exist
	// (Last.fm error code 6). Callers treat this as an empty result.
	ErrNotFound = errors.New("lastfm: not found")

	// ErrTransient marks failures worth retrying: timeouts, HTTP 5xx,
	// HTTP 429, and the API's own temporarily-unavailable codes.
	ErrTransient = errors.New("lastfm: transient failure")

	// ErrMalformed marks responses that could not be decoded.
	ErrMalformed = errors.New("lastfm: malformed response")
)

// Last.fm API error codes, from the web service docs.
const (
	codeInvalidParams  = 6  // also used for "not found"
	codeOperationFail  = 8
	codeServiceOffline = 11
	codeTempError      = 16
	codeRateLimited    = 29
)

// apiError wraps a Last.fm error envelope, classified under one of the
// sentinel errors above.
type apiError struct {
	Code    int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("lastfm: api error %d: %s", e.Code, e.Message)
}

func (e *apiError) Unwrap() error {
	switch e.Code {
	case codeInvalidParams:
		return ErrNotFound
	case codeOperationFail, codeServiceOffline, codeTempError, codeRateLimited:
		return ErrTransient
	default:
		return nil
	}
}
