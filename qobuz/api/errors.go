package api

import (
	"errors"
	"strconv"
)

var (
	// ErrInvalidAppSecret means every extracted candidate was rejected, or a
	// previously accepted secret stopped working. Either way the bundle needs
	// re-extraction.
	ErrInvalidAppSecret = errors.New("app secret rejected by the backend")
	ErrInvalidAppID     = errors.New("app id rejected by the backend")
	ErrAuthentication   = errors.New("authentication failed")
	ErrNotInitialized   = errors.New("client is not initialized")
	ErrNotLoggedIn      = errors.New("not logged in")
	// ErrNoQualityAvailable means the whole fallback order was exhausted
	// without an unrestricted stream URL.
	ErrNoQualityAvailable = errors.New("no quality available for track")
)

// ResponseError carries enough of an unexpected response to be actionable:
// the raw status code, or the name of a field missing from an otherwise
// successful body.
type ResponseError struct {
	StatusCode   int
	MissingField string
}

func (e *ResponseError) Error() string {
	if e.MissingField != "" {
		return "unexpected API response: missing field " + strconv.Quote(e.MissingField)
	}

	return "unexpected API response status code: " + strconv.Itoa(e.StatusCode)
}
