package api_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/qbz/qobuz/api"
	"github.com/xeptore/qbz/qobuz/types"
)

func TestFallbackSkipsRestrictedQualities(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	b.stream = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("format_id") {
		case "27":
			fmt.Fprint(w, `{"url":"https://cdn.example.com/hr","format_id":27,"restrictions":[{"code":"UserUnauthorizedStreaming"}]}`)
		case "7":
			fmt.Fprint(w, `{"url":"https://cdn.example.com/96","format_id":7,"mime_type":"audio/flac"}`)
		default:
			t.Errorf("unexpected format_id: %s", r.URL.Query().Get("format_id"))
		}
	}
	client := initAndLogin(t, b)

	streamURL, err := client.GetStreamURLWithFallback(context.Background(), 111, types.QualityFLACHiRes)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/96", streamURL.URL)
	assert.Equal(t, uint64(7), streamURL.FormatID)
	assert.Equal(t, uint64(111), streamURL.TrackID)
	assert.Equal(t, int64(2), b.streamHits.Load())
}

func TestFallbackStartsAtPreferredQuality(t *testing.T) {
	t.Parallel()

	var (
		mux     sync.Mutex
		formats []string
	)

	b := newBackend(t)
	b.stream = func(w http.ResponseWriter, r *http.Request) {
		mux.Lock()
		formats = append(formats, r.URL.Query().Get("format_id"))
		mux.Unlock()
		fmt.Fprint(w, `{"url":"https://cdn.example.com/x","format_id":5,"restrictions":[{"code":"TrackRestrictedByRightHolders"}]}`)
	}
	client := initAndLogin(t, b)

	_, err := client.GetStreamURLWithFallback(context.Background(), 111, types.QualityFLAC)
	require.ErrorIs(t, err, api.ErrNoQualityAvailable)

	// Higher fidelity formats above the preferred one are never requested.
	assert.Equal(t, []string{"6", "5"}, formats)
}

func TestFallbackExhaustedReportsNoQuality(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	b.stream = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"url":"https://cdn.example.com/x","format_id":5,"restrictions":[{"code":"UserUnauthorizedStreaming"}]}`)
	}
	client := initAndLogin(t, b)

	_, err := client.GetStreamURLWithFallback(context.Background(), 111, types.QualityFLACHiRes)
	require.ErrorIs(t, err, api.ErrNoQualityAvailable)
	assert.Equal(t, int64(4), b.streamHits.Load())
}

func TestFallbackAbortsOnRejectedSecret(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	b.stream = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}
	client := initAndLogin(t, b)

	_, err := client.GetStreamURLWithFallback(context.Background(), 111, types.QualityFLACHiRes)
	require.ErrorIs(t, err, api.ErrInvalidAppSecret)

	// Lower fidelity cannot fix a rejected secret, so exactly one request is
	// made.
	assert.Equal(t, int64(1), b.streamHits.Load())
}

func TestFallbackToleratesTransientFailures(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	b.stream = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format_id") == "27" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"url":"https://cdn.example.com/96","format_id":7}`)
	}
	client := initAndLogin(t, b)

	streamURL, err := client.GetStreamURLWithFallback(context.Background(), 111, types.QualityFLACHiRes)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), streamURL.FormatID)
}

func TestGetStreamURLMissingURLField(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	b.stream = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"format_id":27}`)
	}
	client := initAndLogin(t, b)

	_, err := client.GetStreamURL(context.Background(), 111, types.QualityFLACHiRes)

	var respErr *api.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "url", respErr.MissingField)
}

func TestGetStreamURLRequiresLogin(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	client := newTestClient(t, b)
	require.NoError(t, client.Init(context.Background()))

	_, err := client.GetStreamURL(context.Background(), 111, types.QualityMP3320)
	require.ErrorIs(t, err, api.ErrNotLoggedIn)
}
