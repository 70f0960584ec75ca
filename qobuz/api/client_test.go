package api_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/qbz/qobuz/api"
	"github.com/xeptore/qbz/qobuz/types"
)

const (
	testAppID   = "123456789"
	secretOne   = "a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1"
	secretTwo   = "b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2"
	secretThree = "c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3"
)

// fixedSigner makes signatures inspectable by echoing the secret, so a test
// backend can tell candidates apart without reimplementing the hash.
type fixedSigner struct{}

func (fixedSigner) Timestamp() int64 { return 1700000000 }

func (fixedSigner) SignStreamRequest(trackID, formatID uint64, ts int64, secret string) string {
	return secret
}

func (fixedSigner) SignFavoritesRequest(ts int64, secret string) string {
	return secret
}

// backend fakes the vendor's web and API hosts on a single server: the login
// page, the bundle script with three hex secret candidates, the user login
// endpoint, and a pluggable stream URL endpoint. The probe target track is
// accepted only when signed with the second candidate.
type backend struct {
	srv        *httptest.Server
	probes     atomic.Int64
	streamHits atomic.Int64
	stream     func(w http.ResponseWriter, r *http.Request)
}

func newBackend(t *testing.T) *backend {
	t.Helper()

	b := &backend{} //nolint:exhaustruct

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><script src="/resources/7.0.1-b011/bundle.js"></script></html>`)
	})
	mux.HandleFunc("/resources/7.0.1-b011/bundle.js", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(
			w,
			`!function(){production:{api:{appId:"%s",appSecret:"%s"}};appSecret:"%s";appSecret:"%s"}()`,
			testAppID, secretOne, secretTwo, secretThree,
		)
	})
	mux.HandleFunc("/user/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-App-Id") != testAppID {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"user_auth_token":"tok-1","user":{"display_name":"Jane","subscription":{"offer":"studio"}}}`)
	})
	mux.HandleFunc("/track/getFileUrl", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("track_id") == "5966783" {
			b.probes.Add(1)
			if r.URL.Query().Get("request_sig") == secretTwo {
				fmt.Fprint(w, `{}`)
				return
			}
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		b.streamHits.Add(1)
		if nil != b.stream {
			b.stream(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)

	return b
}

func newTestClient(t *testing.T, b *backend) *api.Client {
	t.Helper()

	client, err := api.NewClient(zerolog.Nop(), api.Options{
		WebBaseURL:     b.srv.URL,
		APIBaseURL:     b.srv.URL,
		Signer:         fixedSigner{},
		RequestTimeout: 5 * time.Second,
		RequestsPerSec: 1000,
		RequestsBurst:  100,
	})
	require.NoError(t, err)

	return client
}

func initAndLogin(t *testing.T, b *backend) *api.Client {
	t.Helper()

	client := newTestClient(t, b)
	require.NoError(t, client.Init(context.Background()))

	_, err := client.Login(context.Background(), "jane@example.com", "hunter2")
	require.NoError(t, err)

	return client
}

func TestInitIsIdempotent(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	client := newTestClient(t, b)

	require.NoError(t, client.Init(context.Background()))
	require.NoError(t, client.Init(context.Background()))
}

func TestSecretValidationSelectsAndMemoizesWinner(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	b.stream = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("request_sig") != secretTwo {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, `{"url":"https://cdn.example.com/f","format_id":%s}`, r.URL.Query().Get("format_id"))
	}
	client := initAndLogin(t, b)

	streamURL, err := client.GetStreamURL(context.Background(), 111, types.QualityMP3320)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/f", streamURL.URL)

	// The first candidate is rejected, the second accepted, the third never
	// tried.
	assert.Equal(t, int64(2), b.probes.Load())

	_, err = client.GetStreamURL(context.Background(), 222, types.QualityMP3320)
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.probes.Load())
}

func TestSecretValidationExhaustedCandidates(t *testing.T) {
	t.Parallel()

	// Reject every probe so no candidate survives.
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><script src="/resources/7.0.1-b011/bundle.js"></script></html>`)
	})
	mux.HandleFunc("/resources/7.0.1-b011/bundle.js", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `production:{api:{appId:"%s",appSecret:"%s"}}`, testAppID, secretOne)
	})
	mux.HandleFunc("/track/getFileUrl", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := newTestClient(t, &backend{srv: srv}) //nolint:exhaustruct
	require.NoError(t, client.Init(context.Background()))

	_, err := client.GetStreamURL(context.Background(), 111, types.QualityMP3320)
	require.ErrorIs(t, err, api.ErrInvalidAppSecret)
}

func TestStreamURLRequiresInit(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	client := newTestClient(t, b)

	_, err := client.GetStreamURL(context.Background(), 111, types.QualityMP3320)
	require.ErrorIs(t, err, api.ErrNotInitialized)
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	client := newTestClient(t, b)
	require.NoError(t, client.Init(context.Background()))

	assert.False(t, client.IsLoggedIn())
	_, ok := client.Session()
	assert.False(t, ok)

	session, err := client.Login(context.Background(), "jane@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", session.UserAuthToken)

	assert.True(t, client.IsLoggedIn())
	got, ok := client.Session()
	require.True(t, ok)
	assert.Equal(t, "Jane", got.DisplayName)

	client.Logout()
	assert.False(t, client.IsLoggedIn())
}
