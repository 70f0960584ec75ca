package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/xeptore/qbz/httputil"
	"github.com/xeptore/qbz/qobuz/bundle"
	"github.com/xeptore/qbz/qobuz/sign"
	"github.com/xeptore/qbz/qobuz/types"
	"github.com/xeptore/qbz/redact"
)

// The known-good probe target for secret validation. Any response status
// other than 400 accepts the candidate: a wrong app id or a quota error
// must not be mistaken for a wrong secret.
const (
	probeTrackID = 5966783
	probeFormat  = types.QualityMP3320
)

type Options struct {
	// WebBaseURL serves the login page and the bundle script.
	WebBaseURL string
	// APIBaseURL is the fixed base path of the JSON API.
	APIBaseURL string
	// Signer defaults to the MD5 scheme of the current web player.
	Signer         sign.Signer
	RequestTimeout time.Duration
	RequestsPerSec float64
	RequestsBurst  int
}

// Client speaks the vendor's browser-only API. The three authentication
// cells (bundle tokens, user session, validated secret) are independently
// readable; there is no cross-cell transaction.
type Client struct {
	logger  zerolog.Logger
	http    *http.Client
	webBase string
	apiBase string
	signer  sign.Signer
	limiter *rate.Limiter

	tokens          atomic.Pointer[bundle.Tokens]
	session         atomic.Pointer[types.UserSession]
	validatedSecret atomic.Pointer[string]
	validate        singleflight.Group
}

func NewClient(logger zerolog.Logger, opts Options) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if nil != err {
		return nil, fmt.Errorf("failed to create cookie jar: %v", err)
	}

	signer := opts.Signer
	if nil == signer {
		signer = sign.MD5Signer{}
	}

	return &Client{
		logger: logger,
		//nolint:exhaustruct
		http: &http.Client{
			Jar:     jar,
			Timeout: opts.RequestTimeout,
		},
		webBase:         opts.WebBaseURL,
		apiBase:         opts.APIBaseURL,
		signer:          signer,
		limiter:         rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.RequestsBurst),
		tokens:          atomic.Pointer[bundle.Tokens]{},
		session:         atomic.Pointer[types.UserSession]{},
		validatedSecret: atomic.Pointer[string]{},
		validate:        singleflight.Group{},
	}, nil
}

// Init scrapes the web bundle for the app id and candidate secrets. Tokens
// are extracted once per client lifetime; later calls are no-ops.
func (c *Client) Init(ctx context.Context) error {
	if nil != c.tokens.Load() {
		return nil
	}

	tokens, err := bundle.Extract(ctx, c.logger, c.http, c.webBase)
	if nil != err {
		return fmt.Errorf("failed to extract bundle tokens: %w", err)
	}
	c.tokens.Store(tokens)

	return nil
}

func (c *Client) appID() (string, error) {
	tokens := c.tokens.Load()
	if nil == tokens {
		return "", ErrNotInitialized
	}

	return tokens.AppID, nil
}

func (c *Client) authToken() (string, error) {
	session := c.session.Load()
	if nil == session {
		return "", ErrNotLoggedIn
	}

	return session.UserAuthToken, nil
}

// Session returns the current user session, if logged in.
func (c *Client) Session() (*types.UserSession, bool) {
	session := c.session.Load()
	if nil == session {
		return nil, false
	}

	return session, true
}

func (c *Client) IsLoggedIn() bool {
	return nil != c.session.Load()
}

// Logout drops the user session. Bundle tokens and the validated secret
// survive for the process lifetime.
func (c *Client) Logout() {
	c.session.Store(nil)
}

// secret returns the validated app secret, probing the extracted candidates
// on first use. Validation runs at most once across concurrent callers; the
// winner is memoized for the process lifetime.
func (c *Client) secret(ctx context.Context) (string, error) {
	if s := c.validatedSecret.Load(); nil != s {
		return *s, nil
	}

	v, err, _ := c.validate.Do("secret", func() (any, error) {
		if s := c.validatedSecret.Load(); nil != s {
			return *s, nil
		}

		tokens := c.tokens.Load()
		if nil == tokens {
			return "", ErrNotInitialized
		}

		for _, candidate := range tokens.Secrets {
			ok, err := c.probeSecret(ctx, candidate)
			if nil != err {
				return "", fmt.Errorf("failed to probe secret candidate: %w", err)
			}
			if ok {
				c.validatedSecret.Store(&candidate)
				c.logger.Info().Str("secret", redact.String(candidate)).Msg("App secret validated")

				return candidate, nil
			}
		}

		return "", ErrInvalidAppSecret
	})
	if nil != err {
		return "", err
	}

	return v.(string), nil //nolint:forcetypeassert
}

// probeSecret issues a lightweight signed request for a known track and
// reports whether the backend tolerated the candidate.
func (c *Client) probeSecret(ctx context.Context, candidate string) (ok bool, err error) {
	ts := c.signer.Timestamp()
	signature := c.signer.SignStreamRequest(probeTrackID, probeFormat.ID(), ts, candidate)

	params := make(url.Values, 5)
	params.Set("track_id", strconv.FormatUint(probeTrackID, 10))
	params.Set("format_id", strconv.FormatUint(probeFormat.ID(), 10))
	params.Set("intent", "stream")
	params.Set("request_ts", strconv.FormatInt(ts, 10))
	params.Set("request_sig", signature)

	req, err := c.newRequest(ctx, http.MethodGet, "/track/getFileUrl", params, nil)
	if nil != err {
		return false, err
	}

	resp, err := c.do(req)
	if nil != err {
		return false, fmt.Errorf("failed to send secret probe request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close secret probe response body: %v", closeErr))
		}
	}()
	if _, err := io.Copy(io.Discard, resp.Body); nil != err {
		return false, fmt.Errorf("failed to drain secret probe response body: %v", err)
	}

	return resp.StatusCode != http.StatusBadRequest, nil
}

// newRequest builds an API request with the fixed desktop user agent and
// the X-App-Id header every endpoint requires.
func (c *Client) newRequest(
	ctx context.Context,
	method, path string,
	params url.Values,
	body io.Reader,
) (*http.Request, error) {
	appID, err := c.appID()
	if nil != err {
		return nil, err
	}

	reqURL := c.apiBase + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if nil != err {
		return nil, fmt.Errorf("failed to create %s request: %v", path, err)
	}
	req.Header.Set("User-Agent", httputil.UserAgent)
	req.Header.Set("X-App-Id", appID)

	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); nil != err {
		return nil, fmt.Errorf("failed to acquire request slot: %w", err)
	}

	return c.http.Do(req)
}
