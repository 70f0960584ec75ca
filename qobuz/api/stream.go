package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/xeptore/qbz/httputil"
	"github.com/xeptore/qbz/qobuz/types"
)

// GetStreamURL requests the protected streaming location for a track at a
// single quality. A 400 here means the backend no longer honors the secret
// it accepted during validation, signaling rotation.
func (c *Client) GetStreamURL(ctx context.Context, trackID uint64, quality types.Quality) (s *types.StreamURL, err error) {
	secret, err := c.secret(ctx)
	if nil != err {
		return nil, err
	}

	token, err := c.authToken()
	if nil != err {
		return nil, err
	}

	ts := c.signer.Timestamp()
	signature := c.signer.SignStreamRequest(trackID, quality.ID(), ts, secret)

	params := make(url.Values, 5)
	params.Set("track_id", strconv.FormatUint(trackID, 10))
	params.Set("format_id", strconv.FormatUint(quality.ID(), 10))
	params.Set("intent", "stream")
	params.Set("request_ts", strconv.FormatInt(ts, 10))
	params.Set("request_sig", signature)

	req, err := c.newRequest(ctx, http.MethodGet, "/track/getFileUrl", params, nil)
	if nil != err {
		return nil, err
	}
	req.Header.Set("X-User-Auth-Token", token)

	resp, err := c.do(req)
	if nil != err {
		return nil, fmt.Errorf("failed to send get stream URL request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close get stream URL response body: %v", closeErr))
		}
	}()

	switch code := resp.StatusCode; code {
	case http.StatusOK:
	case http.StatusBadRequest:
		return nil, ErrInvalidAppSecret
	default:
		return nil, &ResponseError{StatusCode: code, MissingField: ""}
	}

	respBytes, err := httputil.ReadResponseBody(resp)
	if nil != err {
		return nil, err
	}

	if !gjson.GetBytes(respBytes, "url").Exists() {
		return nil, &ResponseError{StatusCode: http.StatusOK, MissingField: "url"}
	}

	var streamURL types.StreamURL
	if err := json.Unmarshal(respBytes, &streamURL); nil != err {
		return nil, fmt.Errorf("failed to decode stream URL response: %w", err)
	}
	streamURL.TrackID = trackID

	return &streamURL, nil
}

// GetStreamURLWithFallback walks the fixed quality order from the preferred
// position downwards and returns the first unrestricted stream URL. Lower
// fidelity is never a fix for a rejected secret, so ErrInvalidAppSecret
// aborts the walk; any other per-quality failure just moves on.
func (c *Client) GetStreamURLWithFallback(
	ctx context.Context,
	trackID uint64,
	preferred types.Quality,
) (*types.StreamURL, error) {
	qualities := types.FallbackOrder()
	start := max(lo.IndexOf(qualities, preferred), 0)

	for _, quality := range qualities[start:] {
		streamURL, err := c.GetStreamURL(ctx, trackID, quality)
		if nil != err {
			if errors.Is(err, ErrInvalidAppSecret) {
				return nil, ErrInvalidAppSecret
			}

			c.logger.
				Debug().
				Err(err).
				Uint64("track_id", trackID).
				Str("quality", quality.String()).
				Msg("Stream URL request failed, trying next quality")

			continue
		}

		if streamURL.IsRestricted() {
			c.logger.
				Debug().
				Uint64("track_id", trackID).
				Str("quality", quality.String()).
				Msg("Stream URL restricted, trying next quality")

			continue
		}

		return streamURL, nil
	}

	return nil, ErrNoQualityAvailable
}
