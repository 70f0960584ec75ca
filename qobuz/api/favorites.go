package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/xeptore/qbz/httputil"
)

// GetFavorites fetches the user's favorites of the given kind ("albums",
// "tracks", or "artists"). The endpoint uses the favorites signing
// contract, which covers only the timestamp and the secret.
func (c *Client) GetFavorites(ctx context.Context, kind string, limit, offset int) (raw json.RawMessage, err error) {
	secret, err := c.secret(ctx)
	if nil != err {
		return nil, err
	}

	token, err := c.authToken()
	if nil != err {
		return nil, err
	}

	ts := c.signer.Timestamp()
	signature := c.signer.SignFavoritesRequest(ts, secret)

	params := make(url.Values, 5)
	params.Set("type", kind)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("request_ts", strconv.FormatInt(ts, 10))
	params.Set("request_sig", signature)

	req, err := c.newRequest(ctx, http.MethodGet, "/favorite/getUserFavorites", params, nil)
	if nil != err {
		return nil, err
	}
	req.Header.Set("X-User-Auth-Token", token)

	resp, err := c.do(req)
	if nil != err {
		return nil, fmt.Errorf("failed to send get favorites request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close get favorites response body: %v", closeErr))
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

	return json.RawMessage(respBytes), nil
}
