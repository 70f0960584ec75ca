package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/xeptore/qbz/httputil"
	"github.com/xeptore/qbz/qobuz/types"
)

// Login authenticates with email and password and replaces any previous
// session. A 401 means bad credentials; a 400 means the backend rejected
// the extracted app id.
func (c *Client) Login(ctx context.Context, email, password string) (session *types.UserSession, err error) {
	form := make(url.Values, 2)
	form.Set("email", email)
	form.Set("password", password)

	req, err := c.newRequest(ctx, http.MethodPost, "/user/login", nil, strings.NewReader(form.Encode()))
	if nil != err {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(req)
	if nil != err {
		return nil, fmt.Errorf("failed to send login request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close login response body: %v", closeErr))
		}
	}()

	switch code := resp.StatusCode; code {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrAuthentication
	case http.StatusBadRequest:
		return nil, ErrInvalidAppID
	default:
		return nil, &ResponseError{StatusCode: code, MissingField: ""}
	}

	respBytes, err := httputil.ReadResponseBody(resp)
	if nil != err {
		return nil, err
	}

	session, err = parseLoginResponse(respBytes)
	if nil != err {
		return nil, err
	}
	c.session.Store(session)

	c.logger.Info().Str("display_name", session.DisplayName).Msg("Logged in")

	return session, nil
}

func parseLoginResponse(b []byte) (*types.UserSession, error) {
	if !gjson.ValidBytes(b) {
		return nil, fmt.Errorf("%w: malformed login response", ErrAuthentication)
	}

	token := gjson.GetBytes(b, "user_auth_token")
	if !token.Exists() || token.String() == "" {
		return nil, fmt.Errorf("%w: login response carries no auth token", ErrAuthentication)
	}

	return &types.UserSession{
		UserAuthToken:     token.String(),
		DisplayName:       gjson.GetBytes(b, "user.display_name").String(),
		SubscriptionLabel: gjson.GetBytes(b, "user.subscription.offer").String(),
	}, nil
}
