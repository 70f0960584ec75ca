package httputil

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

func ReadResponseBody(resp *http.Response) ([]byte, error) {
	respBody, err := io.ReadAll(resp.Body)
	if nil != err {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("unexpected empty response body")
		}

		return nil, fmt.Errorf("failed to read response body: %v", err)
	}

	return respBody, nil
}

// UserAgent is sent on every request. The vendor API only answers clients
// that look like the desktop web player.
const UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"
