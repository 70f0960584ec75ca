package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/xeptore/qbz/httputil"
	"github.com/xeptore/qbz/qobuz/types"
)

func (c *Client) SearchAlbums(ctx context.Context, query string, limit int) (*types.SearchPage[types.Album], error) {
	return searchPage[types.Album](ctx, c, "/album/search", "albums", query, limit)
}

func (c *Client) SearchTracks(ctx context.Context, query string, limit int) (*types.SearchPage[types.Track], error) {
	return searchPage[types.Track](ctx, c, "/track/search", "tracks", query, limit)
}

func (c *Client) SearchArtists(ctx context.Context, query string, limit int) (*types.SearchPage[types.Artist], error) {
	return searchPage[types.Artist](ctx, c, "/artist/search", "artists", query, limit)
}

// searchPage fetches a search endpoint and unwraps its named top-level key.
// A 200 response missing that key is an API contract break, not a miss.
func searchPage[T any](
	ctx context.Context,
	c *Client,
	path, key, query string,
	limit int,
) (*types.SearchPage[T], error) {
	params := make(url.Values, 2)
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))

	respBytes, err := c.getOK(ctx, path, params, false)
	if nil != err {
		return nil, err
	}

	res := gjson.GetBytes(respBytes, key)
	if !res.Exists() {
		return nil, &ResponseError{StatusCode: http.StatusOK, MissingField: key}
	}

	var page types.SearchPage[T]
	if err := json.Unmarshal([]byte(res.Raw), &page); nil != err {
		return nil, fmt.Errorf("failed to decode %s search response: %w", key, err)
	}

	return &page, nil
}

func (c *Client) GetAlbum(ctx context.Context, albumID string) (*types.Album, error) {
	params := make(url.Values, 1)
	params.Set("album_id", albumID)

	respBytes, err := c.getOK(ctx, "/album/get", params, false)
	if nil != err {
		return nil, err
	}

	var album types.Album
	if err := json.Unmarshal(respBytes, &album); nil != err {
		return nil, fmt.Errorf("failed to decode album response: %w", err)
	}

	return &album, nil
}

func (c *Client) GetTrack(ctx context.Context, trackID uint64) (*types.Track, error) {
	params := make(url.Values, 1)
	params.Set("track_id", strconv.FormatUint(trackID, 10))

	respBytes, err := c.getOK(ctx, "/track/get", params, false)
	if nil != err {
		return nil, err
	}

	var track types.Track
	if err := json.Unmarshal(respBytes, &track); nil != err {
		return nil, fmt.Errorf("failed to decode track response: %w", err)
	}

	return &track, nil
}

func (c *Client) GetArtist(ctx context.Context, artistID uint64, withAlbums bool) (*types.Artist, error) {
	params := make(url.Values, 2)
	params.Set("artist_id", strconv.FormatUint(artistID, 10))
	if withAlbums {
		params.Set("extra", "albums")
	}

	respBytes, err := c.getOK(ctx, "/artist/get", params, false)
	if nil != err {
		return nil, err
	}

	var artist types.Artist
	if err := json.Unmarshal(respBytes, &artist); nil != err {
		return nil, fmt.Errorf("failed to decode artist response: %w", err)
	}

	return &artist, nil
}

func (c *Client) GetPlaylist(ctx context.Context, playlistID uint64) (*types.Playlist, error) {
	params := make(url.Values, 2)
	params.Set("playlist_id", strconv.FormatUint(playlistID, 10))
	params.Set("limit", "500")

	respBytes, err := c.getOK(ctx, "/playlist/get", params, false)
	if nil != err {
		return nil, err
	}

	var playlist types.Playlist
	if err := json.Unmarshal(respBytes, &playlist); nil != err {
		return nil, fmt.Errorf("failed to decode playlist response: %w", err)
	}

	return &playlist, nil
}

func (c *Client) GetUserPlaylists(ctx context.Context) ([]types.Playlist, error) {
	respBytes, err := c.getOK(ctx, "/playlist/getUserPlaylists", nil, true)
	if nil != err {
		return nil, err
	}

	res := gjson.GetBytes(respBytes, "playlists.items")
	if !res.Exists() {
		return nil, &ResponseError{StatusCode: http.StatusOK, MissingField: "playlists"}
	}

	var playlists []types.Playlist
	if err := json.Unmarshal([]byte(res.Raw), &playlists); nil != err {
		return nil, fmt.Errorf("failed to decode user playlists response: %w", err)
	}

	return playlists, nil
}

// getOK sends a GET request and reads a 200 response body. Any other status
// surfaces as a ResponseError carrying the code.
func (c *Client) getOK(ctx context.Context, path string, params url.Values, withAuth bool) (b []byte, err error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, params, nil)
	if nil != err {
		return nil, err
	}
	if withAuth {
		token, err := c.authToken()
		if nil != err {
			return nil, err
		}
		req.Header.Set("X-User-Auth-Token", token)
	}

	resp, err := c.do(req)
	if nil != err {
		return nil, fmt.Errorf("failed to send %s request: %w", path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close %s response body: %v", path, closeErr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &ResponseError{StatusCode: resp.StatusCode, MissingField: ""}
	}

	return httputil.ReadResponseBody(resp)
}
