package qobuz

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/xeptore/qbz/cache"
	"github.com/xeptore/qbz/config"
	"github.com/xeptore/qbz/qobuz/api"
	"github.com/xeptore/qbz/qobuz/types"
	"github.com/xeptore/qbz/unit"
)

var (
	ErrInvalidAppSecret   = api.ErrInvalidAppSecret
	ErrInvalidAppID       = api.ErrInvalidAppID
	ErrAuthentication     = api.ErrAuthentication
	ErrNotLoggedIn        = api.ErrNotLoggedIn
	ErrNoQualityAvailable = api.ErrNoQualityAvailable
)

// Client bundles the API client with the audio cache, the metadata cache,
// and the background prefetcher.
type Client struct {
	logger     zerolog.Logger
	api        *api.Client
	audio      *cache.AudioCache
	meta       *cache.Meta
	prefetcher *cache.Prefetcher
	preferred  types.Quality
}

func NewClient(logger zerolog.Logger, conf config.Qobuz) (*Client, error) {
	apiClient, err := api.NewClient(logger, api.Options{
		WebBaseURL:     conf.WebBaseURL,
		APIBaseURL:     conf.APIBaseURL,
		Signer:         nil,
		RequestTimeout: time.Duration(conf.Timeouts.Request) * time.Second,
		RequestsPerSec: conf.Limits.RequestsPerSec,
		RequestsBurst:  conf.Limits.Burst,
	})
	if nil != err {
		return nil, fmt.Errorf("failed to create API client: %v", err)
	}

	var (
		audio = cache.NewAudioCache(logger, conf.Cache.MaxSizeMB*unit.Mebibyte)
		pf    = cache.NewPrefetcher(
			logger,
			audio,
			time.Duration(conf.Timeouts.Download)*time.Second,
			time.Duration(conf.Timeouts.Connect)*time.Second,
		)
	)

	return &Client{
		logger:     logger,
		api:        apiClient,
		audio:      audio,
		meta:       cache.NewMeta(),
		prefetcher: pf,
		preferred:  conf.PreferredQuality(),
	}, nil
}

// Init extracts bundle tokens, retrying transient scrape failures the same
// way as any other flaky network fetch.
func (c *Client) Init(ctx context.Context) error {
	err := retry.Do(
		ctx,
		retry.WithMaxRetries(3, retry.NewFibonacci(1*time.Second)),
		func(ctx context.Context) error {
			if err := c.api.Init(ctx); nil != err {
				if ctxErr := ctx.Err(); nil != ctxErr {
					return err
				}

				return retry.RetryableError(err)
			}

			return nil
		},
	)
	if nil != err {
		return fmt.Errorf("failed to initialize client: %w", err)
	}

	return nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*types.UserSession, error) {
	return c.api.Login(ctx, email, password)
}

func (c *Client) Logout() {
	c.api.Logout()
}

func (c *Client) IsLoggedIn() bool {
	return c.api.IsLoggedIn()
}

func (c *Client) Session() (*types.UserSession, bool) {
	return c.api.Session()
}

func (c *Client) SearchAlbums(ctx context.Context, query string, limit int) (*types.SearchPage[types.Album], error) {
	return c.api.SearchAlbums(ctx, query, limit)
}

func (c *Client) SearchTracks(ctx context.Context, query string, limit int) (*types.SearchPage[types.Track], error) {
	return c.api.SearchTracks(ctx, query, limit)
}

func (c *Client) SearchArtists(ctx context.Context, query string, limit int) (*types.SearchPage[types.Artist], error) {
	return c.api.SearchArtists(ctx, query, limit)
}

func (c *Client) GetAlbum(ctx context.Context, albumID string) (*types.Album, error) {
	item, err := c.meta.Albums.Fetch(albumID, cache.DefaultAlbumTTL, func() (*types.Album, error) {
		return c.api.GetAlbum(ctx, albumID)
	})
	if nil != err {
		return nil, err
	}

	return item.Value(), nil
}

func (c *Client) GetTrack(ctx context.Context, trackID uint64) (*types.Track, error) {
	k := strconv.FormatUint(trackID, 10)
	item, err := c.meta.Tracks.Fetch(k, cache.DefaultTrackTTL, func() (*types.Track, error) {
		return c.api.GetTrack(ctx, trackID)
	})
	if nil != err {
		return nil, err
	}

	return item.Value(), nil
}

func (c *Client) GetArtist(ctx context.Context, artistID uint64, withAlbums bool) (*types.Artist, error) {
	return c.api.GetArtist(ctx, artistID, withAlbums)
}

func (c *Client) GetPlaylist(ctx context.Context, playlistID uint64) (*types.Playlist, error) {
	k := strconv.FormatUint(playlistID, 10)
	item, err := c.meta.Playlists.Fetch(k, cache.DefaultPlaylistTTL, func() (*types.Playlist, error) {
		return c.api.GetPlaylist(ctx, playlistID)
	})
	if nil != err {
		return nil, err
	}

	return item.Value(), nil
}

func (c *Client) GetUserPlaylists(ctx context.Context) ([]types.Playlist, error) {
	return c.api.GetUserPlaylists(ctx)
}

func (c *Client) GetFavorites(ctx context.Context, kind string, limit, offset int) (json.RawMessage, error) {
	return c.api.GetFavorites(ctx, kind, limit, offset)
}

// StreamURL resolves a streaming location at the configured preferred
// quality, falling back to lower fidelity formats as needed.
func (c *Client) StreamURL(ctx context.Context, trackID uint64) (*types.StreamURL, error) {
	return c.api.GetStreamURLWithFallback(ctx, trackID, c.preferred)
}

// PrefetchTrack warms the audio cache for a track. Resolution failures
// propagate; the download itself is fire-and-forget.
func (c *Client) PrefetchTrack(ctx context.Context, trackID uint64) error {
	if c.audio.Contains(trackID) {
		return nil
	}

	streamURL, err := c.StreamURL(ctx, trackID)
	if nil != err {
		return fmt.Errorf("failed to resolve stream URL for prefetch: %w", err)
	}

	c.prefetcher.Prefetch(trackID, streamURL.URL)

	return nil
}

// CachedTrack reads a track payload from the audio cache, if present.
func (c *Client) CachedTrack(trackID uint64) (*cache.CachedTrack, bool) {
	return c.audio.Get(trackID)
}

func (c *Client) CacheStats() cache.Stats {
	return c.audio.Stats()
}

func (c *Client) ClearCache() {
	c.audio.Clear()
}

// Close shuts the prefetcher down and waits for its worker.
func (c *Client) Close() {
	c.prefetcher.Close()
}
