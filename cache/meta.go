package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/karlseguin/ccache/v3"

	"github.com/xeptore/qbz/qobuz/types"
)

var (
	DefaultAlbumTTL    = 1 * time.Hour
	DefaultTrackTTL    = 1 * time.Hour
	DefaultPlaylistTTL = 1 * time.Hour
)

// Meta memoizes catalog metadata so repeated lookups of the same album,
// track, or playlist skip the API round-trip.
type Meta struct {
	Albums    AlbumsMetaCache
	Tracks    TracksMetaCache
	Playlists PlaylistsMetaCache
}

func NewMeta() *Meta {
	albumsCache := ccache.New(
		ccache.Configure[*types.Album]().
			MaxSize(1000).
			GetsPerPromote(3).
			ItemsToPrune(1),
	)

	tracksCache := ccache.New(
		ccache.Configure[*types.Track]().
			MaxSize(10_000).
			GetsPerPromote(3).
			ItemsToPrune(1),
	)

	playlistsCache := ccache.New(
		ccache.Configure[*types.Playlist]().
			MaxSize(100).
			GetsPerPromote(3).
			ItemsToPrune(1),
	)

	return &Meta{
		Albums: AlbumsMetaCache{
			c:   albumsCache,
			mux: sync.Mutex{},
		},
		Tracks: TracksMetaCache{
			c:   tracksCache,
			mux: sync.Mutex{},
		},
		Playlists: PlaylistsMetaCache{
			c:   playlistsCache,
			mux: sync.Mutex{},
		},
	}
}

type AlbumsMetaCache struct {
	c   *ccache.Cache[*types.Album]
	mux sync.Mutex
}

func (c *AlbumsMetaCache) Fetch(
	k string,
	ttl time.Duration,
	fetch func() (*types.Album, error),
) (*ccache.Item[*types.Album], error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	v, err := c.c.Fetch(k, ttl, fetch)
	if nil != err {
		return nil, fmt.Errorf("fetch album meta: %w", err)
	}

	return v, nil
}

type TracksMetaCache struct {
	c   *ccache.Cache[*types.Track]
	mux sync.Mutex
}

func (c *TracksMetaCache) Fetch(
	k string,
	ttl time.Duration,
	fetch func() (*types.Track, error),
) (*ccache.Item[*types.Track], error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	v, err := c.c.Fetch(k, ttl, fetch)
	if nil != err {
		return nil, fmt.Errorf("fetch track meta: %w", err)
	}

	return v, nil
}

type PlaylistsMetaCache struct {
	c   *ccache.Cache[*types.Playlist]
	mux sync.Mutex
}

func (c *PlaylistsMetaCache) Fetch(
	k string,
	ttl time.Duration,
	fetch func() (*types.Playlist, error),
) (*ccache.Item[*types.Playlist], error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	v, err := c.c.Fetch(k, ttl, fetch)
	if nil != err {
		return nil, fmt.Errorf("fetch playlist meta: %w", err)
	}

	return v, nil
}
