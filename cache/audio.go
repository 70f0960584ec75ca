package cache

import (
	"bytes"
	"sync"

	"github.com/rs/zerolog"

	"github.com/xeptore/qbz/must"
)

// CachedTrack is an audio payload held by the cache. The cache owns the
// bytes exclusively; Get hands out copies.
type CachedTrack struct {
	TrackID   uint64
	Data      []byte
	SizeBytes int
}

// AudioCache is a byte-budgeted LRU store of downloaded track payloads.
//
// Four regions are locked independently (entries, access order, size
// counter, fetching set). Public operations acquire the locks they need in
// sequence, so cross-operation interleavings are possible; the only
// compound guarantee is Reserve, which checks and marks fetch ownership
// under a single critical section. Lock acquisition order, where nested, is
// size, then entries, then order.
type AudioCache struct {
	logger       zerolog.Logger
	maxSizeBytes int

	entriesMux sync.Mutex
	entries    map[uint64]CachedTrack

	// Oldest-used at the front, most-recently-used at the back. Linear
	// scans are fine at the cardinalities a 500MB budget allows.
	orderMux sync.Mutex
	order    []uint64

	sizeMux sync.Mutex
	size    int

	fetchingMux sync.Mutex
	fetching    map[uint64]struct{}
}

func NewAudioCache(logger zerolog.Logger, maxSizeBytes int) *AudioCache {
	return &AudioCache{
		logger:       logger,
		maxSizeBytes: maxSizeBytes,
		entriesMux:   sync.Mutex{},
		entries:      make(map[uint64]CachedTrack),
		orderMux:     sync.Mutex{},
		order:        nil,
		sizeMux:      sync.Mutex{},
		size:         0,
		fetchingMux:  sync.Mutex{},
		fetching:     make(map[uint64]struct{}),
	}
}

// Get returns a copy of the cached payload and promotes the track to
// most-recently-used. A miss is not an error.
func (c *AudioCache) Get(trackID uint64) (*CachedTrack, bool) {
	c.entriesMux.Lock()
	defer c.entriesMux.Unlock()

	track, ok := c.entries[trackID]
	if !ok {
		c.logger.Debug().Uint64("track_id", trackID).Msg("Audio cache miss")
		return nil, false
	}

	c.promote(trackID)
	c.logger.Debug().Uint64("track_id", trackID).Msg("Audio cache hit")

	return &CachedTrack{
		TrackID:   track.TrackID,
		Data:      bytes.Clone(track.Data),
		SizeBytes: track.SizeBytes,
	}, true
}

// Contains reports membership without promoting.
func (c *AudioCache) Contains(trackID uint64) bool {
	c.entriesMux.Lock()
	defer c.entriesMux.Unlock()

	_, ok := c.entries[trackID]

	return ok
}

// Reserve atomically claims the fetch for a track. It returns false when
// the track is already cached or another fetch is in flight; a true return
// hands the caller ownership, to be returned via Release once the fetch
// settles.
func (c *AudioCache) Reserve(trackID uint64) bool {
	if c.Contains(trackID) {
		return false
	}

	c.fetchingMux.Lock()
	defer c.fetchingMux.Unlock()

	if _, ok := c.fetching[trackID]; ok {
		return false
	}
	c.fetching[trackID] = struct{}{}

	return true
}

func (c *AudioCache) Release(trackID uint64) {
	c.fetchingMux.Lock()
	defer c.fetchingMux.Unlock()

	delete(c.fetching, trackID)
}

// Insert stores a payload, evicting least-recently-used entries until it
// fits. Payloads larger than the whole budget are dropped. Re-inserting an
// existing track replaces it, with size accounting adjusted by the delta.
func (c *AudioCache) Insert(trackID uint64, data []byte) {
	size := len(data)

	if size > c.maxSizeBytes {
		c.logger.
			Warn().
			Uint64("track_id", trackID).
			Int("size_bytes", size).
			Int("max_size_bytes", c.maxSizeBytes).
			Msg("Track too large for audio cache")

		return
	}

	c.evictToFit(size)

	c.entriesMux.Lock()
	existing, existed := c.entries[trackID]
	c.entries[trackID] = CachedTrack{TrackID: trackID, Data: data, SizeBytes: size}
	c.entriesMux.Unlock()

	// Replacing an entry adjusts accounting by the delta, not by re-summing.
	delta := size
	if existed {
		delta -= existing.SizeBytes
	}

	c.sizeMux.Lock()
	c.size += delta
	currentSize := c.size
	c.sizeMux.Unlock()

	c.orderMux.Lock()
	c.removeFromOrder(trackID)
	c.order = append(c.order, trackID)
	c.orderMux.Unlock()

	c.logger.
		Info().
		Uint64("track_id", trackID).
		Int("size_bytes", size).
		Int("cache_size_bytes", currentSize).
		Int("max_size_bytes", c.maxSizeBytes).
		Msg("Track cached")
}

// evictToFit removes entries from the front of the LRU order while the new
// payload would overflow the budget.
func (c *AudioCache) evictToFit(newSize int) {
	c.sizeMux.Lock()
	defer c.sizeMux.Unlock()
	c.entriesMux.Lock()
	defer c.entriesMux.Unlock()
	c.orderMux.Lock()
	defer c.orderMux.Unlock()

	for c.size+newSize > c.maxSizeBytes && len(c.order) > 0 {
		oldestID := c.order[0]
		c.order = c.order[1:]
		if track, ok := c.entries[oldestID]; ok {
			delete(c.entries, oldestID)
			c.size -= track.SizeBytes
			c.logger.
				Debug().
				Uint64("track_id", oldestID).
				Int("size_bytes", track.SizeBytes).
				Msg("Evicted track from audio cache")
		}
	}

	must.Be(c.size >= 0, "audio cache size accounting must not go negative")
}

// Clear empties all four regions. Each is cleared under its own lock, not
// as one transaction.
func (c *AudioCache) Clear() {
	c.entriesMux.Lock()
	clear(c.entries)
	c.entriesMux.Unlock()

	c.orderMux.Lock()
	c.order = nil
	c.orderMux.Unlock()

	c.sizeMux.Lock()
	c.size = 0
	c.sizeMux.Unlock()

	c.fetchingMux.Lock()
	clear(c.fetching)
	c.fetchingMux.Unlock()

	c.logger.Info().Msg("Audio cache cleared")
}

// Stats never fails; suitable for serialization to a monitoring consumer.
func (c *AudioCache) Stats() Stats {
	c.entriesMux.Lock()
	cached := len(c.entries)
	c.entriesMux.Unlock()

	c.sizeMux.Lock()
	size := c.size
	c.sizeMux.Unlock()

	c.fetchingMux.Lock()
	fetching := len(c.fetching)
	c.fetchingMux.Unlock()

	return Stats{
		CachedTracks:     cached,
		CurrentSizeBytes: size,
		MaxSizeBytes:     c.maxSizeBytes,
		FetchingCount:    fetching,
	}
}

// promote moves the track to the most-recently-used position. Caller holds
// entriesMux.
func (c *AudioCache) promote(trackID uint64) {
	c.orderMux.Lock()
	defer c.orderMux.Unlock()

	c.removeFromOrder(trackID)
	c.order = append(c.order, trackID)
}

// removeFromOrder deletes the track id from the order list if present.
// Caller holds orderMux.
func (c *AudioCache) removeFromOrder(trackID uint64) {
	for i, id := range c.order {
		if id == trackID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

type Stats struct {
	CachedTracks     int `json:"cached_tracks"`
	CurrentSizeBytes int `json:"current_size_bytes"`
	MaxSizeBytes     int `json:"max_size_bytes"`
	FetchingCount    int `json:"fetching_count"`
}
