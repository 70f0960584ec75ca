package cache

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/xeptore/qbz/httputil"
)

// PrefetchRequest asks the background worker to warm the audio cache for an
// upcoming track.
type PrefetchRequest struct {
	TrackID uint64
	URL     string
}

const prefetchQueueSize = 10

// Prefetcher drains a bounded FIFO queue with a single worker and populates
// the audio cache without blocking callers. Download failures are logged
// and dropped; playback falls back to an on-demand fetch.
type Prefetcher struct {
	logger     zerolog.Logger
	cache      *AudioCache
	http       *http.Client
	reqs       chan PrefetchRequest
	stop       chan struct{}
	workerDone chan struct{}
	closeOnce  sync.Once
}

func NewPrefetcher(logger zerolog.Logger, c *AudioCache, downloadTimeout, connectTimeout time.Duration) *Prefetcher {
	//nolint:exhaustruct
	httpClient := &http.Client{
		Timeout: downloadTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext, //nolint:exhaustruct
		},
	}

	p := &Prefetcher{
		logger:     logger,
		cache:      c,
		http:       httpClient,
		reqs:       make(chan PrefetchRequest, prefetchQueueSize),
		stop:       make(chan struct{}),
		workerDone: make(chan struct{}),
		closeOnce:  sync.Once{},
	}
	go p.run()

	return p
}

// Prefetch enqueues a request without blocking the caller. A full queue
// makes the enqueue attempt itself wait in the background. Requests issued
// after Close are dropped.
func (p *Prefetcher) Prefetch(trackID uint64, url string) {
	go func() {
		select {
		case p.reqs <- PrefetchRequest{TrackID: trackID, URL: url}:
		case <-p.stop:
			p.logger.Debug().Uint64("track_id", trackID).Msg("Prefetcher is closed, dropping request")
		}
	}()
}

// Close stops the worker and waits for the in-flight download, if any, to
// settle. Queued requests are discarded.
func (p *Prefetcher) Close() {
	p.closeOnce.Do(func() { close(p.stop) })
	<-p.workerDone
}

func (p *Prefetcher) run() {
	defer close(p.workerDone)
	for {
		select {
		case <-p.stop:
			return
		case req := <-p.reqs:
			p.handle(req)
		}
	}
}

func (p *Prefetcher) handle(req PrefetchRequest) {
	if !p.cache.Reserve(req.TrackID) {
		p.logger.Debug().Uint64("track_id", req.TrackID).Msg("Track already cached or being fetched")
		return
	}
	defer p.cache.Release(req.TrackID)

	p.logger.Info().Uint64("track_id", req.TrackID).Msg("Prefetching track")

	data, err := p.download(req.URL)
	if nil != err {
		p.logger.Warn().Err(err).Uint64("track_id", req.TrackID).Msg("Prefetch failed")
		return
	}

	p.logger.
		Info().
		Uint64("track_id", req.TrackID).
		Int("size_bytes", len(data)).
		Str("content_type", mimetype.Detect(data).String()).
		Msg("Prefetch complete")

	p.cache.Insert(req.TrackID, data)
}

func (p *Prefetcher) download(url string) ([]byte, error) {
	var data []byte
	op := func() (err error) {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if nil != err {
			return backoff.Permanent(fmt.Errorf("failed to create download request: %v", err))
		}
		req.Header.Set("User-Agent", httputil.UserAgent)

		resp, err := p.http.Do(req)
		if nil != err {
			return fmt.Errorf("failed to send download request: %w", err)
		}
		defer func() {
			if closeErr := resp.Body.Close(); nil != closeErr {
				err = errors.Join(err, fmt.Errorf("failed to close download response body: %v", closeErr))
			}
		}()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected download status code: %d", resp.StatusCode)
		}

		b, err := io.ReadAll(resp.Body)
		if nil != err {
			return fmt.Errorf("failed to read download response body: %w", err)
		}
		data = b

		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	if err := backoff.Retry(op, bo); nil != err {
		return nil, err
	}

	return data, nil
}
