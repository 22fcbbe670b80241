// Package download fetches remote images for RemoteImageSource.
//
// The Downloader interface is the pluggable capability; HTTPDownloader is
// the production implementation with progress reporting, retry with
// exponential backoff, and a shared in-memory LRU cache that backs the
// progressive preview fast path.
package download

import (
	"bytes"
	"context"
	"image"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ironsheep/image-source/internal/apperrors"
	"github.com/ironsheep/image-source/internal/config"
	"github.com/ironsheep/image-source/internal/imaging"
	"github.com/ironsheep/image-source/internal/logging"
)

// ProgressFunc reports bytes received so far and the expected total. The
// total is -1 when the server did not send a length.
type ProgressFunc func(received, expected int64)

// Result is the outcome of one fetch.
type Result struct {
	// Image is the decoded, upright image.
	Image image.Image
	// Data is the encoded bytes as served.
	Data []byte
	Err  error
}

// CompletionFunc receives the outcome of a fetch exactly once.
type CompletionFunc func(Result)

// Handle cancels an in-flight fetch. Cancel is idempotent.
type Handle interface {
	Cancel()
}

// Downloader fetches images by URL.
type Downloader interface {
	// Fetch starts fetching url and returns immediately. progress may be
	// nil. completion is called exactly once from another goroutine, with
	// a non-nil Err when the fetch failed or was cancelled.
	Fetch(url string, progress ProgressFunc, completion CompletionFunc) Handle

	// CachedImage returns a previously fetched image without I/O.
	CachedImage(url string) (image.Image, bool)
}

type cancelHandle struct {
	once   sync.Once
	cancel context.CancelFunc
}

func (h *cancelHandle) Cancel() {
	h.once.Do(h.cancel)
}

type entry struct {
	img  image.Image
	data []byte
}

// HTTPDownloader fetches images over HTTP(S).
type HTTPDownloader struct {
	client        *http.Client
	cache         *lru.Cache
	maxAttempts   int
	retryInterval time.Duration
	userAgent     string
	maxBytes      int64
	logger        *zap.Logger
}

// NewHTTP creates an HTTPDownloader. client may be nil to use a client
// with cfg.Timeout.
func NewHTTP(cfg config.RemoteConfig, client *http.Client, logger *zap.Logger) (*HTTPDownloader, error) {
	cache, err := lru.New(cfg.CacheEntries)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryConfig, "download.new", err)
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = config.Default().Remote.MaxBytes
	}
	return &HTTPDownloader{
		client:        client,
		cache:         cache,
		maxAttempts:   attempts,
		retryInterval: cfg.RetryInterval,
		userAgent:     cfg.UserAgent,
		maxBytes:      maxBytes,
		logger:        logging.OrNop(logger).Named("download"),
	}, nil
}

// CachedImage implements Downloader.
func (d *HTTPDownloader) CachedImage(url string) (image.Image, bool) {
	v, ok := d.cache.Get(url)
	if !ok {
		return nil, false
	}
	return v.(entry).img, true
}

// Fetch implements Downloader. Cached URLs complete without network access
// and without progress callbacks.
func (d *HTTPDownloader) Fetch(url string, progress ProgressFunc, completion CompletionFunc) Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &cancelHandle{cancel: cancel}
	go func() {
		defer h.Cancel()
		completion(d.fetch(ctx, url, progress))
	}()
	return h
}

func (d *HTTPDownloader) fetch(ctx context.Context, url string, progress ProgressFunc) Result {
	if v, ok := d.cache.Get(url); ok {
		e := v.(entry)
		return Result{Image: e.img, Data: e.data}
	}

	var data []byte
	attempt := 0
	op := func() error {
		attempt++
		b, err := d.get(ctx, url, progress)
		if err != nil {
			if !apperrors.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			d.logger.Debug("fetch attempt failed", zap.String("url", url), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		data = b
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	if d.retryInterval > 0 {
		policy.InitialInterval = d.retryInterval
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(d.maxAttempts-1)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if ctx.Err() != nil {
			err = apperrors.New(apperrors.CategoryCancelled, "download.fetch", apperrors.ErrCancelled)
		}
		return Result{Err: err}
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{Err: err}
	}
	d.cache.Add(url, entry{img: img, data: data})
	d.logger.Debug("fetched", zap.String("url", url), zap.Int("bytes", len(data)), zap.Int("attempts", attempt))
	return Result{Image: img, Data: data}
}

func (d *HTTPDownloader) get(ctx context.Context, url string, progress ProgressFunc) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryNetwork, "download.request", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Wrap(apperrors.CategoryCancelled, "download.get", ctx.Err())
		}
		return nil, apperrors.Transient("download.get", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, apperrors.Transient("download.get", errors.Wrapf(apperrors.ErrBadStatus, "%s: %d", url, resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.New(apperrors.CategoryNotFound, "download.get", errors.Wrapf(apperrors.ErrBadStatus, "%s: %d", url, resp.StatusCode))
	default:
		return nil, apperrors.New(apperrors.CategoryNetwork, "download.get", errors.Wrapf(apperrors.ErrBadStatus, "%s: %d", url, resp.StatusCode))
	}

	if resp.ContentLength > d.maxBytes {
		return nil, apperrors.New(apperrors.CategoryNetwork, "download.get",
			errors.Wrapf(apperrors.ErrTooLarge, "%s: content length %d exceeds %d", url, resp.ContentLength, d.maxBytes))
	}

	var r io.Reader = io.LimitReader(resp.Body, d.maxBytes+1)
	if progress != nil {
		r = &progressReader{r: r, expected: resp.ContentLength, fn: progress}
	}
	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	n, err := io.Copy(&buf, r)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Wrap(apperrors.CategoryCancelled, "download.read", ctx.Err())
		}
		return nil, apperrors.Transient("download.read", err)
	}
	if n > d.maxBytes {
		return nil, apperrors.New(apperrors.CategoryNetwork, "download.read",
			errors.Wrapf(apperrors.ErrTooLarge, "%s: body exceeds %d bytes", url, d.maxBytes))
	}
	return buf.Bytes(), nil
}

type progressReader struct {
	r        io.Reader
	received int64
	expected int64
	fn       ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.received += int64(n)
		p.fn(p.received, p.expected)
	}
	return n, err
}
