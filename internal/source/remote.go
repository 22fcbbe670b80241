package source

import (
	"context"
	"image"

	"go.uber.org/zap"

	"github.com/ironsheep/image-source/internal/apperrors"
	"github.com/ironsheep/image-source/internal/download"
	"github.com/ironsheep/image-source/internal/imaging"
	"github.com/ironsheep/image-source/internal/request"
)

// RemoteImageSource fetches an image by URL through a Downloader.
type RemoteImageSource struct {
	base
	url         string
	placeholder image.Image
	downloader  download.Downloader
	size        cell[request.Size]
}

// RemoteOption configures a RemoteImageSource.
type RemoteOption func(*RemoteImageSource)

// WithPreview sets an image delivered as a degraded preview to
// progressive requests while the real one downloads.
func WithPreview(img image.Image) RemoteOption {
	return func(s *RemoteImageSource) { s.placeholder = img }
}

// NewRemoteImageSource returns a source for url.
func NewRemoteImageSource(url string, downloader download.Downloader, env Env, opts ...RemoteOption) *RemoteImageSource {
	s := &RemoteImageSource{url: url, downloader: downloader}
	for _, o := range opts {
		o(s)
	}
	s.init("remote", env)
	return s
}

// URL returns the image location.
func (s *RemoteImageSource) URL() string { return s.url }

// RequestImage implements ImageSource. Under Progressive, the explicit
// preview or an already cached copy is dispatched as a degraded image
// before the fetch is queued; with the Immediate dispatcher that happens
// before this returns. OnDownloadStart fires when the fetch starts
// without a cached copy or on first progress; OnDownloadFinish fires on
// completion or inside CancelRequest.
func (s *RemoteImageSource) RequestImage(opts request.Options, handler ResultHandler) request.RequestID {
	t := s.newTicket(opts, handler)
	notify := newDownloadNotifier(opts)
	t.onCancel(notify.end)

	if opts.DeliveryMode == request.Progressive {
		preview := s.placeholder
		if preview == nil {
			if cached, ok := s.downloader.CachedImage(s.url); ok {
				preview = cached
			}
		}
		if preview != nil {
			s.preview(t, imaging.Scale(preview, opts.Size))
		}
	}

	s.submit(s.env.Queues.Remote, t, func(ctx context.Context) {
		if _, cached := s.downloader.CachedImage(s.url); !cached {
			notify.begin()
		}
		res, err := s.fetch(ctx, func(int64, int64) { notify.begin() })
		notify.end()
		if err != nil && apperrors.IsCategory(err, apperrors.CategoryCancelled) {
			return
		}
		var img image.Image
		if err == nil {
			img = imaging.Scale(res.Image, opts.Size)
		}
		s.complete(t, img, err)
	})
	return t.id
}

// fetch blocks until the download finishes or ctx is cancelled.
func (s *RemoteImageSource) fetch(ctx context.Context, progress download.ProgressFunc) (download.Result, error) {
	done := make(chan download.Result, 1)
	h := s.downloader.Fetch(s.url, progress, func(res download.Result) { done <- res })
	select {
	case res := <-done:
		if res.Err != nil {
			return res, res.Err
		}
		if res.Image == nil {
			return res, apperrors.New(apperrors.CategoryDecode, "remote.fetch", apperrors.ErrNoImage)
		}
		return res, nil
	case <-ctx.Done():
		h.Cancel()
		return download.Result{}, apperrors.New(apperrors.CategoryCancelled, "remote.fetch", apperrors.ErrCancelled)
	}
}

// ImageSize implements ImageSource. The first call downloads the image;
// the size is cached afterwards.
func (s *RemoteImageSource) ImageSize(completion func(request.Size, bool)) {
	if size, ok := s.size.get(); ok {
		s.dispatch(func() { completion(size, true) })
		return
	}
	if img, ok := s.downloader.CachedImage(s.url); ok {
		size := imaging.SizeOf(img)
		s.size.put(size)
		s.dispatch(func() { completion(size, true) })
		return
	}
	s.env.Queues.Remote.Submit(context.Background(), func(ctx context.Context) {
		res, err := s.fetch(ctx, nil)
		if err != nil {
			s.env.Logger.Debug("size fetch failed", zap.String("url", s.url), zap.Error(err))
			s.dispatch(func() { completion(request.Size{}, false) })
			return
		}
		size := imaging.SizeOf(res.Image)
		s.size.put(size)
		s.dispatch(func() { completion(size, true) })
	}, nil)
}

// FullResolutionImageData implements ImageSource with the bytes as served.
func (s *RemoteImageSource) FullResolutionImageData(completion func([]byte)) {
	s.env.Queues.Remote.Submit(context.Background(), func(ctx context.Context) {
		res, err := s.fetch(ctx, nil)
		if err != nil {
			s.env.Logger.Debug("data fetch failed", zap.String("url", s.url), zap.Error(err))
			s.dispatch(func() { completion(nil) })
			return
		}
		s.dispatch(func() { completion(res.Data) })
	}, nil)
}

// IsEqualTo implements ImageSource.
func (s *RemoteImageSource) IsEqualTo(other ImageSource) bool {
	o, ok := other.(*RemoteImageSource)
	return ok && o.url == s.url
}
