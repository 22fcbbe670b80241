package source

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ironsheep/image-source/internal/apperrors"
	"github.com/ironsheep/image-source/internal/imaging"
	"github.com/ironsheep/image-source/internal/request"
)

// CroppedImageSource renders a user crop of another source. The crop is
// computed once, written to a temporary JPEG and then served by a
// LocalImageSource. Close removes the file.
type CroppedImageSource struct {
	base
	original   ImageSource
	params     imaging.CroppingParameters
	tempDir    string
	background color.Color

	mu       sync.Mutex
	derived  *LocalImageSource
	inflight *renderCall
	closed   bool
}

// CropOption configures a CroppedImageSource.
type CropOption func(*CroppedImageSource)

// WithTempDir sets the directory the rendered crop is written to.
func WithTempDir(dir string) CropOption {
	return func(s *CroppedImageSource) { s.tempDir = dir }
}

// WithBackground sets the fill for output areas the source does not cover.
func WithBackground(c color.Color) CropOption {
	return func(s *CroppedImageSource) { s.background = c }
}

// NewCroppedImageSource returns a source for the crop of original
// described by params.
func NewCroppedImageSource(original ImageSource, params imaging.CroppingParameters, env Env, opts ...CropOption) *CroppedImageSource {
	s := &CroppedImageSource{
		original:   original,
		params:     params,
		tempDir:    os.TempDir(),
		background: color.Black,
	}
	for _, o := range opts {
		o(s)
	}
	s.init("crop", env)
	return s
}

// Original returns the source being cropped.
func (s *CroppedImageSource) Original() ImageSource { return s.original }

// Parameters returns the crop geometry.
func (s *CroppedImageSource) Parameters() imaging.CroppingParameters { return s.params }

// RequestImage implements ImageSource. The first request starts the
// render; concurrent first requests join it. Requests are forwarded to
// the rendered file once it exists.
func (s *CroppedImageSource) RequestImage(opts request.Options, handler ResultHandler) request.RequestID {
	t := s.newTicket(opts, handler)
	leave := s.awaitDerived(func(local *LocalImageSource, err error) {
		if t.cancelled() {
			return
		}
		if err != nil {
			s.complete(t, nil, err)
			return
		}
		innerID := local.RequestImage(opts, func(r request.Result) {
			s.deliverNow(t, r.Image, r.Degraded)
		})
		t.onCancel(func() { local.CancelRequest(innerID) })
	})
	t.onCancel(leave)
	return t.id
}

// awaitDerived calls fn with the rendered source, starting the render if
// none is running. fn never runs with s.mu held. The returned func
// withdraws interest; a render nobody waits for any more is abandoned.
func (s *CroppedImageSource) awaitDerived(fn func(*LocalImageSource, error)) (leave func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn(nil, apperrors.New(apperrors.CategoryStorage, "crop.derive", os.ErrClosed))
		return func() {}
	}
	if local := s.derived; local != nil {
		s.mu.Unlock()
		fn(local, nil)
		return func() {}
	}
	// A call still in s.inflight has not finished, so join only fails
	// for a render that was abandoned.
	c, fresh := s.inflight, false
	if c == nil || !c.join(fn) {
		c, fresh = newRenderCall(), true
		c.join(fn)
		s.inflight = c
	}
	s.mu.Unlock()

	if fresh {
		s.startRender(c)
	}
	return c.leave
}

// startRender requests the original and renders it on the crop queue. No
// queue slot is held while the original loads.
func (s *CroppedImageSource) startRender(c *renderCall) {
	var mu sync.Mutex
	var id request.RequestID
	context.AfterFunc(c.ctx, func() {
		mu.Lock()
		orig := id
		mu.Unlock()
		if !orig.IsZero() {
			s.original.CancelRequest(orig)
		}
		s.finishRender(c, nil, apperrors.New(apperrors.CategoryCancelled, "crop.derive", apperrors.ErrCancelled))
	})

	opts := request.Options{Size: request.FullResolution(), DeliveryMode: request.Best}
	orig := s.original.RequestImage(opts, func(r request.Result) {
		if c.ctx.Err() != nil {
			return
		}
		if r.Image == nil {
			s.finishRender(c, nil, apperrors.New(apperrors.CategoryNotFound, "crop.original", apperrors.ErrNoImage))
			return
		}
		s.env.Queues.Crop.Submit(c.ctx, func(context.Context) {
			local, err := s.render(r.Image)
			s.finishRender(c, local, err)
		}, nil)
	})
	mu.Lock()
	id = orig
	mu.Unlock()
	if c.ctx.Err() != nil {
		s.original.CancelRequest(orig)
	}
}

// render crops src and writes the result to a new file.
func (s *CroppedImageSource) render(src image.Image) (*LocalImageSource, error) {
	rendered, err := imaging.RenderCrop(src, s.params, s.background)
	if err != nil {
		return nil, err
	}
	data, err := imaging.EncodeJPEG(rendered, s.env.JPEGQuality)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(s.tempDir, "crop-"+uuid.NewString()+".jpg")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "crop.derive", err)
	}
	s.env.Logger.Debug("crop rendered", zap.String("path", path), zap.Stringer("size", s.params.OutputSize()))
	return NewLocalImageSource(path, s.env), nil
}

// finishRender records the outcome of c and wakes its waiters. Failures
// are not cached, so a later request renders again.
func (s *CroppedImageSource) finishRender(c *renderCall, local *LocalImageSource, err error) {
	s.mu.Lock()
	if s.inflight == c {
		s.inflight = nil
	}
	var stale string
	if err == nil {
		switch {
		case s.closed:
			stale, local = local.Path(), nil
			err = apperrors.New(apperrors.CategoryStorage, "crop.derive", os.ErrClosed)
		case s.derived != nil:
			stale, local = local.Path(), s.derived
		default:
			s.derived = local
		}
	}
	s.mu.Unlock()

	if stale != "" {
		if rmErr := os.Remove(stale); rmErr != nil && !os.IsNotExist(rmErr) {
			s.env.Logger.Warn("removing crop", zap.String("path", stale), zap.Error(rmErr))
		}
	}
	c.complete(local, err)
}

// renderCall is one render of the crop shared by every request waiting
// for it.
type renderCall struct {
	ctx  context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	done    bool
	refs    int
	waiters []func(*LocalImageSource, error)
}

func newRenderCall() *renderCall {
	ctx, stop := context.WithCancel(context.Background())
	return &renderCall{ctx: ctx, stop: stop}
}

// join adds fn as a waiter. It reports false when c has finished or was
// abandoned.
func (c *renderCall) join(fn func(*LocalImageSource, error)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done || c.ctx.Err() != nil {
		return false
	}
	c.refs++
	c.waiters = append(c.waiters, fn)
	return true
}

// leave drops one waiter and abandons the render when none remain.
func (c *renderCall) leave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs--
	if c.refs == 0 && !c.done {
		c.stop()
	}
}

func (c *renderCall) complete(local *LocalImageSource, err error) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, fn := range waiters {
		fn(local, err)
	}
}

// ImageSize implements ImageSource from the crop geometry alone.
func (s *CroppedImageSource) ImageSize(completion func(request.Size, bool)) {
	size := s.params.OutputSize()
	ok := s.params.Validate() == nil
	s.dispatch(func() { completion(size, ok) })
}

// FullResolutionImageData implements ImageSource with the rendered JPEG.
func (s *CroppedImageSource) FullResolutionImageData(completion func([]byte)) {
	s.awaitDerived(func(local *LocalImageSource, err error) {
		if err != nil {
			s.env.Logger.Debug("crop failed", zap.Error(err))
			s.dispatch(func() { completion(nil) })
			return
		}
		local.FullResolutionImageData(completion)
	})
}

// IsEqualTo implements ImageSource.
func (s *CroppedImageSource) IsEqualTo(other ImageSource) bool {
	o, ok := other.(*CroppedImageSource)
	return ok && o.params == s.params && s.original.IsEqualTo(o.original)
}

// Close deletes the rendered file and abandons a render in progress.
// Later requests fail.
func (s *CroppedImageSource) Close() error {
	s.mu.Lock()
	s.closed = true
	c := s.inflight
	s.inflight = nil
	local := s.derived
	s.derived = nil
	s.mu.Unlock()

	if c != nil {
		c.stop()
	}
	if local == nil {
		return nil
	}
	if err := os.Remove(local.Path()); err != nil && !os.IsNotExist(err) {
		return apperrors.Wrap(apperrors.CategoryStorage, "crop.close", err)
	}
	return nil
}
