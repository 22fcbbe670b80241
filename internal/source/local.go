package source

import (
	"context"
	"image"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ironsheep/image-source/internal/apperrors"
	"github.com/ironsheep/image-source/internal/imaging"
	"github.com/ironsheep/image-source/internal/request"
)

// LocalImageSource reads an image file from the local filesystem.
type LocalImageSource struct {
	base
	path string
	size cell[request.Size]
}

// NewLocalImageSource returns a source for the file at path. The file is
// not touched until something is requested.
func NewLocalImageSource(path string, env Env) *LocalImageSource {
	s := &LocalImageSource{path: filepath.Clean(path)}
	s.init("local", env)
	return s
}

// Path returns the file location.
func (s *LocalImageSource) Path() string { return s.path }

// RequestImage implements ImageSource. Decoding and scaling run on the
// local queue; the handler is called once.
func (s *LocalImageSource) RequestImage(opts request.Options, handler ResultHandler) request.RequestID {
	t := s.newTicket(opts, handler)
	s.submit(s.env.Queues.Local, t, func(ctx context.Context) {
		img, err := s.load(ctx, opts.Size)
		if err != nil && apperrors.IsCategory(err, apperrors.CategoryCancelled) {
			return
		}
		s.complete(t, img, err)
	})
	return t.id
}

// load decodes, orients and scales the file, checking ctx between steps.
func (s *LocalImageSource) load(ctx context.Context, opt request.SizeOption) (image.Image, error) {
	if ctx.Err() != nil {
		return nil, apperrors.New(apperrors.CategoryCancelled, "local.load", apperrors.ErrCancelled)
	}
	img, err := imaging.Open(s.path)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, apperrors.New(apperrors.CategoryCancelled, "local.load", apperrors.ErrCancelled)
	}
	s.env.Logger.Debug("decoded", zap.String("path", s.path), zap.Stringer("size", imaging.SizeOf(img)))
	return imaging.Scale(img, opt), nil
}

// ImageSize implements ImageSource. The size comes from the file header
// and EXIF orientation without decoding pixels, and is cached.
func (s *LocalImageSource) ImageSize(completion func(request.Size, bool)) {
	if size, ok := s.size.get(); ok {
		s.dispatch(func() { completion(size, true) })
		return
	}
	s.env.Queues.Local.Submit(context.Background(), func(context.Context) {
		info, err := imaging.Probe(s.path)
		if err != nil {
			s.env.Logger.Debug("probe failed", zap.String("path", s.path), zap.Error(err))
			s.dispatch(func() { completion(request.Size{}, false) })
			return
		}
		size := info.DisplaySize()
		s.size.put(size)
		s.dispatch(func() { completion(size, true) })
	}, nil)
}

// FullResolutionImageData implements ImageSource with the file's bytes.
func (s *LocalImageSource) FullResolutionImageData(completion func([]byte)) {
	s.env.Queues.Local.Submit(context.Background(), func(context.Context) {
		data, err := os.ReadFile(s.path)
		if err != nil {
			s.env.Logger.Debug("read failed", zap.String("path", s.path), zap.Error(err))
			data = nil
		}
		s.dispatch(func() { completion(data) })
	}, nil)
}

// IsEqualTo implements ImageSource.
func (s *LocalImageSource) IsEqualTo(other ImageSource) bool {
	o, ok := other.(*LocalImageSource)
	return ok && o.path == s.path
}
