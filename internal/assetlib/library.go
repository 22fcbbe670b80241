package assetlib

import (
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/transform"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ironsheep/image-source/internal/apperrors"
	"github.com/ironsheep/image-source/internal/config"
	"github.com/ironsheep/image-source/internal/imaging"
	"github.com/ironsheep/image-source/internal/logging"
	"github.com/ironsheep/image-source/internal/request"
)

// Library is a Manager backed by a directory. Asset identifiers are file
// names relative to the root.
type Library struct {
	root          string
	previewSize   int
	progressSteps int
	delay         time.Duration
	logger        *zap.Logger

	mu       sync.Mutex
	inflight map[Token]*atomic.Bool
}

// NewLibrary creates a Library over cfg.Root.
func NewLibrary(cfg config.AssetConfig, logger *zap.Logger) (*Library, error) {
	st, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryConfig, "assetlib.new", err)
	}
	if !st.IsDir() {
		return nil, apperrors.New(apperrors.CategoryConfig, "assetlib.new", os.ErrInvalid)
	}
	return &Library{
		root:          cfg.Root,
		previewSize:   cfg.PreviewSize,
		progressSteps: cfg.ProgressSteps,
		delay:         cfg.SimulatedDelay,
		logger:        logging.OrNop(logger).Named("assetlib"),
		inflight:      make(map[Token]*atomic.Bool),
	}, nil
}

// Assets lists the identifiers of every regular file under the root.
func (l *Library) Assets() ([]string, error) {
	var ids []string
	err := filepath.WalkDir(l.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(l.root, path)
			if err != nil {
				return err
			}
			ids = append(ids, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "assetlib.assets", err)
	}
	return ids, nil
}

func (l *Library) path(assetID string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(assetID))
	if assetID == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", apperrors.New(apperrors.CategoryNotFound, "assetlib.path", apperrors.ErrUnknownAsset)
	}
	return filepath.Join(l.root, clean), nil
}

// PixelSize implements Manager. The size is the upright display size.
func (l *Library) PixelSize(assetID string) (request.Size, bool) {
	p, err := l.path(assetID)
	if err != nil {
		return request.Size{}, false
	}
	info, err := imaging.Probe(p)
	if err != nil {
		return request.Size{}, false
	}
	return info.DisplaySize(), true
}

func (l *Library) register() (Token, *atomic.Bool) {
	token := Token(uuid.NewString())
	flag := new(atomic.Bool)
	l.mu.Lock()
	l.inflight[token] = flag
	l.mu.Unlock()
	return token, flag
}

func (l *Library) unregister(token Token) {
	l.mu.Lock()
	delete(l.inflight, token)
	l.mu.Unlock()
}

// CancelImageRequest implements Manager. Unknown or finished tokens are
// ignored.
func (l *Library) CancelImageRequest(token Token) {
	l.mu.Lock()
	flag, ok := l.inflight[token]
	l.mu.Unlock()
	if ok {
		flag.Store(true)
	}
}

// RequestImage implements Manager. An empty target delivers the full
// resolution image.
func (l *Library) RequestImage(assetID string, target request.Size, mode ContentMode, opts RequestOptions, handler ImageHandler) Token {
	token, cancelled := l.register()
	go func() {
		defer l.unregister(token)
		l.serveImage(assetID, target, mode, opts, handler, cancelled)
	}()
	return token
}

func (l *Library) serveImage(assetID string, target request.Size, mode ContentMode, opts RequestOptions, handler ImageHandler, cancelled *atomic.Bool) {
	p, err := l.path(assetID)
	if err != nil {
		handler(nil, ResultInfo{Err: err})
		return
	}

	if opts.NetworkAccessAllowed {
		if !l.simulateDownload(opts.Progress, cancelled) {
			handler(nil, ResultInfo{Cancelled: true})
			return
		}
	}

	img, err := imaging.Open(p)
	if err != nil {
		l.logger.Debug("open failed", zap.String("asset", assetID), zap.Error(err))
		handler(nil, ResultInfo{Err: err})
		return
	}

	if opts.DeliveryMode == Opportunistic && l.previewSize > 0 {
		if cancelled.Load() {
			handler(nil, ResultInfo{Cancelled: true})
			return
		}
		handler(l.preview(img), ResultInfo{Degraded: true})
	}

	if cancelled.Load() {
		handler(nil, ResultInfo{Cancelled: true})
		return
	}
	handler(scaleForMode(img, target, mode), ResultInfo{})
}

// simulateDownload reports progress in steps and returns false when the
// request was cancelled along the way. The last step stops short of 1.
func (l *Library) simulateDownload(progress func(float64, error), cancelled *atomic.Bool) bool {
	steps := l.progressSteps
	for i := 0; i < steps; i++ {
		if cancelled.Load() {
			return false
		}
		if l.delay > 0 {
			time.Sleep(l.delay)
		}
		if progress != nil {
			progress(float64(i)/float64(steps), nil)
		}
	}
	return !cancelled.Load()
}

// preview produces the blurred low resolution stand-in delivered before
// the final image.
func (l *Library) preview(img image.Image) image.Image {
	dims := request.FitSize(request.Size{Width: l.previewSize, Height: l.previewSize}).TargetDimensions(imaging.SizeOf(img))
	small := transform.Resize(img, dims.Width, dims.Height, transform.Linear)
	return blur.Gaussian(small, 1.5)
}

func scaleForMode(img image.Image, target request.Size, mode ContentMode) image.Image {
	if target.IsEmpty() {
		return img
	}
	if mode == AspectFill {
		return imaging.Scale(img, request.FillSize(target))
	}
	return imaging.Scale(img, request.FitSize(target))
}

// RequestImageData implements Manager. The bytes are the stored file; the
// orientation comes from its EXIF metadata.
func (l *Library) RequestImageData(assetID string, handler DataHandler) Token {
	token, _ := l.register()
	go func() {
		defer l.unregister(token)
		p, err := l.path(assetID)
		if err != nil {
			handler(nil, imaging.OrientationUp, err)
			return
		}
		data, err := os.ReadFile(p)
		if err != nil {
			handler(nil, imaging.OrientationUp, apperrors.Wrap(apperrors.CategoryNotFound, "assetlib.data", err))
			return
		}
		orientation := imaging.OrientationUp
		if info, err := imaging.ProbeBytes(data); err == nil {
			orientation = info.Orientation
		}
		handler(data, orientation, nil)
	}()
	return token
}
