package source

import (
	"context"
	"image"

	"go.uber.org/zap"

	"github.com/ironsheep/image-source/internal/assetlib"
	"github.com/ironsheep/image-source/internal/imaging"
	"github.com/ironsheep/image-source/internal/request"
)

// AssetImageSource reads an image from an asset library.
type AssetImageSource struct {
	base
	assetID string
	manager assetlib.Manager
	size    cell[request.Size]
}

// NewAssetImageSource returns a source for assetID in manager.
func NewAssetImageSource(assetID string, manager assetlib.Manager, env Env) *AssetImageSource {
	s := &AssetImageSource{assetID: assetID, manager: manager}
	s.init("asset", env)
	return s
}

// AssetID returns the asset identifier.
func (s *AssetImageSource) AssetID() string { return s.assetID }

func managerTarget(opt request.SizeOption) (request.Size, assetlib.ContentMode) {
	switch {
	case opt.IsFill():
		return opt.Target(), assetlib.AspectFill
	case opt.IsFit():
		return opt.Target(), assetlib.AspectFit
	default:
		return request.Size{}, assetlib.AspectFit
	}
}

func managerDelivery(mode request.DeliveryMode) assetlib.DeliveryMode {
	if mode == request.Best {
		return assetlib.HighQuality
	}
	return assetlib.Opportunistic
}

// RequestImage implements ImageSource. The manager's cancelled callbacks
// never reach the handler. The manager's progress rarely reports 1, so
// OnDownloadFinish also fires on the first non-degraded result or on
// cancellation.
func (s *AssetImageSource) RequestImage(opts request.Options, handler ResultHandler) request.RequestID {
	t := s.newTicket(opts, handler)
	notify := newDownloadNotifier(opts)
	t.onCancel(notify.end)

	s.submit(s.env.Queues.Asset, t, func(ctx context.Context) {
		target, mode := managerTarget(opts.Size)
		mopts := assetlib.RequestOptions{
			DeliveryMode:         managerDelivery(opts.DeliveryMode),
			NetworkAccessAllowed: true,
			Progress: func(p float64, err error) {
				notify.begin()
				if p >= 1 || err != nil {
					notify.end()
				}
			},
		}
		token := s.manager.RequestImage(s.assetID, target, mode, mopts, func(img image.Image, info assetlib.ResultInfo) {
			if info.Cancelled {
				notify.end()
				return
			}
			if info.Degraded {
				s.preview(t, img)
				return
			}
			notify.end()
			s.complete(t, img, info.Err)
		})
		t.onCancel(func() { s.manager.CancelImageRequest(token) })
	})
	return t.id
}

// ImageSize implements ImageSource with the manager's pixel size.
func (s *AssetImageSource) ImageSize(completion func(request.Size, bool)) {
	if size, ok := s.size.get(); ok {
		s.dispatch(func() { completion(size, true) })
		return
	}
	s.env.Queues.Asset.Submit(context.Background(), func(context.Context) {
		size, ok := s.manager.PixelSize(s.assetID)
		if ok {
			s.size.put(size)
		}
		s.dispatch(func() { completion(size, ok) })
	}, nil)
}

// FullResolutionImageData implements ImageSource with the asset's stored
// bytes.
func (s *AssetImageSource) FullResolutionImageData(completion func([]byte)) {
	s.manager.RequestImageData(s.assetID, func(data []byte, _ imaging.Orientation, err error) {
		if err != nil {
			s.env.Logger.Debug("data request failed", zap.String("asset", s.assetID), zap.Error(err))
			data = nil
		}
		s.dispatch(func() { completion(data) })
	})
}

// IsEqualTo implements ImageSource.
func (s *AssetImageSource) IsEqualTo(other ImageSource) bool {
	o, ok := other.(*AssetImageSource)
	return ok && o.assetID == s.assetID
}
