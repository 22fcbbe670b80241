package assetlib

import (
	"image"

	"github.com/ironsheep/image-source/internal/imaging"
	"github.com/ironsheep/image-source/internal/request"
)

// ContentMode says how a target size is interpreted.
type ContentMode int

const (
	// AspectFit scales the whole image to fit inside the target.
	AspectFit ContentMode = iota
	// AspectFill scales the image to cover the target.
	AspectFill
)

// DeliveryMode mirrors the platform's image delivery policies.
type DeliveryMode int

const (
	// Opportunistic may call back with a degraded image first.
	Opportunistic DeliveryMode = iota
	// HighQuality calls back once with the final image.
	HighQuality
)

// Token identifies one manager request and is used to cancel it.
type Token string

// RequestOptions configures one image request.
type RequestOptions struct {
	DeliveryMode DeliveryMode

	// NetworkAccessAllowed lets the manager fetch pixels that are not held
	// locally. Progress is only reported when it is set.
	NetworkAccessAllowed bool

	// Progress is called with values in [0, 1]. The manager does not
	// guarantee a final call with 1.
	Progress func(progress float64, err error)
}

// ResultInfo describes one callback of RequestImage.
type ResultInfo struct {
	Degraded  bool
	Cancelled bool
	Err       error
}

// ImageHandler receives images from RequestImage. The image is nil when
// Cancelled or Err is set.
type ImageHandler func(img image.Image, info ResultInfo)

// DataHandler receives the encoded original bytes of an asset.
type DataHandler func(data []byte, orientation imaging.Orientation, err error)

// Manager is the platform asset-manager capability consumed by
// AssetImageSource. Handlers are called from manager-owned goroutines.
//
// Cancelling a request does not suppress its handler: the manager still
// calls back once with ResultInfo.Cancelled set.
type Manager interface {
	RequestImage(assetID string, target request.Size, mode ContentMode, opts RequestOptions, handler ImageHandler) Token
	CancelImageRequest(token Token)
	RequestImageData(assetID string, handler DataHandler) Token
	PixelSize(assetID string) (request.Size, bool)
}
