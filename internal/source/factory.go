package source

import (
	"image/color"

	"github.com/ironsheep/image-source/internal/apperrors"
	"github.com/ironsheep/image-source/internal/assetlib"
	"github.com/ironsheep/image-source/internal/download"
	"github.com/ironsheep/image-source/internal/imaging"
)

// Factory builds sources that share one Env and one set of backend
// collaborators. Downloader and Assets may be nil when the corresponding
// backend is not configured.
type Factory struct {
	Env        Env
	Downloader download.Downloader
	Assets     assetlib.Manager
	CropDir    string
	Background color.Color
}

// Local returns a LocalImageSource for path.
func (f *Factory) Local(path string) *LocalImageSource {
	return NewLocalImageSource(path, f.Env)
}

// Remote returns a RemoteImageSource for url.
func (f *Factory) Remote(url string, opts ...RemoteOption) (*RemoteImageSource, error) {
	if f.Downloader == nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "factory.remote", apperrors.ErrNoBackend)
	}
	return NewRemoteImageSource(url, f.Downloader, f.Env, opts...), nil
}

// Asset returns an AssetImageSource for assetID.
func (f *Factory) Asset(assetID string) (*AssetImageSource, error) {
	if f.Assets == nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "factory.asset", apperrors.ErrNoBackend)
	}
	return NewAssetImageSource(assetID, f.Assets, f.Env), nil
}

// Cropped returns a CroppedImageSource over original.
func (f *Factory) Cropped(original ImageSource, params imaging.CroppingParameters) (*CroppedImageSource, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	var opts []CropOption
	if f.CropDir != "" {
		opts = append(opts, WithTempDir(f.CropDir))
	}
	if f.Background != nil {
		opts = append(opts, WithBackground(f.Background))
	}
	return NewCroppedImageSource(original, params, f.Env, opts...), nil
}
