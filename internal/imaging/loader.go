package imaging

import (
	"bytes"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP format decoder

	"github.com/ironsheep/image-source/internal/apperrors"
	"github.com/ironsheep/image-source/internal/request"
)

// Info contains metadata about an encoded image, gathered without
// decoding its pixels.
type Info struct {
	// Width and Height are the stored pixel dimensions, before orientation
	// is applied.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Format is the registered decoder name: "jpeg", "png", "gif" or "webp".
	Format string `json:"format"`

	// Orientation is the EXIF orientation; OrientationUp when absent.
	Orientation Orientation `json:"orientation"`

	// FileSizeBytes is the encoded size in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// StoredSize returns the stored pixel dimensions.
func (i *Info) StoredSize() request.Size {
	return request.Size{Width: i.Width, Height: i.Height}
}

// DisplaySize returns the dimensions of the upright image. Rotated
// orientations (5-8) swap width and height.
func (i *Info) DisplaySize() request.Size {
	s := i.StoredSize()
	if i.Orientation.SwapsDimensions() {
		return s.Swapped()
	}
	return s
}

// Probe reads the header and EXIF metadata of the image at path.
//
// Only the image header and the EXIF segment are read, so probing a large
// JPEG is cheap compared to decoding it.
//
// # Errors
//
//   - CategoryNotFound if the file cannot be opened
//   - CategoryDecode if the header is not a supported image format
func Probe(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryNotFound, "imaging.probe", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryNotFound, "imaging.probe.stat", err)
	}
	info, err := probe(f)
	if err != nil {
		return nil, err
	}
	info.FileSizeBytes = stat.Size()
	return info, nil
}

// ProbeBytes is Probe for an in-memory encoded image.
func ProbeBytes(b []byte) (*Info, error) {
	info, err := probe(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	info.FileSizeBytes = int64(len(b))
	return info, nil
}

func probe(r io.ReadSeeker) (*Info, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "imaging.probe.config", err)
	}
	info := &Info{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Format:      format,
		Orientation: OrientationUp,
	}
	if format == "jpeg" {
		if _, err := r.Seek(0, io.SeekStart); err == nil {
			info.Orientation = ReadOrientation(r)
		}
	}
	return info, nil
}

// Open decodes the image at path and rotates it upright according to its
// EXIF orientation. The returned image is fully rasterized.
func Open(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryNotFound, "imaging.open", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode is Open for a reader.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "imaging.decode", err)
	}
	return img, nil
}

// EncodeJPEG encodes img as a JPEG with the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "imaging.encode", err)
	}
	return buf.Bytes(), nil
}
