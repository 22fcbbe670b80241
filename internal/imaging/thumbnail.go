package imaging

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/image-source/internal/request"
)

// SizeOf returns the pixel size of img.
func SizeOf(img image.Image) request.Size {
	b := img.Bounds()
	return request.Size{Width: b.Dx(), Height: b.Dy()}
}

// Scale resizes an upright image according to opt. Full resolution and
// no-op scales return img itself.
func Scale(img image.Image, opt request.SizeOption) image.Image {
	src := SizeOf(img)
	dst := opt.TargetDimensions(src)
	if dst == src {
		return img
	}
	return imaging.Resize(img, dst.Width, dst.Height, imaging.Lanczos)
}

// BoundLongestSide shrinks img so that neither side exceeds limit. A limit of
// zero or less returns img unchanged.
func BoundLongestSide(img image.Image, limit int) image.Image {
	if limit <= 0 {
		return img
	}
	s := SizeOf(img)
	if s.Width <= limit && s.Height <= limit {
		return img
	}
	return Scale(img, request.FitSize(request.Size{Width: limit, Height: limit}))
}
