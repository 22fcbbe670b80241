package imaging

import (
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// Orientation is the EXIF orientation tag (1-8). It says how the stored
// pixels must be transformed to be displayed upright.
type Orientation int

const (
	OrientationUp            Orientation = 1
	OrientationUpMirrored    Orientation = 2
	OrientationDown          Orientation = 3
	OrientationDownMirrored  Orientation = 4
	OrientationLeftMirrored  Orientation = 5
	OrientationRight         Orientation = 6 // stored rotated; turn 90° clockwise to display
	OrientationRightMirrored Orientation = 7
	OrientationLeft          Orientation = 8
)

// Valid reports whether o is one of the eight EXIF values.
func (o Orientation) Valid() bool {
	return o >= OrientationUp && o <= OrientationLeft
}

// Normalized returns o, or OrientationUp when o is not a valid value.
func (o Orientation) Normalized() Orientation {
	if !o.Valid() {
		return OrientationUp
	}
	return o
}

// SwapsDimensions reports whether displaying the image upright exchanges
// its width and height.
func (o Orientation) SwapsDimensions() bool {
	return o >= OrientationLeftMirrored && o <= OrientationLeft
}

// Apply returns img transformed so that it displays upright. Invalid and
// Up orientations return img unchanged.
func Apply(img image.Image, o Orientation) image.Image {
	switch o {
	case OrientationUpMirrored:
		return imaging.FlipH(img)
	case OrientationDown:
		return imaging.Rotate180(img)
	case OrientationDownMirrored:
		return imaging.FlipV(img)
	case OrientationLeftMirrored:
		return imaging.Transpose(img)
	case OrientationRight:
		return imaging.Rotate270(img)
	case OrientationRightMirrored:
		return imaging.Transverse(img)
	case OrientationLeft:
		return imaging.Rotate90(img)
	}
	return img
}

// ReadOrientation extracts the orientation tag from EXIF data in r.
// Missing or unreadable metadata yields OrientationUp.
func ReadOrientation(r io.Reader) Orientation {
	x, err := exif.Decode(r)
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return OrientationUp
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return OrientationUp
	}
	v, err := tag.Int(0)
	if err != nil {
		return OrientationUp
	}
	return Orientation(v).Normalized()
}
