package imaging

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ironsheep/image-source/internal/apperrors"
	"github.com/ironsheep/image-source/internal/request"
)

// CroppingParameters describes a crop made in an editor view. The values
// are comparable with ==, so two parameter sets are equal iff every field
// matches.
//
// View geometry is expressed in view points. The image is laid out
// centred in the crop area, scaled so that its width equals ImageViewWidth
// (or, when ImageViewWidth is zero, so that it fills the crop area), and
// then the user transform (Zoom, Angle, Offset) is applied around the
// crop-area centre.
type CroppingParameters struct {
	// SourceOrientation is applied to the upright source before cropping.
	SourceOrientation Orientation `json:"source_orientation"`

	CropWidth      float64 `json:"crop_width"`
	CropHeight     float64 `json:"crop_height"`
	ImageViewWidth float64 `json:"image_view_width"`

	// Angle is the user rotation in radians, clockwise on screen.
	Angle   float64 `json:"angle"`
	Zoom    float64 `json:"zoom"`
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`

	// OutputWidth is the pixel width of the result; the height follows the
	// crop-area aspect ratio.
	OutputWidth int `json:"output_width"`

	// SourceMaxSize bounds the longest side of the source pixels used for
	// rendering. Zero uses the full resolution.
	SourceMaxSize int `json:"source_max_size"`
}

// Validate checks that the geometry can produce an image.
func (p CroppingParameters) Validate() error {
	if p.CropWidth <= 0 || p.CropHeight <= 0 || p.OutputWidth <= 0 {
		return apperrors.New(apperrors.CategoryConfig, "imaging.crop", apperrors.ErrInvalidDimensions)
	}
	return nil
}

// OutputSize returns the pixel size of the rendered crop.
func (p CroppingParameters) OutputSize() request.Size {
	if p.CropWidth <= 0 {
		return request.Size{}
	}
	h := int(math.Round(float64(p.OutputWidth) * p.CropHeight / p.CropWidth))
	if h < 1 {
		h = 1
	}
	return request.Size{Width: p.OutputWidth, Height: h}
}

// Matrix returns the affine transform from source pixel coordinates to
// output pixel coordinates for a source of size src:
//
//	scale to crop space -> centre -> user transform -> un-scale to output
func (p CroppingParameters) Matrix(src request.Size) f64.Aff3 {
	out := p.OutputSize()
	w, h := float64(src.Width), float64(src.Height)

	viewScale := p.ImageViewWidth / w
	if p.ImageViewWidth <= 0 {
		viewScale = math.Max(p.CropWidth/w, p.CropHeight/h)
	}
	zoom := p.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	outScale := float64(out.Width) / p.CropWidth

	m := translate(-w/2, -h/2)
	m = mul(scale(viewScale*zoom), m)
	m = mul(rotate(p.Angle), m)
	m = mul(translate(p.OffsetX, p.OffsetY), m)
	m = mul(scale(outScale), m)
	m = mul(translate(float64(out.Width)/2, float64(out.Height)/2), m)
	return m
}

// RenderCrop applies p to an upright source image. Areas of the output not
// covered by the source are filled with bg.
func RenderCrop(src image.Image, p CroppingParameters, bg color.Color) (*image.NRGBA, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if bg == nil {
		bg = color.Black
	}

	// Orientation is normalised at source size before the composite.
	oriented := Apply(BoundLongestSide(src, p.SourceMaxSize), p.SourceOrientation)
	srcSize := SizeOf(oriented)
	if srcSize.IsEmpty() {
		return nil, apperrors.New(apperrors.CategoryDecode, "imaging.crop", apperrors.ErrInvalidDimensions)
	}

	out := p.OutputSize()
	dst := imaging.New(out.Width, out.Height, bg)
	draw.BiLinear.Transform(dst, p.Matrix(srcSize), oriented, oriented.Bounds(), draw.Over, nil)
	return dst, nil
}

func mul(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3], a[0]*b[1] + a[1]*b[4], a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3], a[3]*b[1] + a[4]*b[4], a[3]*b[2] + a[4]*b[5] + a[5],
	}
}

func translate(tx, ty float64) f64.Aff3 {
	return f64.Aff3{1, 0, tx, 0, 1, ty}
}

func scale(s float64) f64.Aff3 {
	return f64.Aff3{s, 0, 0, 0, s, 0}
}

func rotate(theta float64) f64.Aff3 {
	sin, cos := math.Sincos(theta)
	return f64.Aff3{cos, -sin, 0, sin, cos, 0}
}
