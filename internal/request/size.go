package request

import (
	"fmt"
	"math"
)

// Size is a pixel size.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// IsEmpty reports whether either dimension is non-positive.
func (s Size) IsEmpty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Swapped returns the size with width and height exchanged.
func (s Size) Swapped() Size {
	return Size{Width: s.Height, Height: s.Width}
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

type sizeKind int

const (
	kindFullResolution sizeKind = iota
	kindFit
	kindFill
)

// SizeOption says how large the delivered image should be. Values are
// comparable with ==.
type SizeOption struct {
	kind   sizeKind
	target Size
}

// FullResolution asks for the image at its native pixel size.
func FullResolution() SizeOption {
	return SizeOption{kind: kindFullResolution}
}

// FitSize asks for the whole image scaled so that it fits inside target.
func FitSize(target Size) SizeOption {
	return SizeOption{kind: kindFit, target: target}
}

// FillSize asks for the image scaled so that it covers target on both axes.
// One axis may exceed the target.
func FillSize(target Size) SizeOption {
	return SizeOption{kind: kindFill, target: target}
}

func (o SizeOption) IsFullResolution() bool { return o.kind == kindFullResolution }
func (o SizeOption) IsFit() bool            { return o.kind == kindFit }
func (o SizeOption) IsFill() bool           { return o.kind == kindFill }

// Target returns the requested bounding size. It is empty for FullResolution.
func (o SizeOption) Target() Size { return o.target }

func (o SizeOption) String() string {
	switch o.kind {
	case kindFit:
		return "fit(" + o.target.String() + ")"
	case kindFill:
		return "fill(" + o.target.String() + ")"
	default:
		return "full"
	}
}

// ScaleFactor returns the factor applied to a source of size src.
// Fit uses min(tw/sw, th/sh), fill uses max(tw/sw, th/sh) and full
// resolution is always 1.
func (o SizeOption) ScaleFactor(src Size) float64 {
	if o.kind == kindFullResolution || src.IsEmpty() || o.target.IsEmpty() {
		return 1
	}
	sx := float64(o.target.Width) / float64(src.Width)
	sy := float64(o.target.Height) / float64(src.Height)
	if o.kind == kindFit {
		return math.Min(sx, sy)
	}
	return math.Max(sx, sy)
}

// TargetDimensions returns the output size for a source of size src.
// Each axis is at least one pixel.
func (o SizeOption) TargetDimensions(src Size) Size {
	if o.kind == kindFullResolution || src.IsEmpty() || o.target.IsEmpty() {
		return src
	}
	s := o.ScaleFactor(src)
	w := int(math.Round(float64(src.Width) * s))
	h := int(math.Round(float64(src.Height) * s))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return Size{Width: w, Height: h}
}
