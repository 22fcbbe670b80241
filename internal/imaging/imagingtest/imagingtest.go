// Package imagingtest provides fixtures for tests that need real encoded
// images on disk or in memory.
package imagingtest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// Quadrant colours used by Pattern.
var (
	Red   = color.RGBA{255, 0, 0, 255}
	Green = color.RGBA{0, 255, 0, 255}
	Blue  = color.RGBA{0, 0, 255, 255}
	White = color.RGBA{255, 255, 255, 255}
)

// Solid returns a width x height image filled with c.
func Solid(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// Pattern returns an image with red top-left, green top-right, blue
// bottom-left and white bottom-right quadrants.
func Pattern(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.Color
			switch {
			case x < width/2 && y < height/2:
				c = Red
			case x >= width/2 && y < height/2:
				c = Green
			case x < width/2:
				c = Blue
			default:
				c = White
			}
			img.Set(x, y, c)
		}
	}
	return img
}

// HalvesLeftRight returns an image whose left half is left and right half
// is right.
func HalvesLeftRight(width, height int, left, right color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width/2 {
				img.Set(x, y, left)
			} else {
				img.Set(x, y, right)
			}
		}
	}
	return img
}

// EncodePNG encodes img as PNG.
func EncodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// EncodeJPEG encodes img as a high quality JPEG. A non-zero orientation is
// written as an EXIF APP1 segment directly after the SOI marker.
func EncodeJPEG(t testing.TB, img image.Image, orientation int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}
	b := buf.Bytes()
	if orientation == 0 {
		return b
	}
	out := make([]byte, 0, len(b)+64)
	out = append(out, b[:2]...)
	out = append(out, exifSegment(uint16(orientation))...)
	out = append(out, b[2:]...)
	return out
}

// exifSegment builds a minimal big-endian APP1 EXIF segment holding only
// the orientation tag.
func exifSegment(orientation uint16) []byte {
	tiff := new(bytes.Buffer)
	tiff.WriteString("MM")
	_ = binary.Write(tiff, binary.BigEndian, uint16(0x002a))
	_ = binary.Write(tiff, binary.BigEndian, uint32(8))
	_ = binary.Write(tiff, binary.BigEndian, uint16(1))      // entry count
	_ = binary.Write(tiff, binary.BigEndian, uint16(0x0112)) // orientation
	_ = binary.Write(tiff, binary.BigEndian, uint16(3))      // SHORT
	_ = binary.Write(tiff, binary.BigEndian, uint32(1))
	_ = binary.Write(tiff, binary.BigEndian, orientation)
	_ = binary.Write(tiff, binary.BigEndian, uint16(0))
	_ = binary.Write(tiff, binary.BigEndian, uint32(0)) // next IFD

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	seg := []byte{0xff, 0xe1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	return append(seg, payload...)
}

// WriteFile writes data into t.TempDir() under name and returns the path.
func WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// IsClose reports whether c is within tolerance of want on every RGB
// channel (8-bit scale).
func IsClose(c color.Color, want color.RGBA, tolerance int) bool {
	r, g, b, _ := c.RGBA()
	return within(int(r>>8), int(want.R), tolerance) &&
		within(int(g>>8), int(want.G), tolerance) &&
		within(int(b>>8), int(want.B), tolerance)
}

func within(got, want, tolerance int) bool {
	d := got - want
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}
