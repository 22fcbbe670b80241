package imaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-source/internal/apperrors"
	"github.com/ironsheep/image-source/internal/imaging/imagingtest"
	"github.com/ironsheep/image-source/internal/request"
)

func TestProbe_PNG(t *testing.T) {
	data := imagingtest.EncodePNG(t, imagingtest.Solid(100, 80, imagingtest.Red))
	path := imagingtest.WriteFile(t, "probe.png", data)

	info, err := Probe(path)
	require.NoError(t, err)

	assert.Equal(t, 100, info.Width)
	assert.Equal(t, 80, info.Height)
	assert.Equal(t, "png", info.Format)
	assert.Equal(t, OrientationUp, info.Orientation)
	assert.Equal(t, int64(len(data)), info.FileSizeBytes)
	assert.Equal(t, request.Size{Width: 100, Height: 80}, info.DisplaySize())
}

func TestProbe_RotatedJPEG(t *testing.T) {
	data := imagingtest.EncodeJPEG(t, imagingtest.Solid(400, 300, imagingtest.Blue), int(OrientationRight))
	path := imagingtest.WriteFile(t, "rotated.jpg", data)

	info, err := Probe(path)
	require.NoError(t, err)

	assert.Equal(t, "jpeg", info.Format)
	assert.Equal(t, request.Size{Width: 400, Height: 300}, info.StoredSize())
	assert.Equal(t, request.Size{Width: 300, Height: 400}, info.DisplaySize())
}

func TestProbe_NonExistent(t *testing.T) {
	_, err := Probe("/nonexistent/path/to/image.png")
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryNotFound))
}

func TestProbe_NotAnImage(t *testing.T) {
	path := imagingtest.WriteFile(t, "text.png", []byte("definitely not an image"))

	_, err := Probe(path)
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryDecode))
}

func TestProbeBytes(t *testing.T) {
	data := imagingtest.EncodeJPEG(t, imagingtest.Solid(10, 20, imagingtest.Red), int(OrientationLeft))

	info, err := ProbeBytes(data)
	require.NoError(t, err)
	assert.Equal(t, request.Size{Width: 20, Height: 10}, info.DisplaySize())
}

func TestOpen(t *testing.T) {
	path := imagingtest.WriteFile(t, "pattern.png", imagingtest.EncodePNG(t, imagingtest.Pattern(50, 50)))

	img, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, request.Size{Width: 50, Height: 50}, SizeOf(img))
	assert.True(t, imagingtest.IsClose(img.At(10, 10), imagingtest.Red, 0))
}

func TestOpen_NonExistent(t *testing.T) {
	_, err := Open("/nonexistent/path/to/image.png")
	assert.Error(t, err)
}

func TestEncodeJPEG_RoundTrip(t *testing.T) {
	data, err := EncodeJPEG(imagingtest.Solid(32, 16, imagingtest.Green), 90)
	require.NoError(t, err)

	info, err := ProbeBytes(data)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", info.Format)
	assert.Equal(t, request.Size{Width: 32, Height: 16}, info.StoredSize())
}
