package imaging

import (
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-source/internal/imaging/imagingtest"
	"github.com/ironsheep/image-source/internal/request"
)

func identityParams(w, h int) CroppingParameters {
	return CroppingParameters{
		SourceOrientation: OrientationUp,
		CropWidth:         float64(w),
		CropHeight:        float64(h),
		Zoom:              1,
		OutputWidth:       w,
	}
}

func TestCroppingParameters_OutputSize(t *testing.T) {
	p := CroppingParameters{CropWidth: 300, CropHeight: 200, OutputWidth: 600}
	assert.Equal(t, request.Size{Width: 600, Height: 400}, p.OutputSize())
	assert.Equal(t, request.Size{}, CroppingParameters{}.OutputSize())
}

func TestCroppingParameters_Equality(t *testing.T) {
	a := identityParams(100, 100)
	b := identityParams(100, 100)
	c := identityParams(100, 100)
	c.Angle = math.Pi / 4

	assert.True(t, a == b)
	assert.False(t, a == c)
}

func TestCroppingParameters_Validate(t *testing.T) {
	assert.NoError(t, identityParams(10, 10).Validate())
	assert.Error(t, CroppingParameters{CropWidth: 10, CropHeight: 10}.Validate())
	assert.Error(t, CroppingParameters{OutputWidth: 10}.Validate())
}

func TestRenderCrop_Identity(t *testing.T) {
	src := imagingtest.Pattern(100, 100)

	out, err := RenderCrop(src, identityParams(100, 100), color.Black)
	require.NoError(t, err)

	assert.Equal(t, request.Size{Width: 100, Height: 100}, SizeOf(out))
	assert.True(t, imagingtest.IsClose(out.At(25, 25), imagingtest.Red, 2))
	assert.True(t, imagingtest.IsClose(out.At(75, 25), imagingtest.Green, 2))
	assert.True(t, imagingtest.IsClose(out.At(25, 75), imagingtest.Blue, 2))
	assert.True(t, imagingtest.IsClose(out.At(75, 75), imagingtest.White, 2))
}

func TestRenderCrop_RotateQuarterTurn(t *testing.T) {
	src := imagingtest.Pattern(100, 100)
	p := identityParams(100, 100)
	p.Angle = math.Pi / 2

	out, err := RenderCrop(src, p, color.Black)
	require.NoError(t, err)

	// Clockwise on screen: red moves from top-left to top-right.
	assert.True(t, imagingtest.IsClose(out.At(75, 25), imagingtest.Red, 2))
	assert.True(t, imagingtest.IsClose(out.At(75, 75), imagingtest.Green, 2))
	assert.True(t, imagingtest.IsClose(out.At(25, 25), imagingtest.Blue, 2))
}

func TestRenderCrop_ZoomIntoQuadrant(t *testing.T) {
	src := imagingtest.Pattern(100, 100)
	p := identityParams(100, 100)
	p.Zoom = 2
	// Move the image so the top-left quadrant sits in the crop area.
	p.OffsetX = 50
	p.OffsetY = 50

	out, err := RenderCrop(src, p, color.Black)
	require.NoError(t, err)

	for _, pt := range [][2]int{{10, 10}, {50, 50}, {90, 90}} {
		assert.True(t, imagingtest.IsClose(out.At(pt[0], pt[1]), imagingtest.Red, 2), "pixel %v", pt)
	}
}

func TestRenderCrop_OutputWidthScales(t *testing.T) {
	src := imagingtest.Pattern(100, 50)
	p := CroppingParameters{CropWidth: 100, CropHeight: 50, OutputWidth: 40, Zoom: 1}

	out, err := RenderCrop(src, p, color.Black)
	require.NoError(t, err)
	assert.Equal(t, request.Size{Width: 40, Height: 20}, SizeOf(out))
	assert.True(t, imagingtest.IsClose(out.At(5, 5), imagingtest.Red, 10))
	assert.True(t, imagingtest.IsClose(out.At(35, 15), imagingtest.White, 10))
}

func TestRenderCrop_BackgroundShowsOutsideSource(t *testing.T) {
	src := imagingtest.Solid(100, 100, imagingtest.Red)
	p := identityParams(100, 100)
	p.OffsetX = 60

	out, err := RenderCrop(src, p, imagingtest.Green)
	require.NoError(t, err)

	assert.True(t, imagingtest.IsClose(out.At(5, 50), imagingtest.Green, 2))
	assert.True(t, imagingtest.IsClose(out.At(90, 50), imagingtest.Red, 2))
}

func TestRenderCrop_SourceOrientation(t *testing.T) {
	src := imagingtest.HalvesLeftRight(40, 20, imagingtest.Red, imagingtest.Blue)
	p := CroppingParameters{
		SourceOrientation: OrientationRight,
		CropWidth:         20,
		CropHeight:        40,
		OutputWidth:       20,
		Zoom:              1,
	}

	out, err := RenderCrop(src, p, color.Black)
	require.NoError(t, err)
	assert.Equal(t, request.Size{Width: 20, Height: 40}, SizeOf(out))
	assert.True(t, imagingtest.IsClose(out.At(10, 5), imagingtest.Red, 2))
	assert.True(t, imagingtest.IsClose(out.At(10, 35), imagingtest.Blue, 2))
}

func TestRenderCrop_Invalid(t *testing.T) {
	_, err := RenderCrop(imagingtest.Pattern(10, 10), CroppingParameters{}, nil)
	assert.Error(t, err)
}
