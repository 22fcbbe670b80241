package assetlib

import (
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-source/internal/config"
	"github.com/ironsheep/image-source/internal/imaging"
	"github.com/ironsheep/image-source/internal/imaging/imagingtest"
	"github.com/ironsheep/image-source/internal/request"
)

type callback struct {
	img  image.Image
	info ResultInfo
}

func newLibrary(t *testing.T, mutate func(*config.AssetConfig)) *Library {
	t.Helper()
	root := t.TempDir()
	png := imagingtest.EncodePNG(t, imagingtest.Pattern(200, 100))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pattern.png"), png, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "album"), 0o755))
	jpg := imagingtest.EncodeJPEG(t, imagingtest.Solid(40, 20, imagingtest.Red), int(imaging.OrientationRight))
	require.NoError(t, os.WriteFile(filepath.Join(root, "album", "rotated.jpg"), jpg, 0o644))

	cfg := config.Default().Assets
	cfg.Root = root
	if mutate != nil {
		mutate(&cfg)
	}
	l, err := NewLibrary(cfg, nil)
	require.NoError(t, err)
	return l
}

func collect(l *Library, assetID string, target request.Size, mode ContentMode, opts RequestOptions) []callback {
	var mu sync.Mutex
	var got []callback
	done := make(chan struct{})
	l.RequestImage(assetID, target, mode, opts, func(img image.Image, info ResultInfo) {
		mu.Lock()
		got = append(got, callback{img, info})
		mu.Unlock()
		if !info.Degraded {
			close(done)
		}
	})
	<-done
	mu.Lock()
	defer mu.Unlock()
	return got
}

func TestNewLibrary_MissingRoot(t *testing.T) {
	_, err := NewLibrary(config.AssetConfig{Root: filepath.Join(t.TempDir(), "missing")}, nil)
	assert.Error(t, err)
}

func TestLibrary_Assets(t *testing.T) {
	l := newLibrary(t, nil)
	ids, err := l.Assets()
	require.NoError(t, err)
	sort.Strings(ids)
	assert.Equal(t, []string{"album/rotated.jpg", "pattern.png"}, ids)
}

func TestLibrary_PixelSize(t *testing.T) {
	l := newLibrary(t, nil)

	size, ok := l.PixelSize("pattern.png")
	require.True(t, ok)
	assert.Equal(t, request.Size{Width: 200, Height: 100}, size)

	size, ok = l.PixelSize("album/rotated.jpg")
	require.True(t, ok)
	assert.Equal(t, request.Size{Width: 20, Height: 40}, size)

	_, ok = l.PixelSize("../outside.png")
	assert.False(t, ok)
	_, ok = l.PixelSize("nope.png")
	assert.False(t, ok)
}

func TestLibrary_OpportunisticDeliversPreviewFirst(t *testing.T) {
	l := newLibrary(t, nil)

	got := collect(l, "pattern.png", request.Size{Width: 100, Height: 100}, AspectFit, RequestOptions{DeliveryMode: Opportunistic})

	require.Len(t, got, 2)
	assert.True(t, got[0].info.Degraded)
	require.NotNil(t, got[0].img)
	assert.Equal(t, request.Size{Width: 64, Height: 32}, imaging.SizeOf(got[0].img))
	assert.False(t, got[1].info.Degraded)
	assert.Equal(t, request.Size{Width: 100, Height: 50}, imaging.SizeOf(got[1].img))
}

func TestLibrary_HighQualitySingleCallback(t *testing.T) {
	l := newLibrary(t, nil)

	got := collect(l, "pattern.png", request.Size{Width: 50, Height: 50}, AspectFill, RequestOptions{DeliveryMode: HighQuality})

	require.Len(t, got, 1)
	assert.Equal(t, request.Size{Width: 100, Height: 50}, imaging.SizeOf(got[0].img))
}

func TestLibrary_FullResolutionOriented(t *testing.T) {
	l := newLibrary(t, nil)

	got := collect(l, "album/rotated.jpg", request.Size{}, AspectFit, RequestOptions{DeliveryMode: HighQuality})

	require.Len(t, got, 1)
	assert.Equal(t, request.Size{Width: 20, Height: 40}, imaging.SizeOf(got[0].img))
}

func TestLibrary_ProgressNeverReachesOne(t *testing.T) {
	l := newLibrary(t, func(c *config.AssetConfig) { c.ProgressSteps = 4 })

	var mu sync.Mutex
	var values []float64
	collect(l, "pattern.png", request.Size{}, AspectFit, RequestOptions{
		DeliveryMode:         HighQuality,
		NetworkAccessAllowed: true,
		Progress: func(p float64, err error) {
			mu.Lock()
			values = append(values, p)
			mu.Unlock()
		},
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75}, values)
}

func TestLibrary_CancelStillCallsBack(t *testing.T) {
	l := newLibrary(t, func(c *config.AssetConfig) {
		c.ProgressSteps = 50
		c.SimulatedDelay = 10 * time.Millisecond
	})

	got := make(chan ResultInfo, 4)
	started := make(chan struct{})
	var once sync.Once
	token := l.RequestImage("pattern.png", request.Size{}, AspectFit, RequestOptions{
		DeliveryMode:         HighQuality,
		NetworkAccessAllowed: true,
		Progress:             func(float64, error) { once.Do(func() { close(started) }) },
	}, func(img image.Image, info ResultInfo) {
		assert.Nil(t, img)
		got <- info
	})

	<-started
	l.CancelImageRequest(token)

	select {
	case info := <-got:
		assert.True(t, info.Cancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("no callback after cancel")
	}
}

func TestLibrary_UnknownAsset(t *testing.T) {
	l := newLibrary(t, nil)
	got := collect(l, "missing.png", request.Size{}, AspectFit, RequestOptions{DeliveryMode: HighQuality})
	require.Len(t, got, 1)
	assert.Error(t, got[0].info.Err)
	assert.Nil(t, got[0].img)
}

func TestLibrary_RequestImageData(t *testing.T) {
	l := newLibrary(t, nil)

	type dataResult struct {
		data        []byte
		orientation imaging.Orientation
		err         error
	}
	done := make(chan dataResult, 1)
	l.RequestImageData("album/rotated.jpg", func(data []byte, o imaging.Orientation, err error) {
		done <- dataResult{data, o, err}
	})
	res := <-done

	require.NoError(t, res.err)
	assert.Equal(t, imaging.OrientationRight, res.orientation)
	want, err := os.ReadFile(filepath.Join(l.root, "album", "rotated.jpg"))
	require.NoError(t, err)
	assert.Equal(t, want, res.data)
}
