package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-source/internal/imaging"
	"github.com/ironsheep/image-source/internal/imaging/imagingtest"
	"github.com/ironsheep/image-source/internal/request"
)

func TestLocal_BestDeliversOnce(t *testing.T) {
	path := imagingtest.WriteFile(t, "pattern.png", imagingtest.EncodePNG(t, imagingtest.Pattern(200, 100)))
	s := NewLocalImageSource(path, testEnv(t))
	r := newResults()

	id := s.RequestImage(request.Options{
		Size:         request.FitSize(request.Size{Width: 50, Height: 50}),
		DeliveryMode: request.Best,
	}, r.handler())

	final := r.waitFinal(t, id)
	require.NotNil(t, final.Image)
	assert.Equal(t, id, final.RequestID)
	assert.Equal(t, request.Size{Width: 50, Height: 25}, imaging.SizeOf(final.Image))

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, r.of(id), 1)
	assert.Zero(t, s.reg.len())
}

func TestLocal_FillCoversTarget(t *testing.T) {
	path := imagingtest.WriteFile(t, "pattern.png", imagingtest.EncodePNG(t, imagingtest.Pattern(200, 100)))
	s := NewLocalImageSource(path, testEnv(t))
	r := newResults()

	id := s.RequestImage(request.Options{Size: request.FillSize(request.Size{Width: 60, Height: 60})}, r.handler())

	final := r.waitFinal(t, id)
	require.NotNil(t, final.Image)
	assert.Equal(t, request.Size{Width: 120, Height: 60}, imaging.SizeOf(final.Image))
}

func TestLocal_RotatedJPEGIsUpright(t *testing.T) {
	// Stored landscape: red left, blue right. Orientation 6 rotates it a
	// quarter turn clockwise for display, putting red on top.
	img := imagingtest.HalvesLeftRight(40, 20, imagingtest.Red, imagingtest.Blue)
	path := imagingtest.WriteFile(t, "rotated.jpg", imagingtest.EncodeJPEG(t, img, int(imaging.OrientationRight)))
	s := NewLocalImageSource(path, testEnv(t))
	r := newResults()

	id := s.RequestImage(request.Options{Size: request.FullResolution(), DeliveryMode: request.Best}, r.handler())

	final := r.waitFinal(t, id)
	require.NotNil(t, final.Image)
	assert.Equal(t, request.Size{Width: 20, Height: 40}, imaging.SizeOf(final.Image))
	assert.True(t, imagingtest.IsClose(final.Image.At(10, 8), imagingtest.Red, 60))
	assert.True(t, imagingtest.IsClose(final.Image.At(10, 32), imagingtest.Blue, 60))
}

func TestLocal_ImageSizeHonoursOrientation(t *testing.T) {
	img := imagingtest.Solid(400, 300, imagingtest.White)
	path := imagingtest.WriteFile(t, "rotated.jpg", imagingtest.EncodeJPEG(t, img, int(imaging.OrientationRight)))
	s := NewLocalImageSource(path, testEnv(t))

	for i := 0; i < 2; i++ {
		got := make(chan request.Size, 1)
		s.ImageSize(func(size request.Size, ok bool) {
			assert.True(t, ok)
			got <- size
		})
		select {
		case size := <-got:
			assert.Equal(t, request.Size{Width: 300, Height: 400}, size)
		case <-time.After(5 * time.Second):
			t.Fatal("no size")
		}
	}
}

func TestLocal_MissingFile(t *testing.T) {
	s := NewLocalImageSource(filepath.Join(t.TempDir(), "missing.png"), testEnv(t))
	r := newResults()

	id := s.RequestImage(request.Options{DeliveryMode: request.Best}, r.handler())
	final := r.waitFinal(t, id)
	assert.Nil(t, final.Image)

	sized := make(chan bool, 1)
	s.ImageSize(func(_ request.Size, ok bool) { sized <- ok })
	assert.False(t, <-sized)

	data := make(chan []byte, 1)
	s.FullResolutionImageData(func(b []byte) { data <- b })
	assert.Nil(t, <-data)
}

func TestLocal_FullResolutionImageData(t *testing.T) {
	raw := imagingtest.EncodePNG(t, imagingtest.Pattern(10, 10))
	path := imagingtest.WriteFile(t, "p.png", raw)
	s := NewLocalImageSource(path, testEnv(t))

	data := make(chan []byte, 1)
	s.FullResolutionImageData(func(b []byte) { data <- b })
	assert.Equal(t, raw, <-data)
}

func TestLocal_CancelStress(t *testing.T) {
	path := imagingtest.WriteFile(t, "pattern.png", imagingtest.EncodePNG(t, imagingtest.Pattern(64, 64)))
	env := testEnv(t)
	s := NewLocalImageSource(path, env)
	r := newResults()

	release := block(t, env.Queues.Local)

	const n = 60
	ids := make([]request.RequestID, n)
	for i := range ids {
		ids[i] = s.RequestImage(request.Options{Size: request.FitSize(request.Size{Width: 16, Height: 16})}, r.handler())
	}
	cancelled := make(map[request.RequestID]bool)
	for i := 0; i < n; i += 3 {
		s.CancelRequest(ids[i])
		s.CancelRequest(ids[i])
		cancelled[ids[i]] = true
	}
	release()

	for _, id := range ids {
		if !cancelled[id] {
			r.waitFinal(t, id)
		}
	}
	require.Eventually(t, func() bool { return s.reg.len() == 0 }, 5*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	for _, id := range ids {
		if cancelled[id] {
			assert.Empty(t, r.of(id), "cancelled %s was delivered", id)
		} else {
			assert.Len(t, r.of(id), 1)
		}
	}
}

func TestLocal_ConcurrentCancelNeverDeliversAfterReturn(t *testing.T) {
	path := imagingtest.WriteFile(t, "pattern.png", imagingtest.EncodePNG(t, imagingtest.Pattern(32, 32)))
	s := NewLocalImageSource(path, testEnv(t))
	r := newResults()

	for i := 0; i < 40; i++ {
		id := s.RequestImage(request.Options{}, r.handler())
		time.Sleep(time.Duration(i%4) * time.Millisecond)
		s.CancelRequest(id)
		before := len(r.of(id))
		time.Sleep(2 * time.Millisecond)
		assert.Equal(t, before, len(r.of(id)))
		assert.LessOrEqual(t, before, 1)
	}
}

func TestLocal_IsEqualTo(t *testing.T) {
	env := testEnv(t)
	dir := t.TempDir()
	a := NewLocalImageSource(filepath.Join(dir, "a.png"), env)
	a2 := NewLocalImageSource(filepath.Join(dir, ".", "a.png"), env)
	b := NewLocalImageSource(filepath.Join(dir, "b.png"), env)

	assert.True(t, a.IsEqualTo(a2))
	assert.False(t, a.IsEqualTo(b))
	assert.False(t, a.IsEqualTo(NewRemoteImageSource("file://"+a.Path(), nil, env)))
}

func TestLocal_DoesNotTouchFileUntilRequested(t *testing.T) {
	path := filepath.Join(t.TempDir(), "later.png")
	s := NewLocalImageSource(path, testEnv(t))
	require.NoError(t, os.WriteFile(path, imagingtest.EncodePNG(t, imagingtest.Pattern(8, 8)), 0o644))

	r := newResults()
	id := s.RequestImage(request.Options{}, r.handler())
	assert.NotNil(t, r.waitFinal(t, id).Image)
}
