package source

import (
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-source/internal/apperrors"
	"github.com/ironsheep/image-source/internal/download"
	"github.com/ironsheep/image-source/internal/imaging"
	"github.com/ironsheep/image-source/internal/imaging/imagingtest"
	"github.com/ironsheep/image-source/internal/request"
)

// fakeDownloader serves one image after release is closed.
type fakeDownloader struct {
	img     image.Image
	data    []byte
	err     error
	release chan struct{}

	mu      sync.Mutex
	cached  map[string]image.Image
	fetches atomic.Int32
	cancels atomic.Int32
}

func newFakeDownloader(img image.Image) *fakeDownloader {
	return &fakeDownloader{
		img:     img,
		data:    []byte("encoded"),
		release: make(chan struct{}),
		cached:  make(map[string]image.Image),
	}
}

type fakeHandle struct {
	once sync.Once
	stop chan struct{}
	d    *fakeDownloader
}

func (h *fakeHandle) Cancel() {
	h.once.Do(func() {
		h.d.cancels.Add(1)
		close(h.stop)
	})
}

func (d *fakeDownloader) Fetch(url string, progress download.ProgressFunc, completion download.CompletionFunc) download.Handle {
	d.fetches.Add(1)
	h := &fakeHandle{stop: make(chan struct{}), d: d}
	go func() {
		if progress != nil {
			progress(0, 100)
		}
		select {
		case <-d.release:
		case <-h.stop:
			completion(download.Result{Err: apperrors.New(apperrors.CategoryCancelled, "fake", apperrors.ErrCancelled)})
			return
		}
		if d.err != nil {
			completion(download.Result{Err: d.err})
			return
		}
		if progress != nil {
			progress(100, 100)
		}
		d.mu.Lock()
		d.cached[url] = d.img
		d.mu.Unlock()
		completion(download.Result{Image: d.img, Data: d.data})
	}()
	return h
}

func (d *fakeDownloader) CachedImage(url string) (image.Image, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.cached[url]
	return img, ok
}

type pairCounter struct {
	starts, finishes atomic.Int32
}

func (p *pairCounter) options(opts request.Options) request.Options {
	return opts.WithDownloadCallbacks(func() { p.starts.Add(1) }, func() { p.finishes.Add(1) })
}

func TestRemote_ProgressivePreviewThenFinal(t *testing.T) {
	d := newFakeDownloader(imagingtest.Solid(100, 50, imagingtest.Green))
	s := NewRemoteImageSource("https://example.test/a.png", d, testEnv(t), WithPreview(imagingtest.Solid(10, 5, imagingtest.Red)))
	r := newResults()
	var pc pairCounter

	id := s.RequestImage(pc.options(request.Options{Size: request.FitSize(request.Size{Width: 40, Height: 40})}), r.handler())

	got := r.of(id)
	require.Len(t, got, 1, "preview is delivered before RequestImage returns")
	assert.True(t, got[0].Degraded)
	assert.Equal(t, request.Size{Width: 40, Height: 20}, imaging.SizeOf(got[0].Image))

	close(d.release)
	final := r.waitFinal(t, id)
	require.NotNil(t, final.Image)
	assert.Equal(t, request.Size{Width: 40, Height: 20}, imaging.SizeOf(final.Image))

	got = r.of(id)
	require.Len(t, got, 2)
	assert.True(t, got[0].Degraded)
	assert.False(t, got[1].Degraded)
	assert.EqualValues(t, 1, pc.starts.Load())
	assert.EqualValues(t, 1, pc.finishes.Load())
}

func TestRemote_BestSkipsPreview(t *testing.T) {
	d := newFakeDownloader(imagingtest.Solid(20, 20, imagingtest.Green))
	close(d.release)
	s := NewRemoteImageSource("https://example.test/b.png", d, testEnv(t), WithPreview(imagingtest.Solid(2, 2, imagingtest.Red)))
	r := newResults()

	id := s.RequestImage(request.Options{DeliveryMode: request.Best}, r.handler())
	r.waitFinal(t, id)
	time.Sleep(20 * time.Millisecond)

	got := r.of(id)
	require.Len(t, got, 1)
	assert.False(t, got[0].Degraded)
}

func TestRemote_CachedImageIsPreview(t *testing.T) {
	d := newFakeDownloader(imagingtest.Solid(20, 20, imagingtest.Green))
	close(d.release)
	env := testEnv(t)
	s := NewRemoteImageSource("https://example.test/c.png", d, env)
	r := newResults()

	first := s.RequestImage(request.Options{}, r.handler())
	r.waitFinal(t, first)
	require.Len(t, r.of(first), 1, "nothing cached yet")

	var pc pairCounter
	second := s.RequestImage(pc.options(request.Options{}), r.handler())
	r.waitFinal(t, second)
	got := r.of(second)
	require.Len(t, got, 2)
	assert.True(t, got[0].Degraded)
	// Served from cache: the fake still reports progress, which starts the
	// pair once.
	assert.Equal(t, pc.starts.Load(), pc.finishes.Load())
}

func TestRemote_PreviewThenImmediateCancel(t *testing.T) {
	d := newFakeDownloader(imagingtest.Solid(20, 20, imagingtest.Green))
	dispatcher := NewSerialDispatcher()
	defer dispatcher.Close()
	env := testEnv(t)
	env.Dispatcher = dispatcher
	s := NewRemoteImageSource("https://example.test/d.png", d, env, WithPreview(imagingtest.Solid(2, 2, imagingtest.Red)))
	r := newResults()
	var pc pairCounter

	// Issue and cancel in one turn of the dispatcher, as a UI would on its
	// main thread.
	issued := make(chan request.RequestID, 1)
	dispatcher.Dispatch(func() {
		id := s.RequestImage(pc.options(request.Options{}), r.handler())
		s.CancelRequest(id)
		issued <- id
	})
	id := <-issued
	close(d.release)

	flushed := make(chan struct{})
	time.Sleep(20 * time.Millisecond)
	dispatcher.Dispatch(func() { close(flushed) })
	<-flushed

	assert.Empty(t, r.of(id))
	assert.Equal(t, pc.starts.Load(), pc.finishes.Load())
	assert.LessOrEqual(t, pc.starts.Load(), int32(1))
	assert.Zero(t, s.reg.len())
}

func TestRemote_CancelMidDownloadFinishesSynchronously(t *testing.T) {
	d := newFakeDownloader(imagingtest.Solid(20, 20, imagingtest.Green))
	s := NewRemoteImageSource("https://example.test/e.png", d, testEnv(t))
	r := newResults()
	var pc pairCounter

	id := s.RequestImage(pc.options(request.Options{}), r.handler())
	require.Eventually(t, func() bool { return pc.starts.Load() == 1 }, time.Second, time.Millisecond)

	s.CancelRequest(id)
	assert.EqualValues(t, 1, pc.finishes.Load(), "finish fires inside CancelRequest")

	require.Eventually(t, func() bool { return d.cancels.Load() == 1 }, time.Second, time.Millisecond)
	close(d.release)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, r.of(id))
	assert.EqualValues(t, 1, pc.finishes.Load())
}

func TestRemote_FailureDeliversNil(t *testing.T) {
	d := newFakeDownloader(nil)
	d.err = apperrors.New(apperrors.CategoryNotFound, "fake", apperrors.ErrBadStatus)
	close(d.release)
	s := NewRemoteImageSource("https://example.test/missing.png", d, testEnv(t))
	r := newResults()
	var pc pairCounter

	id := s.RequestImage(pc.options(request.Options{DeliveryMode: request.Best}), r.handler())
	final := r.waitFinal(t, id)
	assert.Nil(t, final.Image)
	assert.EqualValues(t, 1, pc.starts.Load())
	assert.EqualValues(t, 1, pc.finishes.Load())
}

func TestRemote_ImageSizeAndData(t *testing.T) {
	d := newFakeDownloader(imagingtest.Solid(30, 12, imagingtest.Green))
	close(d.release)
	s := NewRemoteImageSource("https://example.test/f.png", d, testEnv(t))

	sizes := make(chan request.Size, 2)
	s.ImageSize(func(size request.Size, ok bool) {
		assert.True(t, ok)
		sizes <- size
	})
	assert.Equal(t, request.Size{Width: 30, Height: 12}, <-sizes)

	fetches := d.fetches.Load()
	s.ImageSize(func(size request.Size, ok bool) { sizes <- size })
	assert.Equal(t, request.Size{Width: 30, Height: 12}, <-sizes)
	assert.Equal(t, fetches, d.fetches.Load(), "size is cached")

	data := make(chan []byte, 1)
	s.FullResolutionImageData(func(b []byte) { data <- b })
	assert.Equal(t, []byte("encoded"), <-data)
}

func TestRemote_IsEqualTo(t *testing.T) {
	env := testEnv(t)
	d := newFakeDownloader(nil)
	a := NewRemoteImageSource("https://example.test/a.png", d, env)
	a2 := NewRemoteImageSource("https://example.test/a.png", newFakeDownloader(nil), env)
	b := NewRemoteImageSource("https://example.test/b.png", d, env)

	assert.True(t, a.IsEqualTo(a2))
	assert.False(t, a.IsEqualTo(b))
}
