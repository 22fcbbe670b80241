package source

import (
	"github.com/ironsheep/image-source/internal/logging"
	"github.com/ironsheep/image-source/internal/metrics"
	"github.com/ironsheep/image-source/internal/queue"
	"github.com/ironsheep/image-source/internal/request"

	"go.uber.org/zap"
)

// ResultHandler receives the deliveries for one request.
type ResultHandler func(request.Result)

// ImageSource provides an image from some backend.
//
// RequestImage returns promptly. Its handler is called on the source's
// Dispatcher; a progressive preview that is already at hand is dispatched
// before RequestImage returns. Under Best the handler runs
// exactly once; under Progressive it may run with Degraded set before the
// single final call. A nil Image means the image could not be produced.
//
// CancelRequest is idempotent. Once it returns, the handler for that id is
// never called again. It must not be called from inside the handler of
// the request it cancels.
type ImageSource interface {
	RequestImage(opts request.Options, handler ResultHandler) request.RequestID
	CancelRequest(id request.RequestID)

	// ImageSize reports the upright pixel size; ok is false when it cannot
	// be determined.
	ImageSize(completion func(size request.Size, ok bool))

	// FullResolutionImageData reports the encoded image bytes, or nil.
	FullResolutionImageData(completion func(data []byte))

	// IsEqualTo reports whether other is the same backend kind pointing at
	// the same underlying image.
	IsEqualTo(other ImageSource) bool
}

// Env carries the collaborators shared by sources. Zero fields are
// replaced with process-wide defaults.
type Env struct {
	Queues      *queue.Set
	Dispatcher  Dispatcher
	IDs         *request.Generator
	Logger      *zap.Logger
	Metrics     metrics.Recorder
	JPEGQuality int
}

func (e Env) withDefaults() Env {
	if e.Queues == nil {
		e.Queues = queue.DefaultSet()
	}
	if e.Dispatcher == nil {
		e.Dispatcher = MainDispatcher()
	}
	if e.Metrics == nil {
		e.Metrics = metrics.Nop{}
	}
	if e.JPEGQuality <= 0 {
		e.JPEGQuality = 90
	}
	e.Logger = logging.OrNop(e.Logger)
	return e
}

func (e Env) nextID() request.RequestID {
	if e.IDs != nil {
		return e.IDs.Next()
	}
	return request.NextID()
}
