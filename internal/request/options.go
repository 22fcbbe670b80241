package request

import "image"

// DeliveryMode controls how many times a result handler may be called.
type DeliveryMode int

const (
	// Progressive may deliver degraded images before the final one.
	Progressive DeliveryMode = iota
	// Best delivers exactly one final image (or none on failure).
	Best
)

func (m DeliveryMode) String() string {
	if m == Best {
		return "best"
	}
	return "progressive"
}

// ParseDeliveryMode maps "best" and "progressive" to a DeliveryMode.
func ParseDeliveryMode(s string) (DeliveryMode, bool) {
	switch s {
	case "best":
		return Best, true
	case "progressive", "":
		return Progressive, true
	}
	return Progressive, false
}

// Options describes one request. It is passed by value; callers that want
// to add progress callbacks modify a copy.
type Options struct {
	Size         SizeOption
	DeliveryMode DeliveryMode

	// OnDownloadStart and OnDownloadFinish are called in matching pairs
	// when a backend has to go to the network or a platform library for
	// the pixels. Either may be nil.
	OnDownloadStart  func()
	OnDownloadFinish func()
}

// WithDownloadCallbacks returns a copy of o with the progress callbacks set.
func (o Options) WithDownloadCallbacks(start, finish func()) Options {
	o.OnDownloadStart = start
	o.OnDownloadFinish = finish
	return o
}

// Result is one delivery for a request.
type Result struct {
	// Image is nil when the image could not be fetched or decoded.
	Image image.Image
	// Degraded is true for a preview that will be followed by a final image.
	Degraded  bool
	RequestID RequestID
}
