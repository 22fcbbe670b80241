package source

import (
	"sync"

	"github.com/ironsheep/image-source/internal/request"
)

// downloadNotifier fires a request's OnDownloadStart and OnDownloadFinish
// in a matched pair: start at most once, finish only after start, and
// nothing once finished. The callbacks run under its lock so a finish
// from a cancelling goroutine can never overtake the start.
type downloadNotifier struct {
	mu     sync.Mutex
	state  int
	start  func()
	finish func()
}

const (
	downloadIdle = iota
	downloadActive
	downloadOver
)

func newDownloadNotifier(opts request.Options) *downloadNotifier {
	return &downloadNotifier{start: opts.OnDownloadStart, finish: opts.OnDownloadFinish}
}

func (n *downloadNotifier) begin() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != downloadIdle {
		return
	}
	n.state = downloadActive
	if n.start != nil {
		n.start()
	}
}

func (n *downloadNotifier) end() {
	n.mu.Lock()
	defer n.mu.Unlock()
	prev := n.state
	n.state = downloadOver
	if prev == downloadActive && n.finish != nil {
		n.finish()
	}
}
