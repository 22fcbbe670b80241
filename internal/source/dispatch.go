package source

import "sync"

// Dispatcher is the callback context results are delivered on.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(fn func())

func (f DispatcherFunc) Dispatch(fn func()) { f(fn) }

// Immediate runs callbacks on the goroutine that produced them.
var Immediate Dispatcher = DispatcherFunc(func(fn func()) { fn() })

// SerialDispatcher runs callbacks one at a time, in submission order, on a
// single goroutine. It plays the role of a UI main thread.
type SerialDispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	closed  bool
	done    chan struct{}
}

// NewSerialDispatcher starts the dispatcher goroutine.
func NewSerialDispatcher() *SerialDispatcher {
	d := &SerialDispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

// Dispatch queues fn. It never blocks on fn. Callbacks dispatched after
// Close are dropped.
func (d *SerialDispatcher) Dispatch(fn func()) {
	d.mu.Lock()
	if !d.closed {
		d.pending = append(d.pending, fn)
		d.cond.Signal()
	}
	d.mu.Unlock()
}

// Close runs the callbacks already queued and stops the goroutine.
func (d *SerialDispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Signal()
	d.mu.Unlock()
	<-d.done
}

func (d *SerialDispatcher) loop() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.pending) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.pending) == 0 {
			d.mu.Unlock()
			return
		}
		batch := d.pending
		d.pending = nil
		d.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}

var (
	mainOnce       sync.Once
	mainDispatcher *SerialDispatcher
)

// MainDispatcher returns the process-wide serial dispatcher. It is created
// on first use and never closed.
func MainDispatcher() *SerialDispatcher {
	mainOnce.Do(func() {
		mainDispatcher = NewSerialDispatcher()
	})
	return mainDispatcher
}
