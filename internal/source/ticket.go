package source

import (
	"context"
	"image"
	"sync"

	"go.uber.org/zap"

	"github.com/ironsheep/image-source/internal/apperrors"
	"github.com/ironsheep/image-source/internal/queue"
	"github.com/ironsheep/image-source/internal/request"
)

// ticket is the per-request delivery gate. Its mutex is held across the
// cancelled check and the handler call, so a cancel that returns has
// either waited out a delivery in progress or prevented it.
type ticket struct {
	id      request.RequestID
	mode    request.DeliveryMode
	handler ResultHandler

	ctx    context.Context
	stop   context.CancelFunc
	mu     sync.Mutex
	state  ticketState
	hooks  []func()
	logger *zap.Logger
}

type ticketState int

const (
	ticketOpen ticketState = iota
	ticketDone
	ticketCancelled
)

// deliver calls the handler unless the ticket is closed. A non-degraded
// delivery closes it. Under Best, degraded images are dropped.
func (t *ticket) deliver(img image.Image, degraded bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != ticketOpen {
		return false
	}
	if degraded && t.mode == request.Best {
		return false
	}
	if !degraded {
		t.state = ticketDone
	}
	t.handler(request.Result{Image: img, Degraded: degraded, RequestID: t.id})
	return true
}

// onCancel registers fn to run synchronously when the ticket is
// cancelled. If it already was, fn runs now.
func (t *ticket) onCancel(fn func()) {
	t.mu.Lock()
	if t.state != ticketCancelled {
		t.hooks = append(t.hooks, fn)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	fn()
}

// cancel closes the ticket and runs the cancel hooks. It reports whether
// the ticket was still open.
func (t *ticket) cancel() bool {
	t.mu.Lock()
	wasOpen := t.state == ticketOpen
	hooks := t.hooks
	t.hooks = nil
	if t.state != ticketCancelled {
		t.state = ticketCancelled
	} else {
		hooks = nil
	}
	t.mu.Unlock()

	t.stop()
	for _, fn := range hooks {
		fn()
	}
	return wasOpen
}

func (t *ticket) cancelled() bool {
	return t.ctx.Err() != nil
}

// registry maps live request ids to their tickets.
type registry struct {
	mu      sync.Mutex
	tickets map[request.RequestID]*ticket
}

func (r *registry) add(t *ticket) {
	r.mu.Lock()
	if r.tickets == nil {
		r.tickets = make(map[request.RequestID]*ticket)
	}
	r.tickets[t.id] = t
	r.mu.Unlock()
}

func (r *registry) take(id request.RequestID) *ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil
	}
	delete(r.tickets, id)
	return t
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tickets)
}

// base holds the machinery shared by every backend: request bookkeeping,
// cancellation and delivery through the dispatcher.
type base struct {
	kind string
	env  Env
	reg  registry
}

func (b *base) init(kind string, env Env) {
	env = env.withDefaults()
	env.Logger = env.Logger.Named(kind)
	b.kind, b.env = kind, env
}

func (b *base) newTicket(opts request.Options, handler ResultHandler) *ticket {
	ctx, stop := context.WithCancel(context.Background())
	t := &ticket{
		id:      b.env.nextID(),
		mode:    opts.DeliveryMode,
		handler: handler,
		ctx:     ctx,
		stop:    stop,
		logger:  b.env.Logger,
	}
	b.reg.add(t)
	b.env.Metrics.RequestStarted(b.kind)
	t.logger.Debug("request",
		zap.Stringer("id", t.id),
		zap.Stringer("size", opts.Size),
		zap.Stringer("mode", opts.DeliveryMode))
	return t
}

// CancelRequest cancels a pending request. Unknown or finished ids are
// ignored.
func (b *base) CancelRequest(id request.RequestID) {
	t := b.reg.take(id)
	if t == nil {
		return
	}
	if t.cancel() {
		b.env.Metrics.Cancelled(b.kind)
		t.logger.Debug("cancelled", zap.Stringer("id", id), zap.Int("pending", b.reg.len()))
	}
}

// submit runs fn on q for t. Work skipped because t was cancelled while
// queued never reaches fn.
func (b *base) submit(q *queue.Queue, t *ticket, fn func(ctx context.Context)) {
	q.Submit(t.ctx, fn, func(ran bool) {
		if !ran {
			b.reg.take(t.id)
		}
	})
}

// deliverNow calls the handler on the current goroutine.
func (b *base) deliverNow(t *ticket, img image.Image, degraded bool) {
	if t.deliver(img, degraded) {
		b.env.Metrics.Delivered(b.kind, degraded)
	}
	if !degraded {
		b.reg.take(t.id)
	}
}

// preview dispatches a degraded image.
func (b *base) preview(t *ticket, img image.Image) {
	if img == nil || t.cancelled() {
		return
	}
	b.env.Dispatcher.Dispatch(func() { b.deliverNow(t, img, true) })
}

// complete dispatches the final delivery for t. A nil img is delivered
// when err is set.
func (b *base) complete(t *ticket, img image.Image, err error) {
	if t.cancelled() {
		return
	}
	if err != nil || img == nil {
		if err == nil {
			err = apperrors.ErrNoImage
		}
		img = nil
		cat := apperrors.CategoryOf(err)
		if cat == "" {
			cat = "unknown"
		}
		b.env.Metrics.Failed(b.kind, string(cat))
		t.logger.Warn("request failed", zap.Stringer("id", t.id), zap.Error(err))
	}
	b.env.Dispatcher.Dispatch(func() { b.deliverNow(t, img, false) })
}

// dispatch runs fn on the dispatcher.
func (b *base) dispatch(fn func()) {
	b.env.Dispatcher.Dispatch(fn)
}

// cell caches one lazily computed value.
type cell[T any] struct {
	mu  sync.Mutex
	v   T
	set bool
}

func (c *cell[T]) get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v, c.set
}

func (c *cell[T]) put(v T) {
	c.mu.Lock()
	c.v, c.set = v, true
	c.mu.Unlock()
}
