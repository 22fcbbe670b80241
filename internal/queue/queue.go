// Package queue provides the bounded-concurrency work queues shared by
// image sources of the same backend kind.
//
// A Set is created once at process start and handed to every source by
// reference; it is never torn down. Work submitted with a context that is
// cancelled before a slot frees up is dropped without running.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/ironsheep/image-source/internal/config"
)

// Queue runs submitted work with at most Limit items in flight.
type Queue struct {
	name  string
	limit int
	sem   *semaphore.Weighted // nil when unbounded

	waiting atomic.Int64
	running atomic.Int64
}

// New creates a queue. A limit of zero or less means unbounded.
func New(name string, limit int) *Queue {
	q := &Queue{name: name, limit: limit}
	if limit > 0 {
		q.sem = semaphore.NewWeighted(int64(limit))
	}
	return q
}

// Name returns the queue's name.
func (q *Queue) Name() string { return q.name }

// Limit returns the concurrency ceiling; zero or less is unbounded.
func (q *Queue) Limit() int { return q.limit }

// Waiting returns the number of submitted items still waiting for a slot.
func (q *Queue) Waiting() int { return int(q.waiting.Load()) }

// Running returns the number of items currently executing.
func (q *Queue) Running() int { return int(q.running.Load()) }

// Submit schedules fn and returns immediately. fn runs on its own
// goroutine once a slot is free and is skipped entirely if ctx is done
// before then. done, if non-nil, is called after fn returns or is skipped.
func (q *Queue) Submit(ctx context.Context, fn func(ctx context.Context), done func(ran bool)) {
	q.waiting.Add(1)
	go func() {
		ran := q.run(ctx, fn)
		if done != nil {
			done(ran)
		}
	}()
}

func (q *Queue) run(ctx context.Context, fn func(ctx context.Context)) bool {
	if q.sem != nil {
		if err := q.sem.Acquire(ctx, 1); err != nil {
			q.waiting.Add(-1)
			return false
		}
		defer q.sem.Release(1)
	}
	q.waiting.Add(-1)
	// Acquire may succeed on an already-cancelled context.
	if ctx.Err() != nil {
		return false
	}
	q.running.Add(1)
	defer q.running.Add(-1)
	fn(ctx)
	return true
}

// Set groups one queue per backend kind.
type Set struct {
	Local  *Queue
	Remote *Queue
	Asset  *Queue
	Crop   *Queue
}

// NewSet builds a Set from configured limits.
func NewSet(cfg config.QueueConfig) *Set {
	return &Set{
		Local:  New("local", cfg.Local),
		Remote: New("remote", cfg.Remote),
		Asset:  New("asset", cfg.Asset),
		Crop:   New("crop", cfg.Crop),
	}
}

var (
	defaultOnce sync.Once
	defaultSet  *Set
)

// DefaultSet returns the process-wide Set built from config defaults.
func DefaultSet() *Set {
	defaultOnce.Do(func() {
		defaultSet = NewSet(config.Default().Queues)
	})
	return defaultSet
}
