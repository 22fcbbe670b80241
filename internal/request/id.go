package request

import (
	"strconv"
	"sync"
)

// RequestID identifies one logical image request. It correlates a
// RequestImage call with its results and with CancelRequest.
//
// The zero value is never produced by a Generator and can be used as a
// "no request" sentinel.
type RequestID struct {
	n uint64
}

// IsZero reports whether id is the zero "no request" value.
func (id RequestID) IsZero() bool { return id.n == 0 }

func (id RequestID) String() string {
	return "req-" + strconv.FormatUint(id.n, 10)
}

// Generator hands out strictly increasing request ids. It is safe for
// concurrent use.
type Generator struct {
	mu   sync.Mutex
	last uint64
}

// NewGenerator returns a generator whose first id is 1.
func NewGenerator() *Generator {
	return &Generator{}
}

// Next returns a fresh id. Ids never repeat for the lifetime of g.
func (g *Generator) Next() RequestID {
	g.mu.Lock()
	g.last++
	n := g.last
	g.mu.Unlock()
	return RequestID{n: n}
}

var defaultGenerator = NewGenerator()

// NextID draws an id from the process-wide generator shared by all sources.
func NextID() RequestID {
	return defaultGenerator.Next()
}
