// Package transport is the process-wide registry of live protocol.Transport
// values (spec.md §4.5): add one, get back an opaque id, close it by id
// later. Grounded on the teacher's pkg/a8rcloud systemAPool, which also
// hands out a handle for a pooled client and tears it down on Done/Close;
// simplified here to a flat id-indexed map since a base client's transports
// are not reference-counted — each connect() owns exactly one.
package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/DIRACGrid/diset/pkg/diset/protocol"
)

// Handle is the opaque id returned by Pool.Add.
type Handle string

// Pool is a concurrency-safe registry of open transports. The zero value is
// not usable; use NewPool or the package-level Default.
type Pool struct {
	mu    sync.Mutex
	items map[Handle]protocol.Transport
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{items: make(map[Handle]protocol.Transport)}
}

var (
	defaultOnce sync.Once
	defaultPool *Pool
)

// Default returns the lazily-initialized process-wide Pool singleton
// (spec.md §4.5, §5).
func Default() *Pool {
	defaultOnce.Do(func() { defaultPool = NewPool() })
	return defaultPool
}

// Add retains t and returns a fresh id for it.
func (p *Pool) Add(t protocol.Transport) Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := Handle(uuid.NewString())
	p.items[h] = t
	return h
}

// Get returns the transport registered under h, and whether it was found.
func (p *Pool) Get(h Handle) (protocol.Transport, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.items[h]
	return t, ok
}

// Close releases the transport registered under h, closing it. Closing an
// unknown or already-closed handle is a no-op, not an error: callers must
// be able to call disconnect defensively without tracking whether they
// already did.
func (p *Pool) Close(ctx context.Context, h Handle) error {
	p.mu.Lock()
	t, ok := p.items[h]
	if ok {
		delete(p.items, h)
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}
	_ = ctx
	return t.Close()
}

// Len reports the number of currently open transports. Used by tests and
// by diagnostics; not part of the spec contract.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}
