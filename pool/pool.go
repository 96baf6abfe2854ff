// Package pool implements the bounded, keyed connection pool shared by
// pooled I/O operators.
package pool

import (
	"context"
	"fmt"
	"sync"
)

// Opener creates a fresh connection for a registered key.
type Opener[C any] func(ctx context.Context) (C, error)

// Prober runs a cheap protocol-specific liveness check against a
// checked-out connection (SQL: a database ping; socket: "current item"
// probe checking for a trailing OK marker).
type Prober[C any] func(conn C) bool

// Closer releases a connection's underlying resources.
type Closer[C any] func(conn C) error

// entry holds the registration state for one pool key.
type entry[C any] struct {
	opener Opener[C]
	prober Prober[C]
	closer Closer[C]
	sem    chan struct{} // bounded semaphore, capacity == maxSize
	idle   chan C        // FIFO queue of idle live connections
}

// Pool is a keyed, bounded pool of long-lived connections. Each key (an
// operator's configured name) is registered once with an opener, prober,
// closer and maxSize; all operator instances sharing that name share the
// same underlying pool.
type Pool[C any] struct {
	mu      sync.Mutex
	entries map[string]*entry[C]
}

// New creates an empty pool.
func New[C any]() *Pool[C] {
	return &Pool[C]{entries: make(map[string]*entry[C])}
}

// Register installs a key with its opener/prober/closer and bound. Calling
// Register again for an already-registered key is a no-op, matching the
// source's idempotent class-level registration.
func (p *Pool[C]) Register(key string, maxSize int, opener Opener[C], prober Prober[C], closer Closer[C]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entries[key]; ok {
		return
	}
	if maxSize <= 0 {
		maxSize = 1
	}
	p.entries[key] = &entry[C]{
		opener: opener,
		prober: prober,
		closer: closer,
		sem:    make(chan struct{}, maxSize),
		idle:   make(chan C, maxSize),
	}
}

// Get checks out a connection for key: acquire the semaphore, then drain
// the idle queue probing each candidate for liveness, returning the first
// live one; if the queue empties, open a fresh connection. On open
// failure the semaphore is released and the error propagated.
func (p *Pool[C]) Get(ctx context.Context, key string) (C, error) {
	var zero C

	e, err := p.lookup(key)
	if err != nil {
		return zero, err
	}

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	for {
		select {
		case conn := <-e.idle:
			if e.prober(conn) {
				return conn, nil
			}
			// Dead connection: release its underlying resources before
			// discarding it and keep draining the idle queue.
			_ = e.closer(conn)
			continue
		default:
		}
		break
	}

	conn, err := e.opener(ctx)
	if err != nil {
		<-e.sem
		return zero, fmt.Errorf("pool: open connection for %q: %w", key, err)
	}
	return conn, nil
}

// Release returns conn to key's idle queue and releases the semaphore.
func (p *Pool[C]) Release(key string, conn C) {
	p.mu.Lock()
	e, ok := p.entries[key]
	p.mu.Unlock()
	if !ok {
		return
	}

	select {
	case e.idle <- conn:
	default:
		// Idle queue at capacity (should not happen since idle+inflight
		// <= maxSize by construction); close rather than leak.
		_ = e.closer(conn)
	}
	<-e.sem
}

// Unregister drains key's idle queue, closing every connection, and
// removes the key. No further checkouts are permitted afterward.
func (p *Pool[C]) Unregister(key string) error {
	p.mu.Lock()
	e, ok := p.entries[key]
	if ok {
		delete(p.entries, key)
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}

	var firstErr error
	for {
		select {
		case conn := <-e.idle:
			if err := e.closer(conn); err != nil && firstErr == nil {
				firstErr = err
			}
		default:
			return firstErr
		}
	}
}

func (p *Pool[C]) lookup(key string) (*entry[C], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[key]
	if !ok {
		return nil, fmt.Errorf("pool: key %q not registered", key)
	}
	return e, nil
}
