package cache

import (
	"context"
	"sync"
)

// MemoCache memoizes the result of an expensive fetch per key for the life
// of the cache instance. Concurrent callers for the same key before the
// first fetch resolves share a single in-flight call rather than issuing
// duplicates. Failures are returned to every waiter but never cached: a
// later call for the same key fetches fresh.
type MemoCache[K comparable, V any] struct {
	mu       sync.Mutex
	done     map[K]V
	inflight map[K]*call[V]
}

type call[V any] struct {
	ready chan struct{}
	value V
	err   error
}

// NewMemo creates an empty MemoCache.
func NewMemo[K comparable, V any]() *MemoCache[K, V] {
	return &MemoCache[K, V]{
		done:     make(map[K]V),
		inflight: make(map[K]*call[V]),
	}
}

// Do returns the memoized value for key, fetching it with fn if necessary.
// fn runs at most once per key at a time; its result, if successful, is
// kept for all future calls. Waiters respect ctx cancellation without
// cancelling the shared fetch (another caller may still want the result).
func (c *MemoCache[K, V]) Do(ctx context.Context, key K, fn func(context.Context) (V, error)) (V, error) {
	c.mu.Lock()
	if v, ok := c.done[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	if cl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		return c.wait(ctx, cl)
	}

	cl := &call[V]{ready: make(chan struct{})}
	c.inflight[key] = cl
	c.mu.Unlock()

	cl.value, cl.err = fn(ctx)

	c.mu.Lock()
	delete(c.inflight, key)
	if cl.err == nil {
		c.done[key] = cl.value
	}
	c.mu.Unlock()

	close(cl.ready)
	return cl.value, cl.err
}

// Peek returns the memoized value without triggering a fetch.
func (c *MemoCache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.done[key]
	return v, ok
}

// Forget drops the memoized value for key, forcing the next Do to fetch.
// An in-flight fetch is unaffected.
func (c *MemoCache[K, V]) Forget(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.done, key)
}

func (c *MemoCache[K, V]) wait(ctx context.Context, cl *call[V]) (V, error) {
	select {
	case <-cl.ready:
		return cl.value, cl.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}
