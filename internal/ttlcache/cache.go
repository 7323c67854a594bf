// ABOUTME: Thread-safe generic cache with absolute per-entry expiration.
// ABOUTME: Backs conversation-to-agent affinity; expired entries read as misses.

package ttlcache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCreateAborted is returned to callers waiting on a create function
// that panicked.
var ErrCreateAborted = errors.New("ttlcache: create aborted")

// entry stores the value, its absolute expiry and its list element.
type entry[V any] struct {
	value     V
	expiresAt time.Time
	element   *list.Element
}

// inflight is a create call in progress for one key.
type inflight[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now as the cache's time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Cache is a size-limited map whose entries expire at an absolute time.
// Uses a doubly-linked list to maintain insertion order for O(1) eviction.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[V]
	pending map[string]*inflight[V]
	order   *list.List // keys in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a cache whose entries live for ttl after insertion.
// A non-positive maxSize disables the size limit.
func New[V any](ttl time.Duration, maxSize int, opts ...Option) *Cache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		entries: make(map[string]*entry[V]),
		pending: make(map[string]*inflight[V]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     o.now,
	}
}

// Get returns the live value stored under key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	if ok && c.now().Before(e.expiresAt) {
		v := e.value
		c.mu.RUnlock()
		return v, true
	}
	c.mu.RUnlock()

	var zero V
	if ok {
		// Expired: purge under the write lock, re-checking in case a
		// concurrent Set replaced it meanwhile.
		c.mu.Lock()
		if cur, still := c.entries[key]; still && !c.now().Before(cur.expiresAt) {
			c.removeLocked(key, cur)
		}
		c.mu.Unlock()
	}
	return zero, false
}

// Set stores value under key, overwriting any existing entry.
// The expiry is fixed at now+ttl and is never refreshed by reads.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

// GetOrCreate returns the live value under key or, on a miss, stores and
// returns the value produced by create. Concurrent callers for one key wait
// for a single create call and observe its result. create runs without the
// cache lock held, so other keys stay readable and writable meanwhile.
// The boolean reports whether this caller's create was called.
func (c *Cache[V]) GetOrCreate(key string, create func() (V, error)) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, false, nil
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.now().Before(e.expiresAt) {
		c.mu.Unlock()
		return e.value, false, nil
	}
	if call, ok := c.pending[key]; ok {
		c.mu.Unlock()
		<-call.done
		if call.err != nil {
			var zero V
			return zero, false, call.err
		}
		return call.value, false, nil
	}
	call := &inflight[V]{done: make(chan struct{})}
	c.pending[key] = call
	c.mu.Unlock()

	c.fill(key, call, create)
	if call.err != nil {
		var zero V
		return zero, false, call.err
	}
	return call.value, true, nil
}

// fill runs create for call and publishes the result to the cache and to
// waiters, also when create panics.
func (c *Cache[V]) fill(key string, call *inflight[V], create func() (V, error)) {
	call.err = ErrCreateAborted
	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		if call.err == nil {
			c.setLocked(key, call.value)
		}
		c.mu.Unlock()
		close(call.done)
	}()
	call.value, call.err = create()
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.removeLocked(key, e)
	}
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			c.removeLocked(key, e)
			removed++
		}
	}
	return removed
}

// Run sweeps expired entries every interval until ctx is cancelled.
func (c *Cache[V]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// setLocked inserts or replaces an entry. Must be called with mu held.
func (c *Cache[V]) setLocked(key string, value V) {
	expiresAt := c.now().Add(c.ttl)

	if e, exists := c.entries[key]; exists {
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToBack(e.element)
		return
	}

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &entry[V]{
		value:     value,
		expiresAt: expiresAt,
		element:   elem,
	}
}

// removeLocked deletes an entry. Must be called with mu held.
func (c *Cache[V]) removeLocked(key string, e *entry[V]) {
	c.order.Remove(e.element)
	delete(c.entries, key)
}

// evictOldest removes the oldest insertion. Must be called with mu held.
func (c *Cache[V]) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}
