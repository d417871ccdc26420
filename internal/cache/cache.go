// Package cache keeps computed day aggregates so repeated chart or API
// requests for the same day do not re-run the analysis.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DayKey identifies one device-day. DayStart is the unix timestamp of the
// start of the analysed window, offset included.
type DayKey struct {
	DeviceID uuid.UUID
	DayStart int64
}

// DayCache is a bounded LRU of per-day results. Entries expire after a TTL
// so samples written by another process show up without an explicit
// invalidation. It is safe for concurrent use.
type DayCache[V any] struct {
	lru *expirable.LRU[DayKey, V]
	// inflight lets concurrent misses on one day share a computation.
	mu       sync.Mutex
	inflight map[DayKey]*call[V]
}

type call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// New returns a cache holding at most size days for ttl each. A ttl of
// zero keeps entries until they are evicted or invalidated.
func New[V any](size int, ttl time.Duration) (*DayCache[V], error) {
	if size <= 0 {
		return nil, fmt.Errorf("creating day cache: size must be positive, got %d", size)
	}
	if ttl < 0 {
		return nil, fmt.Errorf("creating day cache: negative ttl %s", ttl)
	}
	return &DayCache[V]{
		lru:      expirable.NewLRU[DayKey, V](size, nil, ttl),
		inflight: map[DayKey]*call[V]{},
	}, nil
}

func (c *DayCache[V]) Get(key DayKey) (V, bool) {
	return c.lru.Get(key)
}

func (c *DayCache[V]) Add(key DayKey, v V) {
	c.lru.Add(key, v)
}

// GetOrCompute returns the cached value for key, or runs compute and caches
// its result. Errors are not cached.
func (c *DayCache[V]) GetOrCompute(key DayKey, compute func() (V, error)) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}

	c.mu.Lock()
	if cl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		<-cl.done
		return cl.val, cl.err
	}
	cl := &call[V]{done: make(chan struct{})}
	c.inflight[key] = cl
	c.mu.Unlock()

	cl.val, cl.err = compute()
	if cl.err == nil {
		c.lru.Add(key, cl.val)
	}

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
	close(cl.done)
	return cl.val, cl.err
}

// InvalidateDevice drops every cached day of a device and returns how many were removed.
func (c *DayCache[V]) InvalidateDevice(id uuid.UUID) int {
	n := 0
	for _, k := range c.lru.Keys() {
		if k.DeviceID == id && c.lru.Remove(k) {
			n++
		}
	}
	return n
}

func (c *DayCache[V]) Len() int {
	return c.lru.Len()
}

func (c *DayCache[V]) Purge() {
	c.lru.Purge()
}
