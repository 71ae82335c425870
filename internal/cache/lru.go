package cache

import (
	"container/list"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ObjectCache memoizes parsed metadata objects (trees, directories) by
// key, bounded by item count with least-recently-used eviction.
type ObjectCache struct {
	inner *lru.Cache[string, any]
}

// NewObjectCache creates an object cache holding at most maxItems entries.
func NewObjectCache(maxItems int) (*ObjectCache, error) {
	inner, err := lru.New[string, any](maxItems)
	if err != nil {
		return nil, fmt.Errorf("object cache: %w", err)
	}
	return &ObjectCache{inner: inner}, nil
}

// Get returns the memoized object for key, if present.
func (c *ObjectCache) Get(key string) (any, bool) {
	return c.inner.Get(key)
}

// Add stores an object under key, evicting the least-recently-used entry
// when over capacity.
func (c *ObjectCache) Add(key string, value any) {
	c.inner.Add(key, value)
}

// Len reports the number of cached objects.
func (c *ObjectCache) Len() int {
	return c.inner.Len()
}

// ArrayCache memoizes materialized arrays by key, bounded by a byte
// budget with least-recently-used eviction. Concurrent requests for the
// same key run the computation at most once: later callers wait for the
// first and observe its result. A failed computation is handed to every
// waiter but is not memoized, so a later request retries.
type ArrayCache struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	entries  map[string]*arrayEntry
	order    *list.List // front is most recently used
}

type arrayEntry struct {
	key   string
	elem  *list.Element
	value any
	size  int64
	err   error
	done  chan struct{}
}

func (e *arrayEntry) settled() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// NewArrayCache creates an array cache with the given byte budget. A
// budget <= 0 means unbounded.
func NewArrayCache(maxBytes int64) *ArrayCache {
	return &ArrayCache{
		maxBytes: maxBytes,
		entries:  make(map[string]*arrayEntry),
		order:    list.New(),
	}
}

// Get returns the memoized array for key if it is present and settled.
func (c *ArrayCache) Get(key string) (any, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || !e.settled() || e.err != nil {
		c.mu.Unlock()
		return nil, false
	}
	c.order.MoveToFront(e.elem)
	c.mu.Unlock()
	return e.value, true
}

// GetOrCompute returns the memoized value for key, or invokes compute —
// exactly once across all concurrent callers of the same key — and
// memoizes its result. compute reports the value's byte size for the
// cache budget. Eviction happens per insert and never touches a key whose
// computation is still in flight.
func (c *ArrayCache) GetOrCompute(key string, compute func() (value any, size int64, err error)) (any, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.order.MoveToFront(e.elem)
		c.mu.Unlock()
		<-e.done
		return e.value, e.err
	}

	e := &arrayEntry{key: key, done: make(chan struct{})}
	e.elem = c.order.PushFront(e)
	c.entries[key] = e
	c.mu.Unlock()

	value, size, err := compute()

	c.mu.Lock()
	e.value = value
	e.size = size
	e.err = err
	if err != nil {
		// Hand the error to waiters but do not memoize it.
		c.order.Remove(e.elem)
		delete(c.entries, key)
	} else {
		c.curBytes += size
		c.evictLocked()
	}
	close(e.done)
	c.mu.Unlock()

	return value, err
}

// evictLocked drops least-recently-used settled entries until the budget
// is met. Caller holds c.mu.
func (c *ArrayCache) evictLocked() {
	if c.maxBytes <= 0 {
		return
	}
	for c.curBytes > c.maxBytes {
		evicted := false
		for elem := c.order.Back(); elem != nil; elem = elem.Prev() {
			e := elem.Value.(*arrayEntry)
			if !e.settled() {
				continue // in-flight keys are never evicted
			}
			c.order.Remove(elem)
			delete(c.entries, e.key)
			c.curBytes -= e.size
			evicted = true
			break
		}
		if !evicted {
			return // everything left is in flight
		}
	}
}

// Len reports the number of cached arrays, including in-flight entries.
func (c *ArrayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Bytes reports the total size of settled cached arrays.
func (c *ArrayCache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}

// Keys returns the cached keys, most recently used first.
func (c *ArrayCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*arrayEntry).key)
	}
	return keys
}
