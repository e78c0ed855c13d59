// Package lru implements a generic, O(1) least-recently-used cache,
// following the container/list approach in
// _examples/standardbeagle-lci/internal/semantic/lru_cache.go rather than
// the original Rust prototype's O(n) VecDeque linear scan
// (_examples/original_source/src/lrucache.rs).
package lru

import "container/list"

// Cache is a fixed-capacity (or unbounded, when capacity is 0)
// least-recently-used cache, matching spec.md §4.3's semantics: Get
// refreshes recency, but Put on an already-present key is a
// no-op that does NOT refresh recency.
type Cache[K comparable, V any] struct {
	capacity int
	items    map[K]*list.Element
	order    *list.List
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// New creates a Cache. capacity == 0 means unbounded.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	return &Cache[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element),
		order:    list.New(),
	}
}

// Get returns the value for key, refreshing its recency, or the zero
// value and false if absent.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry[K, V]).value, true
}

// Put inserts key/value if key is not already present. If key is
// already present, Put is a no-op: the existing value and its recency
// position are both left unchanged (spec.md §4.3).
func (c *Cache[K, V]) Put(key K, value V) {
	if _, ok := c.items[key]; ok {
		return
	}
	el := c.order.PushFront(&entry[K, V]{key: key, value: value})
	c.items[key] = el
	if c.capacity > 0 && c.order.Len() > c.capacity {
		c.evictOldest()
	}
}

func (c *Cache[K, V]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.order.Remove(oldest)
	delete(c.items, oldest.Value.(*entry[K, V]).key)
}

// Len returns the number of entries currently cached.
func (c *Cache[K, V]) Len() int { return c.order.Len() }

// Clear empties the cache.
func (c *Cache[K, V]) Clear() {
	c.items = make(map[K]*list.Element)
	c.order.Init()
}
