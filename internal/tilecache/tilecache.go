// Package tilecache provides an in-memory, count-bounded LRU cache of
// decoded tile image bytes. The frame loop owns it exclusively; nothing
// here is safe for concurrent use, matching the scheduler's
// single-threaded cooperative model.
package tilecache

import (
	"container/list"

	"github.com/dabubi/drone-visual-positioning/internal/geo"
)

// DefaultCapacity is the default number of tiles held (roughly 19 MB for
// 256x256 PNG tiles at typical compression ratios).
const DefaultCapacity = 100

// entry is the payload stored in the list; key is duplicated here so
// eviction can remove the corresponding map entry.
type entry struct {
	key  geo.TileCoord
	data []byte
}

// TileCache is a fixed-capacity LRU keyed by tile coordinate. Both Get
// hits and Put insertions move an entry to the most-recently-used
// position; a naive insert-only recency scheme would silently let
// frequently re-requested tiles age out.
type TileCache struct {
	capacity int
	order    *list.List // front = most recently used
	index    map[geo.TileCoord]*list.Element

	hits, misses, evictions int
}

// New creates a TileCache with the given capacity, clamped to at least 1.
func New(capacity int) *TileCache {
	if capacity < 1 {
		capacity = 1
	}
	return &TileCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[geo.TileCoord]*list.Element, capacity),
	}
}

// Get returns the cached bytes for coord, promoting it to
// most-recently-used on a hit.
func (c *TileCache) Get(coord geo.TileCoord) ([]byte, bool) {
	el, ok := c.index[coord]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*entry).data, true
}

// Put inserts or replaces the cached bytes for coord, marking it
// most-recently-used. If the cache is at capacity and coord is new, the
// least-recently-used entry is evicted.
func (c *TileCache) Put(coord geo.TileCoord, data []byte) {
	if el, ok := c.index[coord]; ok {
		el.Value.(*entry).data = data
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}

	el := c.order.PushFront(&entry{key: coord, data: data})
	c.index[coord] = el
}

func (c *TileCache) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.order.Remove(oldest)
	delete(c.index, oldest.Value.(*entry).key)
	c.evictions++
}

// Len returns the number of tiles currently cached.
func (c *TileCache) Len() int { return c.order.Len() }

// Stats is a point-in-time snapshot of the cache's hit/miss/eviction
// counters.
type Stats struct {
	Hits      int
	Misses    int
	Evictions int
	Size      int
	Capacity  int
}

// Stats returns a value-copy snapshot of the cache's counters.
func (c *TileCache) Stats() Stats {
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      c.order.Len(),
		Capacity:  c.capacity,
	}
}
