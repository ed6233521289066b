// Package cache implements a metadata-invalidated LRU document cache.
//
// Entries are keyed by normalized absolute path and carry the mtime/size
// observed when they were populated. A later read with different stats (or
// non-finite stats) is treated as a miss and evicts the stale entry.
package cache

import (
	"container/list"
	"strings"
	"sync/atomic"

	"github.com/zeebo/xxh3"
)

// Stats describes the file metadata a cache entry is validated against.
type Stats struct {
	ModTimeUnixNano int64
	Size            int64
}

// Finite reports whether both fields are usable for validation. Negative
// values are treated as not finite (e.g. a caller that couldn't stat the
// file should not populate the cache).
func (s Stats) Finite() bool {
	return s.ModTimeUnixNano >= 0 && s.Size >= 0
}

type entry struct {
	path     string
	doc      map[string]any
	stats    Stats
	estBytes int64
}

// Cache is a least-recently-used map from normalized absolute path to a
// cached document plus the metadata it was validated against.
//
// Cache is not safe for concurrent use; a store instance owns one Cache and
// accesses it from a single logical sequence of operations, per the
// single-writer-process concurrency model.
type Cache struct {
	maxEntries int
	maxBytes   int64 // 0 means unbounded

	ll    *list.List
	items map[uint64]*list.Element

	curBytes int64

	hits    atomic.Int64
	misses  atomic.Int64
	evicts  atomic.Int64
}

// DefaultMaxEntries is the default entry-count bound, overridable via the
// JSONDOC_CACHE_SIZE environment variable (applied by the caller, not this
// package).
const DefaultMaxEntries = 10000

// New creates a Cache bounded by maxEntries (<=0 means [DefaultMaxEntries])
// and an optional approximate byte budget (<=0 means unbounded).
func New(maxEntries int, maxBytes int64) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &Cache{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		ll:         list.New(),
		items:      make(map[uint64]*list.Element),
	}
}

func normalize(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}

func hashKey(path string) uint64 {
	return xxh3.HashString(normalize(path))
}

// Get returns the cached document for path if present and its cached stats
// equal the supplied current stats. A mismatch (or non-finite stats)
// evicts the entry and reports a miss.
func (c *Cache) Get(path string, stats Stats) (map[string]any, bool) {
	key := hashKey(path)

	el, ok := c.items[key]
	if !ok {
		c.misses.Add(1)

		return nil, false
	}

	e := el.Value.(*entry)

	if !stats.Finite() || e.stats != stats {
		c.removeElement(el)
		c.misses.Add(1)

		return nil, false
	}

	c.ll.MoveToFront(el)
	c.hits.Add(1)

	return e.doc, true
}

// Set stores doc for path, validated against stats. Non-finite stats are
// rejected (the call is a no-op). Replaces any existing entry for path.
func (c *Cache) Set(path string, doc map[string]any, stats Stats, estBytes int64) {
	if !stats.Finite() {
		return
	}

	key := hashKey(path)

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}

	e := &entry{path: path, doc: doc, stats: stats, estBytes: estBytes}
	el := c.ll.PushFront(e)
	c.items[key] = el
	c.curBytes += estBytes

	c.evictToBounds()
}

// Delete removes path from the cache, if present.
func (c *Cache) Delete(path string) {
	key := hashKey(path)

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Clear removes every entry whose normalized path starts with the given
// prefix (typically "<root>/<type>/"). An empty prefix clears everything.
func (c *Cache) Clear(prefix string) {
	if prefix == "" {
		c.ll.Init()
		c.items = make(map[uint64]*list.Element)
		c.curBytes = 0

		return
	}

	prefix = normalize(prefix)

	var toRemove []*list.Element

	for el := c.ll.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if strings.HasPrefix(normalize(e.path), prefix) {
			toRemove = append(toRemove, el)
		}
	}

	for _, el := range toRemove {
		c.removeElement(el)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.ll.Len()
}

// HitMissEvict returns cumulative hit, miss, and eviction counters.
func (c *Cache) HitMissEvict() (hits, misses, evictions int64) {
	return c.hits.Load(), c.misses.Load(), c.evicts.Load()
}

func (c *Cache) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.items, hashKey(e.path))
	c.curBytes -= e.estBytes
}

func (c *Cache) evictToBounds() {
	for c.ll.Len() > c.maxEntries || (c.maxBytes > 0 && c.curBytes > c.maxBytes) {
		back := c.ll.Back()
		if back == nil {
			return
		}

		c.removeElement(back)
		c.evicts.Add(1)
	}
}
