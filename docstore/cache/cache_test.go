package cache_test

import (
	"testing"

	"github.com/calvinalkan/jsondoc/docstore/cache"
)

func Test_Get_Returns_Miss_When_Absent(t *testing.T) {
	t.Parallel()

	c := cache.New(10, 0)

	_, ok := c.Get("/a", cache.Stats{ModTimeUnixNano: 1, Size: 1})
	if ok {
		t.Fatal("expected miss for absent path")
	}
}

func Test_Set_Then_Get_Hits_When_Stats_Match(t *testing.T) {
	t.Parallel()

	c := cache.New(10, 0)
	stats := cache.Stats{ModTimeUnixNano: 100, Size: 5}

	c.Set("/a", map[string]any{"id": "a"}, stats, 64)

	doc, ok := c.Get("/a", stats)
	if !ok || doc["id"] != "a" {
		t.Fatalf("expected hit, got ok=%v doc=%v", ok, doc)
	}
}

func Test_Get_Evicts_And_Misses_When_Stats_Differ(t *testing.T) {
	t.Parallel()

	c := cache.New(10, 0)
	c.Set("/a", map[string]any{"id": "a"}, cache.Stats{ModTimeUnixNano: 100, Size: 5}, 64)

	_, ok := c.Get("/a", cache.Stats{ModTimeUnixNano: 200, Size: 5})
	if ok {
		t.Fatal("expected miss when mtime changed")
	}

	if _, ok := c.Get("/a", cache.Stats{ModTimeUnixNano: 100, Size: 5}); ok {
		t.Fatal("stale entry should have been evicted by the earlier mismatch")
	}
}

func Test_Set_Rejects_NonFinite_Stats(t *testing.T) {
	t.Parallel()

	c := cache.New(10, 0)
	c.Set("/a", map[string]any{"id": "a"}, cache.Stats{ModTimeUnixNano: -1, Size: 5}, 64)

	if c.Len() != 0 {
		t.Fatalf("len = %d, want 0 after rejected set", c.Len())
	}
}

func Test_Cache_Evicts_LeastRecentlyUsed_When_Over_MaxEntries(t *testing.T) {
	t.Parallel()

	c := cache.New(2, 0)
	stats := cache.Stats{ModTimeUnixNano: 1, Size: 1}

	c.Set("/a", map[string]any{"id": "a"}, stats, 1)
	c.Set("/b", map[string]any{"id": "b"}, stats, 1)
	c.Get("/a", stats) // touch /a so /b becomes LRU
	c.Set("/c", map[string]any{"id": "c"}, stats, 1)

	if _, ok := c.Get("/b", stats); ok {
		t.Fatal("expected /b to be evicted as least recently used")
	}

	if _, ok := c.Get("/a", stats); !ok {
		t.Fatal("expected /a to survive eviction")
	}
}

func Test_Clear_With_Prefix_Removes_Only_Matching_Entries(t *testing.T) {
	t.Parallel()

	c := cache.New(10, 0)
	stats := cache.Stats{ModTimeUnixNano: 1, Size: 1}

	c.Set("/root/note/a.json", map[string]any{}, stats, 1)
	c.Set("/root/task/b.json", map[string]any{}, stats, 1)

	c.Clear("/root/note/")

	if _, ok := c.Get("/root/note/a.json", stats); ok {
		t.Fatal("expected note entry cleared")
	}

	if _, ok := c.Get("/root/task/b.json", stats); !ok {
		t.Fatal("expected task entry to survive prefix clear")
	}
}

func Test_HitMissEvict_Counts_Accumulate(t *testing.T) {
	t.Parallel()

	c := cache.New(10, 0)
	stats := cache.Stats{ModTimeUnixNano: 1, Size: 1}

	c.Set("/a", map[string]any{}, stats, 1)
	c.Get("/a", stats)
	c.Get("/missing", stats)

	hits, misses, _ := c.HitMissEvict()
	if hits != 1 || misses != 1 {
		t.Fatalf("hits=%d misses=%d, want 1/1", hits, misses)
	}
}
