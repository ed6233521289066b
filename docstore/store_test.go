package docstore_test

import (
	"path/filepath"
	"testing"

	"github.com/calvinalkan/jsondoc/docstore"
)

func openTestStore(t *testing.T, cfg docstore.Config) *docstore.Store {
	t.Helper()

	if cfg.Root == "" {
		cfg.Root = t.TempDir()
	}

	s, err := docstore.Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func Test_Put_Then_Get_RoundTrips_Document(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, docstore.Config{})

	doc := docstore.Document{"type": "note", "id": "a", "title": "hello"}

	wrote, err := s.Put(docstore.Key{Type: "note", ID: "a"}, doc, docstore.PutOptions{})
	if err != nil || !wrote {
		t.Fatalf("put: wrote=%v err=%v", wrote, err)
	}

	got, ok, err := s.Get(docstore.Key{Type: "note", ID: "a"})
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}

	if got["title"] != "hello" {
		t.Fatalf("title = %v, want hello", got["title"])
	}
}

func Test_Put_Is_NoOp_When_Canonical_Bytes_Unchanged(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, docstore.Config{})
	key := docstore.Key{Type: "note", ID: "a"}
	doc := docstore.Document{"type": "note", "id": "a", "title": "hello"}

	if _, err := s.Put(key, doc, docstore.PutOptions{}); err != nil {
		t.Fatalf("first put: %v", err)
	}

	wrote, err := s.Put(key, docstore.Document{"type": "note", "id": "a", "title": "hello"}, docstore.PutOptions{})
	if err != nil {
		t.Fatalf("second put: %v", err)
	}

	if wrote {
		t.Fatal("expected no-op write for identical canonical content")
	}
}

func Test_Put_Rejects_Document_Whose_Shape_Mismatches_Key(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, docstore.Config{})

	_, err := s.Put(docstore.Key{Type: "note", ID: "a"}, docstore.Document{"type": "note", "id": "b"}, docstore.PutOptions{})
	if err == nil {
		t.Fatal("expected validation error for id mismatch")
	}
}

func Test_Get_Returns_Absent_Without_Error_When_Missing(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, docstore.Config{})

	_, ok, err := s.Get(docstore.Key{Type: "note", ID: "missing"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if ok {
		t.Fatal("expected absent document")
	}
}

func Test_Remove_Is_Idempotent_When_Key_Already_Absent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, docstore.Config{})

	if err := s.Remove(docstore.Key{Type: "note", ID: "absent"}, docstore.RemoveOptions{}); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
}

func Test_List_Returns_Sorted_Ids_For_Type(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, docstore.Config{})

	for _, id := range []string{"c", "a", "b"} {
		if _, err := s.Put(docstore.Key{Type: "note", ID: id}, docstore.Document{"type": "note", "id": id}, docstore.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}

	ids, err := s.List("note")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	want := []string{"a", "b", "c"}
	for i, id := range ids {
		if id != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func Test_Query_Filters_By_Field_Equality(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, docstore.Config{})

	_, _ = s.Put(docstore.Key{Type: "note", ID: "a"}, docstore.Document{"type": "note", "id": "a", "status": "open"}, docstore.PutOptions{})
	_, _ = s.Put(docstore.Key{Type: "note", ID: "b"}, docstore.Document{"type": "note", "id": "b", "status": "closed"}, docstore.PutOptions{})

	results, err := s.Query(docstore.QuerySpec{
		Type:   "note",
		Filter: map[string]any{"status": "open"},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	if len(results) != 1 || results[0].ID() != "a" {
		t.Fatalf("results = %v, want only doc 'a'", results)
	}
}

func Test_Query_Uses_Index_FastPath_When_Sidecar_Exists(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, docstore.Config{})

	_, _ = s.Put(docstore.Key{Type: "note", ID: "a"}, docstore.Document{"type": "note", "id": "a", "status": "open"}, docstore.PutOptions{})
	_, _ = s.Put(docstore.Key{Type: "note", ID: "b"}, docstore.Document{"type": "note", "id": "b", "status": "closed"}, docstore.PutOptions{})

	if _, err := s.EnsureIndex("note", "status"); err != nil {
		t.Fatalf("ensure index: %v", err)
	}

	results, err := s.Query(docstore.QuerySpec{Type: "note", Filter: map[string]any{"status": "closed"}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	if len(results) != 1 || results[0].ID() != "b" {
		t.Fatalf("results = %v, want only doc 'b'", results)
	}
}

func Test_EnsureIndex_Is_Idempotent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, docstore.Config{})

	_, _ = s.Put(docstore.Key{Type: "note", ID: "a"}, docstore.Document{"type": "note", "id": "a", "status": "open"}, docstore.PutOptions{})

	first, err := s.EnsureIndex("note", "status")
	if err != nil {
		t.Fatalf("ensure 1: %v", err)
	}

	second, err := s.EnsureIndex("note", "status")
	if err != nil {
		t.Fatalf("ensure 2: %v", err)
	}

	if first.Keys != second.Keys {
		t.Fatalf("key count changed across idempotent ensure calls: %d vs %d", first.Keys, second.Keys)
	}
}

func Test_Format_Rewrites_NonCanonical_File_And_Is_Idempotent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := openTestStore(t, docstore.Config{Root: root})

	if _, err := s.Put(docstore.Key{Type: "note", ID: "a"}, docstore.Document{"type": "note", "id": "a", "b": 1, "a": 2}, docstore.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Corrupt the on-disk formatting directly (simulating a hand-edited file).
	path := filepath.Join(root, "note", "a.json")
	if err := writeRaw(path, `{"type":"note","id":"a","b":1,"a":2}`); err != nil {
		t.Fatalf("write raw: %v", err)
	}

	n, err := s.Format("note", docstore.FormatOptions{})
	if err != nil {
		t.Fatalf("format: %v", err)
	}

	if n != 1 {
		t.Fatalf("format count = %d, want 1", n)
	}

	n2, err := s.Format("note", docstore.FormatOptions{})
	if err != nil {
		t.Fatalf("second format: %v", err)
	}

	if n2 != 0 {
		t.Fatalf("second format count = %d, want 0 (already canonical)", n2)
	}
}

func Test_Stats_Counts_Documents_Across_Types(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, docstore.Config{})

	_, _ = s.Put(docstore.Key{Type: "note", ID: "a"}, docstore.Document{"type": "note", "id": "a"}, docstore.PutOptions{})
	_, _ = s.Put(docstore.Key{Type: "task", ID: "b"}, docstore.Document{"type": "task", "id": "b"}, docstore.PutOptions{})

	stats, err := s.Stats("")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	if stats.Count != 2 {
		t.Fatalf("count = %d, want 2", stats.Count)
	}
}

func Test_CacheStats_Reflects_Hits_And_Misses(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, docstore.Config{})

	if _, err := s.Put(docstore.Key{Type: "note", ID: "a"}, docstore.Document{"type": "note", "id": "a"}, docstore.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, _, err := s.Get(docstore.Key{Type: "note", ID: "a"}); err != nil {
		t.Fatalf("get hit: %v", err)
	}

	if _, _, err := s.Get(docstore.Key{Type: "note", ID: "missing"}); err != nil {
		t.Fatalf("get miss: %v", err)
	}

	stats := s.CacheStats()
	if stats.Hits < 1 {
		t.Fatalf("hits = %d, want at least 1", stats.Hits)
	}
}

func Test_Hierarchy_Put_Then_GetByPath_Resolves_Document(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, docstore.Config{EnableHierarchy: true})

	_, err := s.Put(docstore.Key{Type: "page", ID: "a"}, docstore.Document{"type": "page", "id": "a", "path": "/docs/intro"}, docstore.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	entry, ok, err := s.GetByPath("/docs/intro")
	if err != nil || !ok {
		t.Fatalf("get by path: ok=%v err=%v", ok, err)
	}

	if entry["id"] != "a" {
		t.Fatalf("entry = %v, want id=a", entry)
	}
}

func Test_RepairHierarchy_Rebuilds_ByPath_Tree_Idempotently(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, docstore.Config{EnableHierarchy: true})

	_, _ = s.Put(docstore.Key{Type: "page", ID: "a"}, docstore.Document{"type": "page", "id": "a", "path": "/docs/intro"}, docstore.PutOptions{})

	n1, err := s.RepairHierarchy()
	if err != nil {
		t.Fatalf("repair 1: %v", err)
	}

	n2, err := s.RepairHierarchy()
	if err != nil {
		t.Fatalf("repair 2: %v", err)
	}

	if n1 != n2 || n1 != 1 {
		t.Fatalf("repair counts = %d, %d, want both 1", n1, n2)
	}
}
