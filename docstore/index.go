package docstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/calvinalkan/jsondoc/docstore/canon"
	"github.com/calvinalkan/jsondoc/vfs"
)

const reservedStringPrefix = "__"

// encodeValue returns the sidecar bucket key(s) implied by v, per §3. An
// array fans out into one key per element; every other value produces
// exactly one key.
func encodeValue(v any) []string {
	switch val := v.(type) {
	case nil:
		return []string{"__null__"}
	case bool:
		if val {
			return []string{"__bool__true"}
		}

		return []string{"__bool__false"}
	case float64:
		return []string{"__num__" + canonicalNumber(val)}
	case string:
		if strings.HasPrefix(val, reservedStringPrefix) {
			return []string{"__str__:" + val}
		}

		return []string{val}
	case map[string]any:
		data, err := canon.Canonicalize(val, canon.Options{})
		if err != nil {
			// Unrepresentable (cyclic) values can't be indexed; skip silently,
			// mirroring the graceful-degrade posture for index maintenance.
			return nil
		}

		return []string{"__obj__:" + string(data)}
	case []any:
		keys := make([]string, 0, len(val))

		for _, el := range val {
			keys = append(keys, encodeValue(el)...)
		}

		return keys
	default:
		return nil
	}
}

func canonicalNumber(f float64) string {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Sprintf("%v", f)
	}

	return string(data)
}

// sidecar is the on-disk shape of an equality index file: bucket key to
// sorted, deduplicated document id list.
type sidecar map[string][]string

// indexManager owns one mutex per (type, field) and mediates every read or
// write of an equality-index sidecar file.
type indexManager struct {
	fs     vfs.FS
	writer *vfs.AtomicWriter
	root   string
	indent int
	keys   []string // stable key order priority, passed to canon
	logger Logger

	mu        sync.Mutex
	fieldLock map[string]*sync.Mutex
}

func newIndexManager(fsys vfs.FS, root string, indent int, keys []string, logger Logger) *indexManager {
	if logger == nil {
		logger = nilLogger{}
	}

	return &indexManager{
		fs:        fsys,
		writer:    vfs.NewAtomicWriter(fsys),
		root:      root,
		indent:    indent,
		keys:      keys,
		logger:    logger,
		fieldLock: make(map[string]*sync.Mutex),
	}
}

func (im *indexManager) lockFor(typ, field string) *sync.Mutex {
	key := typ + "\x00" + field

	im.mu.Lock()
	defer im.mu.Unlock()

	l, ok := im.fieldLock[key]
	if !ok {
		l = &sync.Mutex{}
		im.fieldLock[key] = l
	}

	return l
}

// RebuildSummary reports the outcome of (re)building one sidecar.
type RebuildSummary struct {
	Field       string
	DocsScanned int
	Keys        int
	Bytes       int
	DurationMs  int64
}

// ensureIndex builds the sidecar for (typ,field) from docs and writes it
// canonically, overwriting any existing sidecar.
func (im *indexManager) ensureIndex(typ, field string, docs []Document) (RebuildSummary, error) {
	l := im.lockFor(typ, field)
	l.Lock()
	defer l.Unlock()

	return im.buildLocked(typ, field, docs)
}

func (im *indexManager) buildLocked(typ, field string, docs []Document) (RebuildSummary, error) {
	start := nowFunc()

	buckets := make(sidecar)

	for _, doc := range docs {
		v, ok := doc[field]
		if !ok {
			continue
		}

		id := doc.ID()

		for _, k := range encodeValue(v) {
			buckets[k] = insertSorted(buckets[k], id)
		}
	}

	data, err := im.marshalSidecar(buckets)
	if err != nil {
		return RebuildSummary{}, err
	}

	path := indexSidecarPath(im.root, typ, field)

	if err := im.fs.MkdirAll(indexesDir(im.root, typ), 0o755); err != nil {
		return RebuildSummary{}, wrap(err, withKind(KindIODir), withType(typ))
	}

	if err := writeDurable(im.writer, im.logger, path, data); err != nil {
		return RebuildSummary{}, wrap(err, withKind(KindIOWrite), withType(typ), withPath(path))
	}

	return RebuildSummary{
		Field:       field,
		DocsScanned: len(docs),
		Keys:        len(buckets),
		Bytes:       len(data),
		DurationMs:  durationMs(start),
	}, nil
}

// updateIndex incrementally maintains the sidecar for (typ,field) across a
// single document change. A missing sidecar is a no-op: indexes are
// opt-in, never implicitly created by a write.
func (im *indexManager) updateIndex(typ, field, docID string, oldValue, newValue any) error {
	l := im.lockFor(typ, field)
	l.Lock()
	defer l.Unlock()

	path := indexSidecarPath(im.root, typ, field)

	buckets, ok, err := im.readSidecar(path)
	if err != nil {
		return err
	}

	if !ok {
		return nil
	}

	for _, k := range encodeValue(oldValue) {
		buckets[k] = removeFromBucket(buckets[k], docID)

		if len(buckets[k]) == 0 {
			delete(buckets, k)
		}
	}

	for _, k := range encodeValue(newValue) {
		buckets[k] = insertSorted(buckets[k], docID)
	}

	data, err := im.marshalSidecar(buckets)
	if err != nil {
		return err
	}

	if err := writeDurable(im.writer, im.logger, path, data); err != nil {
		return wrap(err, withKind(KindIOWrite), withType(typ), withPath(path))
	}

	return nil
}

// queryWithIndex unions the bucket(s) implied by value, returning a sorted,
// deduplicated id list. A missing or unreadable sidecar degrades to an
// empty result so the caller can fall back to a directory scan.
func (im *indexManager) queryWithIndex(typ, field string, value any) []string {
	l := im.lockFor(typ, field)
	l.Lock()
	defer l.Unlock()

	path := indexSidecarPath(im.root, typ, field)

	buckets, ok, err := im.readSidecar(path)
	if err != nil || !ok {
		return nil
	}

	seen := make(map[string]bool)

	var out []string

	for _, k := range encodeValue(value) {
		for _, id := range buckets[k] {
			if !seen[id] {
				seen[id] = true

				out = append(out, id)
			}
		}
	}

	sort.Strings(out)

	return out
}

// removeIndex deletes the sidecar for (typ,field). Idempotent.
func (im *indexManager) removeIndex(typ, field string) error {
	l := im.lockFor(typ, field)
	l.Lock()
	defer l.Unlock()

	path := indexSidecarPath(im.root, typ, field)

	if err := im.fs.Remove(path); err != nil && !isNotExist(err) {
		return wrap(err, withKind(KindIORemove), withType(typ), withPath(path))
	}

	return nil
}

// listIndexes enumerates the sidecar field names for typ.
func (im *indexManager) listIndexes(typ string) ([]string, error) {
	names, err := vfs.ListRegularFiles(im.fs, indexesDir(im.root, typ), ".json")
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}

		return nil, wrap(err, withKind(KindIOList), withType(typ))
	}

	out := make([]string, 0, len(names))

	for _, n := range names {
		out = append(out, strings.TrimSuffix(n, ".json"))
	}

	return out, nil
}

func (im *indexManager) readSidecar(path string) (sidecar, bool, error) {
	exists, err := im.fs.Exists(path)
	if err != nil {
		return nil, false, wrap(err, withKind(KindIORead), withPath(path))
	}

	if !exists {
		return make(sidecar), false, nil
	}

	data, err := im.fs.ReadFile(path)
	if err != nil {
		return nil, false, wrap(err, withKind(KindIORead), withPath(path))
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		// Truncated/empty sidecar degrades to scan, not to an error.
		return make(sidecar), false, nil
	}

	var buckets sidecar
	if err := json.Unmarshal(data, &buckets); err != nil {
		return make(sidecar), false, nil
	}

	return buckets, true, nil
}

func (im *indexManager) marshalSidecar(buckets sidecar) ([]byte, error) {
	m := make(map[string]any, len(buckets))
	for k, ids := range buckets {
		vs := make([]any, len(ids))
		for i, id := range ids {
			vs[i] = id
		}

		m[k] = vs
	}

	data, err := canon.Canonicalize(m, canon.Options{
		Indent:          im.indent,
		StableKeyOrder:  im.keys,
		TrailingNewline: true,
	})
	if err != nil {
		return nil, wrap(err, withKind(KindCycle))
	}

	return data, nil
}

func insertSorted(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	if i < len(ids) && ids[i] == id {
		return ids
	}

	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id

	return ids
}

func removeFromBucket(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	if i < len(ids) && ids[i] == id {
		return append(ids[:i], ids[i+1:]...)
	}

	return ids
}
