// Package docstore implements an embedded, file-backed JSON document
// store: put/get/remove/list/query of canonically-serialized documents,
// optionally accelerated by user-declared equality indexes and a
// materialized-path hierarchy.
package docstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/calvinalkan/jsondoc/docstore/cache"
	"github.com/calvinalkan/jsondoc/docstore/canon"
	"github.com/calvinalkan/jsondoc/docstore/query"
	"github.com/calvinalkan/jsondoc/vfs"
)

// Store is the public façade: it validates inputs, consults the cache,
// reads/writes through the atomic I/O layer using the canonical
// serializer, keeps equality indexes fresh via the index manager, and —
// when hierarchy is enabled — commits path-index updates through the WAL.
//
// A Store is not safe for concurrent use by multiple goroutines beyond the
// single-writer-process, concurrent-readers model described by the
// concurrency design: callers are expected to serialize their own access
// the way a single cooperative-scheduling runtime would.
type Store struct {
	cfg    Config
	fs     vfs.FS
	writer *vfs.AtomicWriter
	cache  *cache.Cache
	idx    *indexManager
	wal    *WAL
	lock   *hierarchyLock
}

// PutOptions carries pass-through hooks for external collaborators; the
// core never interprets them.
type PutOptions struct {
	// GitCommit and GitBatch are forwarded to an external version-control
	// hook without interpretation.
	GitCommit bool
	GitBatch  string
}

// RemoveOptions mirrors PutOptions for symmetry with remove's contract.
type RemoveOptions struct {
	GitCommit bool
	GitBatch  string
}

// Open validates cfg, ensures the root directory exists, and — when
// hierarchy is enabled — runs WAL recovery before returning. Recovery must
// complete before the first public operation, per §4.10.
func Open(cfg Config) (*Store, error) {
	effective, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	fsys := vfs.NewReal()

	if err := fsys.MkdirAll(effective.Root, 0o755); err != nil {
		return nil, wrap(fmt.Errorf("create root: %w", err), withKind(KindIODir), withPath(effective.Root))
	}

	s := &Store{
		cfg:    effective,
		fs:     fsys,
		writer: vfs.NewAtomicWriter(fsys),
		cache:  cache.New(effective.CacheMaxEntries, effective.CacheMaxBytes),
		idx:    newIndexManager(fsys, effective.Root, effective.Indent, effective.StableKeyOrder, effective.Logger),
	}

	if effective.EnableHierarchy {
		s.wal = newWAL(fsys, effective.Root, effective.Logger)
		s.lock = newHierarchyLock(fsys, effective.Root)

		if _, err := s.wal.Recover(); err != nil {
			return nil, err
		}
	}

	if effective.EnableIndexes {
		for typ, fields := range effective.Indexes {
			for _, field := range fields {
				if _, err := s.EnsureIndex(typ, field); err != nil {
					return nil, err
				}
			}
		}
	}

	return s, nil
}

// Close releases the store's in-memory caches. Every public mutation is
// already durable, so Close flushes no pending state.
func (s *Store) Close() error {
	s.cache.Clear("")

	return nil
}

func (s *Store) canonOptions() canon.Options {
	return canon.Options{
		Indent:          s.cfg.Indent,
		StableKeyOrder:  s.cfg.StableKeyOrder,
		EOLMode:         canon.LF,
		TrailingNewline: true,
	}
}

// Put writes document under key. If the canonical bytes are identical to
// what's already on disk, Put is a no-op (wrote=false). Otherwise it writes
// atomically, refreshes the cache, and fans the change out to every
// existing equality sidecar for the type and — when hierarchy is enabled
// and the document carries a validated path — to the by-path sidecar via
// the WAL.
func (s *Store) Put(key Key, doc Document, opts PutOptions) (wrote bool, err error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}

	if err := validateShape(doc, key); err != nil {
		return false, err
	}

	path, err := docPath(s.cfg.Root, key)
	if err != nil {
		return false, err
	}

	newBytes, err := canon.Canonicalize(map[string]any(doc), s.canonOptions())
	if err != nil {
		return false, wrap(err, withKind(KindCycle), withType(key.Type), withID(key.ID))
	}

	oldDoc, oldExists, err := s.readFileDoc(path, key)
	if err != nil {
		return false, err
	}

	if oldExists {
		oldBytes, cErr := canon.Canonicalize(map[string]any(oldDoc), s.canonOptions())
		if cErr == nil && string(oldBytes) == string(newBytes) {
			return false, nil
		}
	}

	if err := s.fs.MkdirAll(typeDir(s.cfg.Root, key.Type), 0o755); err != nil {
		return false, wrap(err, withKind(KindIODir), withType(key.Type))
	}

	if err := writeDurable(s.writer, s.cfg.Logger, path, newBytes); err != nil {
		return false, wrap(err, withKind(KindIOWrite), withType(key.Type), withID(key.ID), withPath(path))
	}

	s.invalidateAndSet(path, doc)

	if err := s.fanOutIndexes(key, oldDoc, doc); err != nil {
		return true, err
	}

	if s.cfg.EnableHierarchy {
		if err := s.updateHierarchy(key, oldDoc, doc); err != nil {
			return true, err
		}
	}

	return true, nil
}

// Get returns the document stored under key, or (nil, false, nil) if
// absent.
func (s *Store) Get(key Key) (Document, bool, error) {
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}

	path, err := docPath(s.cfg.Root, key)
	if err != nil {
		return nil, false, err
	}

	doc, exists, err := s.readFileDoc(path, key)
	if err != nil || !exists {
		return nil, false, err
	}

	return doc, true, nil
}

// Remove deletes the document stored under key. Missing keys are a silent
// success, per §8's idempotence requirement.
func (s *Store) Remove(key Key, opts RemoveOptions) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	path, err := docPath(s.cfg.Root, key)
	if err != nil {
		return err
	}

	oldDoc, oldExists, err := s.readFileDoc(path, key)
	if err != nil {
		return err
	}

	if err := s.fs.Remove(path); err != nil && !isNotExist(err) {
		return wrap(err, withKind(KindIORemove), withType(key.Type), withID(key.ID), withPath(path))
	}

	s.cache.Delete(path)

	if !oldExists {
		return nil
	}

	if err := s.fanOutIndexes(key, oldDoc, nil); err != nil {
		return err
	}

	if s.cfg.EnableHierarchy {
		if err := s.updateHierarchy(key, oldDoc, nil); err != nil {
			return err
		}
	}

	return nil
}

// List enumerates the document ids stored under typ, sorted
// lexicographically. A missing type directory yields an empty list.
func (s *Store) List(typ string) ([]string, error) {
	if err := validateKeyPart(typ); err != nil {
		return nil, err
	}

	return s.listIDs(typ)
}

func (s *Store) listIDs(typ string) ([]string, error) {
	names, err := vfs.ListRegularFiles(s.fs, typeDir(s.cfg.Root, typ), ".json")
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}

		return nil, wrap(err, withKind(KindIOList), withType(typ))
	}

	ids := make([]string, 0, len(names))

	for _, n := range names {
		ids = append(ids, n[:len(n)-len(".json")])
	}

	return ids, nil
}

// listTypes enumerates non-reserved top-level directories: the only
// mechanism for entity-type discovery.
func (s *Store) listTypes() ([]string, error) {
	names, err := vfs.ListRegularDirs(s.fs, s.cfg.Root)
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}

		return nil, wrap(err, withKind(KindIOList))
	}

	out := make([]string, 0, len(names))

	for _, n := range names {
		if !isReservedTopLevel(n) {
			out = append(out, n)
		}
	}

	return out, nil
}

// QuerySpec bundles a query request: an optional entity-type restriction,
// a filter, optional sort/pagination/projection.
type QuerySpec struct {
	Type       string
	Filter     query.Filter
	Sort       query.Sort
	Skip       int
	Limit      int
	HasLimit   bool
	Projection query.Projection
}

// Query validates spec and evaluates it. When the filter has exactly one
// top-level equality condition on an indexed field of the given type, the
// candidate ids come from the index sidecar; an "id" equality condition
// reads only the matching file; otherwise every document of the relevant
// type(s) is read and passed through the evaluator.
func (s *Store) Query(spec QuerySpec) ([]Document, error) {
	if spec.Type != "" {
		if err := validateKeyPart(spec.Type); err != nil {
			return nil, err
		}
	}

	docs, err := s.candidateDocs(spec)
	if err != nil {
		return nil, err
	}

	result, err := query.Run(toMapSlice(docs), query.Spec{
		Filter:     spec.Filter,
		Sort:       spec.Sort,
		Skip:       spec.Skip,
		Limit:      spec.Limit,
		HasLimit:   spec.HasLimit,
		Projection: spec.Projection,
	})
	if err != nil {
		return nil, wrap(err, withKind(KindValidation))
	}

	return toDocSlice(result), nil
}

func (s *Store) candidateDocs(spec QuerySpec) ([]Document, error) {
	if spec.Type != "" {
		if id, ok := singleEquality(spec.Filter, FieldID); ok {
			if idStr, ok := id.(string); ok {
				doc, exists, err := s.Get(Key{Type: spec.Type, ID: idStr})
				if err != nil {
					return nil, err
				}

				if !exists {
					return nil, nil
				}

				return []Document{doc}, nil
			}
		}

		if field, value, ok := singleEqualityField(spec.Filter); ok {
			hasSidecar, err := s.fs.Exists(indexSidecarPath(s.cfg.Root, spec.Type, field))
			if err == nil && hasSidecar {
				ids := s.idx.queryWithIndex(spec.Type, field, value)
				if ids != nil {
					return s.readMany(spec.Type, ids)
				}
			}
		}

		ids, err := s.listIDs(spec.Type)
		if err != nil {
			return nil, err
		}

		return s.readMany(spec.Type, ids)
	}

	types, err := s.listTypes()
	if err != nil {
		return nil, err
	}

	var all []Document

	for _, typ := range types {
		ids, err := s.listIDs(typ)
		if err != nil {
			return nil, err
		}

		docs, err := s.readMany(typ, ids)
		if err != nil {
			return nil, err
		}

		all = append(all, docs...)
	}

	return all, nil
}

func (s *Store) readMany(typ string, ids []string) ([]Document, error) {
	docs := make([]Document, 0, len(ids))

	for _, id := range ids {
		doc, exists, err := s.Get(Key{Type: typ, ID: id})
		if err != nil {
			return nil, err
		}

		if exists {
			docs = append(docs, doc)
		}
	}

	return docs, nil
}

// singleEquality returns the literal value of filter[field] when filter
// has exactly that one top-level key and the condition is a bare literal
// or an {$eq: ...} map.
func singleEquality(filter query.Filter, field string) (any, bool) {
	if len(filter) != 1 {
		return nil, false
	}

	cond, ok := filter[field]
	if !ok {
		return nil, false
	}

	return literalOf(cond)
}

// singleEqualityField returns (field, value, true) when filter has exactly
// one top-level key that isn't a logical operator and whose condition is
// an equality literal or {$eq: ...}.
func singleEqualityField(filter query.Filter) (string, any, bool) {
	if len(filter) != 1 {
		return "", nil, false
	}

	for field, cond := range filter {
		if field == "$and" || field == "$or" || field == "$not" {
			return "", nil, false
		}

		v, ok := literalOf(cond)

		return field, v, ok
	}

	return "", nil, false
}

func literalOf(cond any) (any, bool) {
	m, isMap := cond.(map[string]any)
	if !isMap {
		return cond, true
	}

	if len(m) == 1 {
		if v, ok := m["$eq"]; ok {
			return v, true
		}
	}

	return nil, false
}

// existingSidecarFields lists the fields that currently have an equality
// sidecar for typ.
func (s *Store) existingSidecarFields(typ string) ([]string, error) {
	return s.idx.listIndexes(typ)
}

func (s *Store) fanOutIndexes(key Key, oldDoc, newDoc Document) error {
	fields, err := s.existingSidecarFields(key.Type)
	if err != nil {
		return err
	}

	for _, field := range fields {
		// An absent document or field contributes no bucket, as in a full
		// build: struct{}{} encodes to no keys (a JSON null is still indexed).
		var oldVal, newVal any = struct{}{}, struct{}{}

		if v, ok := oldDoc[field]; ok {
			oldVal = v
		}

		if v, ok := newDoc[field]; ok {
			newVal = v
		}

		if err := s.idx.updateIndex(key.Type, field, key.ID, oldVal, newVal); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) updateHierarchy(key Key, oldDoc, newDoc Document) error {
	var newPath string

	if newDoc != nil {
		p, ok := newDoc.MaterializedPath()
		if ok {
			if err := ValidateMaterializedPath(p, s.cfg.MaxDepth); err != nil {
				return err
			}

			newPath = p
		}
	}

	oldHas := false
	if oldDoc != nil {
		_, oldHas = oldDoc.MaterializedPath()
	}

	if newPath == "" && !oldHas {
		return nil
	}

	release, err := s.lock.Acquire(0)
	if err != nil {
		return err
	}

	defer func() { _ = release() }()

	adapter := newByPathAdapter(s.fs, s.cfg.Root, s.cfg.MaxDepth, s.cfg.Indent)

	tx, err := NewIndexTxn(s.wal, []Adapter{adapter})
	if err != nil {
		return err
	}

	change := DocChange{Key: key, NewDoc: newDoc, OldDoc: oldDoc}

	if err := tx.Prepare(change); err != nil {
		return err
	}

	return tx.Commit()
}

// GetByPath reads the by-path sidecar for a materialized path, returning
// the pointed-to {id,type}, or (nil, false) if absent.
func (s *Store) GetByPath(path string) (map[string]any, bool, error) {
	return getByPath(s.fs, s.cfg.Root, path)
}

// RepairHierarchy rebuilds the by-path tree from scratch over every
// document that carries a path. Returns the count of sidecars written.
func (s *Store) RepairHierarchy() (int, error) {
	types, err := s.listTypes()
	if err != nil {
		return 0, err
	}

	var all []Document

	for _, typ := range types {
		ids, err := s.listIDs(typ)
		if err != nil {
			return 0, err
		}

		docs, err := s.readMany(typ, ids)
		if err != nil {
			return 0, err
		}

		all = append(all, docs...)
	}

	return repairHierarchy(s.fs, s.cfg.Root, s.cfg.Indent, all)
}

// EnsureIndex builds the equality sidecar for (typ, field) by scanning every
// document of typ, replacing any sidecar that already exists.
func (s *Store) EnsureIndex(typ, field string) (RebuildSummary, error) {
	if err := validateKeyPart(typ); err != nil {
		return RebuildSummary{}, err
	}

	ids, err := s.listIDs(typ)
	if err != nil {
		return RebuildSummary{}, err
	}

	docs, err := s.readMany(typ, ids)
	if err != nil {
		return RebuildSummary{}, err
	}

	return s.idx.ensureIndex(typ, field, docs)
}

// RebuildIndexesOptions configures RebuildIndexes.
type RebuildIndexesOptions struct {
	// Fields restricts the rebuild to these fields. When empty, every
	// existing sidecar for typ is rediscovered and rebuilt.
	Fields []string

	// Force removes and rebuilds even if unchanged.
	Force bool
}

// RebuildIndexes rebuilds the equality sidecars for typ. When opts.Fields
// is empty, the set of fields is discovered from existing sidecar files.
func (s *Store) RebuildIndexes(typ string, opts RebuildIndexesOptions) ([]RebuildSummary, error) {
	if err := validateKeyPart(typ); err != nil {
		return nil, err
	}

	fields := opts.Fields

	if len(fields) == 0 {
		discovered, err := s.existingSidecarFields(typ)
		if err != nil {
			return nil, err
		}

		fields = discovered
	}

	ids, err := s.listIDs(typ)
	if err != nil {
		return nil, err
	}

	docs, err := s.readMany(typ, ids)
	if err != nil {
		return nil, err
	}

	summaries := make([]RebuildSummary, 0, len(fields))

	for _, field := range fields {
		if opts.Force {
			if err := backupSidecar(s.fs, s.cfg.Root, typ, field); err != nil {
				return summaries, err
			}

			if err := s.idx.removeIndex(typ, field); err != nil {
				return summaries, err
			}
		}

		summary, err := s.idx.ensureIndex(typ, field, docs)
		if err != nil {
			return summaries, err
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// ReindexOptions configures Reindex.
type ReindexOptions struct {
	// Types restricts reindexing to these types. Empty means every
	// non-reserved top-level type.
	Types []string

	Force bool
}

// Reindex rebuilds every existing equality sidecar across the store (or
// across opts.Types, if given).
func (s *Store) Reindex(opts ReindexOptions) (map[string][]RebuildSummary, error) {
	types := opts.Types

	if len(types) == 0 {
		discovered, err := s.listTypes()
		if err != nil {
			return nil, err
		}

		types = discovered
	}

	out := make(map[string][]RebuildSummary, len(types))

	for _, typ := range types {
		summaries, err := s.RebuildIndexes(typ, RebuildIndexesOptions{Force: opts.Force})
		if err != nil {
			return out, err
		}

		out[typ] = summaries
	}

	return out, nil
}

// FormatOptions configures Format.
type FormatOptions struct {
	// DryRun reports what would change without writing.
	DryRun bool

	// FailFast returns the first type's error once that type has been
	// processed, skipping the remaining types. Without it, Format moves on
	// to the next type and does not return per-type errors.
	FailFast bool
}

// Format canonicalizes every document under target (or every type, when
// target is ""), writing documents whose on-disk bytes differ from their
// canonical form. Returns the count of (re)formatted documents.
func (s *Store) Format(target string, opts FormatOptions) (int, error) {
	types := []string{target}

	if target == "" {
		discovered, err := s.listTypes()
		if err != nil {
			return 0, err
		}

		types = discovered
	} else if err := validateKeyPart(target); err != nil {
		return 0, err
	}

	count := 0

	for _, typ := range types {
		n, err := s.formatType(typ, opts)
		count += n

		if err != nil {
			if opts.FailFast {
				return count, err
			}
		}
	}

	return count, nil
}

func (s *Store) formatType(typ string, opts FormatOptions) (int, error) {
	ids, err := s.listIDs(typ)
	if err != nil {
		return 0, err
	}

	concurrency := s.cfg.FormatConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		count    int
		firstErr error
	)

	for _, id := range ids {
		sem <- struct{}{}

		wg.Add(1)

		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			changed, err := s.formatOne(Key{Type: typ, ID: id}, opts)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if firstErr == nil {
					firstErr = err
				}

				return
			}

			if changed {
				count++
			}
		}(id)
	}

	wg.Wait()

	return count, firstErr
}

func (s *Store) formatOne(key Key, opts FormatOptions) (bool, error) {
	path, err := docPath(s.cfg.Root, key)
	if err != nil {
		return false, err
	}

	doc, exists, err := s.readFileDoc(path, key)
	if err != nil || !exists {
		return false, err
	}

	canonical, err := canon.Canonicalize(map[string]any(doc), s.canonOptions())
	if err != nil {
		return false, wrap(err, withKind(KindCycle), withType(key.Type), withID(key.ID))
	}

	current, err := s.fs.ReadFile(path)
	if err != nil {
		return false, wrap(err, withKind(KindIORead), withPath(path))
	}

	if string(current) == string(canonical) {
		return false, nil
	}

	if opts.DryRun {
		return true, nil
	}

	if err := writeDurable(s.writer, s.cfg.Logger, path, canonical); err != nil {
		return false, wrap(err, withKind(KindIOWrite), withPath(path))
	}

	s.invalidateAndSet(path, doc)

	return true, nil
}

// Stats reports document count and total byte size. typ restricts to one
// entity type; "" covers every type.
type Stats struct {
	Count int
	Bytes int64
}

// Stats returns aggregate counts for typ (or every type, if typ is "").
func (s *Store) Stats(typ string) (Stats, error) {
	var types []string

	if typ != "" {
		if err := validateKeyPart(typ); err != nil {
			return Stats{}, err
		}

		types = []string{typ}
	} else {
		discovered, err := s.listTypes()
		if err != nil {
			return Stats{}, err
		}

		types = discovered
	}

	var out Stats

	for _, t := range types {
		n, bytes, err := s.statType(t)
		if err != nil {
			return Stats{}, err
		}

		out.Count += n
		out.Bytes += bytes
	}

	return out, nil
}

func (s *Store) statType(typ string) (count int, totalBytes int64, err error) {
	ids, err := s.listIDs(typ)
	if err != nil {
		return 0, 0, err
	}

	for _, id := range ids {
		path, err := docPath(s.cfg.Root, Key{Type: typ, ID: id})
		if err != nil {
			continue
		}

		info, statErr := s.fs.Stat(path)
		if statErr != nil {
			continue
		}

		count++
		totalBytes += info.Size()
	}

	return count, totalBytes, nil
}

// DetailedStats adds average/min/max byte size and a per-type breakdown to
// [Stats].
type DetailedStats struct {
	Stats

	AvgBytes float64
	MinBytes int64
	MaxBytes int64

	ByType map[string]Stats
}

// String renders a human-readable summary using byte-size formatting.
func (d DetailedStats) String() string {
	return fmt.Sprintf(
		"%d documents, %s total (avg %s, min %s, max %s)",
		d.Count, humanBytes(d.Bytes), humanBytes(int64(d.AvgBytes)), humanBytes(d.MinBytes), humanBytes(d.MaxBytes),
	)
}

// DetailedStats computes aggregate and per-type document statistics.
func (s *Store) DetailedStats() (DetailedStats, error) {
	types, err := s.listTypes()
	if err != nil {
		return DetailedStats{}, err
	}

	out := DetailedStats{ByType: make(map[string]Stats, len(types))}

	var sizes []int64

	for _, typ := range types {
		ids, err := s.listIDs(typ)
		if err != nil {
			return DetailedStats{}, err
		}

		var typStats Stats

		for _, id := range ids {
			path, err := docPath(s.cfg.Root, Key{Type: typ, ID: id})
			if err != nil {
				continue
			}

			info, statErr := s.fs.Stat(path)
			if statErr != nil {
				continue
			}

			typStats.Count++
			typStats.Bytes += info.Size()
			sizes = append(sizes, info.Size())
		}

		out.ByType[typ] = typStats
		out.Count += typStats.Count
		out.Bytes += typStats.Bytes
	}

	if len(sizes) > 0 {
		sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })

		out.MinBytes = sizes[0]
		out.MaxBytes = sizes[len(sizes)-1]
		out.AvgBytes = float64(out.Bytes) / float64(len(sizes))
	}

	return out, nil
}

// CacheStats reports the document cache's cumulative hit, miss, and
// eviction counters, per spec's requirement that these be exposed for
// metrics.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// CacheStats returns the document cache's cumulative hit/miss/eviction
// counters.
func (s *Store) CacheStats() CacheStats {
	hits, misses, evictions := s.cache.HitMissEvict()

	return CacheStats{Hits: hits, Misses: misses, Evictions: evictions}
}

// readFileDoc reads and parses the document at path, consulting and
// populating the cache. Returns (nil, false, nil) when the file is absent.
func (s *Store) readFileDoc(path string, key Key) (Document, bool, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		if isNotExist(err) {
			return nil, false, nil
		}

		return nil, false, wrap(err, withKind(KindIORead), withType(key.Type), withID(key.ID), withPath(path))
	}

	if info.IsDir() {
		return nil, false, wrap(
			fmt.Errorf("%q is a directory, not a document", path),
			withKind(KindIORead), withType(key.Type), withID(key.ID), withPath(path),
		)
	}

	stats := cache.Stats{ModTimeUnixNano: info.ModTime().UnixNano(), Size: info.Size()}

	if doc, ok := s.cache.Get(path, stats); ok {
		return Document(doc), true, nil
	}

	raw, err := s.fs.ReadFile(path)
	if err != nil {
		return nil, false, wrap(err, withKind(KindIORead), withType(key.Type), withID(key.ID), withPath(path))
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, wrap(fmt.Errorf("parse document: %w", err), withKind(KindParse), withPath(path))
	}

	document := Document(doc)

	if err := validateShape(document, key); err != nil {
		return nil, false, err
	}

	s.cache.Set(path, doc, stats, int64(len(raw))+cacheOverheadBytes)

	return document, true, nil
}

const cacheOverheadBytes = 64

func (s *Store) invalidateAndSet(path string, doc Document) {
	s.cache.Delete(path)

	info, err := s.fs.Stat(path)
	if err != nil {
		return
	}

	stats := cache.Stats{ModTimeUnixNano: info.ModTime().UnixNano(), Size: info.Size()}

	estimate, err := canon.Canonicalize(map[string]any(doc), s.canonOptions())
	if err != nil {
		return
	}

	s.cache.Set(path, map[string]any(doc), stats, int64(len(estimate))+cacheOverheadBytes)
}

func humanBytes(n int64) string {
	return humanizeBytes(n)
}
