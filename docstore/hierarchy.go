package docstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/calvinalkan/jsondoc/vfs"
)

// lockPollInterval and lockDefaultTimeout govern [hierarchyLock.Acquire],
// per §4.7: retry every 100ms up to 30s.
const (
	lockPollInterval  = 100 * time.Millisecond
	lockDefaultTimeout = 30 * time.Second
)

type lockContent struct {
	PID        int    `json:"pid"`
	AcquiredAt string `json:"acquiredAt"`
}

// hierarchyLock serializes hierarchical writes across processes using
// exclusive-create semantics on "_meta/hierarchy.lock".
type hierarchyLock struct {
	fs   vfs.FS
	path string
}

func newHierarchyLock(fsys vfs.FS, root string) *hierarchyLock {
	return &hierarchyLock{fs: fsys, path: hierarchyLockPath(root)}
}

// Acquire opens the lock file with exclusive-create semantics, retrying
// every 100ms up to timeout (zero means [lockDefaultTimeout]). On success
// it returns a release function.
func (l *hierarchyLock) Acquire(timeout time.Duration) (release func() error, err error) {
	if timeout <= 0 {
		timeout = lockDefaultTimeout
	}

	if err := l.fs.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, wrap(fmt.Errorf("create meta dir: %w", err), withKind(KindIODir))
	}

	content, err := json.Marshal(lockContent{PID: os.Getpid(), AcquiredAt: nowFunc().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return nil, wrap(fmt.Errorf("marshal lock content: %w", err), withKind(KindInternal))
	}

	deadline := nowFunc().Add(timeout)

	for {
		// O_CREATE|O_EXCL is the mutual-exclusion claim itself: only one
		// caller can win this create. Once won, the diagnostic payload is
		// persisted via natefinch/atomic's temp-file-then-rename, mirroring
		// the teacher's flock-then-atomic.WriteFile split (lock.go): the
		// exclusivity mechanism and the content-durability mechanism are
		// independent concerns.
		f, openErr := l.fs.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if openErr == nil {
			_ = f.Close()

			if werr := vfs.WriteFileAtomic(l.path, content); werr != nil {
				_ = l.fs.Remove(l.path)

				return nil, wrap(fmt.Errorf("write lock file: %w", werr), withKind(KindLock), withPath(l.path))
			}

			return func() error {
				if err := l.fs.Remove(l.path); err != nil && !isNotExist(err) {
					return wrap(fmt.Errorf("release lock: %w", err), withKind(KindLock), withPath(l.path))
				}

				return nil
			}, nil
		}

		if !os.IsExist(openErr) {
			return nil, wrap(fmt.Errorf("open lock file: %w", openErr), withKind(KindLock), withPath(l.path))
		}

		if nowFunc().After(deadline) {
			return nil, wrap(
				fmt.Errorf("%w: %s held by another writer after %s", ErrLockTimeout, l.path, timeout),
				withKind(KindLock), withPath(l.path),
			)
		}

		time.Sleep(lockPollInterval)
	}
}

// byPathAdapter is the only [Adapter] the core ships: it stages the
// by-path sidecar under the WAL scratch directory and, for a changed or
// removed path, issues an out-of-band delete of the stale sidecar.
type byPathAdapter struct {
	fs        vfs.FS
	root      string
	maxDepth  int
	indent    int
	stagedNew string // target path staged by the last Prepare call, for Rollback
}

func newByPathAdapter(fsys vfs.FS, root string, maxDepth, indent int) *byPathAdapter {
	return &byPathAdapter{fs: fsys, root: root, maxDepth: maxDepth, indent: indent}
}

// Prepare stages the new by-path sidecar (if the new document carries a
// path) and issues an out-of-band delete of the old sidecar when the path
// changed or the document was removed. Out-of-band deletes are not rolled
// back on failure; they are idempotent to re-issue on WAL replay.
func (a *byPathAdapter) Prepare(change DocChange, scratchDir string) ([]Operation, error) {
	oldPath, oldHas := "", false
	if change.OldDoc != nil {
		oldPath, oldHas = change.OldDoc.MaterializedPath()
	}

	newPath, newHas := "", false
	if change.NewDoc != nil {
		newPath, newHas = change.NewDoc.MaterializedPath()
	}

	if oldHas && (!newHas || oldPath != newPath) {
		target := byPathSidecarPath(a.root, oldPath)
		if err := a.fs.Remove(target); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("remove stale by-path sidecar: %w", err)
		}
	}

	if !newHas {
		return nil, nil
	}

	if err := ValidateMaterializedPath(newPath, a.maxDepth); err != nil {
		return nil, err
	}

	payload := map[string]any{"id": change.Key.ID, "type": change.Key.Type}

	data, err := canonicalizeSidecarValue(payload, a.indent)
	if err != nil {
		return nil, err
	}

	rel := strings.TrimPrefix(newPath, "/")
	if rel == "" {
		rel = "__root__"
	}

	stagedRel := filepath.Join("by-path", rel+".json")
	stagedAbs := filepath.Join(scratchDir, stagedRel)

	if err := a.fs.MkdirAll(filepath.Dir(stagedAbs), 0o755); err != nil {
		return nil, fmt.Errorf("stage by-path parent dir: %w", err)
	}

	if err := a.fs.WriteFile(stagedAbs, data, 0o644); err != nil {
		return nil, fmt.Errorf("stage by-path sidecar: %w", err)
	}

	target := byPathSidecarPath(a.root, newPath)
	a.stagedNew = target

	return []Operation{{Source: stagedRel, Target: target, Hash: sha256Hex(data)}}, nil
}

// Rollback clears the record of the target staged by the last Prepare. It
// removes no file: Prepare writes only into the scratch directory, and a
// sidecar already published at the target is left in place.
func (a *byPathAdapter) Rollback(_ DocChange) error {
	a.stagedNew = ""

	return nil
}

func canonicalizeSidecarValue(v map[string]any, indent int) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", strings.Repeat(" ", max(indent, 0)))
	if err != nil {
		return nil, fmt.Errorf("marshal by-path sidecar: %w", err)
	}

	return append(data, '\n'), nil
}

// getByPath reads the by-path sidecar for path, returning (nil, false) if
// absent.
func getByPath(fsys vfs.FS, root, path string) (map[string]any, bool, error) {
	target := byPathSidecarPath(root, path)

	exists, err := fsys.Exists(target)
	if err != nil {
		return nil, false, wrap(err, withKind(KindIORead), withPath(target))
	}

	if !exists {
		return nil, false, nil
	}

	data, err := fsys.ReadFile(target)
	if err != nil {
		return nil, false, wrap(err, withKind(KindIORead), withPath(target))
	}

	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false, wrap(fmt.Errorf("parse by-path sidecar: %w", err), withKind(KindParse), withPath(target))
	}

	return v, true, nil
}

// repairHierarchy rebuilds the by-path tree from scratch: the entire
// "_indexes/by-path" subtree is removed, then a fresh sidecar is written
// for every document carrying a "path" field. Idempotent: running it twice
// over a consistent store set produces the same file set and counts.
func repairHierarchy(fsys vfs.FS, root string, indent int, docs []Document) (int, error) {
	byPathRoot := byPathIndexRoot(root)

	if err := fsys.RemoveAll(byPathRoot); err != nil {
		return 0, wrap(fmt.Errorf("remove by-path tree: %w", err), withKind(KindIORemove), withPath(byPathRoot))
	}

	count := 0

	for _, doc := range docs {
		path, ok := doc.MaterializedPath()
		if !ok {
			continue
		}

		rel := strings.TrimPrefix(path, "/")
		if rel == "" {
			rel = "__root__"
		}

		target := filepath.Join(byPathRoot, rel+".json")

		payload := map[string]any{"id": doc.ID(), "type": doc.Type()}

		data, err := canonicalizeSidecarValue(payload, indent)
		if err != nil {
			return count, err
		}

		if err := fsys.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return count, wrap(fmt.Errorf("create by-path parent: %w", err), withKind(KindIODir), withPath(target))
		}

		if err := fsys.WriteFile(target, data, 0o644); err != nil {
			return count, wrap(fmt.Errorf("write by-path sidecar: %w", err), withKind(KindIOWrite), withPath(target))
		}

		count++
	}

	return count, nil
}
