package docstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calvinalkan/jsondoc/vfs"
)

// Operation describes one staged-file placement: source is relative to the
// transaction's scratch directory, target is the absolute final path, hash
// is the SHA-256 hex fingerprint of the staged bytes.
type Operation struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Hash   string `json:"hash"`
}

// manifest is the durable record of a prepared transaction, written to
// "<txnDir>/manifest.json".
type manifest struct {
	TxnID      string      `json:"txnId"`
	Timestamp  string      `json:"timestamp"`
	Operations []Operation `json:"operations"`
}

// DocChange describes one document mutation being driven through a WAL
// transaction: the key, the new document (nil on remove), and the previous
// document (nil if it didn't exist).
type DocChange struct {
	Key    Key
	NewDoc Document
	OldDoc Document
}

// Adapter is a pluggable participant in a WAL transaction. It stages files
// under scratchDir describing where they should land, and can best-effort
// undo its staging on Rollback. This is intentionally a two-method
// capability interface, not a deeper hierarchy: the by-path adapter is the
// only implementation the core ships.
type Adapter interface {
	// Prepare stages files under scratchDir for change and returns the
	// operations describing their final placement. May also perform
	// out-of-band deletes (not rolled back on failure; expected to be
	// idempotent on replay).
	Prepare(change DocChange, scratchDir string) ([]Operation, error)

	// Rollback best-effort undoes anything Prepare did that isn't covered
	// by the staged-file operations (e.g. remove a stray new entry).
	Rollback(change DocChange) error
}

// WAL turns a collection of sidecar updates into an all-or-nothing outcome
// with crash recovery, per §4.6.
type WAL struct {
	fs     vfs.FS
	root   string
	logger Logger
}

func newWAL(fsys vfs.FS, root string, logger Logger) *WAL {
	if logger == nil {
		logger = nilLogger{}
	}

	return &WAL{fs: fsys, root: root, logger: logger}
}

// Begin creates a new scratch directory and returns its transaction id.
func (w *WAL) Begin() (txnID, scratchDir string, err error) {
	id, err := newTxnID()
	if err != nil {
		return "", "", wrap(fmt.Errorf("generate txn id: %w", err), withKind(KindWAL))
	}

	dir := filepath.Join(walRoot(w.root), id)

	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return "", "", wrap(fmt.Errorf("create scratch dir: %w", err), withKind(KindWAL), withPath(dir))
	}

	return id, dir, nil
}

// Prepare atomically writes manifest.json into the transaction directory
// and fsyncs it. After this returns successfully, the transaction is
// recoverable: a crash before Commit will be replayed by Recover on the
// next Open.
func (w *WAL) Prepare(txnID string, ops []Operation) error {
	dir := filepath.Join(walRoot(w.root), txnID)

	m := manifest{
		TxnID:      txnID,
		Timestamp:  nowFunc().UTC().Format(time.RFC3339Nano),
		Operations: ops,
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return wrap(fmt.Errorf("marshal manifest: %w", err), withKind(KindWAL))
	}

	manifestPath := filepath.Join(dir, "manifest.json")

	if err := writeDurable(vfs.NewAtomicWriter(w.fs), w.logger, manifestPath, data); err != nil {
		return wrap(fmt.Errorf("write manifest: %w", err), withKind(KindWAL), withPath(manifestPath))
	}

	if f, openErr := w.fs.Open(dir); openErr == nil {
		if syncErr := f.Sync(); syncErr != nil {
			w.logger.Debug("wal: fsync transaction dir failed", "dir", dir, "err", syncErr.Error())
		}

		_ = f.Close()
	}

	return nil
}

// Commit renames every staged source file to its target, creating target
// parent directories as needed, then removes the transaction directory.
// Commit is not atomic across operations, but each rename is idempotent to
// re-issue: a missing source (because the rename already happened) is a
// recognized, non-error case.
func (w *WAL) Commit(txnID string, ops []Operation) error {
	dir := filepath.Join(walRoot(w.root), txnID)

	for _, op := range ops {
		if err := w.fs.MkdirAll(filepath.Dir(op.Target), 0o755); err != nil {
			return wrap(fmt.Errorf("create target parent: %w", err), withKind(KindWAL), withPath(op.Target))
		}

		src := filepath.Join(dir, op.Source)

		exists, err := w.fs.Exists(src)
		if err != nil {
			return wrap(fmt.Errorf("stat staged file: %w", err), withKind(KindWAL), withPath(src))
		}

		if !exists {
			// Already renamed on a prior (crashed) commit attempt; idempotent no-op.
			continue
		}

		if err := w.fs.Rename(src, op.Target); err != nil {
			return wrap(fmt.Errorf("commit rename: %w", err), withKind(KindWAL), withPath(op.Target))
		}
	}

	if err := w.fs.RemoveAll(dir); err != nil {
		w.logger.Debug("wal: remove transaction dir failed", "dir", dir, "err", err.Error())
	}

	return nil
}

// Rollback removes the scratch directory. Legal only before Prepare has
// persisted a manifest; once a manifest exists, the transaction must be
// driven forward via Commit or left for Recover.
func (w *WAL) Rollback(txnID string) error {
	dir := filepath.Join(walRoot(w.root), txnID)

	if err := w.fs.RemoveAll(dir); err != nil {
		return wrap(fmt.Errorf("rollback: %w", err), withKind(KindWAL), withPath(dir))
	}

	return nil
}

// Recover scans "_meta/wal/" for leftover transaction directories: one with
// a parseable manifest is replayed via Commit; one without is deleted.
// Returns the number of transaction directories processed.
func (w *WAL) Recover() (int, error) {
	root := walRoot(w.root)

	entries, err := w.fs.ReadDir(root)
	if err != nil {
		if isNotExist(err) {
			return 0, nil
		}

		return 0, wrap(fmt.Errorf("list wal dir: %w", err), withKind(KindWAL), withPath(root))
	}

	count := 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(root, entry.Name())
		manifestPath := filepath.Join(dir, "manifest.json")

		data, readErr := w.fs.ReadFile(manifestPath)
		if readErr != nil {
			_ = w.fs.RemoveAll(dir)
			count++

			continue
		}

		var m manifest
		if jsonErr := json.Unmarshal(data, &m); jsonErr != nil {
			_ = w.fs.RemoveAll(dir)
			count++

			continue
		}

		if err := w.Commit(entry.Name(), m.Operations); err != nil {
			return count, err
		}

		count++
	}

	return count, nil
}

// Reap deletes transaction directories whose manifest timestamp is older
// than maxAge. Directories with no parseable manifest are left for Recover.
func (w *WAL) Reap(maxAge time.Duration) (int, error) {
	root := walRoot(w.root)

	entries, err := w.fs.ReadDir(root)
	if err != nil {
		if isNotExist(err) {
			return 0, nil
		}

		return 0, wrap(fmt.Errorf("list wal dir: %w", err), withKind(KindWAL), withPath(root))
	}

	cutoff := nowFunc().Add(-maxAge)
	count := 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(root, entry.Name())

		data, readErr := w.fs.ReadFile(filepath.Join(dir, "manifest.json"))
		if readErr != nil {
			continue
		}

		var m manifest
		if jsonErr := json.Unmarshal(data, &m); jsonErr != nil {
			continue
		}

		ts, parseErr := time.Parse(time.RFC3339Nano, m.Timestamp)
		if parseErr != nil {
			continue
		}

		if ts.Before(cutoff) {
			if err := w.fs.RemoveAll(dir); err == nil {
				count++
			}
		}
	}

	return count, nil
}

func newTxnID() (string, error) {
	millis := nowFunc().UnixMilli()
	u := uuid.New()
	hex8 := strings.ReplaceAll(u.String(), "-", "")[:16]

	return strconv.FormatInt(millis, 10) + "-" + hex8, nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}

// IndexTxn bundles a WAL transaction's lifecycle across a fixed adapter
// list: Prepare calls every adapter's Prepare in order, collecting
// operations; on any adapter error, prior adapters' Rollback hooks run
// best-effort, the WAL transaction is rolled back, and the error
// propagates. Commit/Rollback delegate to the underlying WAL.
type IndexTxn struct {
	wal      *WAL
	adapters []Adapter

	txnID      string
	scratchDir string
	ops        []Operation
	prepared   []Adapter
}

// NewIndexTxn begins a WAL transaction for use by the given adapters.
func NewIndexTxn(wal *WAL, adapters []Adapter) (*IndexTxn, error) {
	txnID, scratchDir, err := wal.Begin()
	if err != nil {
		return nil, err
	}

	return &IndexTxn{wal: wal, adapters: adapters, txnID: txnID, scratchDir: scratchDir}, nil
}

// Prepare drives every adapter's Prepare hook and persists the resulting
// manifest.
func (tx *IndexTxn) Prepare(change DocChange) error {
	var ops []Operation

	for _, a := range tx.adapters {
		adapterOps, err := a.Prepare(change, tx.scratchDir)
		if err != nil {
			tx.rollbackAdapters(change)
			_ = tx.wal.Rollback(tx.txnID)

			return wrap(fmt.Errorf("adapter prepare: %w", err), withKind(KindWAL))
		}

		tx.prepared = append(tx.prepared, a)
		ops = append(ops, adapterOps...)
	}

	if err := tx.wal.Prepare(tx.txnID, ops); err != nil {
		tx.rollbackAdapters(change)
		_ = tx.wal.Rollback(tx.txnID)

		return err
	}

	tx.ops = ops

	return nil
}

// Commit renames every staged file into place and removes the transaction
// directory.
func (tx *IndexTxn) Commit() error {
	return tx.wal.Commit(tx.txnID, tx.ops)
}

// Rollback invokes every prepared adapter's Rollback hook, then removes
// the scratch directory.
func (tx *IndexTxn) Rollback(change DocChange) error {
	tx.rollbackAdapters(change)

	return tx.wal.Rollback(tx.txnID)
}

func (tx *IndexTxn) rollbackAdapters(change DocChange) {
	for _, a := range tx.prepared {
		if err := a.Rollback(change); err != nil {
			tx.wal.logger.Debug("wal: adapter rollback failed", "err", err.Error())
		}
	}
}
