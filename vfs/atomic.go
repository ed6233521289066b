package vfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	natomic "github.com/natefinch/atomic"
	"golang.org/x/sys/unix"
)

// ErrAtomicWriteDirSync indicates the parent directory could not be synced after rename.
//
// When returned, the new file is in place but durability is not guaranteed.
// Callers can detect this with errors.Is(err, ErrAtomicWriteDirSync).
var ErrAtomicWriteDirSync = errors.New("dir sync")

// AtomicWriter writes files atomically using temp-file-then-rename.
type AtomicWriter struct {
	fs FS
}

// NewAtomicWriter creates an AtomicWriter that uses the given filesystem.
// Panics if fs is nil.
func NewAtomicWriter(fs FS) *AtomicWriter {
	if fs == nil {
		panic("fs is nil")
	}

	return &AtomicWriter{fs: fs}
}

// AtomicWriteOptions configures Write behavior.
type AtomicWriteOptions struct {
	// SyncDir controls whether the parent directory is synced after rename.
	// Default: true.
	SyncDir bool

	// Perm specifies the file permissions. Must be non-zero.
	Perm os.FileMode
}

// DefaultOptions returns the default atomic write options.
func (*AtomicWriter) DefaultOptions() AtomicWriteOptions {
	return AtomicWriteOptions{
		SyncDir: true,
		Perm:    0o644,
	}
}

// Write writes data from r to path atomically and durably.
//
// It writes to a temp file in the same directory, syncs it, renames it over
// path, then syncs the parent directory (if opts.SyncDir is true).
//
// If the directory sync step fails, the returned error satisfies
// errors.Is(err, ErrAtomicWriteDirSync). The new file is already in place
// in that case.
func (w *AtomicWriter) Write(path string, reader io.Reader, opts AtomicWriteOptions) error {
	if reader == nil {
		panic("reader is nil")
	}

	if path == "" {
		return errors.New("path is empty")
	}

	if opts.Perm == 0 {
		return errors.New("opts.Perm must be non-zero")
	}

	dir, base := filepath.Split(path)
	if base == "" || base == string(os.PathSeparator) || base == "." {
		return fmt.Errorf("path is invalid: %q", path)
	}

	if dir == "" {
		dir = "."
	}

	dir = filepath.Clean(dir)

	tmpFile, tmpPath, err := createAtomicTempFile(w.fs, dir, base, opts.Perm)
	if err != nil {
		return err
	}

	cleanup := func() error {
		closeErr := closeTmpFile(tmpPath, tmpFile)
		removeErr := removeTempFile(w.fs, tmpPath)

		return errors.Join(closeErr, removeErr)
	}

	if chmodErr := tmpFile.Chmod(opts.Perm); chmodErr != nil {
		return errors.Join(
			fmt.Errorf("chmod temp file %q: %w", tmpPath, chmodErr),
			cleanup(),
		)
	}

	if writeErr := writeAndSyncTempFile(tmpFile, tmpPath, reader); writeErr != nil {
		return errors.Join(writeErr, cleanup())
	}

	if renameErr := renameRetryEINTR(w.fs, tmpPath, path); renameErr != nil {
		return errors.Join(
			fmt.Errorf("rename: %w", renameErr),
			cleanup(),
		)
	}

	cleanupErr := cleanup()

	if opts.SyncDir {
		if err := fsyncDir(w.fs, dir); err != nil {
			return errors.Join(err, cleanupErr)
		}
	}

	// Don't surface cleanup errors if all main operations worked.
	return nil
}

// WriteWithDefaults writes content atomically using default options.
func (w *AtomicWriter) WriteWithDefaults(path string, r io.Reader) error {
	return w.Write(path, r, w.DefaultOptions())
}

// renameRetryEINTR renames oldpath to newpath, retrying a handful of times
// on EINTR. A signal delivered mid-syscall on Linux can surface as EINTR
// from rename(2); os.Rename does not retry this itself.
func renameRetryEINTR(fsys FS, oldpath, newpath string) error {
	const maxAttempts = 5

	var err error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fsys.Rename(oldpath, newpath)
		if err == nil {
			return nil
		}

		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}

func writeAndSyncTempFile(file File, path string, r io.Reader) error {
	_, copyErr := io.Copy(file, r)
	if copyErr != nil {
		return fmt.Errorf("write temp file %q: %w", path, copyErr)
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync temp file %q: %w", path, err)
	}

	return nil
}

const atomicWriteMaxAttempts = 10000

var atomicWriteCounter atomic.Uint64

func createAtomicTempFile(fsys FS, dir, base string, perm os.FileMode) (File, string, error) {
	for range atomicWriteMaxAttempts {
		seq := atomicWriteCounter.Add(1)
		path := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d", base, seq))

		file, err := fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if err == nil {
			return file, path, nil
		}

		if os.IsExist(err) {
			continue
		}

		return nil, "", fmt.Errorf("create temp file: %w", err)
	}

	return nil, "", fmt.Errorf("exhausted temp file attempts in %q", dir)
}

func fsyncDir(fsys FS, dirPath string) error {
	dirFd, err := fsys.Open(dirPath)
	if err != nil {
		return errors.Join(ErrAtomicWriteDirSync, fmt.Errorf("open dir %q: %w", dirPath, err))
	}

	syncErr := dirFd.Sync()
	if syncErr == nil {
		return closeDir(dirPath, dirFd)
	}

	return errors.Join(
		ErrAtomicWriteDirSync,
		fmt.Errorf("%q: %w", dirPath, syncErr),
		closeDir(dirPath, dirFd),
	)
}

func closeDir(dir string, file File) error {
	if err := file.Close(); err != nil {
		return fmt.Errorf("close dir %q: %w", dir, err)
	}

	return nil
}

func closeTmpFile(path string, file File) error {
	if err := file.Close(); err != nil {
		return fmt.Errorf("close temp file %q: %w", path, err)
	}

	return nil
}

func removeTempFile(fsys FS, path string) error {
	err := fsys.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp file %q: %w", path, err)
	}

	return nil
}

// WriteFileAtomic is a single-shot convenience writer for callers that don't
// need an [AtomicWriter] (no fault-injection [FS] wrapping, no dir-sync
// control). It delegates to natefinch/atomic, which uses the same
// temp-then-rename recipe against the real OS filesystem.
//
// Used by the hierarchy manager's lock-file bootstrap.
func WriteFileAtomic(path string, data []byte) error {
	return natomic.WriteFile(path, strings.NewReader(string(data)))
}
