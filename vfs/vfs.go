// Package vfs provides filesystem abstractions used by the docstore engine.
//
// The main types are:
//   - [FS]: interface for filesystem operations
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using the [os] package
//
// Paths use OS semantics (like the os package and path/filepath), not the
// slash-separated paths used by the standard library io/fs package.
package vfs

import (
	"io"
	"os"
)

// File represents an OS-backed open file descriptor.
//
// This interface is satisfied by [os.File] and can be used with all
// standard library functions that accept [io.Reader], [io.Writer],
// [io.Seeker], or [io.Closer].
//
// Implementations must behave like [os.File], including that [File.Fd]
// returns a valid OS file descriptor usable with syscalls until the file
// is closed.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the file descriptor. See [os.File.Fd].
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error

	// Chmod changes the mode of the file. See [os.File.Chmod].
	Chmod(mode os.FileMode) error
}

// FS defines filesystem operations for reading, writing, and managing files.
//
// All methods mirror their [os] package equivalents. Implementations must
// be safe for concurrent use by multiple goroutines.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// Create creates or truncates a file for writing. See [os.Create].
	Create(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions. See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// WriteFile writes data to a file, creating it if necessary. See [os.WriteFile].
	//
	// Not atomic or durable. For durability use [AtomicWriter].
	WriteFile(path string, data []byte, perm os.FileMode) error

	// ReadDir reads a directory and returns its entries, sorted by name. See [os.ReadDir].
	ReadDir(path string) ([]os.DirEntry, error)

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info. See [os.Stat]. Returns [os.ErrNotExist] if absent.
	Stat(path string) (os.FileInfo, error)

	// Lstat returns file info without following a trailing symlink. See [os.Lstat].
	Lstat(path string) (os.FileInfo, error)

	// Exists reports whether a file or directory exists.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory. See [os.Remove].
	Remove(path string) error

	// RemoveAll deletes a path and any children. See [os.RemoveAll].
	RemoveAll(path string) error

	// Rename moves/renames a file or directory. See [os.Rename]. Atomic on
	// the same filesystem.
	Rename(oldpath, newpath string) error
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
