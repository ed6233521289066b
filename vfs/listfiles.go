package vfs

import (
	"os"
	"path/filepath"
	"sort"
)

// ListRegularFiles lists the regular, non-symlinked files directly inside dir
// whose name matches suffix (typically ".json"). Entries that are symlinks,
// or whose Lstat fails, are skipped rather than surfaced as errors: a
// dangling or symlinked entry is treated as absent, not corrupt.
//
// Results are sorted lexically by filename.
func ListRegularFiles(fsys FS, dir, suffix string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if filepath.Ext(entry.Name()) != suffix {
			continue
		}

		full := filepath.Join(dir, entry.Name())

		info, lErr := fsys.Lstat(full)
		if lErr != nil {
			continue
		}

		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}

		names = append(names, entry.Name())
	}

	sort.Strings(names)

	return names, nil
}

// ListRegularDirs lists the directory entries directly inside dir that are
// real directories, not symlinks to directories.
func ListRegularDirs(fsys FS, dir string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())

		info, lErr := fsys.Lstat(full)
		if lErr != nil {
			continue
		}

		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}

		if !info.IsDir() {
			continue
		}

		names = append(names, entry.Name())
	}

	sort.Strings(names)

	return names, nil
}
