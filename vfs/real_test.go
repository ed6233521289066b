package vfs_test

import (
	"path/filepath"
	"testing"

	"github.com/calvinalkan/jsondoc/vfs"
)

func Test_Real_WriteFile_Then_ReadFile_RoundTrips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "doc.json")
	r := vfs.NewReal()

	if err := r.WriteFile(path, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := r.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(got) != `{"a":1}` {
		t.Fatalf("content = %q", got)
	}
}

func Test_Real_Exists_Distinguishes_Present_From_Absent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r := vfs.NewReal()

	present := filepath.Join(dir, "a.json")
	if err := r.WriteFile(present, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ok, err := r.Exists(present)
	if err != nil || !ok {
		t.Fatalf("exists(present) = %v, %v, want true, nil", ok, err)
	}

	ok, err = r.Exists(filepath.Join(dir, "missing.json"))
	if err != nil || ok {
		t.Fatalf("exists(missing) = %v, %v, want false, nil", ok, err)
	}
}

func Test_Real_Remove_Deletes_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a.json")
	r := vfs.NewReal()

	if err := r.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := r.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	ok, err := r.Exists(path)
	if err != nil || ok {
		t.Fatalf("exists after remove = %v, %v, want false, nil", ok, err)
	}
}
