package vfs_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/jsondoc/vfs"
)

func Test_AtomicWriter_Write_Creates_File_With_Content(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.json")

	writer := vfs.NewAtomicWriter(vfs.NewReal())

	if err := writer.WriteWithDefaults(path, strings.NewReader(`{"a":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(got) != `{"a":1}` {
		t.Fatalf("content = %q, want {\"a\":1}", got)
	}
}

func Test_AtomicWriter_Write_Overwrites_Existing_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.json")

	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	writer := vfs.NewAtomicWriter(vfs.NewReal())
	if err := writer.WriteWithDefaults(path, strings.NewReader("new")); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(got) != "new" {
		t.Fatalf("content = %q, want new", got)
	}
}

func Test_AtomicWriter_Write_Leaves_No_Temp_File_On_Success(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.json")

	writer := vfs.NewAtomicWriter(vfs.NewReal())
	if err := writer.WriteWithDefaults(path, strings.NewReader("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}

	if len(entries) != 1 || entries[0].Name() != "final.json" {
		t.Fatalf("dir entries = %v, want only final.json", entries)
	}
}

func Test_AtomicWriter_Write_Rejects_Empty_Path(t *testing.T) {
	t.Parallel()

	writer := vfs.NewAtomicWriter(vfs.NewReal())

	if err := writer.WriteWithDefaults("", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func Test_AtomicWriter_Write_Rejects_Zero_Perm(t *testing.T) {
	t.Parallel()

	writer := vfs.NewAtomicWriter(vfs.NewReal())
	path := filepath.Join(t.TempDir(), "final.json")

	err := writer.Write(path, strings.NewReader("x"), vfs.AtomicWriteOptions{SyncDir: true})
	if err == nil {
		t.Fatal("expected error for zero Perm")
	}
}

func Test_NewAtomicWriter_Panics_When_FS_Nil(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil fs")
		}
	}()

	vfs.NewAtomicWriter(nil)
}

func Test_WriteFileAtomic_Writes_Durable_Content(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "standalone.json")

	if err := vfs.WriteFileAtomic(path, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(got) != "hello" {
		t.Fatalf("content = %q, want hello", got)
	}
}

func Test_AtomicWriter_Write_Fails_When_Dir_Missing(t *testing.T) {
	t.Parallel()

	writer := vfs.NewAtomicWriter(vfs.NewReal())
	path := filepath.Join(t.TempDir(), "missing-subdir", "final.json")

	err := writer.WriteWithDefaults(path, strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected error when parent directory is missing")
	}

	if errors.Is(err, vfs.ErrAtomicWriteDirSync) {
		t.Fatal("missing parent dir should fail before the dir-sync step, not at it")
	}
}
