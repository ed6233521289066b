package docstore

import (
	"fmt"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/calvinalkan/jsondoc/vfs"
)

// backupsDir returns "<root>/_meta/backups/<typ>", the directory a forced
// index rebuild's previous sidecar is snapshotted into before being
// overwritten.
func backupsDir(root, typ string) string {
	return filepath.Join(metaDir(root), "backups", typ)
}

// backupSidecar zstd-compresses the current sidecar bytes for (typ, field),
// if one exists, and publishes it into the backups directory via a
// [vfs.DirTransaction] so a botched forced rebuild can be manually
// recovered. A missing sidecar is a no-op: there's nothing to back up yet.
func backupSidecar(fsys vfs.FS, root, typ, field string) error {
	path := indexSidecarPath(root, typ, field)

	exists, err := fsys.Exists(path)
	if err != nil {
		return wrap(fmt.Errorf("stat sidecar for backup: %w", err), withKind(KindIORead), withType(typ), withPath(path))
	}

	if !exists {
		return nil
	}

	raw, err := fsys.ReadFile(path)
	if err != nil {
		return wrap(fmt.Errorf("read sidecar for backup: %w", err), withKind(KindIORead), withType(typ), withPath(path))
	}

	compressed, err := compressZstd(raw)
	if err != nil {
		return wrap(fmt.Errorf("compress sidecar backup: %w", err), withKind(KindInternal), withType(typ))
	}

	dir := backupsDir(root, typ)

	tx, err := vfs.NewDirTransaction(fsys, dir)
	if err != nil {
		return wrap(fmt.Errorf("begin backup transaction: %w", err), withKind(KindIODir), withType(typ), withPath(dir))
	}

	// Preserve backups already taken for other fields of this type: the
	// transaction republishes the whole directory, not just one file.
	if err := tx.CopyTree(dir, "."); err != nil {
		_ = tx.Abort()

		return wrap(fmt.Errorf("copy existing backups: %w", err), withKind(KindIODir), withType(typ), withPath(dir))
	}

	if err := tx.WriteFile(field+".json.zst", compressed); err != nil {
		_ = tx.Abort()

		return wrap(fmt.Errorf("stage sidecar backup: %w", err), withKind(KindIOWrite), withType(typ), withPath(dir))
	}

	if err := tx.Commit(nil); err != nil {
		return wrap(fmt.Errorf("publish sidecar backup: %w", err), withKind(KindIOWrite), withType(typ), withPath(dir))
	}

	return nil
}

func compressZstd(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}

	defer enc.Close()

	return enc.EncodeAll(data, nil), nil
}
