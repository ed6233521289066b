package docstore

import (
	"bytes"
	"errors"
	"os"
	"time"

	"github.com/calvinalkan/jsondoc/vfs"
)

// nowFunc is overridden in tests that need deterministic timing.
var nowFunc = time.Now

func durationMs(start time.Time) int64 {
	return nowFunc().Sub(start).Milliseconds()
}

func isNotExist(err error) bool {
	return os.IsNotExist(err)
}

func strReader(data []byte) *bytes.Reader {
	return bytes.NewReader(data)
}

// writeDurable writes data atomically via writer. A bare directory-fsync
// failure is debug-logged and swallowed rather than propagated: per
// [vfs.AtomicWriter.Write]'s doc comment, the rename has already landed by
// the time that step runs, so the write succeeded even though durability
// of the *directory entry* itself is unconfirmed. Any other failure (the
// rename never happened) is returned as-is for the caller to wrap.
func writeDurable(writer *vfs.AtomicWriter, logger Logger, path string, data []byte) error {
	err := writer.Write(path, strReader(data), writer.DefaultOptions())
	if err == nil {
		return nil
	}

	if errors.Is(err, vfs.ErrAtomicWriteDirSync) {
		logger.Debug("directory fsync failed after durable rename", "path", path, "err", err.Error())

		return nil
	}

	return err
}
