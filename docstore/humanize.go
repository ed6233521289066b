package docstore

import "github.com/dustin/go-humanize"

// humanizeBytes renders n bytes using SI (base-1000) human units (e.g. "1.2 MB"),
// backing [DetailedStats.String].
func humanizeBytes(n int64) string {
	if n < 0 {
		n = 0
	}

	return humanize.Bytes(uint64(n))
}
