package docstore

import "github.com/rs/zerolog"

// Logger receives best-effort diagnostic lines for paths the spec requires
// to be observable but never fatal: directory-fsync failures, backup
// cleanup failures after a successful commit, and adapter rollback errors.
//
// The zero value (nilLogger) discards everything, so embedders who don't
// care about these lines pay nothing. Wire a real logger via
// [Config.Logger].
type Logger interface {
	Debug(msg string, kv ...any)
}

type nilLogger struct{}

func (nilLogger) Debug(string, ...any) {}

// ZerologAdapter adapts a [zerolog.Logger] to [Logger].
type ZerologAdapter struct {
	L zerolog.Logger
}

// Debug implements [Logger] over zerolog's structured event builder. kv is
// interpreted as alternating key/value pairs.
func (z ZerologAdapter) Debug(msg string, kv ...any) {
	ev := z.L.Debug()

	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}

		ev = ev.Interface(key, kv[i+1])
	}

	ev.Msg(msg)
}
