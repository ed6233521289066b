package docstore

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/tailscale/hujson"
)

// Config is the configuration surface accepted by [Open]. Root is the only
// required field; everything else has a documented default.
type Config struct {
	// Root is the store's root directory. Required.
	Root string

	// Indent is the number of spaces per nesting level in canonical JSON.
	// Zero-value default: 2.
	Indent int

	// StableKeyOrder, when non-empty, lists keys that must appear first (in
	// this order) in every serialized object; remaining keys follow in
	// code-point order. A nil/empty list means pure code-point sort for
	// every key, which is the default.
	StableKeyOrder []string

	// EnableIndexes turns on the index manager. Indexes named in Indexes
	// are auto-ensured on Open when true.
	EnableIndexes bool

	// Indexes maps entity type to the fields that should have an equality
	// sidecar auto-ensured on Open. Only consulted when EnableIndexes.
	Indexes map[string][]string

	// EnableHierarchy turns on the materialized-path hierarchy manager,
	// the by-path sidecar index, and the file lock/WAL recovery performed
	// at Open.
	EnableHierarchy bool

	// MaxDepth bounds materialized-path segment count. Zero-value default: 32.
	MaxDepth int

	// FormatConcurrency bounds how many documents Format canonicalizes
	// concurrently. Must be 1-64 if set; zero-value default: 16.
	FormatConcurrency int

	// CacheMaxEntries overrides the document cache's entry-count bound.
	// Zero-value default: 10000 (or the JSONDOC_CACHE_SIZE environment
	// variable, consulted by [Open] when this field is zero).
	CacheMaxEntries int

	// CacheMaxBytes bounds the document cache's approximate byte budget.
	// Zero means unbounded.
	CacheMaxBytes int64

	// Logger receives best-effort diagnostic lines (see [Logger]). A nil
	// Logger discards them.
	Logger Logger

	// Debug is recorded on the effective Config (also set by a non-empty,
	// non-"0", non-"false" JSONDOC_DEBUG). No store code reads it: Logger
	// receives the best-effort diagnostic lines whether or not it is set.
	Debug bool
}

const (
	defaultIndent             = 2
	defaultMaxDepth           = 32
	defaultFormatConcurrency  = 16
	minFormatConcurrency      = 1
	maxFormatConcurrency      = 64
	envCacheSize              = "JSONDOC_CACHE_SIZE"
	envDebug                  = "JSONDOC_DEBUG"
)

// normalize fills in defaults and validates the configuration, returning
// the effective Config. Root must be non-empty; FormatConcurrency, when
// set, must be within [1,64].
func (c Config) normalize() (Config, error) {
	if c.Root == "" {
		return Config{}, wrap(fmt.Errorf("%w: root is required", ErrInvalidOption), withKind(KindValidation))
	}

	out := c

	if out.Indent == 0 {
		out.Indent = defaultIndent
	}

	if out.MaxDepth == 0 {
		out.MaxDepth = defaultMaxDepth
	}

	if out.FormatConcurrency == 0 {
		out.FormatConcurrency = defaultFormatConcurrency
	} else if out.FormatConcurrency < minFormatConcurrency || out.FormatConcurrency > maxFormatConcurrency {
		return Config{}, wrap(
			fmt.Errorf("%w: formatConcurrency must be 1-64, got %d", ErrInvalidOption, out.FormatConcurrency),
			withKind(KindValidation),
		)
	}

	if out.CacheMaxEntries == 0 {
		if v, ok := cacheSizeFromEnv(); ok {
			out.CacheMaxEntries = v
		}
	}

	if out.Logger == nil {
		out.Logger = nilLogger{}
	}

	if !out.Debug {
		out.Debug = debugFromEnv()
	}

	return out, nil
}

func cacheSizeFromEnv() (int, bool) {
	raw := os.Getenv(envCacheSize)
	if raw == "" {
		return 0, false
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}

	return n, true
}

func debugFromEnv() bool {
	v := os.Getenv(envDebug)

	return v != "" && v != "0" && v != "false"
}

// fileConfig mirrors [Config]'s JSON-serializable fields for
// [LoadConfigFile]. Only the interface-valued Logger field is excluded
// from the file format.
type fileConfig struct {
	Root              string              `json:"root"`
	Indent            int                 `json:"indent"`
	StableKeyOrder    []string            `json:"stableKeyOrder"`
	EnableIndexes     bool                `json:"enableIndexes"`
	Indexes           map[string][]string `json:"indexes"`
	EnableHierarchy   bool                `json:"enableHierarchy"`
	MaxDepth          int                 `json:"maxDepth"`
	FormatConcurrency int                 `json:"formatConcurrency"`
	CacheMaxEntries   int                 `json:"cacheMaxEntries"`
	CacheMaxBytes     int64               `json:"cacheMaxBytes"`
	Debug             bool                `json:"debug"`
}

// LoadConfigFile reads a JSONC file (JSON with comments and trailing
// commas, standardized via hujson) at path and decodes it into a [Config].
// This is an ambient convenience over the programmatic Config struct; the
// core never reads this file itself.
func LoadConfigFile(path string) (Config, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path is caller-provided
	if err != nil {
		return Config{}, wrap(fmt.Errorf("read config file: %w", err), withKind(KindIORead), withPath(path))
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return Config{}, wrap(fmt.Errorf("parse config file: %w", err), withKind(KindParse), withPath(path))
	}

	var fc fileConfig
	if err := json.Unmarshal(standardized, &fc); err != nil {
		return Config{}, wrap(fmt.Errorf("decode config file: %w", err), withKind(KindParse), withPath(path))
	}

	return Config{
		Root:              fc.Root,
		Indent:            fc.Indent,
		StableKeyOrder:    fc.StableKeyOrder,
		EnableIndexes:     fc.EnableIndexes,
		Indexes:           fc.Indexes,
		EnableHierarchy:   fc.EnableHierarchy,
		MaxDepth:          fc.MaxDepth,
		FormatConcurrency: fc.FormatConcurrency,
		CacheMaxEntries:   fc.CacheMaxEntries,
		CacheMaxBytes:     fc.CacheMaxBytes,
		Debug:             fc.Debug,
	}, nil
}
