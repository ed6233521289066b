package docstore

import (
	"errors"
	"strings"
)

// Kind is a stable, language-independent error category. Callers should
// switch on Kind (or use [errors.Is] against the package sentinels) rather
// than matching error message text.
type Kind string

const (
	// KindNotFound marks a resource absent when presence was required.
	// Get does not raise this; it returns absence instead.
	KindNotFound Kind = "not-found"
	// KindValidation marks malformed input: keys, documents, filters, options.
	KindValidation Kind = "validation"
	KindIORead     Kind = "io.read"
	KindIOWrite    Kind = "io.write"
	KindIORemove   Kind = "io.remove"
	KindIOList     Kind = "io.list"
	KindIODir      Kind = "io.directory"
	// KindParse marks malformed JSON on disk.
	KindParse Kind = "parse"
	// KindCycle marks a cyclic structure found during canonicalization.
	KindCycle Kind = "cycle"
	// KindWAL marks a transaction prepare or recovery failure.
	KindWAL Kind = "wal"
	// KindLock marks a hierarchy lock acquisition timeout.
	KindLock Kind = "lock"
	// KindMarkdownPath / KindMarkdownIntegrity are reserved for the
	// external markdown-sidecar collaborator; the core never raises these
	// itself but preserves them unchanged if an adapter returns one.
	KindMarkdownPath      Kind = "markdown.path"
	KindMarkdownIntegrity Kind = "markdown.integrity"
	// KindInternal marks a violated invariant.
	KindInternal Kind = "internal"
)

// Sentinel errors, matched with [errors.Is].
var (
	ErrNotFound      = errors.New("document not found")
	ErrCycle         = errors.New("cyclic structure")
	ErrWALCorrupt    = errors.New("wal transaction corrupt")
	ErrLockTimeout   = errors.New("lock acquisition timed out")
	ErrInvalidOption = errors.New("unknown configuration option")
)

// Error is the uniform error type returned by all public docstore APIs.
//
// Use [errors.As] to extract structured fields:
//
//	var dsErr *docstore.Error
//	if errors.As(err, &dsErr) {
//	    fmt.Println(dsErr.Kind, dsErr.Type, dsErr.ID)
//	}
//
// Use [errors.Is] to check for sentinel errors:
//
//	if errors.Is(err, docstore.ErrNotFound) { ... }
type Error struct {
	// Kind is the stable taxonomy category (see the Kind* constants).
	Kind Kind

	// Type is the document's entity type, when known.
	Type string

	// ID is the document identifier, when known.
	ID string

	// Path is the filesystem path involved in the failure, when known, as
	// the store computed it (rooted at Config.Root).
	Path string

	// Err is the underlying cause.
	Err error
}

// Error formats as "<cause> (kind=K type=T id=I path=P)", omitting any
// empty fields.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	cause := e.cause()
	suffix := e.suffix()

	if suffix == "" {
		return cause
	}

	if cause == "" {
		return suffix
	}

	return cause + " " + suffix
}

func (e *Error) String() string {
	return e.Error()
}

// Unwrap returns the underlying error for use with [errors.Is] and [errors.As].
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

func (e *Error) suffix() string {
	var parts []string

	if e.Kind != "" {
		parts = append(parts, "kind="+string(e.Kind))
	}

	if e.Type != "" {
		parts = append(parts, "type="+e.Type)
	}

	if e.ID != "" {
		parts = append(parts, "id="+e.ID)
	}

	if e.Path != "" {
		parts = append(parts, "path="+e.Path)
	}

	if len(parts) == 0 {
		return ""
	}

	return "(" + strings.Join(parts, " ") + ")"
}

func (e *Error) cause() string {
	if e.Err == nil {
		return ""
	}

	return e.Err.Error()
}

// errOpt configures an [Error] during construction via [wrap].
type errOpt func(*Error)

func withKind(k Kind) errOpt {
	return func(e *Error) { e.Kind = k }
}

func withType(t string) errOpt {
	return func(e *Error) { e.Type = t }
}

func withID(id string) errOpt {
	return func(e *Error) { e.ID = id }
}

func withPath(path string) errOpt {
	return func(e *Error) { e.Path = path }
}

// wrap creates an [*Error] with optional structured context, inheriting
// fields from an already-wrapped [*Error] and applying opts on top. Returns
// nil if err is nil. Does not double-wrap: an already-*Error err with no
// new options is returned unchanged.
func wrap(err error, opts ...errOpt) error {
	if err == nil {
		return nil
	}

	existing := &Error{}
	isDirectError := errors.As(err, &existing)

	if isDirectError && len(opts) == 0 {
		return existing
	}

	e := &Error{Err: err}

	if isDirectError {
		e.Kind = existing.Kind
		e.Type = existing.Type
		e.ID = existing.ID
		e.Path = existing.Path
		e.Err = existing.Err
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// ExitCode maps err to a CLI exit code: nil = 0; not-found = 2; any other
// error = 1. No error maps to a "feature disabled" code 3. The core never
// calls os.Exit itself; this is exposed for an external CLI driver.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var dsErr *Error
	if errors.As(err, &dsErr) {
		switch dsErr.Kind {
		case KindNotFound:
			return 2
		case "":
			return 1
		default:
			return 1
		}
	}

	if errors.Is(err, ErrNotFound) {
		return 2
	}

	return 1
}

// KindOf extracts the taxonomy Kind from err, or "" if err is not (or does
// not wrap) a *Error.
func KindOf(err error) Kind {
	var dsErr *Error
	if errors.As(err, &dsErr) {
		return dsErr.Kind
	}

	return ""
}
