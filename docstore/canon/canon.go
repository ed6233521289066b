// Package canon implements deterministic, byte-stable JSON serialization.
//
// Canonicalize normalizes key order, array order, end-of-line sequence, and
// trailing-newline presence so that the same logical value always produces
// the same bytes. It performs no I/O.
package canon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ErrCycle is returned when a value contains a structure that refers back
// to itself. Canonicalize detects cycles via a visited-pointer set during
// traversal; it never attempts to break them.
var ErrCycle = errors.New("cyclic structure")

// EOL selects the end-of-line sequence used by Canonicalize.
type EOL int

const (
	// LF uses "\n" (default).
	LF EOL = iota
	// CRLF uses "\r\n".
	CRLF
)

func (e EOL) bytes() string {
	if e == CRLF {
		return "\r\n"
	}

	return "\n"
}

// Options configures Canonicalize.
type Options struct {
	// Indent is the number of spaces per nesting level. Zero means compact
	// (no added whitespace).
	Indent int

	// StableKeyOrder controls object key ordering:
	//   - nil or empty: code-point sort of all keys.
	//   - non-empty: the named keys come first, in the given order; the
	//     remaining keys follow in code-point order.
	StableKeyOrder []string

	// EOLMode selects the line-ending sequence. Default LF.
	EOLMode EOL

	// TrailingNewline ensures exactly one trailing EOL when true.
	TrailingNewline bool
}

// DefaultOptions returns the default canonicalization policy: 2-space
// indent, code-point key sort, LF, trailing newline.
func DefaultOptions() Options {
	return Options{
		Indent:          2,
		TrailingNewline: true,
	}
}

// Canonicalize produces the canonical byte representation of value.
//
// Canonicalize is pure: the same input and options always produce the same
// output. It returns ErrCycle (wrapped) if value contains a cycle.
func Canonicalize(value any, opts Options) ([]byte, error) {
	normalized, err := normalize(value, make(map[any]bool))
	if err != nil {
		return nil, err
	}

	sorted := sortKeys(normalized, opts.StableKeyOrder)

	var (
		out []byte
		mErr error
	)

	if opts.Indent > 0 {
		out, mErr = json.MarshalIndent(sorted, "", strings.Repeat(" ", opts.Indent))
	} else {
		out, mErr = json.Marshal(sorted)
	}

	if mErr != nil {
		return nil, fmt.Errorf("marshal canonical value: %w", mErr)
	}

	out = rewriteEOL(out, opts.EOLMode)

	if opts.TrailingNewline {
		out = ensureTrailingEOL(out, opts.EOLMode)
	}

	return out, nil
}

// SafeParse parses data as JSON, returning ok=false with a non-nil error
// instead of panicking or returning a half-decoded value on malformed input.
func SafeParse(data []byte) (value any, ok bool, err error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if decErr := dec.Decode(&v); decErr != nil {
		return nil, false, decErr
	}

	// Reject trailing non-whitespace garbage after the first JSON value.
	if _, tokErr := dec.Token(); tokErr != io.EOF {
		return nil, false, fmt.Errorf("trailing data after JSON value")
	}

	return v, true, nil
}

// normalize walks value, building a cycle-checked copy with plain maps;
// key order is applied afterwards by sortKeys.
func normalize(value any, seen map[any]bool) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		if seen[addrKey(v)] {
			return nil, fmt.Errorf("%w: object", ErrCycle)
		}

		seen[addrKey(v)] = true

		out := make(map[string]any, len(v))

		for k, val := range v {
			nv, err := normalize(val, seen)
			if err != nil {
				return nil, err
			}

			out[k] = nv
		}

		delete(seen, addrKey(v))

		return out, nil
	case []any:
		if seen[addrKey(v)] {
			return nil, fmt.Errorf("%w: array", ErrCycle)
		}

		seen[addrKey(v)] = true

		out := make([]any, len(v))

		for i, val := range v {
			nv, err := normalize(val, seen)
			if err != nil {
				return nil, err
			}

			out[i] = nv
		}

		delete(seen, addrKey(v))

		return out, nil
	default:
		return v, nil
	}
}

// addrKey derives a stable map key identifying the backing array of a slice
// or map value, used to detect cycles without relying on reflect.
func addrKey(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return fmt.Sprintf("%p", t)
	case []any:
		if len(t) == 0 {
			return fmt.Sprintf("%p", &t)
		}

		return fmt.Sprintf("%p", t)
	default:
		return nil
	}
}

// sortedMap marshals as a JSON object with keys emitted in the given order.
type sortedMap struct {
	keys   []string
	values map[string]any
}

func (m sortedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}

		buf.Write(kb)
		buf.WriteByte(':')

		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}

		buf.Write(vb)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// sortKeys recursively rewrites map[string]any values into sortedMap so
// that json.Marshal emits keys in the configured order.
func sortKeys(value any, priority []string) any {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}

		ordered := orderKeys(keys, priority)

		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = sortKeys(val, priority)
		}

		return sortedMap{keys: ordered, values: out}
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = sortKeys(val, priority)
		}

		return out
	default:
		return v
	}
}

// orderKeys places priority keys first (in the given order, when present in
// keys), then the remaining keys in code-point order.
func orderKeys(keys, priority []string) []string {
	if len(priority) == 0 {
		sort.Strings(keys)

		return keys
	}

	inPriority := make(map[string]bool, len(priority))
	for _, p := range priority {
		inPriority[p] = true
	}

	present := make(map[string]bool, len(keys))
	for _, k := range keys {
		present[k] = true
	}

	ordered := make([]string, 0, len(keys))

	for _, p := range priority {
		if present[p] {
			ordered = append(ordered, p)
		}
	}

	rest := make([]string, 0, len(keys))

	for _, k := range keys {
		if !inPriority[k] {
			rest = append(rest, k)
		}
	}

	sort.Strings(rest)

	return append(ordered, rest...)
}

func rewriteEOL(data []byte, eol EOL) []byte {
	// Normalize any CRLF/CR to LF first, then expand to the target EOL.
	normalized := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	normalized = bytes.ReplaceAll(normalized, []byte("\r"), []byte("\n"))

	if eol == LF {
		return normalized
	}

	return bytes.ReplaceAll(normalized, []byte("\n"), []byte(eol.bytes()))
}

func ensureTrailingEOL(data []byte, eol EOL) []byte {
	suffix := []byte(eol.bytes())

	if bytes.HasSuffix(data, suffix) {
		return data
	}

	return append(data, suffix...)
}
