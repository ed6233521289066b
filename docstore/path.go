package docstore

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Key identifies a document by its (type, id) pair. Both must pass
// [validateKeyPart]; the file layout is derived deterministically as
// "<root>/<type>/<id>.json".
type Key struct {
	Type string
	ID   string
}

func (k Key) String() string {
	return k.Type + "/" + k.ID
}

var keyPartPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

var reservedDeviceNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// validateKeyPart validates one of (type, id) per §3: must match
// ^[A-Za-z0-9_.-]+$, not start with '.' or '-', not end with '.' or space,
// not contain ".." or "//", and not equal a Windows reserved device name
// (case-insensitive).
func validateKeyPart(part string) error {
	if part == "" {
		return fmt.Errorf("%w: empty key part", ErrInvalidKeyPart)
	}

	if !keyPartPattern.MatchString(part) {
		return fmt.Errorf("%w: %q contains disallowed characters", ErrInvalidKeyPart, part)
	}

	if strings.HasPrefix(part, ".") || strings.HasPrefix(part, "-") {
		return fmt.Errorf("%w: %q starts with '.' or '-'", ErrInvalidKeyPart, part)
	}

	if strings.HasSuffix(part, ".") || strings.HasSuffix(part, " ") {
		return fmt.Errorf("%w: %q ends with '.' or space", ErrInvalidKeyPart, part)
	}

	if strings.Contains(part, "..") || strings.Contains(part, "//") {
		return fmt.Errorf("%w: %q contains '..' or '//'", ErrInvalidKeyPart, part)
	}

	if reservedDeviceNames[strings.ToUpper(part)] {
		return fmt.Errorf("%w: %q is a reserved device name", ErrInvalidKeyPart, part)
	}

	return nil
}

// ErrInvalidKeyPart marks a malformed type or id.
var ErrInvalidKeyPart = fmt.Errorf("invalid key part")

// ValidateKey validates both parts of k.
func ValidateKey(k Key) error {
	if err := validateKeyPart(k.Type); err != nil {
		return wrap(err, withKind(KindValidation), withType(k.Type))
	}

	if err := validateKeyPart(k.ID); err != nil {
		return wrap(err, withKind(KindValidation), withType(k.Type), withID(k.ID))
	}

	return nil
}

// docPath derives "<root>/<type>/<id>.json" for a validated key and
// confirms the result stays within root (defense in depth: validateKeyPart
// already rejects the characters that would let it escape).
func docPath(root string, k Key) (string, error) {
	rel := filepath.Join(k.Type, k.ID+".json")

	abs := filepath.Join(root, rel)

	relBack, err := filepath.Rel(root, abs)
	if err != nil {
		return "", wrap(fmt.Errorf("%w: %w", ErrInvalidKeyPart, err), withKind(KindValidation))
	}

	if relBack == "." || relBack == ".." || strings.HasPrefix(relBack, ".."+string(filepath.Separator)) {
		return "", wrap(fmt.Errorf("%w: path escapes root", ErrInvalidKeyPart), withKind(KindValidation))
	}

	return abs, nil
}

func typeDir(root, typ string) string {
	return filepath.Join(root, typ)
}

func indexesDir(root, typ string) string {
	return filepath.Join(root, typ, "_indexes")
}

func indexSidecarPath(root, typ, field string) string {
	return filepath.Join(indexesDir(root, typ), field+".json")
}

func byPathIndexRoot(root string) string {
	return filepath.Join(root, "_indexes", "by-path")
}

func metaDir(root string) string {
	return filepath.Join(root, "_meta")
}

func walRoot(root string) string {
	return filepath.Join(metaDir(root), "wal")
}

func hierarchyLockPath(root string) string {
	return filepath.Join(metaDir(root), "hierarchy.lock")
}

// isReservedTopLevel reports whether name is excluded from entity-type
// discovery: any name starting with '_' or '.'.
func isReservedTopLevel(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")
}

var slugSegmentPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ErrInvalidSlug marks a materialized-path segment that isn't a valid slug.
var ErrInvalidSlug = fmt.Errorf("invalid path slug")

// ValidateSlug validates one materialized-path segment: NFC-normalized,
// lowercase, matching ^[a-z0-9]+(-[a-z0-9]+)*$.
func ValidateSlug(slug string) error {
	if !utf8.ValidString(slug) {
		return fmt.Errorf("%w: invalid UTF-8", ErrInvalidSlug)
	}

	normalized := norm.NFC.String(slug)
	if normalized != slug {
		return fmt.Errorf("%w: %q is not NFC-normalized", ErrInvalidSlug, slug)
	}

	if !slugSegmentPattern.MatchString(slug) {
		return fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
	}

	return nil
}

// ValidateMaterializedPath validates a full materialized path: starts with
// '/', each segment is a valid slug, and the segment count does not exceed
// maxDepth. The root path "/" alone is always valid.
func ValidateMaterializedPath(path string, maxDepth int) error {
	if path == "" || path[0] != '/' {
		return fmt.Errorf("%w: must start with '/': %q", ErrInvalidSlug, path)
	}

	if path == "/" {
		return nil
	}

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")

	if maxDepth > 0 && len(segments) > maxDepth {
		return fmt.Errorf("%w: exceeds max depth %d", ErrInvalidSlug, maxDepth)
	}

	for _, seg := range segments {
		if err := ValidateSlug(seg); err != nil {
			return err
		}
	}

	return nil
}

// byPathSidecarPath derives the sidecar file path for a validated
// materialized path: "<root>/_indexes/by-path/<seg0>/.../<leaf>.json". The
// root path "/" maps to "<root>/_indexes/by-path/__root__.json".
func byPathSidecarPath(root, matPath string) string {
	trimmed := strings.TrimPrefix(matPath, "/")
	if trimmed == "" {
		trimmed = "__root__"
	}

	segments := strings.Split(trimmed, "/")

	relParts := make([]string, 0, len(segments)+2)
	relParts = append(relParts, "_indexes", "by-path")
	relParts = append(relParts, segments...)

	rel := filepath.Join(relParts...) + ".json"

	return filepath.Join(root, rel)
}
