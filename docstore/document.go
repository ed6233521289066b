package docstore

import "fmt"

// Document is a decoded document value: a mapping with mandatory "type"
// and "id" string fields plus arbitrary JSON-compatible payload.
type Document map[string]any

// Well-known optional document fields, per §3.
const (
	FieldType      = "type"
	FieldID        = "id"
	FieldKind      = "kind"
	FieldSchemaRef = "schemaRef"
	FieldSlug      = "slug"
	FieldAliases   = "aliases"
	FieldPath      = "path"
)

// Type returns the document's "type" field, or "" if absent or not a string.
func (d Document) Type() string {
	v, _ := d[FieldType].(string)

	return v
}

// ID returns the document's "id" field, or "" if absent or not a string.
func (d Document) ID() string {
	v, _ := d[FieldID].(string)

	return v
}

// Key returns the (type, id) pair carried by the document.
func (d Document) Key() Key {
	return Key{Type: d.Type(), ID: d.ID()}
}

// MaterializedPath returns the document's "path" field, or "" if absent.
func (d Document) MaterializedPath() (string, bool) {
	v, ok := d[FieldPath].(string)

	return v, ok
}

// validateShape checks the invariants every stored document must satisfy:
// it is a mapping (guaranteed by the map[string]any type itself), and its
// type/id fields equal the expected key.
func validateShape(d Document, want Key) error {
	if d.Type() != want.Type || d.ID() != want.ID {
		return wrap(
			fmt.Errorf("%w: document type/id %s/%s does not match key %s/%s",
				ErrInvalidKeyPart, d.Type(), d.ID(), want.Type, want.ID),
			withKind(KindValidation), withType(want.Type), withID(want.ID),
		)
	}

	return nil
}

// toDocSlice converts a slice of map[string]any (as produced by canon/query)
// back into Document values without copying.
func toDocSlice(maps []map[string]any) []Document {
	out := make([]Document, len(maps))
	for i, m := range maps {
		out[i] = Document(m)
	}

	return out
}

func toMapSlice(docs []Document) []map[string]any {
	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		out[i] = map[string]any(d)
	}

	return out
}
