package document

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Document is the flattened, backend-addressable form of one entity instance.
// Every field holds a list of textual values.
type Document struct {
	Type   string
	ID     string
	Fields map[string][]string
}

// New creates an empty document.
func New(docType, id string) *Document {
	return &Document{Type: docType, ID: id, Fields: make(map[string][]string)}
}

// Key returns the composite backend id "<namespace>.<type>.<natural-key>".
func (d *Document) Key() string {
	return FormatKey(d.Type, d.ID)
}

// FieldNames returns the field names in sorted order.
func (d *Document) FieldNames() []string {
	return slices.Sorted(maps.Keys(d.Fields))
}

// FormatKey joins a document type and id into the composite id.
func FormatKey(docType, id string) string {
	return docType + "." + id
}

// ParseKey splits a composite id into its type tag and natural key.
// The natural key may itself contain dots.
func ParseKey(key string) (typeTag, natural string, err error) {
	parts := strings.SplitN(key, ".", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("malformed document id %q", key)
	}
	return parts[0] + "." + parts[1], parts[2], nil
}

// NaturalKey strips the expected document type from a composite id.
func NaturalKey(key, docType string) (string, bool) {
	natural, ok := strings.CutPrefix(key, docType+".")
	if !ok || natural == "" {
		return "", false
	}
	return natural, true
}
