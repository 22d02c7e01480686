package descriptor

import (
	"fmt"
	"maps"
	"strings"
	"unicode"

	"github.com/kailas-cloud/indexsync/internal/domain/entity"
)

// Extractor computes a field's values directly from an entity.
type Extractor func(e entity.Entity) ([]string, error)

// Source is one contributor to a field: a plain attribute, a relation path, or an extractor.
type Source struct {
	Name    string
	Extract Extractor
	path    []string
}

// Attr reads a plain attribute.
func Attr(name string) Source {
	return Source{Name: name}
}

// Path walks relation attributes separated by dots, e.g. "author.name".
// A path without dots is a plain attribute.
func Path(path string) Source {
	parts := strings.Split(path, ".")
	if len(parts) == 1 {
		return Attr(path)
	}
	return Source{Name: path, path: parts}
}

// Func wraps an extractor. name is used for field auto-naming and may be empty
// when the field has an explicit name.
func Func(name string, fn Extractor) Source {
	return Source{Name: name, Extract: fn}
}

func (s Source) values(e entity.Entity, conv Converters) ([]string, error) {
	switch {
	case s.Extract != nil:
		return s.Extract(e)
	case len(s.path) > 0:
		return walkPath(e, s.path, conv)
	default:
		v, err := e.Attr(s.Name)
		if err != nil {
			return nil, err //nolint:wrapcheck // entity errors already name the attribute
		}
		return conv.convertValue(e, s.Name, v)
	}
}

func walkPath(e entity.Entity, path []string, conv Converters) ([]string, error) {
	current := []entity.Entity{e}
	for _, hop := range path[:len(path)-1] {
		var next []entity.Entity
		for _, ent := range current {
			v, err := ent.Attr(hop)
			if err != nil {
				return nil, err //nolint:wrapcheck // entity errors already name the attribute
			}
			next = append(next, Normalize(v).Targets()...)
		}
		current = next
	}

	leaf := path[len(path)-1]
	var out []string
	for _, ent := range current {
		v, err := ent.Attr(leaf)
		if err != nil {
			return nil, err //nolint:wrapcheck // entity errors already name the attribute
		}
		vals, err := conv.convertValue(ent, leaf, v)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

// FieldSpec declares one index field.
type FieldSpec struct {
	Sources []Source
	// Name overrides the derived field name.
	Name string
	// Config is passed to the backend mapping as is.
	Config map[string]any
}

// Field declares a field fed by the given sources.
func Field(sources ...Source) FieldSpec {
	return FieldSpec{Sources: sources}
}

// Named sets an explicit index field name.
func (f FieldSpec) Named(name string) FieldSpec {
	f.Name = name
	return f
}

// WithConfig sets the backend field configuration.
func (f FieldSpec) WithConfig(cfg map[string]any) FieldSpec {
	f.Config = maps.Clone(cfg)
	return f
}

// IndexName returns the explicit name or one derived from the first source,
// keeping letters only: "my_field" becomes "myfield".
func (f FieldSpec) IndexName() string {
	if f.Name != "" {
		return f.Name
	}
	if len(f.Sources) == 0 {
		return ""
	}
	return lettersOnly(f.Sources[0].Name)
}

func lettersOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (f FieldSpec) validate(i int) error {
	if len(f.Sources) == 0 {
		return fmt.Errorf("field %d has no sources", i)
	}
	for j, s := range f.Sources {
		if s.Name == "" && s.Extract == nil {
			return fmt.Errorf("field %d source %d is empty", i, j)
		}
	}
	if f.IndexName() == "" {
		return fmt.Errorf("field %d needs an explicit name", i)
	}
	return nil
}
