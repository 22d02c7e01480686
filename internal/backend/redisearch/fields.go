package redisearch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/db"
)

// Reserved hash fields written next to the index fields of every document.
const (
	typeField = "__type"
	keyField  = "__key"
	docField  = "__doc"
)

// tagSeparator joins multi-valued tag fields.
const tagSeparator = "|"

// fieldKind is the value of the "type" key in a field config.
type fieldKind string

const (
	kindText    fieldKind = "text"
	kindTag     fieldKind = "tag"
	kindNumeric fieldKind = "numeric"
	kindGeo     fieldKind = "geo"
)

func kindOf(cfg map[string]any) (fieldKind, error) {
	raw, ok := cfg["type"]
	if !ok {
		return kindText, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("field type must be a string, got %T", raw)
	}
	switch k := fieldKind(strings.ToLower(s)); k {
	case kindText, kindTag, kindNumeric, kindGeo:
		return k, nil
	case "keyword":
		return kindTag, nil
	default:
		return "", fmt.Errorf("unsupported field type %q", s)
	}
}

// schemaField translates one field config into an FT schema field.
func schemaField(name string, cfg map[string]any) (db.IndexField, error) {
	kind, err := kindOf(cfg)
	if err != nil {
		return db.IndexField{}, fmt.Errorf("field %s: %w", name, err)
	}

	f := db.IndexField{Name: name, Sortable: boolOpt(cfg, "sortable")}
	switch kind {
	case kindText:
		f.Type = db.IndexFieldText
		f.NoStem = boolOpt(cfg, "nostem")
		if w, ok := floatOpt(cfg, "weight"); ok {
			f.Weight = w
		}
	case kindTag:
		f.Type = db.IndexFieldTag
		f.TagSeparator = tagSeparator
		f.TagCaseSensitive = boolOpt(cfg, "case_sensitive")
	case kindNumeric:
		f.Type = db.IndexFieldNumeric
	case kindGeo:
		f.Type = db.IndexFieldGeo
	}
	return f, nil
}

// encodeValue renders the textual values of one field for its hash slot.
func encodeValue(kind fieldKind, values []string) (string, bool) {
	if len(values) == 0 {
		return "", false
	}
	switch kind {
	case kindTag:
		return strings.Join(values, tagSeparator), true
	case kindNumeric, kindGeo:
		return values[0], true
	default:
		return strings.Join(values, "\n"), true
	}
}

func boolOpt(cfg map[string]any, key string) bool {
	switch v := cfg[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func floatOpt(cfg map[string]any, key string) (float64, bool) {
	switch v := cfg[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// kindsFor maps every field of a stored mapping to its kind. Unknown kinds fall back to text.
func kindsFor(fields backend.FieldConfigs) map[string]fieldKind {
	out := make(map[string]fieldKind, len(fields))
	for name, cfg := range fields {
		k, err := kindOf(cfg)
		if err != nil {
			k = kindText
		}
		out[name] = k
	}
	return out
}

// settingsOptions reads the index-level settings the engine understands.
func settingsOptions(settings map[string]any) (language string, stopwords []string, err error) {
	if v, ok := settings["language"]; ok {
		s, ok := v.(string)
		if !ok {
			return "", nil, fmt.Errorf("language must be a string, got %T", v)
		}
		language = s
	}

	switch v := settings["stopwords"].(type) {
	case nil:
	case []string:
		stopwords = append([]string{}, v...)
	case []any:
		stopwords = make([]string, 0, len(v))
		for _, w := range v {
			s, ok := w.(string)
			if !ok {
				return "", nil, fmt.Errorf("stopwords must be strings, got %T", w)
			}
			stopwords = append(stopwords, s)
		}
	default:
		return "", nil, fmt.Errorf("stopwords must be a list, got %T", v)
	}
	return language, stopwords, nil
}
