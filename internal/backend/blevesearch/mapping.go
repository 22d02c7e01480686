package blevesearch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/kailas-cloud/indexsync/internal/backend"
)

// Reserved document fields.
const (
	typeField = "__type"
	docField  = "__doc"
)

type fieldKind string

const (
	kindText     fieldKind = "text"
	kindKeyword  fieldKind = "keyword"
	kindNumeric  fieldKind = "numeric"
	kindDatetime fieldKind = "datetime"
	kindBoolean  fieldKind = "boolean"
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
	case kindText, kindKeyword, kindNumeric, kindDatetime, kindBoolean:
		return k, nil
	case "tag":
		return kindKeyword, nil
	default:
		return "", fmt.Errorf("unsupported field type %q", s)
	}
}

// fieldMapping translates one field config into a bleve field mapping.
func fieldMapping(cfg map[string]any) (*mapping.FieldMapping, fieldKind, error) {
	kind, err := kindOf(cfg)
	if err != nil {
		return nil, "", err
	}

	var fm *mapping.FieldMapping
	switch kind {
	case kindText:
		fm = bleve.NewTextFieldMapping()
		if a, ok := cfg["analyzer"].(string); ok && a != "" {
			fm.Analyzer = a
		}
	case kindKeyword:
		fm = bleve.NewKeywordFieldMapping()
	case kindNumeric:
		fm = bleve.NewNumericFieldMapping()
	case kindDatetime:
		fm = bleve.NewDateTimeFieldMapping()
	case kindBoolean:
		fm = bleve.NewBooleanFieldMapping()
	}
	if store, ok := cfg["store"].(bool); ok {
		fm.Store = store
	}
	return fm, kind, nil
}

func typeFieldMapping() *mapping.FieldMapping {
	fm := bleve.NewKeywordFieldMapping()
	fm.Analyzer = keyword.Name
	fm.Store = true
	fm.IncludeInAll = false
	return fm
}

func payloadFieldMapping() *mapping.FieldMapping {
	fm := bleve.NewTextFieldMapping()
	fm.Index = false
	fm.Store = true
	fm.IncludeInAll = false
	fm.IncludeTermVectors = false
	return fm
}

// buildIndexMapping assembles one document mapping per document type.
func buildIndexMapping(settings map[string]any, mappings map[string]backend.FieldConfigs) (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	im.TypeField = typeField
	analyzer, err := defaultAnalyzer(settings)
	if err != nil {
		return nil, err
	}
	if analyzer != "" {
		im.DefaultAnalyzer = analyzer
	}

	im.DefaultMapping.AddFieldMappingsAt(typeField, typeFieldMapping())
	im.DefaultMapping.AddFieldMappingsAt(docField, payloadFieldMapping())

	for docType, fields := range mappings {
		dm := bleve.NewDocumentMapping()
		dm.AddFieldMappingsAt(typeField, typeFieldMapping())
		dm.AddFieldMappingsAt(docField, payloadFieldMapping())
		for name, cfg := range fields {
			fm, _, err := fieldMapping(cfg)
			if err != nil {
				return nil, fmt.Errorf("mapping %s field %s: %w", docType, name, err)
			}
			dm.AddFieldMappingsAt(name, fm)
		}
		im.AddDocumentMapping(docType, dm)
	}

	if err := im.Validate(); err != nil {
		return nil, fmt.Errorf("invalid index mapping: %w", err)
	}
	return im, nil
}

func defaultAnalyzer(settings map[string]any) (string, error) {
	v, ok := settings["default_analyzer"]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("default_analyzer must be a string, got %T", v)
	}
	return s, nil
}

// fieldValue converts textual values into the shape bleve expects for kind.
func fieldValue(kind fieldKind, values []string) (any, bool) {
	if len(values) == 0 {
		return nil, false
	}
	switch kind {
	case kindNumeric:
		f, err := strconv.ParseFloat(values[0], 64)
		return f, err == nil
	case kindBoolean:
		b, err := strconv.ParseBool(values[0])
		return b, err == nil
	case kindDatetime:
		return values[0], true
	default:
		if len(values) == 1 {
			return values[0], true
		}
		return append([]string{}, values...), true
	}
}
