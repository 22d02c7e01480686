// Package descriptor maps an entity type onto index documents.
package descriptor

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/document"
	"github.com/kailas-cloud/indexsync/internal/domain/entity"
)

// DefaultMatchAttribute is the attribute that receives search match metadata.
const DefaultMatchAttribute = "match"

// Manager is the system-of-record source for one entity type.
type Manager interface {
	// Each visits every entity of the type.
	Each(ctx context.Context, fn func(entity.Entity) error) error
	// InBulk fetches entities by natural key. Missing keys are absent from the result.
	InBulk(ctx context.Context, keys []string) (map[string]entity.Entity, error)
	// Get fetches one entity, returning domain.ErrNotFound when absent.
	Get(ctx context.Context, key string) (entity.Entity, error)
}

// Descriptor declares how one entity type is indexed.
type Descriptor struct {
	// Index is the logical index (alias) name. Empty means the type is not indexed.
	Index         string
	IndexSettings map[string]any
	Fields        []FieldSpec
	Cascades      []CascadeRule
	// Defaults are merged under every field's Config.
	Defaults map[string]any

	// DocType defaults to the registered type tag.
	DocType string
	// DocID defaults to the entity's natural key.
	DocID func(e entity.Entity) string

	// ShouldBeInIndex excludes entities; excluded entities have their document removed.
	ShouldBeInIndex func(e entity.Entity) bool
	// ReindexOnCascade filters cascade targets. Defaults to always.
	ReindexOnCascade func(from, to entity.Entity) bool

	MatchAttribute string
	DisableMatch   bool
	Converters     Converters
	Manager        Manager
}

// Clone returns a copy that can be modified without touching d. Fields, cascades
// and settings are copied one level deep.
func (d *Descriptor) Clone() *Descriptor {
	cp := *d
	cp.Fields = slices.Clone(d.Fields)
	cp.Cascades = slices.Clone(d.Cascades)
	cp.IndexSettings = maps.Clone(d.IndexSettings)
	return &cp
}

// Indexed reports whether the type feeds an index.
func (d *Descriptor) Indexed() bool { return d.Index != "" }

// DocumentType returns the document type for e.
func (d *Descriptor) DocumentType(e entity.Entity) string {
	if d.DocType != "" {
		return d.DocType
	}
	return e.TypeTag()
}

// DocumentID returns the document id for e.
func (d *Descriptor) DocumentID(e entity.Entity) string {
	if d.DocID != nil {
		return d.DocID(e)
	}
	return e.Key()
}

// Includes applies the inclusion predicate.
func (d *Descriptor) Includes(e entity.Entity) bool {
	if d.ShouldBeInIndex == nil {
		return true
	}
	return d.ShouldBeInIndex(e)
}

// ShouldReindexOnCascade applies the cascade predicate of the target's descriptor.
func (d *Descriptor) ShouldReindexOnCascade(from, to entity.Entity) bool {
	if d.ReindexOnCascade == nil {
		return true
	}
	return d.ReindexOnCascade(from, to)
}

// MatchAttr returns the attribute name for match metadata, or "" when disabled.
func (d *Descriptor) MatchAttr() string {
	if d.DisableMatch {
		return ""
	}
	if d.MatchAttribute != "" {
		return d.MatchAttribute
	}
	return DefaultMatchAttribute
}

// Validate checks field naming. Collisions are configuration errors.
func (d *Descriptor) Validate() error {
	seen := make(map[string]int, len(d.Fields))
	for i, f := range d.Fields {
		if err := f.validate(i); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrConfig, err)
		}
		name := f.IndexName()
		if j, dup := seen[name]; dup {
			return fmt.Errorf("%w: fields %d and %d both map to %q", domain.ErrFieldNameCollision, j, i, name)
		}
		seen[name] = i
	}
	return nil
}

// Configuration returns field name -> backend config with Defaults merged underneath.
func (d *Descriptor) Configuration() map[string]map[string]any {
	out := make(map[string]map[string]any, len(d.Fields))
	for _, f := range d.Fields {
		cfg := maps.Clone(d.Defaults)
		if cfg == nil {
			cfg = make(map[string]any, len(f.Config))
		}
		maps.Copy(cfg, f.Config)
		out[f.IndexName()] = cfg
	}
	return out
}

// Project builds the document for e. It returns nil when no fields are declared.
// Project has no side effects.
func (d *Descriptor) Project(e entity.Entity) (*document.Document, error) {
	if len(d.Fields) == 0 {
		return nil, nil
	}

	conv := d.Converters
	if conv == nil {
		conv = DefaultConverters()
	}

	doc := document.New(d.DocumentType(e), d.DocumentID(e))
	for _, f := range d.Fields {
		values := make([]string, 0, len(f.Sources))
		for _, src := range f.Sources {
			vals, err := src.values(e, conv)
			if err != nil {
				return nil, fmt.Errorf("project %s field %s: %w", e.TypeTag(), f.IndexName(), err)
			}
			values = append(values, vals...)
		}
		doc.Fields[f.IndexName()] = values
	}
	return doc, nil
}

// CascadeTargets resolves every cascade rule in order. Resolution failures are
// returned separately and contribute no targets.
func (d *Descriptor) CascadeTargets(e entity.Entity) ([]entity.Entity, []error) {
	var (
		targets []entity.Entity
		errs    []error
	)
	for _, rule := range d.Cascades {
		res, err := rule.resolve(e)
		if err != nil {
			errs = append(errs, fmt.Errorf("cascade %s on %s: %w", rule, e.TypeTag(), err))
			continue
		}
		targets = append(targets, res.Targets()...)
	}
	return targets, errs
}
