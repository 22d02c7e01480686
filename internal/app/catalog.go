package app

import (
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/config"
	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/descriptor"
	"github.com/kailas-cloud/indexsync/internal/domain/entity"
	repoentity "github.com/kailas-cloud/indexsync/internal/repository/entity"
)

// Tables converts the configured types into storage descriptions.
func Tables(types []config.TypeConfig) ([]repoentity.Table, error) {
	out := make([]repoentity.Table, 0, len(types))
	for _, tc := range types {
		t := repoentity.Table{Tag: tc.Tag, Name: tc.Table, Key: tc.Key}
		for _, name := range slices.Sorted(maps.Keys(tc.Columns)) {
			kind, ok := entity.ParseKind(tc.Columns[name])
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s: unknown kind %q", domain.ErrConfig, tc.Tag, name, tc.Columns[name])
			}
			t.Columns = append(t.Columns, repoentity.Column{Name: name, Kind: kind})
		}
		for _, r := range tc.Relations {
			t.Relations = append(t.Relations, repoentity.Relation{
				Name:    r.Name,
				Target:  r.Target,
				Column:  r.Column,
				Reverse: r.Reverse,
			})
		}
		out = append(out, t)
	}
	return out, nil
}

// BuildDescriptor turns one configured type into a descriptor backed by mgr.
// Types without a descriptor section yield an unindexed descriptor.
func BuildDescriptor(tc config.TypeConfig, mgr descriptor.Manager, logger *zap.Logger) *descriptor.Descriptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &descriptor.Descriptor{Manager: mgr}
	dc := tc.Descriptor
	if dc == nil {
		return d
	}

	d.Index = dc.Index
	d.IndexSettings = dc.IndexSettings
	d.Defaults = dc.Defaults
	d.DocType = dc.DocType
	d.MatchAttribute = dc.MatchAttribute
	d.DisableMatch = dc.DisableMatch

	for _, fc := range dc.Fields {
		sources := make([]descriptor.Source, len(fc.Sources))
		for i, s := range fc.Sources {
			sources[i] = descriptor.Path(s)
		}
		f := descriptor.Field(sources...).Named(fc.Name)
		if fc.Config != nil {
			f = f.WithConfig(fc.Config)
		}
		d.Fields = append(d.Fields, f)
	}
	for _, c := range dc.Cascades {
		d.Cascades = append(d.Cascades, descriptor.CascadeAttr(c))
	}
	if len(dc.ExcludeWhen) > 0 {
		d.ShouldBeInIndex = excludeWhen(tc.Tag, dc.ExcludeWhen, logger)
	}
	return d
}

// excludeWhen keeps entities unless one of the attributes renders as its configured value.
func excludeWhen(tag string, rules map[string]any, logger *zap.Logger) func(entity.Entity) bool {
	want := make(map[string]string, len(rules))
	for attr, v := range rules {
		want[attr] = render(v)
	}
	return func(e entity.Entity) bool {
		for attr, value := range want {
			v, err := e.Attr(attr)
			if err != nil {
				logger.Debug("exclusion attribute unavailable",
					zap.String("type", tag),
					zap.String("attr", attr),
					zap.Error(err),
				)
				continue
			}
			if render(v) == value {
				return false
			}
		}
		return true
	}
}

func render(v any) string {
	if v == nil {
		return ""
	}
	s, err := descriptor.Text(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
