package reindex

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/logger"
)

// TypeConfiguration is the indexing configuration of one entity type.
type TypeConfiguration struct {
	Type    string
	DocType string
	Fields  map[string]map[string]any
	// Mapping is what the backend currently stores. Only filled on request; nil when absent.
	Mapping backend.FieldConfigs
}

// IndexConfiguration groups the types feeding one index.
type IndexConfiguration struct {
	Index    string
	Settings map[string]any
	Types    []TypeConfiguration
}

// ShowConfiguration dumps the configuration of the named indexes, or all of them.
func (s *Service) ShowConfiguration(ctx context.Context, names []string, withMapping bool) ([]IndexConfiguration, error) {
	names, err := s.resolveNames(names)
	if err != nil {
		return nil, err
	}

	out := make([]IndexConfiguration, 0, len(names))
	for _, name := range names {
		entries := s.reg.Entries(name)
		settings, err := mergedSettings(entries)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", name, err)
		}
		ic := IndexConfiguration{Index: name, Settings: settings}
		for _, e := range entries {
			tc := TypeConfiguration{
				Type:    e.Tag,
				DocType: e.Descriptor.DocType,
				Fields:  e.Descriptor.Configuration(),
			}
			if withMapping {
				m, err := e.Indexer.GetMapping(ctx, e.Descriptor.DocType)
				if err != nil {
					return nil, fmt.Errorf("get mapping %s: %w", e.Tag, err)
				}
				tc.Mapping = m
			}
			ic.Types = append(ic.Types, tc)
		}
		out = append(out, ic)
	}
	return out, nil
}

// VerifyMappings returns the registered types whose mapping is missing from the backend.
// Those types need a reindex before their documents are searchable.
func (s *Service) VerifyMappings(ctx context.Context) ([]string, error) {
	log := logger.FromContext(ctx, s.logger)
	var missing []string
	for _, name := range s.reg.Indexes() {
		for _, e := range s.reg.Entries(name) {
			m, err := e.Indexer.GetMapping(ctx, e.Descriptor.DocType)
			if err != nil {
				return missing, fmt.Errorf("get mapping %s: %w", e.Tag, err)
			}
			if m == nil {
				log.Warn("mapping not found, run reindex", zap.String("index", name), zap.String("type", e.Tag))
				missing = append(missing, e.Tag)
			}
		}
	}
	return missing, nil
}
