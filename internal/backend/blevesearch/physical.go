package blevesearch

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/kailas-cloud/indexsync/internal/backend"
)

// Internal keys persisted inside every on-disk index.
const (
	internalSettings = "indexsync:settings"
	internalMappings = "indexsync:mappings"
)

// physical is one generation. Its bleve index opens on first use so every
// mapping applied before the first write or search is part of the index mapping.
type physical struct {
	name string
	path string // empty for memory-only

	mu       sync.Mutex
	settings map[string]any
	mappings map[string]backend.FieldConfigs
	idx      bleve.Index
}

func newPhysical(name, path string, settings map[string]any) *physical {
	return &physical{
		name:     name,
		path:     path,
		settings: maps.Clone(settings),
		mappings: make(map[string]backend.FieldConfigs),
	}
}

// reopen restores a physical index persisted by an earlier process.
func reopen(name, path string) (*physical, error) {
	idx, err := bleve.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	p := newPhysical(name, path, nil)
	p.idx = idx

	if raw, err := idx.GetInternal([]byte(internalSettings)); err == nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, &p.settings); err != nil {
			return nil, errors.Join(fmt.Errorf("decode settings of %s: %w", name, err), idx.Close())
		}
	}
	if raw, err := idx.GetInternal([]byte(internalMappings)); err == nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, &p.mappings); err != nil {
			return nil, errors.Join(fmt.Errorf("decode mappings of %s: %w", name, err), idx.Close())
		}
	}
	return p, nil
}

// open returns the bleve index, creating it from the applied mappings on first call.
func (p *physical) open() (bleve.Index, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idx != nil {
		return p.idx, nil
	}

	im, err := buildIndexMapping(p.settings, p.mappings)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", p.name, err)
	}

	var idx bleve.Index
	if p.path == "" {
		idx, err = bleve.NewMemOnly(im)
	} else {
		idx, err = bleve.New(p.path, im)
	}
	if err != nil {
		return nil, fmt.Errorf("create index %s: %w", p.name, err)
	}
	p.idx = idx

	if err := p.persistLocked(); err != nil {
		return nil, err
	}
	return idx, nil
}

// opened reports whether the index mapping is frozen.
func (p *physical) opened() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idx != nil
}

// applyMapping records fields for docType. It reports whether the mapping arrived
// after the index was opened and so only affects what GetMapping returns.
func (p *physical) applyMapping(docType string, fields backend.FieldConfigs) (late bool, err error) {
	for name, cfg := range fields {
		if _, _, err := fieldMapping(cfg); err != nil {
			return false, fmt.Errorf("mapping %s field %s: %w", docType, name, err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.mappings[docType] = maps.Clone(fields)
	if p.idx == nil {
		return false, nil
	}
	return true, p.persistLocked()
}

func (p *physical) mapping(docType string) backend.FieldConfigs {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.mappings[docType])
}

// kinds returns the field kinds declared for docType.
func (p *physical) kinds(docType string) map[string]fieldKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]fieldKind, len(p.mappings[docType]))
	for name, cfg := range p.mappings[docType] {
		k, err := kindOf(cfg)
		if err != nil {
			k = kindText
		}
		out[name] = k
	}
	return out
}

func (p *physical) docCount() (int64, error) {
	p.mu.Lock()
	idx := p.idx
	p.mu.Unlock()
	if idx == nil {
		return 0, nil
	}
	n, err := idx.DocCount()
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", p.name, err)
	}
	return int64(n), nil //nolint:gosec // document counts fit int64
}

func (p *physical) persistLocked() error {
	settings, err := json.Marshal(p.settings)
	if err != nil {
		return fmt.Errorf("encode settings of %s: %w", p.name, err)
	}
	mappings, err := json.Marshal(p.mappings)
	if err != nil {
		return fmt.Errorf("encode mappings of %s: %w", p.name, err)
	}
	if err := p.idx.SetInternal([]byte(internalSettings), settings); err != nil {
		return fmt.Errorf("persist settings of %s: %w", p.name, err)
	}
	if err := p.idx.SetInternal([]byte(internalMappings), mappings); err != nil {
		return fmt.Errorf("persist mappings of %s: %w", p.name, err)
	}
	return nil
}

func (p *physical) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idx == nil {
		return nil
	}
	err := p.idx.Close()
	p.idx = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", p.name, err)
	}
	return nil
}
