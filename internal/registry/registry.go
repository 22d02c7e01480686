// Package registry maps entity type tags to descriptors and their indexer handles.
package registry

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/descriptor"
	"github.com/kailas-cloud/indexsync/internal/domain/entity"
)

// IndexerProvider opens indexer handles.
type IndexerProvider interface {
	IndexerFor(index string) backend.Indexer
}

// Provider is an entity type that declares its own descriptor.
type Provider interface {
	TypeTag() string
	SearchDescriptor() *descriptor.Descriptor
}

// Entry is one registered entity type.
type Entry struct {
	Tag        string
	Descriptor *descriptor.Descriptor
	// Indexer is opened once at registration. Nil when the type is not indexed.
	Indexer backend.Indexer
}

// Registry is built once at startup and shared by every service.
type Registry struct {
	client IndexerProvider
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]*Entry
	byIndex map[string][]*Entry
}

// New creates an empty registry.
func New(client IndexerProvider, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		client:  client,
		logger:  logger,
		entries: make(map[string]*Entry),
		byIndex: make(map[string][]*Entry),
	}
}

// Register adds a descriptor for tag. Registering a tag twice keeps the first descriptor.
func (r *Registry) Register(tag string, d *descriptor.Descriptor) error {
	if !entity.ValidTag(tag) {
		return fmt.Errorf("%w: type tag %q must be <namespace>.<type>", domain.ErrConfig, tag)
	}
	if d == nil {
		return fmt.Errorf("%w: nil descriptor for %s", domain.ErrConfig, tag)
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("register %s: %w", tag, err)
	}
	if d.Indexed() && d.Manager == nil {
		return fmt.Errorf("%w: %s is indexed but has no manager", domain.ErrConfig, tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[tag]; ok {
		return nil
	}
	// The entry owns a copy so the caller's descriptor can be reused for other tags.
	d = d.Clone()
	if d.DocType == "" {
		d.DocType = tag
	}

	e := &Entry{Tag: tag, Descriptor: d}
	if d.Indexed() {
		e.Indexer = r.client.IndexerFor(d.Index)
		r.byIndex[d.Index] = append(r.byIndex[d.Index], e)
	}
	r.entries[tag] = e

	r.logger.Debug("registered entity type",
		zap.String("type", tag),
		zap.String("index", d.Index),
		zap.Int("fields", len(d.Fields)),
		zap.Int("cascades", len(d.Cascades)),
	)
	return nil
}

// Autodiscover registers every candidate that declares its own descriptor.
// Candidates that are not providers, or are already registered, are skipped.
func (r *Registry) Autodiscover(candidates ...any) (int, error) {
	registered := 0
	for _, c := range candidates {
		p, ok := c.(Provider)
		if !ok {
			continue
		}
		tag := p.TypeTag()
		if _, exists := r.Lookup(tag); exists {
			continue
		}
		d := p.SearchDescriptor()
		if d == nil {
			continue
		}
		if err := r.Register(tag, d); err != nil {
			return registered, err
		}
		registered++
	}
	return registered, nil
}

// Lookup returns the entry for a type tag.
func (r *Registry) Lookup(tag string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[tag]
	return e, ok
}

// Entries returns the entries feeding index, in registration order.
func (r *Registry) Entries(index string) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byIndex[index])
}

// Indexes returns every index with at least one registered descriptor, sorted.
func (r *Registry) Indexes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.byIndex))
}

// Types returns every registered type tag, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}
