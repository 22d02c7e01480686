// Package backend defines the capability set every search engine integration implements.
package backend

import (
	"context"

	"github.com/kailas-cloud/indexsync/internal/domain/document"
)

// FieldConfigs maps index field name to its opaque backend configuration.
type FieldConfigs = map[string]map[string]any

// IndexInfo describes one physical index.
type IndexInfo struct {
	DocCount int64
	// Aliases lists the aliases currently pointing at the index.
	Aliases []string
}

// Indexer writes documents for one logical index.
// Add and Delete may be buffered until Flush.
type Indexer interface {
	// SetGenerationSuffix redirects subsequent calls to alias+suffix. Empty resets to the alias.
	SetGenerationSuffix(suffix string)
	// Target returns the name currently addressed.
	Target() string
	CreatePhysicalIndex(ctx context.Context, settings map[string]any) error
	ApplyMapping(ctx context.Context, docType string, fields FieldConfigs) error
	// GetMapping returns nil when no mapping is stored for docType.
	GetMapping(ctx context.Context, docType string) (FieldConfigs, error)
	// Add replaces any existing document with the same key.
	Add(ctx context.Context, doc *document.Document) error
	// Delete is a no-op when the document does not exist.
	Delete(ctx context.Context, docType, docID string) error
	Flush(ctx context.Context) error
}

// Admin holds index operations that need no indexer handle.
type Admin interface {
	ListIndexes(ctx context.Context) (map[string]IndexInfo, error)
	// ResolveAlias returns the physical indexes behind alias, empty when undefined.
	// A name that is itself a physical index resolves to itself.
	ResolveAlias(ctx context.Context, alias string) ([]string, error)
	// DeletePhysicalIndex is a no-op when the index does not exist.
	DeletePhysicalIndex(ctx context.Context, name string) error
	SetAlias(ctx context.Context, alias, physical string) error
}

// Client is one concrete search engine connection. It is process-wide and
// closed once at shutdown.
type Client interface {
	Admin
	IndexerFor(index string) Indexer
	SearcherFor(index string) *Query
	Ping(ctx context.Context) error
	// Close flushes every indexer handed out, then disconnects.
	Close(ctx context.Context) error
}
