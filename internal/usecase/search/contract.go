package search

import (
	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/registry"
)

// Registry resolves entity types to their registration.
type Registry interface {
	Lookup(tag string) (*registry.Entry, bool)
}

// Searchers opens queries over a logical index.
type Searchers interface {
	SearcherFor(index string) *backend.Query
}
