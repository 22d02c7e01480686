package reindex

import (
	"context"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/registry"
)

// Registry lists the descriptors feeding each index.
type Registry interface {
	Entries(index string) []*registry.Entry
	Indexes() []string
}

// Admin publishes and retires index generations. IndexerFor hands out the
// build handle, so the registry handles keep addressing the alias.
type Admin interface {
	ResolveAlias(ctx context.Context, alias string) ([]string, error)
	DeletePhysicalIndex(ctx context.Context, name string) error
	SetAlias(ctx context.Context, alias, physical string) error
	IndexerFor(index string) backend.Indexer
}

// BulkIndexer writes every entity of one registered type through target.
type BulkIndexer interface {
	IndexAll(ctx context.Context, entry *registry.Entry, target backend.Indexer, withCascade bool) (int, error)
}

// Locker serializes rebuilds of the same index. A held lock returns domain.ErrReindexInProgress.
type Locker interface {
	TryLock(index string) (release func(), err error)
}
