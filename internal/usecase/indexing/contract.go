package indexing

import (
	"context"

	"github.com/kailas-cloud/indexsync/internal/domain/entity"
	"github.com/kailas-cloud/indexsync/internal/registry"
)

// Registry resolves entity types to their registration.
type Registry interface {
	Lookup(tag string) (*registry.Entry, bool)
}

// Hooks is the mutation trigger surface. The caller invokes OnPreDelete before the
// row is removed and OnPostDelete after, passing the snapshot it retained.
type Hooks interface {
	OnCreateOrUpdate(ctx context.Context, e entity.Entity) error
	OnPreDelete(ctx context.Context, e entity.Entity) error
	OnPostDelete(ctx context.Context, snapshot entity.Entity) error
}
