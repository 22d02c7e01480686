package chi

import (
	"context"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/domain/entity"
	healthuc "github.com/kailas-cloud/indexsync/internal/usecase/health"
	reindexuc "github.com/kailas-cloud/indexsync/internal/usecase/reindex"
	searchuc "github.com/kailas-cloud/indexsync/internal/usecase/search"
)

// EntityLoader reads entities from the system of record.
type EntityLoader interface {
	Get(ctx context.Context, tag, key string) (entity.Entity, error)
}

// Hooks is the mutation trigger surface.
type Hooks interface {
	OnCreateOrUpdate(ctx context.Context, e entity.Entity) error
	OnPreDelete(ctx context.Context, e entity.Entity) error
	OnPostDelete(ctx context.Context, snapshot entity.Entity) error
}

// Reindexer rebuilds indexes and reports their configuration.
type Reindexer interface {
	Reindex(ctx context.Context, names []string) (reindexuc.Report, error)
	ShowConfiguration(ctx context.Context, names []string, withMapping bool) ([]reindexuc.IndexConfiguration, error)
}

// IndexLister lists physical indexes.
type IndexLister interface {
	ListIndexes(ctx context.Context) (map[string]backend.IndexInfo, error)
}

// Searcher runs entity searches.
type Searcher interface {
	Search(tag, input string) (*searchuc.ResultSet, error)
	SearchField(tag, field, input string) (*searchuc.ResultSet, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
