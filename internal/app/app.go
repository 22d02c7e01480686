// Package app wires configuration, the entity catalog, the search backend and
// the services into one process-wide value.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/backend/blevesearch"
	"github.com/kailas-cloud/indexsync/internal/backend/redisearch"
	"github.com/kailas-cloud/indexsync/internal/config"
	dbRedis "github.com/kailas-cloud/indexsync/internal/db/redis"
	"github.com/kailas-cloud/indexsync/internal/lock"
	"github.com/kailas-cloud/indexsync/internal/registry"
	repoentity "github.com/kailas-cloud/indexsync/internal/repository/entity"
	healthuc "github.com/kailas-cloud/indexsync/internal/usecase/health"
	indexinguc "github.com/kailas-cloud/indexsync/internal/usecase/indexing"
	reindexuc "github.com/kailas-cloud/indexsync/internal/usecase/reindex"
	searchuc "github.com/kailas-cloud/indexsync/internal/usecase/search"
)

// App holds every long-lived component.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Backend  backend.Client
	Catalog  *repoentity.Catalog
	Registry *registry.Registry
	Indexing *indexinguc.Service
	Reindex  *reindexuc.Service
	Search   *searchuc.Service
	Health   *healthuc.Service
}

// Option overrides a component chosen from configuration.
type Option func(*options)

type options struct {
	backend backend.Client
	source  repoentity.RowSource
}

// WithBackend uses c instead of connecting the configured backend.
func WithBackend(c backend.Client) Option {
	return func(o *options) { o.backend = c }
}

// WithSource uses src instead of opening the configured source.
func WithSource(src repoentity.RowSource) Option {
	return func(o *options) { o.source = src }
}

// New connects the backend and the entity source and registers every configured type.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	src := o.source
	if src == nil {
		var err error
		if src, err = OpenSource(ctx, cfg.Source); err != nil {
			return nil, err
		}
	}

	tables, err := Tables(cfg.Types)
	if err != nil {
		return nil, errors.Join(err, src.Close())
	}
	catalog, err := repoentity.NewCatalog(src, tables, logger.Named("source"))
	if err != nil {
		return nil, errors.Join(err, src.Close())
	}

	client := o.backend
	if client == nil {
		if client, err = OpenBackend(ctx, cfg.Backend, logger.Named("backend")); err != nil {
			return nil, errors.Join(err, catalog.Close())
		}
	}

	reg := registry.New(client, logger.Named("registry"))
	for _, tc := range cfg.Types {
		mgr, ok := catalog.Manager(tc.Tag)
		if !ok {
			return nil, errors.Join(fmt.Errorf("no manager for %s", tc.Tag), client.Close(ctx), catalog.Close())
		}
		if err := reg.Register(tc.Tag, BuildDescriptor(tc, mgr, logger)); err != nil {
			return nil, errors.Join(err, client.Close(ctx), catalog.Close())
		}
	}

	indexing := indexinguc.New(reg, logger.Named("indexing"))
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Backend:  client,
		Catalog:  catalog,
		Registry: reg,
		Indexing: indexing,
		Reindex: reindexuc.New(reg, client, indexing, logger.Named("reindex")).
			WithLocker(lock.NewFileLocker(cfg.Reindex.LockDir, logger.Named("lock"))),
		Search: searchuc.New(reg, client, logger.Named("search")).
			WithPaging(cfg.Search.PageSize, cfg.Search.CacheSize),
		Health: healthuc.New(client, catalog),
	}

	logger.Info("Application assembled",
		zap.String("backend", cfg.Backend.Driver),
		zap.String("source", cfg.Source.Driver),
		zap.Strings("types", reg.Types()),
		zap.Strings("indexes", reg.Indexes()),
	)
	return a, nil
}

// VerifyMappings warns about indexed types whose mapping is not stored in the backend yet.
func (a *App) VerifyMappings(ctx context.Context) {
	missing, err := a.Reindex.VerifyMappings(ctx)
	if err != nil {
		a.Logger.Warn("Could not verify index mappings", zap.Error(err))
		return
	}
	if len(missing) > 0 {
		a.Logger.Warn("Some types are not searchable until reindexed", zap.Strings("types", missing))
	}
}

// Close flushes pending writes, disconnects the backend and releases the source.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(a.Backend.Close(ctx), a.Catalog.Close())
}

// OpenBackend connects the configured search backend.
func OpenBackend(ctx context.Context, cfg config.BackendConfig, logger *zap.Logger) (backend.Client, error) {
	switch cfg.Driver {
	case config.BackendRedis:
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:      cfg.Addrs,
			Username:   cfg.Username,
			Password:   cfg.Password,
			DB:         cfg.DB,
			ClientName: "indexsync",
		})
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
			store.Close()
			return nil, fmt.Errorf("redis not ready: %w", err)
		}
		return redisearch.New(store, cfg.KeyPrefix, logger), nil
	case config.BackendBleve:
		c, err := blevesearch.Open(cfg.Dir, logger)
		if err != nil {
			return nil, fmt.Errorf("open bleve: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown backend driver %q", cfg.Driver)
}

// OpenSource opens the configured system of record.
func OpenSource(ctx context.Context, cfg config.SourceConfig) (repoentity.RowSource, error) {
	switch cfg.Driver {
	case config.SourcePostgres, config.SourceSQLite, config.SourceSQLite3:
		src, err := repoentity.OpenSQL(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open source: %w", err)
		}
		return src, nil
	case config.SourceMemory:
		if cfg.DSN == "" {
			return repoentity.NewMemory(), nil
		}
		mem, err := repoentity.LoadFixtures(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open source: %w", err)
		}
		return mem, nil
	}
	return nil, fmt.Errorf("unknown source driver %q", cfg.Driver)
}
