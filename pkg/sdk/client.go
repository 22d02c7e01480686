package indexsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/backend/blevesearch"
	"github.com/kailas-cloud/indexsync/internal/backend/redisearch"
	dbRedis "github.com/kailas-cloud/indexsync/internal/db/redis"
	"github.com/kailas-cloud/indexsync/internal/domain/descriptor"
	"github.com/kailas-cloud/indexsync/internal/domain/entity"
	"github.com/kailas-cloud/indexsync/internal/lock"
	"github.com/kailas-cloud/indexsync/internal/registry"
	healthuc "github.com/kailas-cloud/indexsync/internal/usecase/health"
	indexinguc "github.com/kailas-cloud/indexsync/internal/usecase/indexing"
	reindexuc "github.com/kailas-cloud/indexsync/internal/usecase/reindex"
	searchuc "github.com/kailas-cloud/indexsync/internal/usecase/search"
)

const defaultReadinessTimeout = 10 * time.Second

// Internal interfaces, swapped in tests.
type registryUseCase interface {
	Register(tag string, d *descriptor.Descriptor) error
	Autodiscover(candidates ...any) (int, error)
	Indexes() []string
	Types() []string
}

type indexingUseCase interface {
	OnCreateOrUpdate(ctx context.Context, e entity.Entity) error
	OnPreDelete(ctx context.Context, e entity.Entity) error
	OnPostDelete(ctx context.Context, snapshot entity.Entity) error
}

type reindexUseCase interface {
	Reindex(ctx context.Context, names []string) (reindexuc.Report, error)
}

type searchUseCase interface {
	Query(tag string) (*backend.Query, error)
	Results(tag string, q *backend.Query) (*searchuc.ResultSet, error)
	Search(tag, input string) (*searchuc.ResultSet, error)
	SearchField(tag, field, input string) (*searchuc.ResultSet, error)
}

// Client is the indexsync SDK entry point.
type Client struct {
	backend     backend.Client
	registry    registryUseCase
	indexingSvc indexingUseCase
	reindexSvc  reindexUseCase
	searchSvc   searchUseCase
	healthSvc   healthUseCase
	obs         *observer
}

// New creates a Client and connects to the search backend.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	client := cfg.backend
	if client == nil {
		if client, err = openBackend(ctx, cfg, obs); err != nil {
			return nil, err
		}
	}
	return wireClient(client, cfg, obs), nil
}

func openBackend(ctx context.Context, cfg *clientConfig, obs *observer) (backend.Client, error) {
	switch cfg.driver {
	case "redis":
		if len(cfg.addrs) == 0 {
			return nil, errors.New("indexsync: redis address required")
		}
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:      cfg.addrs,
			Password:   cfg.password,
			ClientName: "indexsync",
		})
		if err != nil {
			return nil, fmt.Errorf("indexsync: create redis store: %w", err)
		}
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("indexsync: redis not ready: %w", err)
		}
		return redisearch.New(store, cfg.keyPrefix, obs.logger.Named("backend")), nil
	case "bleve":
		c, err := blevesearch.Open(cfg.bleveDir, obs.logger.Named("backend"))
		if err != nil {
			return nil, fmt.Errorf("indexsync: open bleve: %w", err)
		}
		return c, nil
	case "":
		return nil, errors.New("indexsync: backend required (use WithRedis, WithBleve or WithBackend)")
	default:
		return nil, fmt.Errorf("indexsync: unknown driver %q", cfg.driver)
	}
}

func wireClient(client backend.Client, cfg *clientConfig, obs *observer) *Client {
	log := obs.logger
	reg := registry.New(client, log.Named("registry"))
	indexing := indexinguc.New(reg, log.Named("indexing"))

	reindex := reindexuc.New(reg, client, indexing, log.Named("reindex"))
	if cfg.lockDir != "" {
		reindex = reindex.WithLocker(lock.NewFileLocker(cfg.lockDir, log.Named("lock")))
	}

	search := searchuc.New(reg, client, log.Named("search"))
	if cfg.pageSize > 0 || cfg.cacheSize > 0 {
		search = search.WithPaging(cfg.pageSize, cfg.cacheSize)
	}

	return &Client{
		backend:     client,
		registry:    reg,
		indexingSvc: indexing,
		reindexSvc:  reindex,
		searchSvc:   search,
		healthSvc:   healthuc.New(client, cfg.source),
		obs:         obs,
	}
}

// Close flushes pending writes and disconnects the backend.
func (c *Client) Close(ctx context.Context) error {
	if c.backend == nil {
		return nil
	}
	return c.backend.Close(ctx)
}

// Ping checks backend connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.backend.Ping(ctx)
}

// Register declares how the entity type tag is indexed.
// A descriptor with an empty Index registers the type for cascades only.
func (c *Client) Register(tag string, d *Descriptor) (err error) {
	defer func(start time.Time) { c.obs.observe("register", start, err) }(time.Now())
	return c.registry.Register(tag, d)
}

// Autodiscover registers every candidate implementing Provider and returns the count.
func (c *Client) Autodiscover(candidates ...any) (n int, err error) {
	defer func(start time.Time) { c.obs.observe("autodiscover", start, err) }(time.Now())
	return c.registry.Autodiscover(candidates...)
}

// Indexes lists the registered index names.
func (c *Client) Indexes() []string { return c.registry.Indexes() }

// Types lists the registered type tags.
func (c *Client) Types() []string { return c.registry.Types() }

// Saved indexes e after it was created or updated, then follows its cascades.
func (c *Client) Saved(ctx context.Context, e Entity) (err error) {
	defer func(start time.Time) { c.obs.observe("saved", start, err) }(time.Now())
	return c.indexingSvc.OnCreateOrUpdate(ctx, e)
}

// Deleting removes e from its index before it is deleted from the system of record.
// Take a snapshot of e first when its relations are needed by Deleted.
func (c *Client) Deleting(ctx context.Context, e Entity) (err error) {
	defer func(start time.Time) { c.obs.observe("deleting", start, err) }(time.Now())
	return c.indexingSvc.OnPreDelete(ctx, e)
}

// Deleted follows the cascades of a deleted entity using its snapshot.
func (c *Client) Deleted(ctx context.Context, snapshot Entity) (err error) {
	defer func(start time.Time) { c.obs.observe("deleted", start, err) }(time.Now())
	return c.indexingSvc.OnPostDelete(ctx, snapshot)
}

// Reindex rebuilds the named indexes, or all of them when none are named.
// The report is returned alongside a joined error when some indexes failed.
func (c *Client) Reindex(ctx context.Context, names ...string) (report ReindexReport, err error) {
	defer func(start time.Time) { c.obs.observe("reindex", start, err) }(time.Now())
	return c.reindexSvc.Reindex(ctx, names)
}

// Search runs a free-text query against the index of tag.
func (c *Client) Search(tag, input string) (rs *ResultSet, err error) {
	defer func(start time.Time) { c.obs.observe("search", start, err) }(time.Now())
	return c.searchSvc.Search(tag, input)
}

// SearchField runs a query restricted to one indexed field.
func (c *Client) SearchField(tag, field, input string) (rs *ResultSet, err error) {
	defer func(start time.Time) { c.obs.observe("search_field", start, err) }(time.Now())
	return c.searchSvc.SearchField(tag, field, input)
}

// Query returns an empty query scoped to the document type of tag.
func (c *Client) Query(tag string) (*Query, error) {
	return c.searchSvc.Query(tag)
}

// Results wraps a query built with Query into a lazy result set.
func (c *Client) Results(tag string, q *Query) (rs *ResultSet, err error) {
	defer func(start time.Time) { c.obs.observe("results", start, err) }(time.Now())
	return c.searchSvc.Results(tag, q)
}
