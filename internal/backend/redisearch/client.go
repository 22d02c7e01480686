// Package redisearch implements backend.Client on Redis 8+ search (FT.*) over hashes.
package redisearch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/db"
)

var _ backend.Client = (*Client)(nil)

// Client is a process-wide RediSearch backend.
type Client struct {
	store  Store
	prefix string
	logger *zap.Logger

	mu       sync.Mutex
	indexers []*Indexer
}

// New creates a client. prefix is prepended to every index, alias and bookkeeping key
// so several environments can share one server.
func New(store Store, prefix string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{store: store, prefix: prefix, logger: logger}
}

// name maps a logical name to its server name.
func (c *Client) name(n string) string { return c.prefix + n }

// strip maps a server name back to its logical name.
func (c *Client) strip(n string) (string, bool) {
	return strings.CutPrefix(n, c.prefix)
}

func (c *Client) aliasesKey() string { return c.prefix + "__aliases" }

func (c *Client) mappingKey(physical string) string { return c.prefix + "__mapping:" + physical }

// docKeyPrefix is the hash key prefix covered by a physical index.
func (c *Client) docKeyPrefix(physical string) string { return c.name(physical) + ":" }

// IndexerFor returns a new indexer handle. Handles are flushed on Close.
func (c *Client) IndexerFor(index string) backend.Indexer {
	ix := &Indexer{c: c, index: index, kinds: make(map[string]map[string]fieldKind)}
	c.mu.Lock()
	c.indexers = append(c.indexers, ix)
	c.mu.Unlock()
	return ix
}

// SearcherFor returns a match-all query over index.
func (c *Client) SearcherFor(index string) *backend.Query {
	return backend.NewQuery(index, c)
}

// Ping checks the server.
func (c *Client) Ping(ctx context.Context) error {
	return c.store.Ping(ctx) //nolint:wrapcheck // store errors carry their op
}

// Close flushes every handle, then disconnects.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	indexers := slices.Clone(c.indexers)
	c.mu.Unlock()

	var errs []error
	for _, ix := range indexers {
		if err := ix.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", ix.Target(), err))
		}
	}
	c.store.Close()
	return errors.Join(errs...)
}

// ListIndexes returns every physical index under the prefix with its doc count and aliases.
func (c *Client) ListIndexes(ctx context.Context) (map[string]backend.IndexInfo, error) {
	names, err := c.store.ListIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}

	out := make(map[string]backend.IndexInfo, len(names))
	for _, n := range names {
		logical, ok := c.strip(n)
		if !ok {
			continue
		}
		info, err := c.store.IndexInfo(ctx, n)
		if errors.Is(err, db.ErrIndexNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("index info %s: %w", logical, err)
		}
		out[logical] = backend.IndexInfo{DocCount: info.NumDocs}
	}

	aliases, err := c.aliasRecords(ctx)
	if err != nil {
		return nil, err
	}
	for alias, target := range aliases {
		info, ok := out[target]
		if !ok {
			continue
		}
		info.Aliases = append(info.Aliases, alias)
		slices.Sort(info.Aliases)
		out[target] = info
	}
	return out, nil
}

// ResolveAlias returns the physical index behind alias. The engine resolves aliases
// in FT.INFO, so a physical name resolves to itself.
func (c *Client) ResolveAlias(ctx context.Context, alias string) ([]string, error) {
	info, err := c.store.IndexInfo(ctx, c.name(alias))
	if errors.Is(err, db.ErrIndexNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", alias, err)
	}
	physical, ok := c.strip(info.Name)
	if !ok {
		return nil, fmt.Errorf("alias %s points outside prefix %q: %s", alias, c.prefix, info.Name)
	}
	return []string{physical}, nil
}

// DeletePhysicalIndex drops the index with its documents, stored mappings and alias records.
func (c *Client) DeletePhysicalIndex(ctx context.Context, name string) error {
	err := c.store.DropIndex(ctx, c.name(name), true)
	if err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	if err := c.store.Del(ctx, c.mappingKey(name)); err != nil {
		return fmt.Errorf("drop mappings of %s: %w", name, err)
	}

	aliases, err := c.aliasRecords(ctx)
	if err != nil {
		return err
	}
	var stale []string
	for alias, target := range aliases {
		if target == name {
			stale = append(stale, alias)
		}
	}
	if len(stale) > 0 {
		slices.Sort(stale)
		if err := c.store.HDel(ctx, c.aliasesKey(), stale...); err != nil {
			return fmt.Errorf("drop alias records of %s: %w", name, err)
		}
	}

	c.forgetKinds(name)
	c.logger.Debug("dropped physical index", zap.String("index", name), zap.Strings("aliases", stale))
	return nil
}

// SetAlias points alias at physical in one server-side step.
func (c *Client) SetAlias(ctx context.Context, alias, physical string) error {
	if err := c.store.AliasUpdate(ctx, c.name(alias), c.name(physical)); err != nil {
		return fmt.Errorf("alias %s -> %s: %w", alias, physical, err)
	}
	if err := c.store.HSet(ctx, c.aliasesKey(), map[string]string{alias: physical}); err != nil {
		return fmt.Errorf("record alias %s: %w", alias, err)
	}
	return nil
}

func (c *Client) aliasRecords(ctx context.Context) (map[string]string, error) {
	m, err := c.store.HGetAll(ctx, c.aliasesKey())
	if errors.Is(err, db.ErrKeyNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read alias records: %w", err)
	}
	return m, nil
}

// resolveOne returns the single physical index addressed by name, or "" when none exists.
func (c *Client) resolveOne(ctx context.Context, name string) (string, error) {
	targets, err := c.ResolveAlias(ctx, name)
	if err != nil || len(targets) == 0 {
		return "", err
	}
	return targets[0], nil
}

// forgetKinds drops cached field kinds of a physical index from every handle.
func (c *Client) forgetKinds(physical string) {
	c.mu.Lock()
	indexers := slices.Clone(c.indexers)
	c.mu.Unlock()
	for _, ix := range indexers {
		ix.forget(physical)
	}
}
