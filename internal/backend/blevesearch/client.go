// Package blevesearch implements backend.Client on embedded bleve indexes,
// in memory or on disk.
package blevesearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/backend"
)

var _ backend.Client = (*Client)(nil)

const aliasesFile = "aliases.json"

type alias struct {
	target string
	idx    bleve.Index
	ia     bleve.IndexAlias
}

// Client owns every physical index and alias of one process.
type Client struct {
	dir    string
	logger *zap.Logger

	mu       sync.Mutex
	physical map[string]*physical
	aliases  map[string]*alias
	indexers []*Indexer
}

// Open creates a client. An empty dir keeps every index in memory; otherwise
// indexes live under dir/<name> and aliases persist in dir/aliases.json.
func Open(dir string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		dir:      dir,
		logger:   logger,
		physical: make(map[string]*physical),
		aliases:  make(map[string]*alias),
	}
	if dir == "" {
		return c, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read index dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := reopen(e.Name(), filepath.Join(dir, e.Name()))
		if err != nil {
			logger.Warn("skipping unreadable index", zap.String("index", e.Name()), zap.Error(err))
			continue
		}
		c.physical[p.name] = p
	}

	if err := c.loadAliases(); err != nil {
		return nil, errors.Join(err, c.closeIndexes())
	}
	return c, nil
}

// IndexerFor returns a new indexer handle. Handles are flushed on Close.
func (c *Client) IndexerFor(index string) backend.Indexer {
	ix := &Indexer{c: c, index: index}
	c.mu.Lock()
	c.indexers = append(c.indexers, ix)
	c.mu.Unlock()
	return ix
}

// SearcherFor returns a match-all query over index.
func (c *Client) SearcherFor(index string) *backend.Query {
	return backend.NewQuery(index, c)
}

// Ping checks that the index directory is still usable.
func (c *Client) Ping(_ context.Context) error {
	if c.dir == "" {
		return nil
	}
	if _, err := os.Stat(c.dir); err != nil {
		return fmt.Errorf("index dir: %w", err)
	}
	return nil
}

// Close flushes every handle, then closes every index.
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
	errs = append(errs, c.closeIndexes())
	return errors.Join(errs...)
}

func (c *Client) closeIndexes() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, a := range c.aliases {
		errs = append(errs, a.ia.Close())
	}
	for _, p := range c.physical {
		errs = append(errs, p.close())
	}
	return errors.Join(errs...)
}

// ListIndexes returns every physical index with its doc count and aliases.
func (c *Client) ListIndexes(_ context.Context) (map[string]backend.IndexInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]backend.IndexInfo, len(c.physical))
	for name, p := range c.physical {
		n, err := p.docCount()
		if err != nil {
			return nil, err
		}
		out[name] = backend.IndexInfo{DocCount: n}
	}
	for name, a := range c.aliases {
		info := out[a.target]
		info.Aliases = append(info.Aliases, name)
		slices.Sort(info.Aliases)
		out[a.target] = info
	}
	return out, nil
}

// ResolveAlias returns the alias target, the name itself for a physical index, or nothing.
func (c *Client) ResolveAlias(_ context.Context, name string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.aliases[name]; ok {
		return []string{a.target}, nil
	}
	if _, ok := c.physical[name]; ok {
		return []string{name}, nil
	}
	return nil, nil
}

// DeletePhysicalIndex detaches the index from its aliases, closes it and removes its files.
func (c *Client) DeletePhysicalIndex(_ context.Context, name string) error {
	c.mu.Lock()
	p, ok := c.physical[name]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	for aname, a := range c.aliases {
		if a.target != name {
			continue
		}
		// Remove waits for in-flight searches on the alias.
		a.ia.Remove(a.idx)
		if err := a.ia.Close(); err != nil {
			c.logger.Warn("close alias", zap.String("alias", aname), zap.Error(err))
		}
		delete(c.aliases, aname)
	}
	delete(c.physical, name)
	err := c.persistAliasesLocked()
	c.mu.Unlock()

	errs := []error{err, p.close()}
	if p.path != "" {
		if rmErr := os.RemoveAll(p.path); rmErr != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", name, rmErr))
		}
	}
	return errors.Join(errs...)
}

// SetAlias points alias at physical. Searches through the alias see either
// the old or the new target, never a mix and never nothing.
func (c *Client) SetAlias(_ context.Context, name, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.physical[name]; ok {
		return fmt.Errorf("alias %q collides with a physical index", name)
	}
	p, ok := c.physical[target]
	if !ok {
		return fmt.Errorf("index %q does not exist", target)
	}
	idx, err := p.open()
	if err != nil {
		return err
	}

	if a, ok := c.aliases[name]; ok {
		a.ia.Swap([]bleve.Index{idx}, []bleve.Index{a.idx})
		a.target, a.idx = target, idx
	} else {
		c.aliases[name] = &alias{target: target, idx: idx, ia: bleve.NewIndexAlias(idx)}
	}
	return c.persistAliasesLocked()
}

// create registers a new, unopened physical index.
func (c *Client) create(name string, settings map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.createLocked(name, settings)
	return err
}

// lookupOrCreate returns the physical index addressed by name, registering it with
// default settings when nothing exists yet. Concurrent first writers share one index.
func (c *Client) lookupOrCreate(name string) (*physical, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.aliases[name]; ok {
		name = a.target
	}
	if p, ok := c.physical[name]; ok {
		return p, nil
	}
	return c.createLocked(name, nil)
}

// createLocked registers a physical index. Caller holds mu.
func (c *Client) createLocked(name string, settings map[string]any) (*physical, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid index name %q", name)
	}
	if _, err := defaultAnalyzer(settings); err != nil {
		return nil, fmt.Errorf("settings for %s: %w", name, err)
	}
	if _, ok := c.physical[name]; ok {
		return nil, fmt.Errorf("index %q already exists", name)
	}
	if _, ok := c.aliases[name]; ok {
		return nil, fmt.Errorf("index %q collides with an alias", name)
	}

	path := ""
	if c.dir != "" {
		path = filepath.Join(c.dir, name)
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("index %q already exists on disk", name)
		}
	}
	p := newPhysical(name, path, settings)
	c.physical[name] = p
	c.logger.Debug("registered physical index", zap.String("index", name), zap.String("path", path))
	return p, nil
}

// lookup returns the physical index addressed by an index or alias name.
func (c *Client) lookup(name string) (*physical, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.aliases[name]; ok {
		name = a.target
	}
	p, ok := c.physical[name]
	return p, ok
}

// searchable returns what a query against name runs on, or nil when nothing exists yet.
func (c *Client) searchable(name string) (bleve.Index, error) {
	c.mu.Lock()
	if a, ok := c.aliases[name]; ok {
		c.mu.Unlock()
		return a.ia, nil
	}
	p, ok := c.physical[name]
	c.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return p.open()
}

func (c *Client) loadAliases() error {
	raw, err := os.ReadFile(filepath.Join(c.dir, aliasesFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read aliases: %w", err)
	}

	var targets map[string]string
	if err := json.Unmarshal(raw, &targets); err != nil {
		return fmt.Errorf("decode aliases: %w", err)
	}
	for name, target := range targets {
		p, ok := c.physical[target]
		if !ok {
			c.logger.Warn("dropping alias to missing index", zap.String("alias", name), zap.String("index", target))
			continue
		}
		idx, err := p.open()
		if err != nil {
			return err
		}
		c.aliases[name] = &alias{target: target, idx: idx, ia: bleve.NewIndexAlias(idx)}
	}
	return nil
}

func (c *Client) persistAliasesLocked() error {
	if c.dir == "" {
		return nil
	}
	targets := make(map[string]string, len(c.aliases))
	for name, a := range c.aliases {
		targets[name] = a.target
	}
	raw, err := json.MarshalIndent(targets, "", "  ")
	if err != nil {
		return fmt.Errorf("encode aliases: %w", err)
	}

	path := filepath.Join(c.dir, aliasesFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil { //nolint:gosec // alias names are not secret
		return fmt.Errorf("write aliases: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write aliases: %w", err)
	}
	return nil
}
