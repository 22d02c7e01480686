package entity

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/domain"
	domentity "github.com/kailas-cloud/indexsync/internal/domain/entity"
)

const scanPage = 500

// RowSource is the storage behind a Catalog.
type RowSource interface {
	Scan(ctx context.Context, t *Table, after any, limit int) ([]Row, error)
	ByKeys(ctx context.Context, t *Table, keys []string) ([]Row, error)
	Where(ctx context.Context, t *Table, column, value string) ([]Row, error)
	Ping(ctx context.Context) error
	Close() error
}

// Catalog holds one Manager per entity type over a shared row source.
type Catalog struct {
	src      RowSource
	logger   *zap.Logger
	managers map[string]*Manager
}

// NewCatalog validates the tables and builds their managers.
// Relations must point at a table of the catalog.
func NewCatalog(src RowSource, tables []Table, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{src: src, logger: logger, managers: make(map[string]*Manager, len(tables))}
	for i := range tables {
		t := tables[i]
		if err := t.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.managers[t.Tag]; dup {
			return nil, fmt.Errorf("%w: type %s declared twice", domain.ErrConfig, t.Tag)
		}
		c.managers[t.Tag] = &Manager{catalog: c, table: &t}
	}
	for _, m := range c.managers {
		for _, r := range m.table.Relations {
			if _, ok := c.managers[r.Target]; !ok {
				return nil, fmt.Errorf("%w: %s.%s targets unknown type %q",
					domain.ErrConfig, m.table.Tag, r.Name, r.Target)
			}
		}
	}
	return c, nil
}

// Manager returns the manager of a type tag.
func (c *Catalog) Manager(tag string) (*Manager, bool) {
	m, ok := c.managers[tag]
	return m, ok
}

// Tags returns every type tag, sorted.
func (c *Catalog) Tags() []string {
	return slices.Sorted(maps.Keys(c.managers))
}

// Get loads one entity of any type.
func (c *Catalog) Get(ctx context.Context, tag, key string) (domentity.Entity, error) {
	m, ok := c.managers[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownType, tag)
	}
	return m.Get(ctx, key)
}

// Ping checks the row source.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.src.Ping(ctx) //nolint:wrapcheck // sources wrap their own errors
}

// Close releases the row source.
func (c *Catalog) Close() error {
	return c.src.Close() //nolint:wrapcheck // sources wrap their own errors
}

// Manager serves one entity type. It implements descriptor.Manager.
type Manager struct {
	catalog *Catalog
	table   *Table
}

// Table returns the storage description.
func (m *Manager) Table() Table { return *m.table }

// Each visits every entity ordered by key, one page at a time.
func (m *Manager) Each(ctx context.Context, fn func(domentity.Entity) error) error {
	var after any
	for {
		rows, err := m.catalog.src.Scan(ctx, m.table, after, scanPage)
		if err != nil {
			return fmt.Errorf("scan %s: %w", m.table.Tag, err)
		}
		for _, r := range rows {
			rec, err := m.record(ctx, r)
			if err != nil {
				return err
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		if len(rows) < scanPage {
			return nil
		}
		after = rows[len(rows)-1][m.table.Key]
	}
}

// InBulk fetches entities by natural key. Missing keys are absent from the result.
func (m *Manager) InBulk(ctx context.Context, keys []string) (map[string]domentity.Entity, error) {
	out := make(map[string]domentity.Entity, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	rows, err := m.catalog.src.ByKeys(ctx, m.table, keys)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", m.table.Tag, err)
	}
	for _, r := range rows {
		rec, err := m.record(ctx, r)
		if err != nil {
			return nil, err
		}
		out[rec.Key()] = rec
	}
	return out, nil
}

// Get fetches one entity, returning domain.ErrNotFound when absent.
func (m *Manager) Get(ctx context.Context, key string) (domentity.Entity, error) {
	found, err := m.InBulk(ctx, []string{key})
	if err != nil {
		return nil, err
	}
	e, ok := found[key]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", m.table.Tag, key, domain.ErrNotFound)
	}
	return e, nil
}

// where loads the entities whose column equals value.
func (m *Manager) where(ctx context.Context, column, value string) ([]domentity.Entity, error) {
	rows, err := m.catalog.src.Where(ctx, m.table, column, value)
	if err != nil {
		return nil, fmt.Errorf("load %s by %s: %w", m.table.Tag, column, err)
	}
	out := make([]domentity.Entity, 0, len(rows))
	for _, r := range rows {
		rec, err := m.record(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *Manager) record(ctx context.Context, r Row) (*domentity.Record, error) {
	t := m.table
	rec := domentity.NewRecord(t.Tag, keyString(r[t.Key]))
	for _, c := range t.Columns {
		v, err := normalize(c.Kind, r[c.Name])
		if err != nil {
			return nil, fmt.Errorf("%s %s column %s: %w", t.Tag, rec.Key(), c.Name, err)
		}
		rec.Set(c.Name, v, c.Kind)
	}

	// Resolvers outlive the load: snapshots resolve after the request that made them.
	rctx := context.WithoutCancel(ctx)
	for _, rel := range t.Relations {
		target := m.catalog.managers[rel.Target]
		if rel.Reverse {
			key := rec.Key()
			rec.Relate(rel.Name, func() (any, error) {
				return target.where(rctx, rel.Column, key)
			})
			continue
		}
		ref := keyString(r[rel.Column])
		rec.Relate(rel.Name, func() (any, error) {
			if ref == "" {
				return nil, nil
			}
			e, err := target.Get(rctx, ref)
			if errors.Is(err, domain.ErrNotFound) {
				m.catalog.logger.Debug("dangling relation",
					zap.String("type", t.Tag),
					zap.String("relation", rel.Name),
					zap.String("target_key", ref),
				)
				return nil, nil
			}
			return e, err
		})
	}
	return rec, nil
}
