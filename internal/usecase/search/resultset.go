package search

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/document"
	"github.com/kailas-cloud/indexsync/internal/domain/entity"
	"github.com/kailas-cloud/indexsync/internal/logger"
	"github.com/kailas-cloud/indexsync/internal/metrics"
	"github.com/kailas-cloud/indexsync/internal/registry"
)

// Match is the metadata attached to each materialized entity.
type Match struct {
	Rank   int
	ID     string
	Score  float64
	Fields map[string]any
}

// Item is one materialized rank. Entity is nil for a hole: a hit whose id could not
// be parsed or whose entity no longer exists.
type Item struct {
	Rank   int
	Hit    backend.Hit
	Entity entity.Entity
}

// Hole reports whether the rank has no entity.
func (it Item) Hole() bool { return it.Entity == nil }

// ResultSet is a lazy, ordered view over a query's matches. Ranks are fetched from the
// backend in windows of at least the page size and cached at their original rank.
type ResultSet struct {
	entry    *registry.Entry
	query    *backend.Query
	pageSize int
	logger   *zap.Logger

	mu       sync.Mutex
	cache    *lru.Cache[int, Item]
	latest   *backend.Results
	position int
}

func newResultSet(entry *registry.Entry, q *backend.Query, pageSize, cacheSize int, logger *zap.Logger) (*ResultSet, error) {
	cache, err := lru.New[int, Item](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	return &ResultSet{
		entry:    entry,
		query:    q,
		pageSize: pageSize,
		logger:   logger,
		cache:    cache,
	}, nil
}

// Get returns the entity at rank. It fails with domain.ErrOutOfRange beyond the
// match count and domain.ErrEntityMissing when the rank is a hole.
func (rs *ResultSet) Get(ctx context.Context, rank int) (entity.Entity, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	it, err := rs.item(ctx, rank)
	if err != nil {
		return nil, err
	}
	if it.Hole() {
		return nil, fmt.Errorf("rank %d (%s): %w", rank, it.Hit.ID, domain.ErrEntityMissing)
	}
	return it.Entity, nil
}

// Slice returns the entities in [start, end) in rank order, skipping holes.
// The result is truncated at the end of the matches; range never causes an error.
func (rs *ResultSet) Slice(ctx context.Context, start, end int) ([]entity.Entity, error) {
	items, err := rs.Window(ctx, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]entity.Entity, 0, len(items))
	for _, it := range items {
		if !it.Hole() {
			out = append(out, it.Entity)
		}
	}
	return out, nil
}

// Window is Slice that keeps holes and hit metadata. Items come from the fetch
// that produced them, so a window wider than the cache is still complete.
func (rs *ResultSet) Window(ctx context.Context, start, end int) ([]Item, error) {
	start = max(start, 0)
	if end <= start {
		return nil, nil
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.latest != nil {
		end = min(end, rs.latest.Total)
	}

	out := make([]Item, 0, min(max(end-start, 0), rs.pageSize))
	var fetched map[int]Item
	for i := start; i < end; i++ {
		it, ok := fetched[i]
		if !ok {
			it, ok = rs.cache.Get(i)
		}
		if !ok {
			var err error
			if fetched, err = rs.ensure(ctx, i, end); err != nil {
				return nil, err
			}
			if it, ok = fetched[i]; !ok {
				break
			}
		}
		out = append(out, it)
	}
	return out, nil
}

// Next returns the next entity in rank order. ok is false once the matches are exhausted.
func (rs *ResultSet) Next(ctx context.Context) (entity.Entity, bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for {
		it, err := rs.item(ctx, rs.position)
		if errors.Is(err, domain.ErrOutOfRange) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		rs.position++
		if !it.Hole() {
			return it.Entity, true, nil
		}
	}
}

// Reset rewinds Next to the first rank. Cached ranks are kept.
func (rs *ResultSet) Reset() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.position = 0
}

// All iterates every entity in rank order, skipping holes.
func (rs *ResultSet) All(ctx context.Context) iter.Seq2[entity.Entity, error] {
	return func(yield func(entity.Entity, error) bool) {
		for rank := 0; ; rank++ {
			e, err := rs.Get(ctx, rank)
			switch {
			case errors.Is(err, domain.ErrOutOfRange):
				return
			case errors.Is(err, domain.ErrEntityMissing):
				continue
			case err != nil:
				yield(nil, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Len returns the total match count reported by the backend.
func (rs *ResultSet) Len(ctx context.Context) (int, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := rs.ensureLatest(ctx); err != nil {
		return 0, err
	}
	return rs.latest.Total, nil
}

// Attr reads an attribute of the latest backend response, e.g. "total" or a backend-specific key.
func (rs *ResultSet) Attr(ctx context.Context, name string) (any, bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := rs.ensureLatest(ctx); err != nil {
		return nil, false, err
	}
	v, ok := rs.latest.Attr(name)
	return v, ok, nil
}

// item returns the cached item at rank, fetching it if needed. Caller holds mu.
func (rs *ResultSet) item(ctx context.Context, rank int) (Item, error) {
	if rank < 0 {
		return Item{}, fmt.Errorf("rank %d: %w", rank, domain.ErrOutOfRange)
	}
	fetched, err := rs.ensure(ctx, rank, rank+1)
	if err != nil {
		return Item{}, err
	}
	it, ok := fetched[rank]
	if !ok {
		it, ok = rs.cache.Get(rank)
	}
	if !ok {
		return Item{}, fmt.Errorf("rank %d of %d: %w", rank, rs.latest.Total, domain.ErrOutOfRange)
	}
	return it, nil
}

func (rs *ResultSet) ensureLatest(ctx context.Context) error {
	if rs.latest != nil {
		return nil
	}
	_, err := rs.ensure(ctx, rs.position, rs.position+1)
	return err
}

// ensure makes [start, end) available with at most one backend call and returns
// the items that call materialized. Caller holds mu.
func (rs *ResultSet) ensure(ctx context.Context, start, end int) (map[int]Item, error) {
	for start < end && rs.cache.Contains(start) {
		start++
	}
	for start < end && rs.cache.Contains(end-1) {
		end--
	}
	if start == end && rs.latest != nil {
		return nil, nil
	}
	if end-start < rs.pageSize {
		end = start + rs.pageSize
	}
	if rs.latest != nil {
		end = min(end, rs.latest.Total)
		if start >= end {
			return nil, nil
		}
	}
	return rs.fetch(ctx, start, end-start)
}

type pendingHit struct {
	rank    int
	hit     backend.Hit
	natural string
}

func (rs *ResultSet) fetch(ctx context.Context, start, count int) (map[int]Item, error) {
	d := rs.entry.Descriptor
	log := logger.FromContext(ctx, rs.logger)

	res, err := rs.query.Execute(ctx, start, count)
	metrics.SearchFetchesTotal.WithLabelValues(d.Index).Inc()
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", d.Index, err)
	}
	rs.latest = res

	got := make(map[int]Item, len(res.Hits))
	put := func(it Item) {
		rs.cache.Add(it.Rank, it)
		got[it.Rank] = it
	}

	pending := make([]pendingHit, 0, len(res.Hits))
	keys := make([]string, 0, len(res.Hits))
	for i, h := range res.Hits {
		rank := res.Start + i
		natural, ok := document.NaturalKey(h.ID, d.DocType)
		if !ok {
			if tag, _, perr := document.ParseKey(h.ID); perr != nil {
				log.Warn("skipping garbled search hit id", zap.String("id", h.ID), zap.Int("rank", rank))
			} else {
				log.Warn("skipping search hit of another type",
					zap.String("id", h.ID), zap.String("type", tag), zap.String("want", d.DocType))
			}
			put(Item{Rank: rank, Hit: h})
			continue
		}
		pending = append(pending, pendingHit{rank: rank, hit: h, natural: natural})
		keys = append(keys, natural)
	}
	if len(keys) == 0 {
		return got, nil
	}

	bulk, err := d.Manager.InBulk(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch %s entities: %w", rs.entry.Tag, err)
	}

	matchAttr := d.MatchAttr()
	for _, p := range pending {
		e, ok := bulk[p.natural]
		if !ok || e == nil {
			metrics.SearchMissingTotal.WithLabelValues(d.Index).Inc()
			log.Debug("search hit without entity", zap.String("id", p.hit.ID), zap.Int("rank", p.rank))
			put(Item{Rank: p.rank, Hit: p.hit})
			continue
		}
		if mr, ok := e.(entity.MatchReceiver); ok && matchAttr != "" {
			mr.SetMatch(matchAttr, Match{Rank: p.rank, ID: p.hit.ID, Score: p.hit.Score, Fields: p.hit.Fields})
		}
		put(Item{Rank: p.rank, Hit: p.hit, Entity: e})
	}
	return got, nil
}
