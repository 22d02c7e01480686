package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/backend/fake"
	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/descriptor"
	"github.com/kailas-cloud/indexsync/internal/domain/document"
	"github.com/kailas-cloud/indexsync/internal/domain/entity"
	"github.com/kailas-cloud/indexsync/internal/registry"
)

// --- Mocks ---

type mapManager struct {
	items   map[string]entity.Entity
	bulk    [][]string
	bulkErr error
}

func (m *mapManager) Each(_ context.Context, fn func(entity.Entity) error) error {
	for _, e := range m.items {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *mapManager) InBulk(_ context.Context, keys []string) (map[string]entity.Entity, error) {
	m.bulk = append(m.bulk, slices.Clone(keys))
	if m.bulkErr != nil {
		return nil, m.bulkErr
	}
	out := make(map[string]entity.Entity)
	for _, k := range keys {
		if e, ok := m.items[k]; ok {
			out[k] = e
		}
	}
	return out, nil
}

func (m *mapManager) Get(_ context.Context, key string) (entity.Entity, error) {
	if e, ok := m.items[key]; ok {
		return e, nil
	}
	return nil, domain.ErrNotFound
}

// recordingSearchers wraps an executor and records every window requested.
type recordingSearchers struct {
	exec  backend.Executor
	specs []backend.QuerySpec
}

func (r *recordingSearchers) SearcherFor(index string) *backend.Query {
	return backend.NewQuery(index, r)
}

func (r *recordingSearchers) Execute(ctx context.Context, spec backend.QuerySpec) (*backend.Results, error) {
	r.specs = append(r.specs, spec)
	return r.exec.Execute(ctx, spec)
}

func (r *recordingSearchers) windows() [][2]int {
	out := make([][2]int, len(r.specs))
	for i, s := range r.specs {
		out[i] = [2]int{s.Start, s.Count}
	}
	return out
}

type stubExecutor struct {
	ids []string
}

func (s stubExecutor) Execute(_ context.Context, spec backend.QuerySpec) (*backend.Results, error) {
	res := &backend.Results{Total: len(s.ids), Start: spec.Start}
	for i := spec.Start; i < min(spec.Start+spec.Count, len(s.ids)); i++ {
		res.Hits = append(res.Hits, backend.Hit{ID: s.ids[i], Score: float64(100 - i)})
	}
	return res, nil
}

// --- Fixtures ---

type fixture struct {
	manager   *mapManager
	searchers *recordingSearchers
	svc       *Service
	reg       *registry.Registry
}

// newFixture seeds n books, "shop.Book.0" … "shop.Book.<n-1>", all titled "dune".
func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	client := fake.New()
	f := &fixture{
		manager:   &mapManager{items: make(map[string]entity.Entity)},
		searchers: &recordingSearchers{exec: client},
	}

	docs := make([]*document.Document, 0, n+1)
	for i := range n {
		key := fmt.Sprint(i)
		f.manager.items[key] = entity.NewRecord("shop.Book", key).Set("title", "dune")
		d := document.New("shop.Book", key)
		d.Fields["title"] = []string{"dune"}
		docs = append(docs, d)
	}
	author := document.New("shop.Author", "7")
	author.Fields["name"] = []string{"dune fan"}
	docs = append(docs, author)
	client.Seed("products", docs...)

	f.reg = registry.New(client, nil)
	if err := f.reg.Register("shop.Book", &descriptor.Descriptor{
		Index:   "products",
		Fields:  []descriptor.FieldSpec{descriptor.Field(descriptor.Attr("title"))},
		Manager: f.manager,
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	f.svc = New(f.reg, f.searchers, nil)
	return f
}

func (f *fixture) results(t *testing.T) *ResultSet {
	t.Helper()
	rs, err := f.svc.Search("shop.Book", "dune")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	return rs
}

func keys(es []entity.Entity) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Key()
	}
	return out
}

// --- Tests ---

func TestGet_FetchesOnePage(t *testing.T) {
	f := newFixture(t, 25)
	rs := f.results(t)
	ctx := context.Background()

	e, err := rs.Get(ctx, 0)
	if err != nil {
		t.Fatalf("Get(0): %v", err)
	}
	if e.Key() != "0" {
		t.Errorf("rank 0 = %s", e.Key())
	}
	if _, err := rs.Get(ctx, 9); err != nil {
		t.Fatalf("Get(9): %v", err)
	}
	if len(f.searchers.specs) != 1 {
		t.Fatalf("expected one backend call, got %v", f.searchers.windows())
	}

	if _, err := rs.Get(ctx, 12); err != nil {
		t.Fatalf("Get(12): %v", err)
	}
	want := [][2]int{{0, 10}, {12, 10}}
	if got := f.searchers.windows(); !slices.Equal(got, want) {
		t.Errorf("windows = %v, want %v", got, want)
	}
	if len(f.manager.bulk) != 2 {
		t.Errorf("bulk fetches = %d", len(f.manager.bulk))
	}
}

func TestSlice_NarrowsToUncachedSpan(t *testing.T) {
	f := newFixture(t, 40)
	rs := f.results(t)
	ctx := context.Background()

	if _, err := rs.Slice(ctx, 5, 15); err != nil {
		t.Fatalf("Slice: %v", err)
	}
	got, err := rs.Slice(ctx, 0, 30)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if len(got) != 30 {
		t.Fatalf("len = %d", len(got))
	}

	// [5,15) is interior to [0,30), so neither edge narrows.
	want := [][2]int{{5, 10}, {0, 30}}
	if w := f.searchers.windows(); !slices.Equal(w, want) {
		t.Errorf("windows = %v, want %v", w, want)
	}

	// Fully cached: no call.
	if _, err := rs.Slice(ctx, 2, 28); err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if len(f.searchers.specs) != 2 {
		t.Errorf("unexpected fetch: %v", f.searchers.windows())
	}
}

func TestSlice_NarrowsBothEdges(t *testing.T) {
	f := newFixture(t, 60)
	rs := f.results(t)
	ctx := context.Background()

	_, _ = rs.Slice(ctx, 0, 10)
	_, _ = rs.Slice(ctx, 40, 50)
	if _, err := rs.Slice(ctx, 0, 50); err != nil {
		t.Fatalf("Slice: %v", err)
	}

	want := [][2]int{{0, 10}, {40, 10}, {10, 30}}
	if w := f.searchers.windows(); !slices.Equal(w, want) {
		t.Errorf("windows = %v, want %v", w, want)
	}
}

func TestSlice_Truncated(t *testing.T) {
	f := newFixture(t, 4)
	rs := f.results(t)

	got, err := rs.Slice(context.Background(), 2, 100)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if !slices.Equal(keys(got), []string{"2", "3"}) {
		t.Errorf("slice = %v", keys(got))
	}
	empty, err := rs.Slice(context.Background(), 50, 60)
	if err != nil || len(empty) != 0 {
		t.Errorf("beyond end = %v, %v", empty, err)
	}
}

func TestGet_OutOfRange(t *testing.T) {
	f := newFixture(t, 3)
	rs := f.results(t)
	ctx := context.Background()

	if _, err := rs.Get(ctx, 3); !errors.Is(err, domain.ErrOutOfRange) {
		t.Errorf("Get(3) = %v", err)
	}
	if _, err := rs.Get(ctx, -1); !errors.Is(err, domain.ErrOutOfRange) {
		t.Errorf("Get(-1) = %v", err)
	}
}

func TestHoles(t *testing.T) {
	f := newFixture(t, 5)
	delete(f.manager.items, "1")
	rs := f.results(t)
	ctx := context.Background()

	if _, err := rs.Get(ctx, 1); !errors.Is(err, domain.ErrEntityMissing) {
		t.Fatalf("Get(1) = %v", err)
	}
	// Later ranks keep their position.
	e, err := rs.Get(ctx, 2)
	if err != nil || e.Key() != "2" {
		t.Fatalf("Get(2) = %v, %v", e, err)
	}

	got, _ := rs.Slice(ctx, 0, 5)
	if !slices.Equal(keys(got), []string{"0", "2", "3", "4"}) {
		t.Errorf("slice = %v", keys(got))
	}

	items, _ := rs.Window(ctx, 0, 5)
	if len(items) != 5 || !items[1].Hole() || items[1].Hit.ID != "shop.Book.1" {
		t.Errorf("window = %+v", items)
	}
}

func TestNextAndReset(t *testing.T) {
	f := newFixture(t, 13)
	delete(f.manager.items, "4")
	rs := f.results(t)
	ctx := context.Background()

	var seen []string
	for {
		e, ok, err := rs.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		seen = append(seen, e.Key())
	}
	if len(seen) != 12 || slices.Contains(seen, "4") {
		t.Errorf("seen = %v", seen)
	}
	if len(f.searchers.specs) != 2 {
		t.Errorf("windows = %v", f.searchers.windows())
	}

	rs.Reset()
	e, ok, err := rs.Next(ctx)
	if err != nil || !ok || e.Key() != "0" {
		t.Errorf("after reset = %v, %v, %v", e, ok, err)
	}
}

func TestAll(t *testing.T) {
	f := newFixture(t, 15)
	rs := f.results(t)

	var seen []string
	for e, err := range rs.All(context.Background()) {
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		seen = append(seen, e.Key())
		if len(seen) == 11 {
			break
		}
	}
	if len(seen) != 11 || seen[10] != "10" {
		t.Errorf("seen = %v", seen)
	}
	if len(f.searchers.specs) != 2 {
		t.Errorf("windows = %v", f.searchers.windows())
	}
}

func TestMatchMetadata(t *testing.T) {
	f := newFixture(t, 2)
	rs := f.results(t)

	e, err := rs.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	m, ok := e.(*entity.Record).Match(descriptor.DefaultMatchAttribute)
	if !ok {
		t.Fatal("match metadata not set")
	}
	match := m.(Match)
	if match.Rank != 1 || match.ID != "shop.Book.1" || match.Fields["title"] == nil {
		t.Errorf("match = %+v", match)
	}
}

func TestMatchMetadata_Disabled(t *testing.T) {
	f := newFixture(t, 1)
	entry, _ := f.reg.Lookup("shop.Book")
	entry.Descriptor.DisableMatch = true
	rs := f.results(t)

	e, _ := rs.Get(context.Background(), 0)
	if _, ok := e.(*entity.Record).Match(descriptor.DefaultMatchAttribute); ok {
		t.Error("match set although disabled")
	}
}

func TestGarbledAndForeignIDsSkipped(t *testing.T) {
	f := newFixture(t, 3)
	f.searchers.exec = stubExecutor{ids: []string{"shop.Book.0", "garbage", "shop.Author.7", "shop.Book.2"}}
	rs := f.results(t)
	ctx := context.Background()

	got, err := rs.Slice(ctx, 0, 4)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if !slices.Equal(keys(got), []string{"0", "2"}) {
		t.Errorf("slice = %v", keys(got))
	}
	if len(f.manager.bulk) != 1 || !slices.Equal(f.manager.bulk[0], []string{"0", "2"}) {
		t.Errorf("bulk = %v", f.manager.bulk)
	}
	m, _ := got[0].(*entity.Record).Match("match")
	if m.(Match).Score != 100 {
		t.Errorf("score = %v", m.(Match).Score)
	}
}

func TestLenAndAttr(t *testing.T) {
	f := newFixture(t, 12)
	rs := f.results(t)
	ctx := context.Background()

	n, err := rs.Len(ctx)
	if err != nil || n != 12 {
		t.Fatalf("Len = %d, %v", n, err)
	}
	more, ok, err := rs.Attr(ctx, "more_matches")
	if err != nil || !ok || more != true {
		t.Errorf("more_matches = %v, %v, %v", more, ok, err)
	}
	if len(f.searchers.specs) != 1 {
		t.Errorf("windows = %v", f.searchers.windows())
	}
}

func TestEmptyIndex(t *testing.T) {
	f := newFixture(t, 0)
	f.searchers.exec = fake.New()
	rs := f.results(t)
	ctx := context.Background()

	if n, err := rs.Len(ctx); err != nil || n != 0 {
		t.Errorf("Len = %d, %v", n, err)
	}
	if _, ok, err := rs.Next(ctx); ok || err != nil {
		t.Errorf("Next = %v, %v", ok, err)
	}
}

func TestBulkFetchError(t *testing.T) {
	f := newFixture(t, 3)
	f.manager.bulkErr = errors.New("db down")
	rs := f.results(t)
	if _, err := rs.Get(context.Background(), 0); err == nil {
		t.Fatal("expected error")
	}
}
