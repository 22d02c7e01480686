package reindex

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/indexsync/internal/backend/fake"
	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/descriptor"
	"github.com/kailas-cloud/indexsync/internal/domain/entity"
	"github.com/kailas-cloud/indexsync/internal/registry"
	"github.com/kailas-cloud/indexsync/internal/usecase/indexing"
)

// --- Mocks ---

type sliceManager struct {
	items []entity.Entity
}

func (m *sliceManager) Each(_ context.Context, fn func(entity.Entity) error) error {
	for _, e := range m.items {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *sliceManager) InBulk(context.Context, []string) (map[string]entity.Entity, error) {
	return nil, nil
}

func (m *sliceManager) Get(context.Context, string) (entity.Entity, error) {
	return nil, domain.ErrNotFound
}

// hookManager calls onEach before yielding each entity, the way a save hook
// fires while a rebuild is still iterating.
type hookManager struct {
	sliceManager
	onEach func(ctx context.Context) error
}

func (m *hookManager) Each(ctx context.Context, fn func(entity.Entity) error) error {
	for _, e := range m.items {
		if m.onEach != nil {
			if err := m.onEach(ctx); err != nil {
				return err
			}
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

type mockLocker struct {
	err      error
	locked   []string
	released int
}

func (m *mockLocker) TryLock(index string) (func(), error) {
	if m.err != nil {
		return nil, m.err
	}
	m.locked = append(m.locked, index)
	return func() { m.released++ }, nil
}

// --- Fixtures ---

var epoch = time.Unix(0x65000000, 0)

type fixture struct {
	client *fake.Client
	reg    *registry.Registry
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{client: fake.New()}
	f.reg = registry.New(f.client, nil)

	author := entity.NewRecord("shop.Author", "7").Set("name", "Ursula")
	books := []entity.Entity{
		entity.NewRecord("shop.Book", "1").Set("title", "The Dispossessed").
			Set("published_at", time.Date(2024, 3, 1, 18, 30, 0, 0, time.UTC)),
		entity.NewRecord("shop.Book", "2").Set("title", "Lathe of Heaven").
			Set("published_at", time.Date(1971, 10, 1, 0, 0, 0, 0, time.UTC)),
	}
	register(t, f.reg, "shop.Book", &descriptor.Descriptor{
		Index:         "products",
		IndexSettings: map[string]any{"language": "english"},
		Fields:        []descriptor.FieldSpec{
			descriptor.Field(descriptor.Attr("title")),
			descriptor.Field(descriptor.Attr("published_at")).Named("date"),
		},
		Manager: &sliceManager{items: books},
	})
	register(t, f.reg, "shop.Author", &descriptor.Descriptor{
		Index:   "products",
		Fields:  []descriptor.FieldSpec{descriptor.Field(descriptor.Attr("name")).WithConfig(map[string]any{"weight": 2})},
		Manager: &sliceManager{items: []entity.Entity{author}},
	})
	register(t, f.reg, "blog.Post", &descriptor.Descriptor{
		Index:   "articles",
		Fields:  []descriptor.FieldSpec{descriptor.Field(descriptor.Attr("title"))},
		Manager: &sliceManager{items: []entity.Entity{entity.NewRecord("blog.Post", "a").Set("title", "Hello")}},
	})

	f.svc = New(f.reg, f.client, indexing.New(f.reg, nil), nil).
		WithClock(func() time.Time { return epoch })
	return f
}

func register(t *testing.T, r *registry.Registry, tag string, d *descriptor.Descriptor) {
	t.Helper()
	if err := r.Register(tag, d); err != nil {
		t.Fatalf("Register %s: %v", tag, err)
	}
}

func (f *fixture) calls(prefix string) []string {
	var out []string
	for _, c := range f.client.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// --- Tests ---

func TestReindex_FirstBuild(t *testing.T) {
	f := newFixture(t)

	report, err := f.svc.Reindex(context.Background(), []string{"products"})
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if len(report.Outcomes) != 1 {
		t.Fatalf("outcomes = %+v", report.Outcomes)
	}
	out := report.Outcomes[0]
	if out.Generation != "products_65000000" || out.Documents != 3 || !out.OK() {
		t.Errorf("outcome = %+v", out)
	}

	if got := f.calls("create"); !slices.Equal(got, []string{"create products_65000000"}) {
		t.Errorf("creates = %v", got)
	}
	wantMappings := []string{
		"mapping products_65000000 shop.Book",
		"mapping products_65000000 shop.Author",
	}
	if got := f.calls("mapping"); !slices.Equal(got, wantMappings) {
		t.Errorf("mappings = %v", got)
	}
	if target, _ := f.client.AliasTarget("products"); target != "products_65000000" {
		t.Errorf("alias target = %q", target)
	}

	idx, _ := f.client.Physical("products_65000000")
	if len(idx.Docs) != 3 {
		t.Errorf("docs = %d", len(idx.Docs))
	}
	if got := idx.Docs["shop.Book.1"].Fields["date"]; !slices.Equal(got, []string{"2024-03-01"}) {
		t.Errorf("book date = %v", got)
	}
	if idx.Settings["language"] != "english" {
		t.Errorf("settings = %v", idx.Settings)
	}
	if got := idx.Mappings["shop.Author"]["name"]["weight"]; got != 2 {
		t.Errorf("author mapping weight = %v", got)
	}

	for _, e := range f.reg.Entries("products") {
		if e.Indexer.Target() != "products" {
			t.Errorf("%s handle left on %q", e.Tag, e.Indexer.Target())
		}
	}
	if len(f.calls("delete_index")) != 0 {
		t.Errorf("unexpected deletes: %v", f.calls("delete_index"))
	}
}

func TestReindex_RetiresPreviousGeneration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Reindex(ctx, []string{"products"}); err != nil {
		t.Fatalf("first Reindex: %v", err)
	}
	report, err := f.svc.Reindex(ctx, []string{"products"})
	if err != nil {
		t.Fatalf("second Reindex: %v", err)
	}

	out := report.Outcomes[0]
	// Same clock reading: the suffix is bumped so generations never collide.
	if out.Generation != "products_65000001" {
		t.Errorf("generation = %q", out.Generation)
	}
	if !slices.Equal(out.Retired, []string{"products_65000000"}) {
		t.Errorf("retired = %v", out.Retired)
	}
	if _, ok := f.client.Physical("products_65000000"); ok {
		t.Error("previous generation still exists")
	}
	if target, _ := f.client.AliasTarget("products"); target != "products_65000001" {
		t.Errorf("alias target = %q", target)
	}
}

func TestReindex_PhysicalIndexOnAliasName(t *testing.T) {
	f := newFixture(t)
	f.client.Seed("products")

	if _, err := f.svc.Reindex(context.Background(), []string{"products"}); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	calls := f.client.Calls()
	del := slices.Index(calls, "delete_index products")
	set := slices.Index(calls, "set_alias products -> products_65000000")
	if del < 0 || set < 0 || del > set {
		t.Errorf("expected physical delete before alias set, calls = %v", calls)
	}
	if target, _ := f.client.AliasTarget("products"); target != "products_65000000" {
		t.Errorf("alias target = %q", target)
	}
}

func TestReindex_BuildFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Reindex(ctx, []string{"products"}); err != nil {
		t.Fatalf("first Reindex: %v", err)
	}

	f.client.FailOn("add:shop.Author", fake.ErrFlush)
	report, err := f.svc.Reindex(ctx, []string{"products"})
	if !errors.Is(err, fake.ErrFlush) {
		t.Fatalf("expected build error, got %v", err)
	}
	if !slices.Equal(report.Failed(), []string{"products"}) {
		t.Errorf("failed = %v", report.Failed())
	}

	if _, ok := f.client.Physical("products_65000001"); ok {
		t.Error("failed generation not deleted")
	}
	if target, _ := f.client.AliasTarget("products"); target != "products_65000000" {
		t.Errorf("alias moved to %q", target)
	}
	for _, e := range f.reg.Entries("products") {
		if e.Indexer.Target() != "products" {
			t.Errorf("%s handle left on %q", e.Tag, e.Indexer.Target())
		}
	}
}

func TestReindex_RollbackErrorSwallowed(t *testing.T) {
	f := newFixture(t)
	f.client.FailOn("mapping:shop.Author", fake.ErrFlush)
	cleanupErr := errors.New("drop failed")
	f.client.FailOn("delete_index", cleanupErr)

	_, err := f.svc.Reindex(context.Background(), []string{"products"})
	if !errors.Is(err, fake.ErrFlush) {
		t.Fatalf("expected original error, got %v", err)
	}
	if errors.Is(err, cleanupErr) {
		t.Error("cleanup error must not replace the original")
	}
	if got := f.calls("delete_index"); !slices.Equal(got, []string{"delete_index products_65000000"}) {
		t.Errorf("cleanup attempts = %v", got)
	}
}

func TestReindex_SetAliasFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.client.FailOn("set_alias", fake.ErrFlush)

	_, err := f.svc.Reindex(context.Background(), []string{"products"})
	if !errors.Is(err, fake.ErrFlush) {
		t.Fatalf("expected alias error, got %v", err)
	}
	if _, ok := f.client.Physical("products_65000000"); ok {
		t.Error("generation not deleted")
	}
}

func TestReindex_UnknownIndexBeforeBackend(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Reindex(context.Background(), []string{"products", "nope"})
	if !errors.Is(err, domain.ErrUnknownIndex) {
		t.Fatalf("expected ErrUnknownIndex, got %v", err)
	}
	var uie *domain.UnknownIndexError
	if !errors.As(err, &uie) || !slices.Equal(uie.Names, []string{"nope"}) {
		t.Errorf("unknown names = %+v", uie)
	}
	if len(f.client.Calls()) != 0 {
		t.Errorf("backend touched: %v", f.client.Calls())
	}
}

func TestReindex_SettingsConflictBeforeBackend(t *testing.T) {
	f := newFixture(t)
	entry, _ := f.reg.Lookup("shop.Author")
	entry.Descriptor.IndexSettings = map[string]any{"language": "french"}

	report, err := f.svc.Reindex(context.Background(), []string{"products"})
	if !errors.Is(err, domain.ErrSettingsConflict) {
		t.Fatalf("expected ErrSettingsConflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "language") {
		t.Errorf("error lacks path: %v", err)
	}
	if len(report.Outcomes) != 1 {
		t.Errorf("outcomes = %+v", report.Outcomes)
	}
	if len(f.client.Calls()) != 0 {
		t.Errorf("backend touched: %v", f.client.Calls())
	}
}

func TestReindex_AllIndexesIndependent(t *testing.T) {
	f := newFixture(t)
	f.client.FailOn("add:shop.Book", fake.ErrFlush)

	report, err := f.svc.Reindex(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error")
	}

	var names []string
	for _, o := range report.Outcomes {
		names = append(names, o.Index)
	}
	if !slices.Equal(names, []string{"articles", "products"}) {
		t.Errorf("outcomes order = %v", names)
	}
	if !report.Outcomes[0].OK() || report.Outcomes[1].OK() {
		t.Errorf("outcomes = %+v", report.Outcomes)
	}
	if target, ok := f.client.AliasTarget("articles"); !ok || !strings.HasPrefix(target, "articles_") {
		t.Errorf("articles alias = %q", target)
	}
}

func TestReindex_Locked(t *testing.T) {
	f := newFixture(t)
	f.svc.WithLocker(&mockLocker{err: domain.ErrReindexInProgress})

	_, err := f.svc.Reindex(context.Background(), []string{"products"})
	if !errors.Is(err, domain.ErrReindexInProgress) {
		t.Fatalf("expected ErrReindexInProgress, got %v", err)
	}
	if len(f.client.Calls()) != 0 {
		t.Errorf("backend touched: %v", f.client.Calls())
	}
}

func TestReindex_LockReleased(t *testing.T) {
	f := newFixture(t)
	l := &mockLocker{}
	f.svc.WithLocker(l)

	if _, err := f.svc.Reindex(context.Background(), []string{"products", "articles"}); err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if !slices.Equal(l.locked, []string{"products", "articles"}) || l.released != 2 {
		t.Errorf("locked = %v released = %d", l.locked, l.released)
	}
}

func TestNextSuffix_Monotonic(t *testing.T) {
	f := newFixture(t)
	now := epoch
	f.svc.WithClock(func() time.Time { return now })

	a := f.svc.nextSuffix()
	now = epoch.Add(-time.Hour)
	b := f.svc.nextSuffix()
	now = epoch.Add(time.Hour)
	c := f.svc.nextSuffix()

	if a != "_65000000" || b != "_65000001" || c != "_65000e10" {
		t.Errorf("suffixes = %s %s %s", a, b, c)
	}
}

func TestReindex_LiveWritesStayOnAlias(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Reindex(ctx, []string{"products"}); err != nil {
		t.Fatalf("first Reindex: %v", err)
	}

	hooks := indexing.New(f.reg, nil)
	saved := entity.NewRecord("shop.Book", "9").Set("title", "Always Coming Home")
	register(t, f.reg, "shop.Review", &descriptor.Descriptor{
		Index:  "products",
		Fields: []descriptor.FieldSpec{descriptor.Field(descriptor.Attr("body"))},
		Manager: &hookManager{
			sliceManager: sliceManager{items: []entity.Entity{entity.NewRecord("shop.Review", "r1").Set("body", "great")}},
			onEach: func(ctx context.Context) error {
				return hooks.OnCreateOrUpdate(ctx, saved)
			},
		},
	})
	f.client.FailOn("add:shop.Review", fake.ErrFlush)

	if _, err := f.svc.Reindex(ctx, []string{"products"}); !errors.Is(err, fake.ErrFlush) {
		t.Fatalf("expected build error, got %v", err)
	}

	calls := f.client.Calls()
	if !slices.Contains(calls, "add products shop.Book.9") {
		t.Errorf("hook write did not address the alias: %v", calls)
	}
	if slices.Contains(calls, "add products_65000001 shop.Book.9") {
		t.Error("hook write reached the generation under construction")
	}
	live, ok := f.client.Physical("products_65000000")
	if !ok {
		t.Fatal("live generation missing")
	}
	if _, ok := live.Docs["shop.Book.9"]; !ok {
		t.Error("hook write lost from the live generation")
	}
	if target, _ := f.client.AliasTarget("products"); target != "products_65000000" {
		t.Errorf("alias moved to %q", target)
	}
}

func TestReindex_ExistingGenerationNameSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A generation from an earlier process carries the name this clock reading produces.
	f.client.Seed("products_65000000")
	if err := f.client.SetAlias(ctx, "products", "products_65000000"); err != nil {
		t.Fatalf("SetAlias: %v", err)
	}
	f.client.FailOn("add:shop.Book", fake.ErrFlush)

	report, err := f.svc.Reindex(ctx, []string{"products"})
	if !errors.Is(err, fake.ErrFlush) {
		t.Fatalf("expected build error, got %v", err)
	}
	if got := report.Outcomes[0].Generation; got != "products_65000001" {
		t.Errorf("generation = %q", got)
	}
	if slices.Contains(f.calls("delete_index"), "delete_index products_65000000") {
		t.Error("rollback deleted the live generation")
	}
	if _, ok := f.client.Physical("products_65000000"); !ok {
		t.Error("live generation missing")
	}
	if target, _ := f.client.AliasTarget("products"); target != "products_65000000" {
		t.Errorf("alias target = %q", target)
	}
}

func TestReindex_CreateFailureKeepsExistingIndex(t *testing.T) {
	f := newFixture(t)
	f.client.FailOn("create", errors.New("already exists"))

	if _, err := f.svc.Reindex(context.Background(), []string{"products"}); err == nil {
		t.Fatal("expected create error")
	}
	if got := f.calls("delete_index"); len(got) != 0 {
		t.Errorf("rollback of an index this run never created: %v", got)
	}
}

func TestReindex_ConcurrentRebuildRejected(t *testing.T) {
	f := newFixture(t)
	var nested error
	register(t, f.reg, "shop.Review", &descriptor.Descriptor{
		Index:  "products",
		Fields: []descriptor.FieldSpec{descriptor.Field(descriptor.Attr("body"))},
		Manager: &hookManager{
			sliceManager: sliceManager{items: []entity.Entity{entity.NewRecord("shop.Review", "r1").Set("body", "ok")}},
			onEach: func(ctx context.Context) error {
				_, nested = f.svc.Reindex(ctx, []string{"products"})
				return nil
			},
		},
	})

	if _, err := f.svc.Reindex(context.Background(), []string{"products"}); err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if !errors.Is(nested, domain.ErrReindexInProgress) {
		t.Errorf("expected ErrReindexInProgress, got %v", nested)
	}
}
