package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/indexsync/internal/config"
	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/entity"
	repoentity "github.com/kailas-cloud/indexsync/internal/repository/entity"
)

func shopConfig(t *testing.T) config.Config {
	t.Helper()
	settings := map[string]any{"default_analyzer": "standard"}
	cfg := config.Config{
		Backend: config.BackendConfig{Driver: config.BackendBleve},
		Source:  config.SourceConfig{Driver: config.SourceMemory},
		Reindex: config.ReindexConfig{LockDir: t.TempDir()},
		Types: []config.TypeConfig{
			{
				Tag: "shop.Book", Table: "books", Key: "id",
				Columns:   map[string]string{"title": "text", "in_print": "bool"},
				Relations: []config.RelationConfig{{Name: "author", Target: "shop.Author", Column: "author_id"}},
				Descriptor: &config.DescriptorConfig{
					Index:         "products",
					IndexSettings: settings,
					Fields: []config.FieldConfig{
						{Sources: []string{"title"}},
						{Sources: []string{"author.name"}, Name: "author"},
					},
					Cascades:    []string{"author"},
					ExcludeWhen: map[string]any{"in_print": false},
				},
			},
			{
				Tag: "shop.Author", Table: "authors", Key: "id",
				Columns:   map[string]string{"name": "text"},
				Relations: []config.RelationConfig{{Name: "books", Target: "shop.Book", Column: "author_id", Reverse: true}},
				Descriptor: &config.DescriptorConfig{
					Index:         "products",
					IndexSettings: settings,
					Fields: []config.FieldConfig{
						{Sources: []string{"name"}, Name: "title"},
						{Sources: []string{"books.title"}, Name: "works"},
					},
					Cascades: []string{"books"},
				},
			},
		},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func shopApp(t *testing.T) (*App, *repoentity.Memory) {
	t.Helper()
	mem := repoentity.NewMemory()
	mem.Put("shop.Author", "1", map[string]any{"name": "Frank Herbert"})
	mem.Put("shop.Author", "2", map[string]any{"name": "Jane Austen"})
	mem.Put("shop.Book", "10", map[string]any{"title": "Dune", "in_print": true, "author_id": 1})
	mem.Put("shop.Book", "11", map[string]any{"title": "Dune Messiah", "in_print": true, "author_id": 1})
	mem.Put("shop.Book", "12", map[string]any{"title": "Emma", "in_print": true, "author_id": 2})
	mem.Put("shop.Book", "13", map[string]any{"title": "Dune Draft", "in_print": false, "author_id": 1})

	a, err := New(context.Background(), shopConfig(t), nil, WithSource(mem))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a, mem
}

func keys(t *testing.T, es []entity.Entity) []string {
	t.Helper()
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Key()
	}
	return out
}

func TestApp_Registers(t *testing.T) {
	a, _ := shopApp(t)
	assert.Equal(t, []string{"products"}, a.Registry.Indexes())
	assert.Equal(t, []string{"shop.Author", "shop.Book"}, a.Registry.Types())
	assert.Equal(t, []string{"shop.Author", "shop.Book"}, a.Catalog.Tags())
}

func TestApp_ProductsScenario(t *testing.T) {
	ctx := context.Background()
	a, mem := shopApp(t)

	report, err := a.Reindex.Reindex(ctx, nil)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "products", report.Outcomes[0].Index)

	rs, err := a.Search.Search("shop.Book", "dune")
	require.NoError(t, err)
	n, err := rs.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "excluded book must not be indexed")
	books, err := rs.Slice(ctx, 0, n)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"10", "11"}, keys(t, books))

	// Renaming the author cascades into the books that embed the name.
	mem.Put("shop.Author", "1", map[string]any{"name": "Franklin Patrick Herbert"})
	author, err := a.Catalog.Get(ctx, "shop.Author", "1")
	require.NoError(t, err)
	require.NoError(t, a.Indexing.OnCreateOrUpdate(ctx, author))

	rs, err = a.Search.SearchField("shop.Book", "author", "franklin")
	require.NoError(t, err)
	books, err = rs.Slice(ctx, 0, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"10", "11"}, keys(t, books))

	authors, err := a.Search.Search("shop.Author", "franklin")
	require.NoError(t, err)
	n, err = authors.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestApp_DeleteHooks(t *testing.T) {
	ctx := context.Background()
	a, mem := shopApp(t)
	_, err := a.Reindex.Reindex(ctx, []string{"products"})
	require.NoError(t, err)

	book, err := a.Catalog.Get(ctx, "shop.Book", "12")
	require.NoError(t, err)
	snapshot := book.(*entity.Record).Snapshot()

	require.NoError(t, a.Indexing.OnPreDelete(ctx, book))
	mem.Remove("shop.Book", "12")
	require.NoError(t, a.Indexing.OnPostDelete(ctx, snapshot))

	rs, err := a.Search.Search("shop.Book", "emma")
	require.NoError(t, err)
	n, err := rs.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Jane Austen no longer lists Emma among her works.
	rs, err = a.Search.SearchField("shop.Author", "works", "emma")
	require.NoError(t, err)
	n, err = rs.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestApp_HealthAndMappings(t *testing.T) {
	ctx := context.Background()
	a, _ := shopApp(t)

	missing, err := a.Reindex.VerifyMappings(ctx)
	require.NoError(t, err)
	assert.Len(t, missing, 2)

	_, err = a.Reindex.Reindex(ctx, nil)
	require.NoError(t, err)
	missing, err = a.Reindex.VerifyMappings(ctx)
	require.NoError(t, err)
	assert.Empty(t, missing)

	report := a.Health.Check(ctx)
	assert.Equal(t, "ok", string(report.Status))
}

func TestApp_UnknownIndex(t *testing.T) {
	a, _ := shopApp(t)
	_, err := a.Reindex.Reindex(context.Background(), []string{"articles"})
	assert.ErrorIs(t, err, domain.ErrUnknownIndex)
}

func TestBuildDescriptor_ExcludeWhen(t *testing.T) {
	tc := shopConfig(t).Types[0]
	d := BuildDescriptor(tc, nil, nil)

	kept := entity.NewRecord("shop.Book", "1").Set("in_print", true)
	dropped := entity.NewRecord("shop.Book", "2").Set("in_print", false)
	unknown := entity.NewRecord("shop.Book", "3")

	assert.True(t, d.Includes(kept))
	assert.False(t, d.Includes(dropped))
	assert.True(t, d.Includes(unknown))
	assert.Len(t, d.Fields, 2)
	assert.Equal(t, "author", d.Fields[1].IndexName())
	assert.Len(t, d.Cascades, 1)
}

func TestBuildDescriptor_NotIndexed(t *testing.T) {
	d := BuildDescriptor(config.TypeConfig{Tag: "shop.Review"}, nil, nil)
	assert.False(t, d.Indexed())
}

func TestTables_SortsColumns(t *testing.T) {
	tables, err := Tables(shopConfig(t).Types)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "in_print", tables[0].Columns[0].Name)
	assert.Equal(t, entity.KindBool, tables[0].Columns[0].Kind)
	assert.Equal(t, "title", tables[0].Columns[1].Name)
}

func TestOpenSource_Unknown(t *testing.T) {
	_, err := OpenSource(context.Background(), config.SourceConfig{Driver: "mongo"})
	assert.Error(t, err)
}
