package redisearch

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"testing"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/db"
	"github.com/kailas-cloud/indexsync/internal/domain/document"
)

// --- Mocks ---

// memStore emulates the FT.* and hash commands the backend issues.
type memStore struct {
	hashes  map[string]map[string]string
	indexes map[string]*db.IndexDefinition
	aliases map[string]string

	searches []*db.TextQuery
	result   *db.SearchResult
	closed   bool
}

func newMemStore() *memStore {
	return &memStore{
		hashes:  make(map[string]map[string]string),
		indexes: make(map[string]*db.IndexDefinition),
		aliases: make(map[string]string),
	}
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close()                     { m.closed = true }

func (m *memStore) HSet(_ context.Context, key string, fields map[string]string) error {
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	maps.Copy(h, fields)
	return nil
}

func (m *memStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	for _, it := range items {
		_ = m.HSet(ctx, it.Key, it.Fields)
	}
	return nil
}

func (m *memStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	h, ok := m.hashes[key]
	if !ok || len(h) == 0 {
		return nil, &db.Error{Op: db.OpHGetAll, Err: db.ErrKeyNotFound}
	}
	return maps.Clone(h), nil
}

func (m *memStore) HDel(_ context.Context, key string, fields ...string) error {
	for _, f := range fields {
		delete(m.hashes[key], f)
	}
	return nil
}

func (m *memStore) Del(_ context.Context, key string) error {
	delete(m.hashes, key)
	return nil
}

func (m *memStore) DelMulti(_ context.Context, keys []string) error {
	for _, k := range keys {
		delete(m.hashes, k)
	}
	return nil
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.hashes[key]
	return ok, nil
}

func (m *memStore) Scan(context.Context, string) ([]string, error) { return nil, nil }

func (m *memStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if _, ok := m.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}
	cp := *def
	cp.Fields = slices.Clone(def.Fields)
	m.indexes[def.Name] = &cp
	return nil
}

func (m *memStore) AlterIndex(_ context.Context, name string, field db.IndexField) error {
	def, ok := m.indexes[name]
	if !ok {
		return db.ErrIndexNotFound
	}
	for _, f := range def.Fields {
		if f.Name == field.Name {
			return db.ErrFieldExists
		}
	}
	def.Fields = append(def.Fields, field)
	return nil
}

func (m *memStore) DropIndex(_ context.Context, name string, deleteDocs bool) error {
	def, ok := m.indexes[name]
	if !ok {
		return db.ErrIndexNotFound
	}
	if deleteDocs {
		for key := range m.hashes {
			for _, p := range def.Prefixes {
				if strings.HasPrefix(key, p) {
					delete(m.hashes, key)
				}
			}
		}
	}
	delete(m.indexes, name)
	for a, t := range m.aliases {
		if t == name {
			delete(m.aliases, a)
		}
	}
	return nil
}

func (m *memStore) IndexExists(_ context.Context, name string) (bool, error) {
	_, ok := m.indexes[name]
	return ok, nil
}

func (m *memStore) IndexInfo(_ context.Context, name string) (*db.IndexInfo, error) {
	if t, ok := m.aliases[name]; ok {
		name = t
	}
	def, ok := m.indexes[name]
	if !ok {
		return nil, db.ErrIndexNotFound
	}
	var n int64
	for key := range m.hashes {
		if strings.HasPrefix(key, def.Prefixes[0]) {
			n++
		}
	}
	return &db.IndexInfo{Name: name, NumDocs: n}, nil
}

func (m *memStore) ListIndexes(context.Context) ([]string, error) {
	return slices.Sorted(maps.Keys(m.indexes)), nil
}

func (m *memStore) AliasUpdate(_ context.Context, alias, index string) error {
	if _, ok := m.indexes[index]; !ok {
		return db.ErrIndexNotFound
	}
	if _, ok := m.indexes[alias]; ok {
		return errors.New("alias collides with an index")
	}
	m.aliases[alias] = index
	return nil
}

func (m *memStore) AliasDel(_ context.Context, alias string) error {
	if _, ok := m.aliases[alias]; !ok {
		return db.ErrAliasNotFound
	}
	delete(m.aliases, alias)
	return nil
}

func (m *memStore) Search(_ context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	m.searches = append(m.searches, q)
	_, isIndex := m.indexes[q.IndexName]
	_, isAlias := m.aliases[q.IndexName]
	if !isIndex && !isAlias {
		return nil, db.ErrIndexNotFound
	}
	if m.result == nil {
		return &db.SearchResult{}, nil
	}
	return m.result, nil
}

func bookDoc(id, title string, tags ...string) *document.Document {
	d := document.New("shop.Book", id)
	d.Fields["title"] = []string{title}
	if len(tags) > 0 {
		d.Fields["tags"] = tags
	}
	return d
}

func mustFlush(t *testing.T, ix backend.Indexer) {
	t.Helper()
	if err := ix.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

// --- Tests ---

func TestCreatePhysicalIndex_Settings(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	c := New(s, "dev:", nil)

	ix := c.IndexerFor("products")
	ix.SetGenerationSuffix("_1")
	err := ix.CreatePhysicalIndex(ctx, map[string]any{
		"language":  "german",
		"stopwords": []any{},
	})
	if err != nil {
		t.Fatalf("CreatePhysicalIndex: %v", err)
	}

	def, ok := s.indexes["dev:products_1"]
	if !ok {
		t.Fatalf("indexes = %v", slices.Collect(maps.Keys(s.indexes)))
	}
	if def.Language != "german" {
		t.Errorf("language = %q", def.Language)
	}
	if def.Stopwords == nil || len(def.Stopwords) != 0 {
		t.Errorf("stopwords = %#v, want disabled", def.Stopwords)
	}
	if !slices.Equal(def.Prefixes, []string{"dev:products_1:"}) {
		t.Errorf("prefixes = %v", def.Prefixes)
	}
	if def.Fields[0].Name != typeField || def.Fields[0].Type != db.IndexFieldTag {
		t.Errorf("fields = %+v", def.Fields)
	}

	if err := ix.CreatePhysicalIndex(ctx, nil); !errors.Is(err, db.ErrIndexExists) {
		t.Errorf("second create: expected ErrIndexExists, got %v", err)
	}
}

func TestCreatePhysicalIndex_BadSettings(t *testing.T) {
	c := New(newMemStore(), "", nil)
	err := c.IndexerFor("products").CreatePhysicalIndex(context.Background(), map[string]any{"language": 7})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestApplyMapping(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	c := New(s, "", nil)
	ix := c.IndexerFor("products")
	ix.SetGenerationSuffix("_1")
	_ = ix.CreatePhysicalIndex(ctx, nil)

	fields := backend.FieldConfigs{
		"title": {"type": "text", "weight": 2.0, "sortable": true},
		"tags":  {"type": "tag"},
		"price": {"type": "numeric"},
	}
	if err := ix.ApplyMapping(ctx, "shop.Book", fields); err != nil {
		t.Fatalf("ApplyMapping: %v", err)
	}
	// a second type sharing field names must not fail
	if err := ix.ApplyMapping(ctx, "shop.Author", backend.FieldConfigs{"title": {}}); err != nil {
		t.Fatalf("ApplyMapping shared field: %v", err)
	}

	def := s.indexes["products_1"]
	var names []string
	for _, f := range def.Fields {
		names = append(names, f.Name)
	}
	if !slices.Equal(names, []string{"__type", "price", "tags", "title"}) {
		t.Errorf("schema = %v", names)
	}
	title := def.Fields[3]
	if title.Weight != 2 || !title.Sortable {
		t.Errorf("title = %+v", title)
	}
	if def.Fields[2].TagSeparator != tagSeparator {
		t.Errorf("tags separator = %q", def.Fields[2].TagSeparator)
	}

	got, err := ix.GetMapping(ctx, "shop.Book")
	if err != nil {
		t.Fatalf("GetMapping: %v", err)
	}
	if got["title"]["weight"] != 2.0 || got["tags"]["type"] != "tag" {
		t.Errorf("mapping = %v", got)
	}
	if m, _ := ix.GetMapping(ctx, "shop.Review"); m != nil {
		t.Errorf("unknown type mapping = %v", m)
	}
}

func TestApplyMapping_UnknownType(t *testing.T) {
	ctx := context.Background()
	c := New(newMemStore(), "", nil)
	ix := c.IndexerFor("products")
	_ = ix.CreatePhysicalIndex(ctx, nil)

	err := ix.ApplyMapping(ctx, "shop.Book", backend.FieldConfigs{"title": {"type": "vector"}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestApplyMapping_MissingIndex(t *testing.T) {
	c := New(newMemStore(), "", nil)
	if err := c.IndexerFor("products").ApplyMapping(context.Background(), "shop.Book", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestGetMapping_NoIndex(t *testing.T) {
	c := New(newMemStore(), "", nil)
	m, err := c.IndexerFor("products").GetMapping(context.Background(), "shop.Book")
	if err != nil || m != nil {
		t.Errorf("GetMapping = %v, %v", m, err)
	}
}

func TestFlush_WritesHashes(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	c := New(s, "", nil)
	ix := c.IndexerFor("products")
	_ = ix.CreatePhysicalIndex(ctx, nil)
	_ = ix.ApplyMapping(ctx, "shop.Book", backend.FieldConfigs{
		"title": {},
		"tags":  {"type": "tag"},
	})

	_ = ix.Add(ctx, bookDoc("1", "Dune", "scifi", "classic"))
	if len(s.hashes) != 1 { // only the stored mapping
		t.Fatalf("write visible before flush: %v", slices.Collect(maps.Keys(s.hashes)))
	}
	mustFlush(t, ix)

	h := s.hashes["products:shop.Book.1"]
	if h == nil {
		t.Fatalf("hashes = %v", slices.Collect(maps.Keys(s.hashes)))
	}
	if h[typeField] != "shop.Book" || h[keyField] != "shop.Book.1" {
		t.Errorf("reserved fields = %v", h)
	}
	if h["title"] != "Dune" || h["tags"] != "scifi|classic" {
		t.Errorf("fields = %v", h)
	}
	if !strings.Contains(h[docField], `"tags":["scifi","classic"]`) {
		t.Errorf("payload = %s", h[docField])
	}
}

func TestFlush_ReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	c := New(s, "", nil)
	ix := c.IndexerFor("products")
	_ = ix.CreatePhysicalIndex(ctx, nil)

	_ = ix.Add(ctx, bookDoc("1", "Dune", "scifi"))
	mustFlush(t, ix)

	_ = ix.Add(ctx, bookDoc("1", "Dune Messiah"))
	mustFlush(t, ix)
	h := s.hashes["products:shop.Book.1"]
	if h["title"] != "Dune Messiah" {
		t.Errorf("title = %q", h["title"])
	}
	if _, stale := h["tags"]; stale {
		t.Error("replaced document kept a dropped field")
	}

	_ = ix.Delete(ctx, "shop.Book", "1")
	_ = ix.Delete(ctx, "shop.Book", "404")
	mustFlush(t, ix)
	if _, ok := s.hashes["products:shop.Book.1"]; ok {
		t.Error("document not deleted")
	}
}

func TestFlush_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	c := New(s, "", nil)
	ix := c.IndexerFor("products")
	_ = ix.CreatePhysicalIndex(ctx, nil)

	_ = ix.Add(ctx, bookDoc("1", "Dune"))
	_ = ix.Delete(ctx, "shop.Book", "1")
	_ = ix.Delete(ctx, "shop.Book", "2")
	_ = ix.Add(ctx, bookDoc("2", "Emma"))
	mustFlush(t, ix)

	if _, ok := s.hashes["products:shop.Book.1"]; ok {
		t.Error("book 1 should be deleted")
	}
	if s.hashes["products:shop.Book.2"]["title"] != "Emma" {
		t.Error("book 2 should be written")
	}
}

func TestFlush_CreatesMissingTarget(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	c := New(s, "", nil)
	ix := c.IndexerFor("products")

	_ = ix.Add(ctx, bookDoc("1", "Dune"))
	mustFlush(t, ix)

	if _, ok := s.indexes["products"]; !ok {
		t.Fatal("target index not created")
	}
	if _, ok := s.hashes["products:shop.Book.1"]; !ok {
		t.Error("document not written")
	}
}

func TestFlush_Empty(t *testing.T) {
	s := newMemStore()
	c := New(s, "", nil)
	mustFlush(t, c.IndexerFor("products"))
	if len(s.indexes) != 0 {
		t.Error("empty flush must not create an index")
	}
}

func TestWritesFollowAlias(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	c := New(s, "", nil)

	gen := c.IndexerFor("products")
	gen.SetGenerationSuffix("_1")
	_ = gen.CreatePhysicalIndex(ctx, nil)
	if err := c.SetAlias(ctx, "products", "products_1"); err != nil {
		t.Fatalf("SetAlias: %v", err)
	}

	ix := c.IndexerFor("products")
	_ = ix.Add(ctx, bookDoc("1", "Dune"))
	mustFlush(t, ix)

	if _, ok := s.hashes["products_1:shop.Book.1"]; !ok {
		t.Errorf("hashes = %v", slices.Collect(maps.Keys(s.hashes)))
	}
}

func TestResolveAlias(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	c := New(s, "dev:", nil)

	got, err := c.ResolveAlias(ctx, "products")
	if err != nil || len(got) != 0 {
		t.Errorf("undefined alias = %v, %v", got, err)
	}

	ix := c.IndexerFor("products")
	_ = ix.CreatePhysicalIndex(ctx, nil)
	got, _ = c.ResolveAlias(ctx, "products")
	if !slices.Equal(got, []string{"products"}) {
		t.Errorf("physical = %v", got)
	}

	ix.SetGenerationSuffix("_2")
	_ = ix.CreatePhysicalIndex(ctx, nil)
	_ = c.SetAlias(ctx, "books", "products_2")
	got, _ = c.ResolveAlias(ctx, "books")
	if !slices.Equal(got, []string{"products_2"}) {
		t.Errorf("alias = %v", got)
	}
}

func TestDeletePhysicalIndex(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	c := New(s, "", nil)

	ix := c.IndexerFor("products")
	ix.SetGenerationSuffix("_1")
	_ = ix.CreatePhysicalIndex(ctx, nil)
	_ = ix.ApplyMapping(ctx, "shop.Book", backend.FieldConfigs{"title": {}})
	_ = ix.Add(ctx, bookDoc("1", "Dune"))
	mustFlush(t, ix)
	_ = c.SetAlias(ctx, "products", "products_1")

	if err := c.DeletePhysicalIndex(ctx, "products_1"); err != nil {
		t.Fatalf("DeletePhysicalIndex: %v", err)
	}
	if len(s.indexes) != 0 {
		t.Errorf("indexes left: %v", slices.Collect(maps.Keys(s.indexes)))
	}
	if _, ok := s.hashes["products_1:shop.Book.1"]; ok {
		t.Error("documents left")
	}
	if _, ok := s.hashes["__mapping:products_1"]; ok {
		t.Error("mapping left")
	}
	if len(s.hashes["__aliases"]) != 0 {
		t.Errorf("alias records left: %v", s.hashes["__aliases"])
	}

	if err := c.DeletePhysicalIndex(ctx, "products_1"); err != nil {
		t.Errorf("deleting a missing index: %v", err)
	}
}

func TestListIndexes(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	c := New(s, "dev:", nil)
	other := New(s, "prod:", nil)

	ix := c.IndexerFor("products")
	ix.SetGenerationSuffix("_1")
	_ = ix.CreatePhysicalIndex(ctx, nil)
	_ = ix.Add(ctx, bookDoc("1", "Dune"))
	_ = ix.Add(ctx, bookDoc("2", "Emma"))
	mustFlush(t, ix)
	_ = c.SetAlias(ctx, "products", "products_1")
	_ = other.IndexerFor("articles").CreatePhysicalIndex(ctx, nil)

	got, err := c.ListIndexes(ctx)
	if err != nil {
		t.Fatalf("ListIndexes: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("indexes = %v", got)
	}
	info := got["products_1"]
	if info.DocCount != 2 || !slices.Equal(info.Aliases, []string{"products"}) {
		t.Errorf("info = %+v", info)
	}
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	c := New(s, "dev:", nil)
	_ = c.IndexerFor("products").CreatePhysicalIndex(ctx, nil)

	s.result = &db.SearchResult{
		Total: 3,
		Entries: []db.SearchEntry{
			{
				Key:   "dev:products:shop.Book.2",
				Score: 1.5,
				Fields: map[string]string{
					typeField: "shop.Book",
					keyField:  "shop.Book.2",
					docField:  `{"title":["Dune Messiah"]}`,
				},
			},
			{Key: "dev:products:shop.Book.9", Score: 0.5, Fields: map[string]string{typeField: "shop.Book"}},
		},
	}

	res, err := c.SearcherFor("products").ForTypes("shop.Book").Parse("dune").Execute(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	q := s.searches[0]
	if q.IndexName != "dev:products" || q.Offset != 1 || q.Limit != 2 || !q.WithScores {
		t.Errorf("query = %+v", q)
	}
	if q.Query != `@__type:{shop\.Book} dune` {
		t.Errorf("query string = %q", q.Query)
	}
	if res.Total != 3 || res.Start != 1 || res.MoreMatches {
		t.Errorf("envelope = %+v", res)
	}
	if len(res.Hits) != 2 {
		t.Fatalf("hits = %+v", res.Hits)
	}
	h := res.Hits[0]
	if h.ID != "shop.Book.2" || h.Type != "shop.Book" || h.Score != 1.5 {
		t.Errorf("hit = %+v", h)
	}
	if title, _ := h.Fields["title"].([]string); len(title) != 1 || title[0] != "Dune Messiah" {
		t.Errorf("fields = %v", h.Fields)
	}
	if res.Hits[1].ID != "shop.Book.9" {
		t.Errorf("fallback id = %q", res.Hits[1].ID)
	}
	if v, ok := res.Attr("query"); !ok || v != q.Query {
		t.Errorf("Attr(query) = %v", v)
	}
}

func TestExecute_MissingAliasIsEmpty(t *testing.T) {
	c := New(newMemStore(), "", nil)
	res, err := c.SearcherFor("products").Parse("dune").Execute(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Total != 0 || len(res.Hits) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name string
		spec backend.QuerySpec
		want string
	}{
		{"match all", backend.QuerySpec{}, "*"},
		{"blank text", backend.QuerySpec{Text: "   "}, "*"},
		{"types", backend.QuerySpec{Types: []string{"shop.Book", "shop.Author"}}, `@__type:{shop\.Book | shop\.Author}`},
		{"escaped text", backend.QuerySpec{Text: `dune: "messiah"`}, `dune\: \"messiah\"`},
		{"field", backend.QuerySpec{Field: "title", Text: "dune"}, "@title:(dune)"},
		{"field with syntax", backend.QuerySpec{Field: "title:(x) | @body", Text: "dune"}, `@title\:\(x\)\ \|\ \@body:(dune)`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := buildQuery(tc.spec); got != tc.want {
				t.Errorf("buildQuery = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClose_FlushesPending(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	c := New(s, "", nil)
	ix := c.IndexerFor("products")
	_ = ix.CreatePhysicalIndex(ctx, nil)
	_ = ix.Add(ctx, bookDoc("1", "Dune"))

	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := s.hashes["products:shop.Book.1"]; !ok {
		t.Error("pending write lost on close")
	}
	if !s.closed {
		t.Error("store not closed")
	}
}

func TestEncodeValue(t *testing.T) {
	if v, _ := encodeValue(kindNumeric, []string{"12.5", "3"}); v != "12.5" {
		t.Errorf("numeric = %q", v)
	}
	if v, _ := encodeValue(kindText, []string{"a", "b"}); v != "a\nb" {
		t.Errorf("text = %q", v)
	}
	if _, ok := encodeValue(kindTag, nil); ok {
		t.Error("empty values must be skipped")
	}
}
