package registry

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/backend/fake"
	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/descriptor"
	"github.com/kailas-cloud/indexsync/internal/domain/entity"
)

// --- Mocks ---

type countingProvider struct {
	client *fake.Client
	opened []string
}

func (c *countingProvider) IndexerFor(index string) backend.Indexer {
	c.opened = append(c.opened, index)
	return c.client.IndexerFor(index)
}

type nopManager struct{}

func (nopManager) Each(context.Context, func(entity.Entity) error) error { return nil }
func (nopManager) InBulk(context.Context, []string) (map[string]entity.Entity, error) {
	return nil, nil
}
func (nopManager) Get(context.Context, string) (entity.Entity, error) { return nil, domain.ErrNotFound }

type selfDescribing struct {
	tag   string
	index string
}

func (s selfDescribing) TypeTag() string { return s.tag }
func (s selfDescribing) SearchDescriptor() *descriptor.Descriptor {
	return &descriptor.Descriptor{
		Index:   s.index,
		Fields:  []descriptor.FieldSpec{descriptor.Field(descriptor.Attr("name"))},
		Manager: nopManager{},
	}
}

func indexed(index string) *descriptor.Descriptor {
	return &descriptor.Descriptor{
		Index:   index,
		Fields:  []descriptor.FieldSpec{descriptor.Field(descriptor.Attr("title"))},
		Manager: nopManager{},
	}
}

// --- Tests ---

func TestRegister_OpensIndexerOnce(t *testing.T) {
	p := &countingProvider{client: fake.New()}
	r := New(p, nil)

	if err := r.Register("shop.Book", indexed("products")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("shop.Book", indexed("other")); err != nil {
		t.Fatalf("second Register: %v", err)
	}

	if len(p.opened) != 1 || p.opened[0] != "products" {
		t.Errorf("opened = %v", p.opened)
	}
	e, ok := r.Lookup("shop.Book")
	if !ok || e.Descriptor.Index != "products" {
		t.Fatalf("lookup = %+v, %v", e, ok)
	}
	if e.Descriptor.DocType != "shop.Book" {
		t.Errorf("DocType = %q", e.Descriptor.DocType)
	}
	if e.Indexer == nil {
		t.Error("expected indexer handle")
	}
}

func TestRegister_LeavesCallerDescriptorUntouched(t *testing.T) {
	r := New(fake.New(), nil)
	shared := indexed("products")

	for _, tag := range []string{"shop.Book", "shop.Ebook"} {
		if err := r.Register(tag, shared); err != nil {
			t.Fatalf("Register %s: %v", tag, err)
		}
	}

	if shared.DocType != "" {
		t.Errorf("caller descriptor DocType = %q", shared.DocType)
	}
	for _, tag := range []string{"shop.Book", "shop.Ebook"} {
		e, _ := r.Lookup(tag)
		if e.Descriptor.DocType != tag {
			t.Errorf("%s DocType = %q", tag, e.Descriptor.DocType)
		}
		if e.Descriptor == shared {
			t.Errorf("%s entry shares the caller's descriptor", tag)
		}
	}
}

func TestRegister_NotIndexed(t *testing.T) {
	p := &countingProvider{client: fake.New()}
	r := New(p, nil)

	if err := r.Register("shop.Review", &descriptor.Descriptor{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	e, _ := r.Lookup("shop.Review")
	if e.Indexer != nil {
		t.Error("unindexed type must not open an indexer")
	}
	if len(r.Indexes()) != 0 {
		t.Errorf("indexes = %v", r.Indexes())
	}
}

func TestRegister_InvalidTag(t *testing.T) {
	r := New(fake.New(), nil)
	err := r.Register("Book", indexed("products"))
	if !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestRegister_FieldCollision(t *testing.T) {
	r := New(fake.New(), nil)
	d := indexed("products")
	d.Fields = append(d.Fields, descriptor.Field(descriptor.Attr("ti_tle")))
	if err := r.Register("shop.Book", d); !errors.Is(err, domain.ErrFieldNameCollision) {
		t.Fatalf("expected ErrFieldNameCollision, got %v", err)
	}
}

func TestRegister_IndexedWithoutManager(t *testing.T) {
	r := New(fake.New(), nil)
	d := indexed("products")
	d.Manager = nil
	if err := r.Register("shop.Book", d); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestEntriesAndIndexes(t *testing.T) {
	r := New(fake.New(), nil)
	_ = r.Register("shop.Book", indexed("products"))
	_ = r.Register("shop.Author", indexed("products"))
	_ = r.Register("blog.Post", indexed("articles"))

	if got := r.Indexes(); !slices.Equal(got, []string{"articles", "products"}) {
		t.Errorf("Indexes = %v", got)
	}
	entries := r.Entries("products")
	if len(entries) != 2 || entries[0].Tag != "shop.Book" || entries[1].Tag != "shop.Author" {
		t.Errorf("Entries order = %v", entries)
	}
	if got := r.Types(); !slices.Equal(got, []string{"blog.Post", "shop.Author", "shop.Book"}) {
		t.Errorf("Types = %v", got)
	}
}

func TestAutodiscover(t *testing.T) {
	r := New(fake.New(), nil)
	_ = r.Register("shop.Book", indexed("products"))

	n, err := r.Autodiscover(
		selfDescribing{tag: "shop.Book", index: "ignored"},
		selfDescribing{tag: "shop.Author", index: "products"},
		"not a provider",
	)
	if err != nil {
		t.Fatalf("Autodiscover: %v", err)
	}
	if n != 1 {
		t.Errorf("registered = %d, want 1", n)
	}
	if e, _ := r.Lookup("shop.Book"); e.Descriptor.Index != "products" {
		t.Error("autodiscover must not replace an existing registration")
	}
	if _, ok := r.Lookup("shop.Author"); !ok {
		t.Error("shop.Author not registered")
	}
}
