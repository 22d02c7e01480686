// Package fake is an in-memory backend that records every call. Used in tests.
package fake

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/domain/document"
)

var _ backend.Client = (*Client)(nil)

// Index is one physical index.
type Index struct {
	Settings map[string]any
	Mappings map[string]backend.FieldConfigs
	Docs     map[string]*document.Document
	order    []string
}

func newIndex(settings map[string]any) *Index {
	return &Index{
		Settings: maps.Clone(settings),
		Mappings: make(map[string]backend.FieldConfigs),
		Docs:     make(map[string]*document.Document),
	}
}

// Client is an in-memory backend.Client.
type Client struct {
	mu       sync.Mutex
	indexes  map[string]*Index
	aliases  map[string]string
	failures map[string]error
	calls    []string
	searches int
}

// New creates an empty fake backend.
func New() *Client {
	return &Client{
		indexes:  make(map[string]*Index),
		aliases:  make(map[string]string),
		failures: make(map[string]error),
	}
}

// FailOn makes an operation return err. op is either a bare operation
// ("create", "mapping", "add", "delete", "flush", "set_alias", "delete_index",
// "resolve", "search") or an operation scoped to an argument, e.g. "add:shop.Book".
func (c *Client) FailOn(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op] = err
}

// Calls returns the recorded operations in order.
func (c *Client) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

// Searches returns the number of executed searches.
func (c *Client) Searches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searches
}

// Physical returns a physical index by name.
func (c *Client) Physical(name string) (*Index, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.indexes[name]
	return idx, ok
}

// PhysicalNames returns the physical index names, sorted.
func (c *Client) PhysicalNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.indexes))
}

// AliasTarget returns the physical index behind alias.
func (c *Client) AliasTarget(alias string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.aliases[alias]
	return p, ok
}

// Seed creates a physical index directly, bypassing the recorder.
func (c *Client) Seed(name string, docs ...*document.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := newIndex(nil)
	for _, d := range docs {
		idx.put(d)
	}
	c.indexes[name] = idx
}

func (c *Client) record(format string, args ...any) {
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
}

func (c *Client) fail(op, arg string) error {
	if err, ok := c.failures[op+":"+arg]; ok {
		return err
	}
	return c.failures[op]
}

// resolve returns the physical index behind a name. Caller holds mu.
func (c *Client) resolve(name string) string {
	if p, ok := c.aliases[name]; ok {
		return p
	}
	return name
}

func (idx *Index) put(d *document.Document) {
	key := d.Key()
	if _, ok := idx.Docs[key]; !ok {
		idx.order = append(idx.order, key)
	}
	idx.Docs[key] = d
}

func (idx *Index) remove(key string) {
	if _, ok := idx.Docs[key]; !ok {
		return
	}
	delete(idx.Docs, key)
	idx.order = slices.DeleteFunc(idx.order, func(k string) bool { return k == key })
}

// IndexerFor returns a new indexer handle for index.
func (c *Client) IndexerFor(index string) backend.Indexer {
	return &Indexer{c: c, index: index}
}

// SearcherFor returns a query over index.
func (c *Client) SearcherFor(index string) *backend.Query {
	return backend.NewQuery(index, c)
}

// Ping always succeeds unless "ping" is set to fail.
func (c *Client) Ping(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fail("ping", "")
}

// Close records the call.
func (c *Client) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("close")
	return nil
}

// ListIndexes returns every physical index with its aliases.
func (c *Client) ListIndexes(_ context.Context) (map[string]backend.IndexInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("list", ""); err != nil {
		return nil, err
	}
	out := make(map[string]backend.IndexInfo, len(c.indexes))
	for name, idx := range c.indexes {
		out[name] = backend.IndexInfo{DocCount: int64(len(idx.Docs))}
	}
	for alias, target := range c.aliases {
		info := out[target]
		info.Aliases = append(info.Aliases, alias)
		slices.Sort(info.Aliases)
		out[target] = info
	}
	return out, nil
}

// ResolveAlias returns the alias target, the name itself for a physical index, or nothing.
func (c *Client) ResolveAlias(_ context.Context, alias string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("resolve %s", alias)
	if err := c.fail("resolve", alias); err != nil {
		return nil, err
	}
	if p, ok := c.aliases[alias]; ok {
		return []string{p}, nil
	}
	if _, ok := c.indexes[alias]; ok {
		return []string{alias}, nil
	}
	return nil, nil
}

// DeletePhysicalIndex drops an index and any alias pointing at it.
func (c *Client) DeletePhysicalIndex(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("delete_index %s", name)
	if err := c.fail("delete_index", name); err != nil {
		return err
	}
	delete(c.indexes, name)
	for alias, target := range c.aliases {
		if target == name {
			delete(c.aliases, alias)
		}
	}
	return nil
}

// SetAlias points alias at physical.
func (c *Client) SetAlias(_ context.Context, alias, physical string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("set_alias %s -> %s", alias, physical)
	if err := c.fail("set_alias", alias); err != nil {
		return err
	}
	if _, ok := c.indexes[alias]; ok {
		return fmt.Errorf("alias %q collides with a physical index", alias)
	}
	if _, ok := c.indexes[physical]; !ok {
		return fmt.Errorf("index %q does not exist", physical)
	}
	c.aliases[alias] = physical
	return nil
}

// Execute runs a substring search over the stored documents, in insertion order.
func (c *Client) Execute(_ context.Context, spec backend.QuerySpec) (*backend.Results, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.searches++
	if err := c.fail("search", spec.Index); err != nil {
		return nil, err
	}

	idx, ok := c.indexes[c.resolve(spec.Index)]
	if !ok {
		return backend.Empty(spec.Start), nil
	}

	var matched []*document.Document
	for _, key := range idx.order {
		d := idx.Docs[key]
		if len(spec.Types) > 0 && !slices.Contains(spec.Types, d.Type) {
			continue
		}
		if !matches(d, spec.Field, spec.Text) {
			continue
		}
		matched = append(matched, d)
	}

	res := &backend.Results{Total: len(matched), Start: spec.Start}
	end := min(spec.Start+spec.Count, len(matched))
	for i := spec.Start; i < end; i++ {
		d := matched[i]
		fields := make(map[string]any, len(d.Fields))
		for k, v := range d.Fields {
			fields[k] = slices.Clone(v)
		}
		res.Hits = append(res.Hits, backend.Hit{ID: d.Key(), Type: d.Type, Score: 1, Fields: fields})
	}
	res.MoreMatches = end < len(matched)
	return res, nil
}

func matches(d *document.Document, field, text string) bool {
	if text == "" {
		return true
	}
	text = strings.ToLower(text)
	for name, values := range d.Fields {
		if field != "" && name != field {
			continue
		}
		for _, v := range values {
			if strings.Contains(strings.ToLower(v), text) {
				return true
			}
		}
	}
	return false
}

type pendingOp struct {
	doc    *document.Document
	delete string
}

// Indexer buffers writes until Flush.
type Indexer struct {
	c       *Client
	index   string
	suffix  string
	mu      sync.Mutex
	pending []pendingOp
}

// SetGenerationSuffix redirects the handle to index+suffix.
func (i *Indexer) SetGenerationSuffix(suffix string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.suffix = suffix
}

// Target returns the addressed name.
func (i *Indexer) Target() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.index + i.suffix
}

// CreatePhysicalIndex creates the target index.
func (i *Indexer) CreatePhysicalIndex(_ context.Context, settings map[string]any) error {
	target := i.Target()
	c := i.c
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("create %s", target)
	if err := c.fail("create", target); err != nil {
		return err
	}
	if _, ok := c.indexes[target]; ok {
		return fmt.Errorf("index %q already exists", target)
	}
	c.indexes[target] = newIndex(settings)
	return nil
}

// ApplyMapping stores the field configuration for docType.
func (i *Indexer) ApplyMapping(_ context.Context, docType string, fields backend.FieldConfigs) error {
	target := i.Target()
	c := i.c
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("mapping %s %s", target, docType)
	if err := c.fail("mapping", docType); err != nil {
		return err
	}
	idx, ok := c.indexes[c.resolve(target)]
	if !ok {
		return fmt.Errorf("index %q does not exist", target)
	}
	idx.Mappings[docType] = maps.Clone(fields)
	return nil
}

// GetMapping returns the stored mapping, or nil.
func (i *Indexer) GetMapping(_ context.Context, docType string) (backend.FieldConfigs, error) {
	target := i.Target()
	c := i.c
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.indexes[c.resolve(target)]
	if !ok {
		return nil, nil
	}
	return maps.Clone(idx.Mappings[docType]), nil
}

// Add buffers a document.
func (i *Indexer) Add(_ context.Context, doc *document.Document) error {
	target := i.Target()
	c := i.c
	c.mu.Lock()
	c.record("add %s %s", target, doc.Key())
	err := c.fail("add", doc.Type)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	cp := document.New(doc.Type, doc.ID)
	for k, v := range doc.Fields {
		cp.Fields[k] = slices.Clone(v)
	}
	i.mu.Lock()
	i.pending = append(i.pending, pendingOp{doc: cp})
	i.mu.Unlock()
	return nil
}

// Delete buffers a removal.
func (i *Indexer) Delete(_ context.Context, docType, docID string) error {
	target := i.Target()
	key := document.FormatKey(docType, docID)
	c := i.c
	c.mu.Lock()
	c.record("delete %s %s", target, key)
	err := c.fail("delete", docType)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	i.mu.Lock()
	i.pending = append(i.pending, pendingOp{delete: key})
	i.mu.Unlock()
	return nil
}

// ErrFlush is a convenience error for tests.
var ErrFlush = errors.New("fake: flush failed")

// Flush applies buffered writes to the target. A missing target is created.
func (i *Indexer) Flush(_ context.Context) error {
	i.mu.Lock()
	ops := i.pending
	i.pending = nil
	target := i.index + i.suffix
	i.mu.Unlock()

	c := i.c
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("flush %s", target)
	if err := c.fail("flush", target); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	name := c.resolve(target)
	idx, ok := c.indexes[name]
	if !ok {
		idx = newIndex(nil)
		c.indexes[name] = idx
	}
	for _, op := range ops {
		if op.doc != nil {
			idx.put(op.doc)
			continue
		}
		idx.remove(op.delete)
	}
	return nil
}
