package redisearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/db"
	"github.com/kailas-cloud/indexsync/internal/domain/document"
)

type pendingOp struct {
	key string
	doc *document.Document // nil for a delete
}

// Indexer buffers writes for one logical index and sends them on Flush.
type Indexer struct {
	c     *Client
	index string

	mu      sync.Mutex
	suffix  string
	pending []pendingOp
	// kinds caches field kinds per "<physical>/<docType>".
	kinds map[string]map[string]fieldKind
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

// CreatePhysicalIndex creates the target with the reserved schema and engine settings.
func (i *Indexer) CreatePhysicalIndex(ctx context.Context, settings map[string]any) error {
	return i.create(ctx, i.Target(), settings)
}

func (i *Indexer) create(ctx context.Context, target string, settings map[string]any) error {
	language, stopwords, err := settingsOptions(settings)
	if err != nil {
		return fmt.Errorf("settings for %s: %w", target, err)
	}

	b := db.NewIndex(i.c.name(target)).
		Prefix(i.c.docKeyPrefix(target)).
		Language(language).
		Tag(typeField)
	if stopwords != nil {
		b = b.Stopwords(stopwords...)
	}
	def, err := b.Build()
	if err != nil {
		return fmt.Errorf("index definition for %s: %w", target, err)
	}

	if err := i.c.store.CreateIndex(ctx, def); err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	i.c.logger.Debug("created physical index", zap.String("index", target), zap.String("definition", def.String()))
	return nil
}

// ApplyMapping adds every field to the schema and stores the mapping verbatim.
func (i *Indexer) ApplyMapping(ctx context.Context, docType string, fields backend.FieldConfigs) error {
	target := i.Target()
	physical, err := i.c.resolveOne(ctx, target)
	if err != nil {
		return err
	}
	if physical == "" {
		return fmt.Errorf("apply mapping: index %q does not exist", target)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		f, err := schemaField(name, fields[name])
		if err != nil {
			return fmt.Errorf("mapping %s: %w", docType, err)
		}
		err = i.c.store.AlterIndex(ctx, i.c.name(physical), f)
		if err != nil && !errors.Is(err, db.ErrFieldExists) {
			return fmt.Errorf("mapping %s: add field %s: %w", docType, name, err)
		}
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode mapping %s: %w", docType, err)
	}
	if err := i.c.store.HSet(ctx, i.c.mappingKey(physical), map[string]string{docType: string(raw)}); err != nil {
		return fmt.Errorf("store mapping %s: %w", docType, err)
	}

	i.mu.Lock()
	i.kinds[physical+"/"+docType] = kindsFor(fields)
	i.mu.Unlock()
	return nil
}

// GetMapping returns the stored mapping for docType, or nil.
func (i *Indexer) GetMapping(ctx context.Context, docType string) (backend.FieldConfigs, error) {
	physical, err := i.c.resolveOne(ctx, i.Target())
	if err != nil || physical == "" {
		return nil, err
	}
	return i.c.storedMapping(ctx, physical, docType)
}

// Add buffers a document. It replaces any document with the same key on Flush.
func (i *Indexer) Add(_ context.Context, doc *document.Document) error {
	if doc == nil {
		return errors.New("add: nil document")
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pending = append(i.pending, pendingOp{key: doc.Key(), doc: doc})
	return nil
}

// Delete buffers a removal.
func (i *Indexer) Delete(_ context.Context, docType, docID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pending = append(i.pending, pendingOp{key: document.FormatKey(docType, docID)})
	return nil
}

// Flush sends buffered writes to the physical index behind the target.
// A target that does not exist yet is created with default settings.
func (i *Indexer) Flush(ctx context.Context) error {
	i.mu.Lock()
	ops := i.pending
	i.pending = nil
	target := i.index + i.suffix
	i.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}

	physical, err := i.c.resolveOne(ctx, target)
	if err != nil {
		return err
	}
	if physical == "" {
		if err := i.create(ctx, target, nil); err != nil && !errors.Is(err, db.ErrIndexExists) {
			return err
		}
		physical = target
	}

	// Last write per key wins; first-seen order is kept.
	last := make(map[string]pendingOp, len(ops))
	var order []string
	for _, op := range ops {
		if _, seen := last[op.key]; !seen {
			order = append(order, op.key)
		}
		last[op.key] = op
	}

	prefix := i.c.docKeyPrefix(physical)
	keys := make([]string, 0, len(order))
	var items []db.HashSetItem
	for _, key := range order {
		keys = append(keys, prefix+key)
		op := last[key]
		if op.doc == nil {
			continue
		}
		fields, err := i.encode(ctx, physical, op.doc)
		if err != nil {
			return err
		}
		items = append(items, db.HashSetItem{Key: prefix + key, Fields: fields})
	}

	// Delete first so replaced documents drop fields they no longer carry.
	if err := i.c.store.DelMulti(ctx, keys); err != nil {
		return fmt.Errorf("flush %s: %w", target, err)
	}
	if err := i.c.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("flush %s: %w", target, err)
	}

	i.c.logger.Debug("flushed",
		zap.String("index", target),
		zap.String("physical", physical),
		zap.Int("writes", len(items)),
		zap.Int("deletes", len(keys)-len(items)),
	)
	return nil
}

func (i *Indexer) encode(ctx context.Context, physical string, doc *document.Document) (map[string]string, error) {
	kinds, err := i.kindsFor(ctx, physical, doc.Type)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(doc.Fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", doc.Key(), err)
	}

	fields := map[string]string{
		typeField: doc.Type,
		keyField:  doc.Key(),
		docField:  string(payload),
	}
	for name, values := range doc.Fields {
		if strings.HasPrefix(name, "__") {
			continue
		}
		if v, ok := encodeValue(kinds[name], values); ok {
			fields[name] = v
		}
	}
	return fields, nil
}

func (i *Indexer) kindsFor(ctx context.Context, physical, docType string) (map[string]fieldKind, error) {
	cacheKey := physical + "/" + docType

	i.mu.Lock()
	kinds, ok := i.kinds[cacheKey]
	i.mu.Unlock()
	if ok {
		return kinds, nil
	}

	mapping, err := i.c.storedMapping(ctx, physical, docType)
	if err != nil {
		return nil, err
	}
	kinds = kindsFor(mapping)

	i.mu.Lock()
	i.kinds[cacheKey] = kinds
	i.mu.Unlock()
	return kinds, nil
}

func (i *Indexer) forget(physical string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for k := range i.kinds {
		if strings.HasPrefix(k, physical+"/") {
			delete(i.kinds, k)
		}
	}
}

func (c *Client) storedMapping(ctx context.Context, physical, docType string) (backend.FieldConfigs, error) {
	m, err := c.store.HGetAll(ctx, c.mappingKey(physical))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mapping %s: %w", docType, err)
	}
	raw, ok := m[docType]
	if !ok {
		return nil, nil
	}
	var fields backend.FieldConfigs
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("decode mapping %s: %w", docType, err)
	}
	return fields, nil
}
