package blevesearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/domain/document"
)

type pendingOp struct {
	key string
	doc *document.Document // nil for a delete
}

// Indexer buffers writes for one logical index and commits them as one bleve batch.
type Indexer struct {
	c     *Client
	index string

	mu      sync.Mutex
	suffix  string
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

// CreatePhysicalIndex registers the target. The bleve index opens on first use.
func (i *Indexer) CreatePhysicalIndex(_ context.Context, settings map[string]any) error {
	return i.c.create(i.Target(), settings)
}

// ApplyMapping records the document mapping for docType.
func (i *Indexer) ApplyMapping(_ context.Context, docType string, fields backend.FieldConfigs) error {
	target := i.Target()
	p, ok := i.c.lookup(target)
	if !ok {
		return fmt.Errorf("apply mapping: index %q does not exist", target)
	}
	late, err := p.applyMapping(docType, fields)
	if err != nil {
		return err
	}
	if late {
		i.c.logger.Warn("mapping applied after first write; effective from the next generation",
			zap.String("index", p.name), zap.String("type", docType))
	}
	return nil
}

// GetMapping returns the recorded mapping for docType, or nil.
func (i *Indexer) GetMapping(_ context.Context, docType string) (backend.FieldConfigs, error) {
	p, ok := i.c.lookup(i.Target())
	if !ok {
		return nil, nil
	}
	return p.mapping(docType), nil
}

// Add buffers a document.
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

// Flush commits buffered writes in one batch. A missing target is created with default settings.
func (i *Indexer) Flush(ctx context.Context) error {
	i.mu.Lock()
	ops := i.pending
	i.pending = nil
	target := i.index + i.suffix
	i.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("flush %s: %w", target, err)
	}

	p, err := i.c.lookupOrCreate(target)
	if err != nil {
		return err
	}
	idx, err := p.open()
	if err != nil {
		return err
	}

	batch := idx.NewBatch()
	kinds := make(map[string]map[string]fieldKind)
	for _, op := range ops {
		if op.doc == nil {
			batch.Delete(op.key)
			continue
		}
		k, ok := kinds[op.doc.Type]
		if !ok {
			k = p.kinds(op.doc.Type)
			kinds[op.doc.Type] = k
		}
		data, err := encode(op.doc, k)
		if err != nil {
			return err
		}
		if err := batch.Index(op.key, data); err != nil {
			return fmt.Errorf("batch %s: %w", op.key, err)
		}
	}

	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("flush %s: %w", target, err)
	}
	i.c.logger.Debug("flushed", zap.String("index", target), zap.String("physical", p.name), zap.Int("ops", len(ops)))
	return nil
}

func encode(doc *document.Document, kinds map[string]fieldKind) (map[string]any, error) {
	payload, err := json.Marshal(doc.Fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", doc.Key(), err)
	}
	data := map[string]any{
		typeField: doc.Type,
		docField:  string(payload),
	}
	for name, values := range doc.Fields {
		if strings.HasPrefix(name, "__") {
			continue
		}
		if v, ok := fieldValue(kinds[name], values); ok {
			data[name] = v
		}
	}
	return data, nil
}
