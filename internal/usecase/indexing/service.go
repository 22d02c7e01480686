package indexing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/domain/entity"
	"github.com/kailas-cloud/indexsync/internal/logger"
	"github.com/kailas-cloud/indexsync/internal/metrics"
	"github.com/kailas-cloud/indexsync/internal/registry"
)

var _ Hooks = (*Service)(nil)

// Service keeps index documents in step with entity mutations.
type Service struct {
	reg    Registry
	logger *zap.Logger
}

// New creates an indexing service.
func New(reg Registry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{reg: reg, logger: logger}
}

// IndexInstance writes or removes the document for e, then optionally reindexes
// the entities that embed it. Unregistered types are ignored.
func (s *Service) IndexInstance(ctx context.Context, e entity.Entity, withCascade bool) error {
	entry, ok := s.reg.Lookup(e.TypeTag())
	if !ok {
		return nil
	}
	indexed := entry.Descriptor.Indexed()

	if indexed {
		if err := s.write(ctx, entry.Indexer, entry, e); err != nil {
			return err
		}
	}
	if withCascade {
		if err := s.Cascade(ctx, e); err != nil {
			return err
		}
	}
	if indexed {
		if err := entry.Indexer.Flush(ctx); err != nil {
			metrics.SyncErrorsTotal.WithLabelValues(entry.Descriptor.Index, "flush").Inc()
			return fmt.Errorf("flush %s: %w", entry.Descriptor.Index, err)
		}
	}
	return nil
}

// Cascade reindexes the direct targets of e's cascade rules, without cascading further.
func (s *Service) Cascade(ctx context.Context, e entity.Entity) error {
	entry, ok := s.reg.Lookup(e.TypeTag())
	if !ok || len(entry.Descriptor.Cascades) == 0 {
		return nil
	}
	log := logger.FromContext(ctx, s.logger)

	targets, errs := entry.Descriptor.CascadeTargets(e)
	for _, err := range errs {
		log.Debug("cascade rule skipped", zap.String("type", e.TypeTag()), zap.String("key", e.Key()), zap.Error(err))
	}

	for _, target := range targets {
		te, ok := s.reg.Lookup(target.TypeTag())
		if !ok {
			continue
		}
		if !te.Descriptor.ShouldReindexOnCascade(e, target) {
			continue
		}
		metrics.CascadeTargetsTotal.WithLabelValues(target.TypeTag()).Inc()
		if err := s.IndexInstance(ctx, target, false); err != nil {
			return fmt.Errorf("cascade %s.%s -> %s.%s: %w", e.TypeTag(), e.Key(), target.TypeTag(), target.Key(), err)
		}
	}
	return nil
}

// Delete removes e's own document.
func (s *Service) Delete(ctx context.Context, e entity.Entity) error {
	entry, ok := s.reg.Lookup(e.TypeTag())
	if !ok || !entry.Descriptor.Indexed() {
		return nil
	}
	d := entry.Descriptor
	if err := entry.Indexer.Delete(ctx, d.DocumentType(e), d.DocumentID(e)); err != nil {
		metrics.SyncErrorsTotal.WithLabelValues(d.Index, "write").Inc()
		return fmt.Errorf("delete %s.%s: %w", e.TypeTag(), e.Key(), err)
	}
	metrics.DocumentWritesTotal.WithLabelValues(d.Index, "delete").Inc()
	if err := entry.Indexer.Flush(ctx); err != nil {
		metrics.SyncErrorsTotal.WithLabelValues(d.Index, "flush").Inc()
		return fmt.Errorf("flush %s: %w", d.Index, err)
	}
	return nil
}

// IndexAll writes every entity of the entry's type through target and flushes it once
// at the end. A nil target means the entry's own handle. It returns the number of
// entities visited.
func (s *Service) IndexAll(ctx context.Context, entry *registry.Entry, target backend.Indexer, withCascade bool) (int, error) {
	d := entry.Descriptor
	if !d.Indexed() {
		return 0, nil
	}

	if target == nil {
		target = entry.Indexer
	}

	n := 0
	err := d.Manager.Each(ctx, func(e entity.Entity) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.write(ctx, target, entry, e); err != nil {
			return err
		}
		if withCascade {
			if err := s.Cascade(ctx, e); err != nil {
				return err
			}
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("index all %s: %w", entry.Tag, err)
	}

	if err := target.Flush(ctx); err != nil {
		metrics.SyncErrorsTotal.WithLabelValues(d.Index, "flush").Inc()
		return n, fmt.Errorf("flush %s: %w", d.Index, err)
	}
	return n, nil
}

// OnCreateOrUpdate indexes e and its cascade targets.
func (s *Service) OnCreateOrUpdate(ctx context.Context, e entity.Entity) error {
	return s.IndexInstance(ctx, e, true)
}

// OnPreDelete removes e's document while e can still be resolved.
func (s *Service) OnPreDelete(ctx context.Context, e entity.Entity) error {
	return s.Delete(ctx, e)
}

// OnPostDelete refreshes the entities that embedded the deleted one. Relations on
// snapshot must have been resolved or be resolvable without the deleted row.
func (s *Service) OnPostDelete(ctx context.Context, snapshot entity.Entity) error {
	return s.Cascade(ctx, snapshot)
}

// write queues an add, or a delete when the entity is excluded, on idx.
func (s *Service) write(ctx context.Context, idx backend.Indexer, entry *registry.Entry, e entity.Entity) error {
	d := entry.Descriptor

	if !d.Includes(e) {
		if err := idx.Delete(ctx, d.DocumentType(e), d.DocumentID(e)); err != nil {
			metrics.SyncErrorsTotal.WithLabelValues(d.Index, "write").Inc()
			return fmt.Errorf("delete %s.%s: %w", e.TypeTag(), e.Key(), err)
		}
		metrics.DocumentWritesTotal.WithLabelValues(d.Index, "delete").Inc()
		return nil
	}

	doc, err := d.Project(e)
	if err != nil {
		metrics.SyncErrorsTotal.WithLabelValues(d.Index, "project").Inc()
		return err
	}
	if doc == nil {
		return nil
	}
	if err := idx.Add(ctx, doc); err != nil {
		metrics.SyncErrorsTotal.WithLabelValues(d.Index, "write").Inc()
		return fmt.Errorf("add %s: %w", doc.Key(), err)
	}
	metrics.DocumentWritesTotal.WithLabelValues(d.Index, "add").Inc()
	return nil
}
