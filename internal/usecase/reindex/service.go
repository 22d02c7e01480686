package reindex

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/descriptor"
	"github.com/kailas-cloud/indexsync/internal/logger"
	"github.com/kailas-cloud/indexsync/internal/metrics"
	"github.com/kailas-cloud/indexsync/internal/registry"
)

// maxSuffixAttempts bounds the search for an unused generation name.
const maxSuffixAttempts = 16

// Outcome is the result of rebuilding one logical index.
type Outcome struct {
	Index string
	// Generation is the physical index built by this run.
	Generation string
	// Retired lists the generations deleted after the alias moved.
	Retired   []string
	Documents int
	Duration  time.Duration
	Err       error
}

// OK reports whether the alias now points at the new generation.
func (o Outcome) OK() bool { return o.Err == nil }

// Report holds one outcome per requested index, in request order.
type Report struct {
	Outcomes []Outcome
}

// Failed returns the indexes whose rebuild failed.
func (r Report) Failed() []string {
	var out []string
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o.Index)
		}
	}
	return out
}

// Service rebuilds indexes into a fresh generation and swaps the alias.
type Service struct {
	reg     Registry
	admin   Admin
	indexer BulkIndexer
	locker  Locker
	now     func() time.Time
	logger  *zap.Logger

	mu         sync.Mutex
	lastSuffix int64
	builders   map[string]backend.Indexer
	building   map[string]bool
}

// New creates a reindex service.
func New(reg Registry, admin Admin, indexer BulkIndexer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		reg:      reg,
		admin:    admin,
		indexer:  indexer,
		now:      time.Now,
		logger:   logger,
		builders: make(map[string]backend.Indexer),
		building: make(map[string]bool),
	}
}

// WithLocker guards each rebuild with l.
func (s *Service) WithLocker(l Locker) *Service {
	s.locker = l
	return s
}

// WithClock replaces the clock used for generation suffixes.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Reindex rebuilds the named indexes, or every registered index when names is empty.
// Each index succeeds or fails on its own; the error joins the failures.
func (s *Service) Reindex(ctx context.Context, names []string) (Report, error) {
	names, err := s.resolveNames(names)
	if err != nil {
		return Report{}, err
	}

	var (
		report Report
		errs   []error
	)
	for _, name := range names {
		out := s.reindexOne(ctx, name)
		report.Outcomes = append(report.Outcomes, out)
		if out.Err != nil {
			errs = append(errs, fmt.Errorf("reindex %s: %w", name, out.Err))
		}
	}
	return report, errors.Join(errs...)
}

// resolveNames expands an empty request and rejects unknown names before any backend call.
func (s *Service) resolveNames(names []string) ([]string, error) {
	if len(names) == 0 {
		return s.reg.Indexes(), nil
	}
	var unknown []string
	for _, n := range names {
		if len(s.reg.Entries(n)) == 0 {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) > 0 {
		return nil, &domain.UnknownIndexError{Names: unknown}
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Service) reindexOne(ctx context.Context, name string) (out Outcome) {
	start := s.now()
	log := logger.FromContext(ctx, s.logger).With(zap.String("index", name))
	out.Index = name

	defer func() {
		out.Duration = s.now().Sub(start)
		status := "ok"
		if out.Err != nil {
			status = "failed"
			log.Error("reindex failed", zap.Error(out.Err))
		} else {
			metrics.ReindexDocuments.WithLabelValues(name).Set(float64(out.Documents))
			log.Info("reindex done",
				zap.Strings("retired", out.Retired),
				zap.Int("documents", out.Documents),
				zap.Duration("duration", out.Duration),
			)
		}
		metrics.ReindexRunsTotal.WithLabelValues(name, status).Inc()
		metrics.ReindexDuration.WithLabelValues(name).Observe(out.Duration.Seconds())
	}()

	// Plan
	entries := s.reg.Entries(name)
	settings, err := mergedSettings(entries)
	if err != nil {
		out.Err = err
		return out
	}

	if s.locker != nil {
		release, err := s.locker.TryLock(name)
		if err != nil {
			out.Err = err
			return out
		}
		defer release()
	}

	idx, done, err := s.acquireBuilder(name)
	if err != nil {
		out.Err = err
		return out
	}
	defer done()

	suffix, err := s.freeSuffix(ctx, name)
	if err != nil {
		out.Err = err
		return out
	}
	idx.SetGenerationSuffix(suffix)
	out.Generation = name + suffix
	log = log.With(zap.String("generation", out.Generation))

	// Build
	n, created, err := s.build(ctx, idx, entries, settings)
	out.Documents = n
	if err != nil {
		out.Err = err
		if created {
			s.discard(ctx, log, idx, out.Generation)
		}
		return out
	}

	// Publish
	previous, err := s.inspectAlias(ctx, name)
	if err != nil {
		out.Err = err
		s.rollback(ctx, log, out.Generation)
		return out
	}
	if err := s.admin.SetAlias(ctx, name, out.Generation); err != nil {
		out.Err = fmt.Errorf("set alias: %w", err)
		s.rollback(ctx, log, out.Generation)
		return out
	}

	// Retire
	var retireErrs []error
	for _, p := range previous {
		if p == out.Generation {
			continue
		}
		if err := s.admin.DeletePhysicalIndex(ctx, p); err != nil {
			retireErrs = append(retireErrs, fmt.Errorf("retire %s: %w", p, err))
			continue
		}
		out.Retired = append(out.Retired, p)
	}
	out.Err = errors.Join(retireErrs...)
	return out
}

func mergedSettings(entries []*registry.Entry) (map[string]any, error) {
	descs := make([]*descriptor.Descriptor, len(entries))
	for i, e := range entries {
		descs[i] = e.Descriptor
	}
	return descriptor.MergeSettings(descs...)
}

// build creates the generation behind idx, applies each mapping and bulk-loads
// every entity through idx. created reports whether the generation exists and
// belongs to this run.
func (s *Service) build(ctx context.Context, idx backend.Indexer, entries []*registry.Entry, settings map[string]any) (n int, created bool, err error) {
	if err := idx.CreatePhysicalIndex(ctx, settings); err != nil {
		return 0, false, fmt.Errorf("create index: %w", err)
	}
	for _, e := range entries {
		d := e.Descriptor
		if err := idx.ApplyMapping(ctx, d.DocType, d.Configuration()); err != nil {
			return 0, true, fmt.Errorf("apply mapping %s: %w", e.Tag, err)
		}
	}

	for _, e := range entries {
		c, err := s.indexer.IndexAll(ctx, e, idx, false)
		n += c
		if err != nil {
			return n, true, err
		}
	}
	return n, true, nil
}

// acquireBuilder returns the build handle of index. The registry handles are
// never repointed, so live writes keep reaching the alias during a rebuild.
// A second concurrent rebuild of the same index fails fast.
func (s *Service) acquireBuilder(index string) (backend.Indexer, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.building[index] {
		return nil, nil, domain.ErrReindexInProgress
	}
	idx, ok := s.builders[index]
	if !ok {
		idx = s.admin.IndexerFor(index)
		s.builders[index] = idx
	}
	s.building[index] = true
	return idx, func() {
		s.mu.Lock()
		delete(s.building, index)
		s.mu.Unlock()
	}, nil
}

// freeSuffix returns the next suffix whose generation name is not taken.
func (s *Service) freeSuffix(ctx context.Context, name string) (string, error) {
	for range maxSuffixAttempts {
		suffix := s.nextSuffix()
		taken, err := s.admin.ResolveAlias(ctx, name+suffix)
		if err != nil {
			return "", fmt.Errorf("check generation %s: %w", name+suffix, err)
		}
		if len(taken) == 0 {
			return suffix, nil
		}
	}
	return "", fmt.Errorf("no free generation name for %s after %d attempts", name, maxSuffixAttempts)
}

// inspectAlias returns the generations currently behind alias. A physical index
// that occupies the alias name is deleted so the alias can be created.
func (s *Service) inspectAlias(ctx context.Context, alias string) ([]string, error) {
	targets, err := s.admin.ResolveAlias(ctx, alias)
	if err != nil {
		return nil, fmt.Errorf("resolve alias: %w", err)
	}
	if len(targets) == 1 && targets[0] == alias {
		if err := s.admin.DeletePhysicalIndex(ctx, alias); err != nil {
			return nil, fmt.Errorf("delete index occupying alias name: %w", err)
		}
		return nil, nil
	}
	return targets, nil
}

// discard drains writes still buffered for a failed generation, then deletes it.
func (s *Service) discard(ctx context.Context, log *zap.Logger, idx backend.Indexer, generation string) {
	if err := idx.Flush(context.WithoutCancel(ctx)); err != nil {
		log.Debug("rollback: drain build handle", zap.Error(err))
	}
	s.rollback(ctx, log, generation)
}

func (s *Service) rollback(ctx context.Context, log *zap.Logger, generation string) {
	// The caller's context may already be cancelled.
	cleanupCtx := context.WithoutCancel(ctx)
	if err := s.admin.DeletePhysicalIndex(cleanupCtx, generation); err != nil {
		log.Warn("rollback: delete generation", zap.Error(err))
	}
}

// nextSuffix returns "_" + hex unix seconds, strictly increasing within the process.
func (s *Service) nextSuffix() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().Unix()
	if ts <= s.lastSuffix {
		ts = s.lastSuffix + 1
	}
	s.lastSuffix = ts
	return "_" + strconv.FormatInt(ts, 16)
}
