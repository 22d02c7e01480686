package search

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/descriptor"
	"github.com/kailas-cloud/indexsync/internal/registry"
)

const (
	defaultPageSize  = 10
	defaultCacheSize = 1000
)

// Service opens typed queries and materializes their results as entities.
type Service struct {
	reg       Registry
	searchers Searchers
	pageSize  int
	cacheSize int
	logger    *zap.Logger
}

// New creates a search service.
func New(reg Registry, searchers Searchers, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		reg:       reg,
		searchers: searchers,
		pageSize:  defaultPageSize,
		cacheSize: defaultCacheSize,
		logger:    logger,
	}
}

// WithPaging configures the minimum fetch window and the per-result-set cache bound.
func (s *Service) WithPaging(pageSize, cacheSize int) *Service {
	if pageSize > 0 {
		s.pageSize = pageSize
	}
	if cacheSize > 0 {
		s.cacheSize = cacheSize
	}
	return s
}

// Query returns a query over the type's index restricted to the type's documents.
func (s *Service) Query(tag string) (*backend.Query, error) {
	entry, err := s.entry(tag)
	if err != nil {
		return nil, err
	}
	d := entry.Descriptor
	return s.searchers.SearcherFor(d.Index).ForTypes(d.DocType), nil
}

// Results wraps q in a lazily materialized result set for tag.
func (s *Service) Results(tag string, q *backend.Query) (*ResultSet, error) {
	entry, err := s.entry(tag)
	if err != nil {
		return nil, err
	}
	return newResultSet(entry, q, s.pageSize, s.cacheSize, s.logger)
}

// Search parses free text from user input and returns the materialized results.
func (s *Service) Search(tag, input string) (*ResultSet, error) {
	q, err := s.Query(tag)
	if err != nil {
		return nil, err
	}
	return s.Results(tag, q.Parse(input))
}

// SearchField is Search restricted to one index field. The field must be one the
// type's descriptor declares.
func (s *Service) SearchField(tag, field, input string) (*ResultSet, error) {
	entry, err := s.entry(tag)
	if err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(entry.Descriptor.Fields, func(f descriptor.FieldSpec) bool {
		return f.IndexName() == field
	}) {
		return nil, fmt.Errorf("%s field %q: %w", tag, field, domain.ErrUnknownField)
	}
	q, err := s.Query(tag)
	if err != nil {
		return nil, err
	}
	return s.Results(tag, q.FieldParse(field, input))
}

func (s *Service) entry(tag string) (*registry.Entry, error) {
	entry, ok := s.reg.Lookup(tag)
	if !ok {
		return nil, fmt.Errorf("%s: %w", tag, domain.ErrUnknownType)
	}
	if !entry.Descriptor.Indexed() {
		return nil, fmt.Errorf("%s: %w", tag, domain.ErrNotIndexed)
	}
	return entry, nil
}
