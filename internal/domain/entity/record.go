package entity

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Resolver loads a relation attribute on first access.
type Resolver func() (any, error)

// Record is a generic Entity backed by a value map and lazy relations.
type Record struct {
	tag       string
	key       string
	values    map[string]any
	kinds     map[string]Kind
	relations map[string]Resolver

	mu       sync.Mutex
	resolved map[string]any
	match    map[string]any
}

var (
	_ Entity        = (*Record)(nil)
	_ Kinded        = (*Record)(nil)
	_ MatchReceiver = (*Record)(nil)
)

// NewRecord creates an empty record of the given type.
func NewRecord(tag, key string) *Record {
	return &Record{
		tag:       tag,
		key:       key,
		values:    make(map[string]any),
		kinds:     make(map[string]Kind),
		relations: make(map[string]Resolver),
	}
}

// Set stores a plain attribute value with an optional declared kind.
func (r *Record) Set(name string, value any, kind ...Kind) *Record {
	r.values[name] = value
	if len(kind) > 0 && kind[0] != "" {
		r.kinds[name] = kind[0]
	}
	return r
}

// Relate registers a lazily resolved relation attribute.
func (r *Record) Relate(name string, fn Resolver) *Record {
	r.relations[name] = fn
	r.kinds[name] = KindRelation
	return r
}

// TypeTag returns the record's type tag.
func (r *Record) TypeTag() string { return r.tag }

// Key returns the natural key.
func (r *Record) Key() string { return r.key }

// Attr returns a plain value or resolves a relation. Resolved relations are memoized.
func (r *Record) Attr(name string) (any, error) {
	if v, ok := r.values[name]; ok {
		return v, nil
	}
	fn, ok := r.relations[name]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", r.tag, name, ErrNoAttribute)
	}

	r.mu.Lock()
	if v, ok := r.resolved[name]; ok {
		r.mu.Unlock()
		return v, nil
	}
	r.mu.Unlock()

	v, err := fn()
	if err != nil {
		return nil, fmt.Errorf("resolve %s.%s: %w", r.tag, name, err)
	}

	r.mu.Lock()
	if r.resolved == nil {
		r.resolved = make(map[string]any)
	}
	r.resolved[name] = v
	r.mu.Unlock()
	return v, nil
}

// AttrKind returns the declared kind, or "" when undeclared.
func (r *Record) AttrKind(name string) Kind { return r.kinds[name] }

// SetMatch attaches search match metadata under attr.
func (r *Record) SetMatch(attr string, m any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.match == nil {
		r.match = make(map[string]any)
	}
	r.match[attr] = m
}

// Match returns metadata previously attached with SetMatch.
func (r *Record) Match(attr string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.match[attr]
	return m, ok
}

// Values returns a copy of the plain attribute values.
func (r *Record) Values() map[string]any {
	return maps.Clone(r.values)
}

// Relations returns the relation attribute names, sorted.
func (r *Record) Relations() []string {
	return slices.Sorted(maps.Keys(r.relations))
}

// Snapshot copies the record so it survives the deletion of its row.
// Relations keep their resolvers; resolved values are carried over.
func (r *Record) Snapshot() *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Record{
		tag:       r.tag,
		key:       r.key,
		values:    maps.Clone(r.values),
		kinds:     maps.Clone(r.kinds),
		relations: maps.Clone(r.relations),
		resolved:  maps.Clone(r.resolved),
	}
}
