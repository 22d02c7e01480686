package backend

import (
	"context"
	"errors"
	"slices"
)

// QuerySpec is the backend-neutral description of a search.
type QuerySpec struct {
	Index string
	// Types restricts hits to these document types. Empty means all.
	Types []string
	// Text is free-text user input. Empty matches everything.
	Text string
	// Field scopes Text to a single index field.
	Field string
	Start int
	Count int
}

// Executor runs a query against one concrete engine.
type Executor interface {
	Execute(ctx context.Context, spec QuerySpec) (*Results, error)
}

// Query is an immutable query builder. Every method returns a modified copy.
type Query struct {
	exec Executor
	spec QuerySpec
}

// NewQuery creates a match-all query over index.
func NewQuery(index string, exec Executor) *Query {
	return &Query{exec: exec, spec: QuerySpec{Index: index}}
}

func (q *Query) clone() *Query {
	c := *q
	c.spec.Types = slices.Clone(q.spec.Types)
	return &c
}

// ForTypes restricts the query to the given document types.
func (q *Query) ForTypes(types ...string) *Query {
	c := q.clone()
	c.spec.Types = slices.Clone(types)
	return c
}

// Parse sets free-text input from a user.
func (q *Query) Parse(input string) *Query {
	c := q.clone()
	c.spec.Text = input
	c.spec.Field = ""
	return c
}

// FieldParse sets free-text input scoped to one field.
func (q *Query) FieldParse(field, input string) *Query {
	c := q.clone()
	c.spec.Text = input
	c.spec.Field = field
	return c
}

// Spec returns the query description without a window.
func (q *Query) Spec() QuerySpec {
	s := q.spec
	s.Types = slices.Clone(q.spec.Types)
	return s
}

// Execute runs the query for the window [start, start+count).
func (q *Query) Execute(ctx context.Context, start, count int) (*Results, error) {
	if q.exec == nil {
		return nil, errors.New("query has no executor")
	}
	if start < 0 {
		start = 0
	}
	if count < 0 {
		count = 0
	}
	spec := q.Spec()
	spec.Start = start
	spec.Count = count
	return q.exec.Execute(ctx, spec) //nolint:wrapcheck // executors wrap their own errors
}

// Hit is one matching document.
type Hit struct {
	ID     string
	Type   string
	Score  float64
	Fields map[string]any
}

// Results is the envelope returned for one window.
type Results struct {
	Total       int
	Start       int
	Hits        []Hit
	MoreMatches bool
	// Extra carries backend-specific metadata.
	Extra map[string]any
}

// Empty returns an empty envelope for a window.
func Empty(start int) *Results {
	return &Results{Start: start}
}

// Attr exposes envelope metadata by name, falling back to Extra.
func (r *Results) Attr(name string) (any, bool) {
	switch name {
	case "total":
		return r.Total, true
	case "start":
		return r.Start, true
	case "more_matches":
		return r.MoreMatches, true
	case "hits":
		return len(r.Hits), true
	}
	v, ok := r.Extra[name]
	return v, ok
}
