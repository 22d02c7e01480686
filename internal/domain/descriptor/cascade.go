package descriptor

import (
	"fmt"

	"github.com/kailas-cloud/indexsync/internal/domain/entity"
)

type resultKind int

const (
	resultNone resultKind = iota
	resultOne
	resultMany
)

// CascadeResult is the outcome of resolving one cascade rule: nothing, one entity or many.
type CascadeResult struct {
	kind resultKind
	one  entity.Entity
	many []entity.Entity
}

// None is the empty cascade result.
func None() CascadeResult { return CascadeResult{} }

// One wraps a single target. A nil target is None.
func One(e entity.Entity) CascadeResult {
	if e == nil {
		return None()
	}
	return CascadeResult{kind: resultOne, one: e}
}

// Many wraps several targets.
func Many(es ...entity.Entity) CascadeResult {
	if len(es) == 0 {
		return None()
	}
	return CascadeResult{kind: resultMany, many: es}
}

// Normalize converts a relation attribute value into a cascade result.
// Values that are not entities are treated as None.
func Normalize(v any) CascadeResult {
	switch x := v.(type) {
	case CascadeResult:
		return x
	case entity.Entity:
		return One(x)
	case []entity.Entity:
		return Many(x...)
	case []any:
		out := make([]entity.Entity, 0, len(x))
		for _, item := range x {
			if e, ok := item.(entity.Entity); ok && e != nil {
				out = append(out, e)
			}
		}
		return Many(out...)
	}
	return None()
}

// Targets returns the result as a sequence.
func (r CascadeResult) Targets() []entity.Entity {
	switch r.kind {
	case resultOne:
		return []entity.Entity{r.one}
	case resultMany:
		out := make([]entity.Entity, 0, len(r.many))
		for _, e := range r.many {
			if e != nil {
				out = append(out, e)
			}
		}
		return out
	}
	return nil
}

// IsNone reports whether the result holds no target.
func (r CascadeResult) IsNone() bool { return r.kind == resultNone }

// CascadeRule names the entities whose documents embed data from the owning entity.
type CascadeRule struct {
	Attr    string
	Resolve func(e entity.Entity) (CascadeResult, error)
}

// CascadeAttr follows a relation attribute.
func CascadeAttr(name string) CascadeRule {
	return CascadeRule{Attr: name}
}

// CascadeFunc computes targets with a function.
func CascadeFunc(fn func(e entity.Entity) (CascadeResult, error)) CascadeRule {
	return CascadeRule{Resolve: fn}
}

func (c CascadeRule) String() string {
	if c.Attr != "" {
		return c.Attr
	}
	return "func"
}

// resolve never panics; any failure is returned as an error.
func (c CascadeRule) resolve(e entity.Entity) (res CascadeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = None(), fmt.Errorf("cascade %s panicked: %v", c, r)
		}
	}()

	if c.Resolve != nil {
		return c.Resolve(e)
	}
	if c.Attr == "" {
		return None(), nil
	}
	v, err := e.Attr(c.Attr)
	if err != nil {
		return None(), err //nolint:wrapcheck // entity errors already name the attribute
	}
	return Normalize(v), nil
}
