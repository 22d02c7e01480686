// Package entity loads system-of-record entities from SQL tables or memory
// and exposes them as descriptor managers.
package entity

import (
	"fmt"
	"regexp"

	"github.com/kailas-cloud/indexsync/internal/domain"
	domentity "github.com/kailas-cloud/indexsync/internal/domain/entity"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Column is one plain attribute read from a table column.
type Column struct {
	Name string
	Kind domentity.Kind
}

// Relation is a lazily resolved attribute pointing at another table.
//
// A forward relation reads the target's key from Column of this table and
// resolves to one entity or nil. A reverse relation selects the target rows
// whose Column equals this entity's key and resolves to a list.
type Relation struct {
	Name    string
	Target  string
	Column  string
	Reverse bool
}

// Table describes how one entity type is stored.
type Table struct {
	Tag       string
	Name      string
	Key       string
	Columns   []Column
	Relations []Relation
}

// selectColumns returns the key, every column and every forward relation column, deduplicated.
func (t *Table) selectColumns() []string {
	seen := map[string]bool{t.Key: true}
	out := []string{t.Key}
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range t.Columns {
		add(c.Name)
	}
	for _, r := range t.Relations {
		if !r.Reverse {
			add(r.Column)
		}
	}
	return out
}

func (t *Table) kind(column string) domentity.Kind {
	for _, c := range t.Columns {
		if c.Name == column {
			return c.Kind
		}
	}
	return ""
}

func (t *Table) validate() error {
	if !domentity.ValidTag(t.Tag) {
		return fmt.Errorf("%w: type tag %q must be <namespace>.<type>", domain.ErrConfig, t.Tag)
	}
	for _, ident := range append([]string{t.Name, t.Key}, t.selectColumns()...) {
		if !identRe.MatchString(ident) {
			return fmt.Errorf("%w: %s: invalid identifier %q", domain.ErrConfig, t.Tag, ident)
		}
	}
	names := make(map[string]bool, len(t.Columns)+len(t.Relations))
	for _, c := range t.Columns {
		if names[c.Name] {
			return fmt.Errorf("%w: %s: duplicate attribute %q", domain.ErrConfig, t.Tag, c.Name)
		}
		names[c.Name] = true
	}
	for _, r := range t.Relations {
		if r.Name == "" || names[r.Name] {
			return fmt.Errorf("%w: %s: invalid relation name %q", domain.ErrConfig, t.Tag, r.Name)
		}
		if !identRe.MatchString(r.Column) {
			return fmt.Errorf("%w: %s.%s: invalid column %q", domain.ErrConfig, t.Tag, r.Name, r.Column)
		}
		names[r.Name] = true
	}
	return nil
}
