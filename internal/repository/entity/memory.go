package entity

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Memory keeps rows in process. Keys are strings and sort lexicographically.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]map[string]Row
}

// NewMemory creates an empty in-memory source.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]map[string]Row)}
}

// LoadFixtures reads a YAML file of the form
//
//	shop.Author:
//	  "1": {name: Frank Herbert}
//
// into a new in-memory source.
func LoadFixtures(path string) (*Memory, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read fixtures %s: %w", path, err)
	}
	var raw map[string]map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	m := NewMemory()
	for tag, rows := range raw {
		for key, values := range rows {
			m.Put(tag, key, values)
		}
	}
	return m, nil
}

// Put stores or replaces a row.
func (m *Memory) Put(tag, key string, values map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.tables[tag]
	if !ok {
		rows = make(map[string]Row)
		m.tables[tag] = rows
	}
	rows[key] = Row(maps.Clone(values))
}

// Remove deletes a row. Removing a missing row is a no-op.
func (m *Memory) Remove(tag, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables[tag], key)
}

// Scan returns up to limit rows with keys sorted after the given key.
func (m *Memory) Scan(_ context.Context, t *Table, after any, limit int) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.tables[t.Tag]
	from := ""
	if after != nil {
		from = keyString(after)
	}
	var out []Row
	for _, key := range slices.Sorted(maps.Keys(rows)) {
		if after != nil && key <= from {
			continue
		}
		out = append(out, withKey(t, key, rows[key]))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// ByKeys returns the stored rows among keys.
func (m *Memory) ByKeys(_ context.Context, t *Table, keys []string) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.tables[t.Tag]
	out := make([]Row, 0, len(keys))
	for _, key := range keys {
		if r, ok := rows[key]; ok {
			out = append(out, withKey(t, key, r))
		}
	}
	return out, nil
}

// Where returns the rows whose column renders as value, ordered by key.
func (m *Memory) Where(_ context.Context, t *Table, column, value string) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.tables[t.Tag]
	var out []Row
	for _, key := range slices.Sorted(maps.Keys(rows)) {
		if keyString(rows[key][column]) == value {
			out = append(out, withKey(t, key, rows[key]))
		}
	}
	return out, nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func withKey(t *Table, key string, r Row) Row {
	out := maps.Clone(r)
	if out == nil {
		out = make(Row, 1)
	}
	out[t.Key] = key
	return out
}
