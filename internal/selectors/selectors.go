// Package selectors loads per-site CSS selector overrides from a JSON file so
// that markup drift can be patched without a rebuild.
//
// The file maps site -> page type -> field -> ordered selectors:
//
//	{"mercari": {"detail": {"price": ["[data-testid='price']"]}}}
package selectors

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

const (
	PageDetail = "detail"
	PagePatrol = "patrol"
	PageSearch = "search"
)

type table map[string]map[string]map[string][]string

// Table is a concurrency-safe override table. A nil *Table is empty.
type Table struct {
	path string

	mu      sync.RWMutex
	entries table
}

// Load reads path. A missing file yields an empty table.
func Load(path string) (*Table, error) {
	t := &Table{path: path, entries: table{}}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// FromMap builds a table from literal entries.
func FromMap(entries map[string]map[string]map[string][]string) *Table {
	return &Table{entries: entries}
}

// Reload re-reads the backing file, keeping the previous entries on error.
func (t *Table) Reload() error {
	if t.path == "" {
		return nil
	}

	data, err := os.ReadFile(t.path)
	if errors.Is(err, os.ErrNotExist) {
		t.mu.Lock()
		t.entries = table{}
		t.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read selector overrides: %w", err)
	}

	var entries table
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse selector overrides %s: %w", t.path, err)
	}

	t.mu.Lock()
	t.entries = entries
	t.mu.Unlock()
	return nil
}

// Get returns the override selectors for a field, or nil.
func (t *Table) Get(site, pageType, field string) []string {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[site][pageType][field]
}

// Prefer returns a selector source that yields the overrides for a field
// followed by defaults.
func (t *Table) Prefer(site, pageType, field string, defaults ...string) func() []string {
	return func() []string {
		override := t.Get(site, pageType, field)
		if len(override) == 0 {
			return defaults
		}
		out := make([]string, 0, len(override)+len(defaults))
		out = append(out, override...)
		return append(out, defaults...)
	}
}

// Sites lists the sites that have overrides, sorted.
func (t *Table) Sites() []string {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.entries))
	for site := range t.entries {
		out = append(out, site)
	}
	sort.Strings(out)
	return out
}
