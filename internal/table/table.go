// Package table holds the sparse (date, series) keyed wide table that every
// sync job reads, merges into, and rewrites, plus its CSV codec.
package table

import (
	"sort"
	"strings"
)

// Key identifies one row of the wide table. Date is an ISO day string, so
// plain string comparison sorts keys chronologically.
type Key struct {
	Date   string
	Series string
}

// Table is a sparse mapping from (date, series) to per-entity values.
// Absence of an entity cell is meaningful and distinct from zero.
type Table struct {
	cells map[Key]map[string]float64
}

// New returns an empty table.
func New() *Table {
	return &Table{cells: make(map[Key]map[string]float64)}
}

// NormalizeEntity canonicalizes an entity column name: trimmed, uppercased.
func NormalizeEntity(entity string) string {
	return strings.ToUpper(strings.TrimSpace(entity))
}

// Upsert sets or overwrites the value for one (date, series, entity) cell.
func (t *Table) Upsert(date, series, entity string, value float64) {
	key := Key{Date: date, Series: series}
	row, ok := t.cells[key]
	if !ok {
		row = make(map[string]float64)
		t.cells[key] = row
	}
	row[NormalizeEntity(entity)] = value
}

// Value returns the cell value and whether it is present.
func (t *Table) Value(date, series, entity string) (float64, bool) {
	row, ok := t.cells[Key{Date: date, Series: series}]
	if !ok {
		return 0, false
	}
	v, ok := row[NormalizeEntity(entity)]
	return v, ok
}

// Row returns the entity map for a key, or nil when the row does not exist.
// The returned map is live; callers must not mutate it.
func (t *Table) Row(date, series string) map[string]float64 {
	return t.cells[Key{Date: date, Series: series}]
}

// Len returns the number of rows (keys) in the table.
func (t *Table) Len() int {
	return len(t.cells)
}

// MaxDate returns the latest date with any row under the given series, and
// whether the series has any rows at all.
func (t *Table) MaxDate(series string) (string, bool) {
	var best string
	for key := range t.cells {
		if key.Series == series && key.Date > best {
			best = key.Date
		}
	}
	return best, best != ""
}

// HasValue reports whether the entity has at least one value anywhere under
// the series. Used by the resume policy to detect newly added entities.
func (t *Table) HasValue(series, entity string) bool {
	entity = NormalizeEntity(entity)
	for key, row := range t.cells {
		if key.Series != series {
			continue
		}
		if _, ok := row[entity]; ok {
			return true
		}
	}
	return false
}

// DeleteSeries removes every row under the series. Derived series are
// rebuilt from scratch on every run, so stale rows must not survive.
func (t *Table) DeleteSeries(series string) {
	for key := range t.cells {
		if key.Series == series {
			delete(t.cells, key)
		}
	}
}

// Entities returns every entity that appears in any cell, sorted.
func (t *Table) Entities() []string {
	seen := make(map[string]struct{})
	for _, row := range t.cells {
		for entity := range row {
			seen[entity] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for entity := range seen {
		out = append(out, entity)
	}
	sort.Strings(out)
	return out
}

// Dates returns every distinct date in the table, ascending.
func (t *Table) Dates() []string {
	seen := make(map[string]struct{})
	for key := range t.cells {
		seen[key.Date] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for date := range seen {
		out = append(out, date)
	}
	sort.Strings(out)
	return out
}

// SortedKeys returns all keys sorted by date ascending, then by series rank:
// series named in seriesOrder keep their declared position, unrecognized
// series follow alphabetically.
func (t *Table) SortedKeys(seriesOrder []string) []Key {
	rank := make(map[string]int, len(seriesOrder))
	for i, s := range seriesOrder {
		rank[s] = i
	}
	unranked := len(seriesOrder)

	keys := make([]Key, 0, len(t.cells))
	for key := range t.cells {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Date != keys[j].Date {
			return keys[i].Date < keys[j].Date
		}
		ri, ok := rank[keys[i].Series]
		if !ok {
			ri = unranked
		}
		rj, ok := rank[keys[j].Series]
		if !ok {
			rj = unranked
		}
		if ri != rj {
			return ri < rj
		}
		return keys[i].Series < keys[j].Series
	})
	return keys
}
