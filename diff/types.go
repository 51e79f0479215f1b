// Package diff computes structural differences between two schemas and
// classifies them.
package diff

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/alc6/schematrack/schema"
)

const changedSuffix = "_changed"

// ColumnFields are the column attributes compared by the engine, in report order.
// auto_increment and fixed are captured in snapshots but never compared.
var ColumnFields = []string{"type", "length", "precision", "scale", "nullable", "default", "unsigned"}

// IndexFields are the index attributes compared when index comparison is enabled.
var IndexFields = []string{"columns", "is_unique", "is_primary"}

// Diff is the structural delta between two schemas
type Diff struct {
	NewTables      []string             `json:"new_tables"`
	RemovedTables  []string             `json:"removed_tables"`
	ModifiedTables map[string]TableDiff `json:"modified_tables"`
}

// New returns an empty diff with every collection allocated.
func New() *Diff {
	return &Diff{
		NewTables:      []string{},
		RemovedTables:  []string{},
		ModifiedTables: map[string]TableDiff{},
	}
}

// IsEmpty reports whether the diff carries no change at all.
func (d *Diff) IsEmpty() bool {
	if d == nil {
		return true
	}
	return len(d.NewTables) == 0 && len(d.RemovedTables) == 0 && len(d.ModifiedTables) == 0
}

// ModifiedTableNames returns the modified table names in ascending order
func (d *Diff) ModifiedTableNames() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.ModifiedTables))
	for name := range d.ModifiedTables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TableDiff is the delta of one table present on both sides
type TableDiff struct {
	NewColumns      []string           `json:"new_columns"`
	RemovedColumns  []string           `json:"removed_columns"`
	ModifiedColumns map[string]Changes `json:"modified_columns"`
	NewIndexes      []string           `json:"new_indexes"`
	RemovedIndexes  []string           `json:"removed_indexes"`
	ModifiedIndexes map[string]Changes `json:"modified_indexes"`
}

func newTableDiff() TableDiff {
	return TableDiff{
		NewColumns:      []string{},
		RemovedColumns:  []string{},
		ModifiedColumns: map[string]Changes{},
		NewIndexes:      []string{},
		RemovedIndexes:  []string{},
		ModifiedIndexes: map[string]Changes{},
	}
}

// IsEmpty reports whether the table has no column or index change.
func (t TableDiff) IsEmpty() bool {
	return t.ColumnChangeCount() == 0 && t.IndexChangeCount() == 0
}

// ColumnChangeCount counts added, removed and modified columns.
func (t TableDiff) ColumnChangeCount() int {
	return len(t.NewColumns) + len(t.RemovedColumns) + len(t.ModifiedColumns)
}

// IndexChangeCount counts added, removed and modified indexes.
func (t TableDiff) IndexChangeCount() int {
	return len(t.NewIndexes) + len(t.RemovedIndexes) + len(t.ModifiedIndexes)
}

// ModifiedColumnNames returns the modified column names in ascending order
func (t TableDiff) ModifiedColumnNames() []string {
	return sortedKeys(t.ModifiedColumns)
}

// ModifiedIndexNames returns the modified index names in ascending order
func (t TableDiff) ModifiedIndexNames() []string {
	return sortedKeys(t.ModifiedIndexes)
}

// Changes maps "<field>_changed" keys to the before/after values
type Changes map[string]Change

// Has reports whether the given field changed.
func (c Changes) Has(field string) bool {
	_, ok := c[ChangeKey(field)]
	return ok
}

// Get returns the change recorded for field.
func (c Changes) Get(field string) (Change, bool) {
	ch, ok := c[ChangeKey(field)]
	return ch, ok
}

// Keys returns the change keys, known fields first in comparison order and
// anything else sorted after them.
func (c Changes) Keys() []string {
	keys := make([]string, 0, len(c))
	seen := make(map[string]bool, len(c))
	for _, fields := range [][]string{ColumnFields, IndexFields} {
		for _, field := range fields {
			key := ChangeKey(field)
			if _, ok := c[key]; ok && !seen[key] {
				keys = append(keys, key)
				seen[key] = true
			}
		}
	}
	var rest []string
	for key := range c {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// Change holds one attribute's value before and after
type Change struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// UnmarshalJSON decodes numbers losslessly and folds them through
// schema.Normalize so a decoded change equals the computed one.
func (c *Change) UnmarshalJSON(data []byte) error {
	var raw struct {
		From any `json:"from"`
		To   any `json:"to"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	c.From = normalizeDecoded(raw.From)
	c.To = normalizeDecoded(raw.To)
	return nil
}

func normalizeDecoded(v any) any {
	list, ok := v.([]any)
	if !ok {
		return schema.Normalize(v)
	}
	strs := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return list
		}
		strs = append(strs, s)
	}
	return strs
}

// ChangeKey returns the map key used for a changed field.
func ChangeKey(field string) string {
	return field + changedSuffix
}

// FieldName strips the "_changed" suffix from a change key.
func FieldName(key string) string {
	return strings.TrimSuffix(key, changedSuffix)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
