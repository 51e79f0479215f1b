package diff

import (
	"log/slog"
	"slices"
	"sort"

	"github.com/alc6/schematrack/schema"
)

// Engine computes diffs between two schemas. It only reads its inputs.
type Engine struct {
	compareIndexes bool
}

// Option configures an Engine
type Option func(*Engine)

// WithIndexComparison enables diffing of indexes into the new_indexes,
// removed_indexes and modified_indexes fields.
func WithIndexComparison(enabled bool) Option {
	return func(e *Engine) {
		e.compareIndexes = enabled
	}
}

// NewEngine creates a diff engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CompareSnapshots diffs the schemas of two resolved snapshots.
func (e *Engine) CompareSnapshots(from, to *schema.Snapshot) *Diff {
	return e.Compute(from.Schema, to.Schema)
}

// Compute returns the structural difference going from one schema to another.
func (e *Engine) Compute(from, to schema.Schema) *Diff {
	d := New()
	d.NewTables = difference(keys(to), from)
	d.RemovedTables = difference(keys(from), to)

	for _, name := range from.TableNames() {
		toTable, ok := to[name]
		if !ok {
			continue
		}
		td := e.compareTable(from[name], toTable)
		if !td.IsEmpty() {
			d.ModifiedTables[name] = td
		}
	}

	slog.Debug("computed schema diff",
		"new_tables", len(d.NewTables),
		"removed_tables", len(d.RemovedTables),
		"modified_tables", len(d.ModifiedTables))
	return d
}

func (e *Engine) compareTable(from, to schema.Table) TableDiff {
	td := newTableDiff()

	td.NewColumns = difference(keys(to.Columns), from.Columns)
	td.RemovedColumns = difference(keys(from.Columns), to.Columns)
	for _, name := range from.ColumnNames() {
		toCol, ok := to.Columns[name]
		if !ok {
			continue
		}
		if changes := compareColumn(from.Columns[name], toCol); len(changes) > 0 {
			td.ModifiedColumns[name] = changes
		}
	}

	if !e.compareIndexes {
		return td
	}

	td.NewIndexes = difference(keys(to.Indexes), from.Indexes)
	td.RemovedIndexes = difference(keys(from.Indexes), to.Indexes)
	for _, name := range from.IndexNames() {
		toIdx, ok := to.Indexes[name]
		if !ok {
			continue
		}
		if changes := compareIndex(from.Indexes[name], toIdx); len(changes) > 0 {
			td.ModifiedIndexes[name] = changes
		}
	}
	return td
}

func compareColumn(from, to schema.Column) Changes {
	changes := Changes{}
	record := func(field string, a, b any) {
		if !schema.Equal(a, b) {
			changes[ChangeKey(field)] = Change{From: schema.Normalize(a), To: schema.Normalize(b)}
		}
	}

	record("type", from.Type, to.Type)
	record("length", from.Length, to.Length)
	record("precision", from.Precision, to.Precision)
	record("scale", from.Scale, to.Scale)
	record("nullable", from.Nullable, to.Nullable)
	record("default", from.Default, to.Default)
	record("unsigned", from.Unsigned, to.Unsigned)
	return changes
}

func compareIndex(from, to schema.Index) Changes {
	changes := Changes{}
	if !slices.Equal(from.Columns, to.Columns) {
		changes[ChangeKey("columns")] = Change{From: cloneStrings(from.Columns), To: cloneStrings(to.Columns)}
	}
	if from.IsUnique != to.IsUnique {
		changes[ChangeKey("is_unique")] = Change{From: from.IsUnique, To: to.IsUnique}
	}
	if from.IsPrimary != to.IsPrimary {
		changes[ChangeKey("is_primary")] = Change{From: from.IsPrimary, To: to.IsPrimary}
	}
	return changes
}

func cloneStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func keys[V any](m map[string]V) []string {
	return sortedKeys(m)
}

// difference returns the names missing from other, sorted.
func difference[V any](names []string, other map[string]V) []string {
	out := []string{}
	for _, name := range names {
		if _, ok := other[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
