// Package schema holds the point-in-time data model captured by a snapshot.
package schema

import (
	"sort"
	"time"
)

// Snapshot is a named, immutable record of a database schema at one instant
type Snapshot struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Schema    Schema    `json:"schema"`
}

// Schema maps table names to their structure
type Schema map[string]Table

// TableNames returns the table names in ascending order
func (s Schema) TableNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Table represents a database table with its columns, indexes and foreign keys
type Table struct {
	Columns     map[string]Column     `json:"columns"`
	Indexes     map[string]Index      `json:"indexes"`
	ForeignKeys map[string]ForeignKey `json:"foreign_keys"`
}

// NewTable returns a table with all collections allocated
func NewTable() Table {
	return Table{
		Columns:     make(map[string]Column),
		Indexes:     make(map[string]Index),
		ForeignKeys: make(map[string]ForeignKey),
	}
}

// ColumnNames returns the column names in ascending order
func (t Table) ColumnNames() []string {
	return sortedKeys(t.Columns)
}

// IndexNames returns the index names in ascending order
func (t Table) IndexNames() []string {
	return sortedKeys(t.Indexes)
}

// ForeignKeyNames returns the foreign key names in ascending order
func (t Table) ForeignKeyNames() []string {
	return sortedKeys(t.ForeignKeys)
}

// Column represents a database column
type Column struct {
	Type          string `json:"type"`
	Length        *int   `json:"length"`
	Precision     *int   `json:"precision"`
	Scale         *int   `json:"scale"`
	Nullable      bool   `json:"nullable"`
	Default       any    `json:"default"`
	AutoIncrement bool   `json:"auto_increment"`
	Unsigned      bool   `json:"unsigned"`
	Fixed         bool   `json:"fixed"`
}

// Index represents a database index
type Index struct {
	Columns   []string `json:"columns"`
	IsUnique  bool     `json:"is_unique"`
	IsPrimary bool     `json:"is_primary"`
}

// ForeignKey represents a foreign key constraint
type ForeignKey struct {
	LocalColumns   []string `json:"local_columns"`
	ForeignTable   string   `json:"foreign_table"`
	ForeignColumns []string `json:"foreign_columns"`
	OnDelete       string   `json:"on_delete"`
	OnUpdate       string   `json:"on_update"`
}

// Int returns a pointer to v, handy when building columns by hand.
func Int(v int) *int {
	return &v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
