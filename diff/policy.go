package diff

import (
	"fmt"
	"sort"
)

// Category names one kind of change a Policy can treat as breaking
type Category string

const (
	TableRemoval      Category = "table_removal"
	ColumnRemoval     Category = "column_removal"
	TypeChanges       Category = "type_changes"
	NullableChanges   Category = "nullable_changes"
	NullableToNotNull Category = "nullable_to_not_null"
	IndexRemoval      Category = "index_removal"
)

// DefaultCategories is the fixed rule: removing a table or column, or
// changing a column's type or nullability, is breaking.
var DefaultCategories = []Category{TableRemoval, ColumnRemoval, TypeChanges, NullableChanges}

var knownCategories = map[Category]bool{
	TableRemoval:      true,
	ColumnRemoval:     true,
	TypeChanges:       true,
	NullableChanges:   true,
	NullableToNotNull: true,
	IndexRemoval:      true,
}

// KnownCategories lists every category a policy accepts, sorted.
func KnownCategories() []string {
	out := make([]string, 0, len(knownCategories))
	for c := range knownCategories {
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}

// Policy decides whether a diff is breaking. The zero value never reports
// a breaking change; use DefaultPolicy or NewPolicy.
type Policy struct {
	enabled    bool
	categories map[Category]bool
}

// DefaultPolicy returns the policy built from DefaultCategories.
func DefaultPolicy() Policy {
	p := Policy{enabled: true, categories: make(map[Category]bool)}
	for _, c := range DefaultCategories {
		p.categories[c] = true
	}
	return p
}

// NewPolicy builds a policy from category names. A disabled policy never
// classifies anything as breaking.
func NewPolicy(enabled bool, categories []string) (Policy, error) {
	p := Policy{enabled: enabled, categories: make(map[Category]bool)}
	for _, name := range categories {
		c := Category(name)
		if !knownCategories[c] {
			return Policy{}, fmt.Errorf("unknown breaking change category: %s", name)
		}
		p.categories[c] = true
	}
	return p, nil
}

// Enabled reports whether the policy classifies anything at all.
func (p Policy) Enabled() bool {
	return p.enabled
}

// Watches reports whether the category is part of the policy.
func (p Policy) Watches(c Category) bool {
	return p.enabled && p.categories[c]
}

// IsBreaking applies the policy to the diff, stopping at the first match.
func (p Policy) IsBreaking(d *Diff) bool {
	if !p.enabled || d == nil {
		return false
	}

	if p.categories[TableRemoval] && len(d.RemovedTables) > 0 {
		return true
	}

	names := d.ModifiedTableNames()
	if p.categories[ColumnRemoval] {
		for _, name := range names {
			if len(d.ModifiedTables[name].RemovedColumns) > 0 {
				return true
			}
		}
	}

	for _, name := range names {
		td := d.ModifiedTables[name]
		for _, column := range td.ModifiedColumnNames() {
			if p.columnBreaks(td.ModifiedColumns[column]) {
				return true
			}
		}
		if p.categories[IndexRemoval] && len(td.RemovedIndexes) > 0 {
			return true
		}
	}

	return false
}

func (p Policy) columnBreaks(changes Changes) bool {
	if p.categories[TypeChanges] && changes.Has("type") {
		return true
	}
	if p.categories[NullableChanges] && changes.Has("nullable") {
		return true
	}
	if p.categories[NullableToNotNull] {
		if ch, ok := changes.Get("nullable"); ok && ch.From == true && ch.To == false {
			return true
		}
	}
	return false
}

// IsBreaking classifies the diff with the default policy.
func IsBreaking(d *Diff) bool {
	return DefaultPolicy().IsBreaking(d)
}
