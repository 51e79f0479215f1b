package report

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/alc6/schematrack/diff"
	"github.com/alc6/schematrack/schema"
)

// TextRenderer renders plain text with +/-/~ line prefixes
type TextRenderer struct {
	policy diff.Policy
}

func (r *TextRenderer) Format() Format {
	return FormatText
}

func (r *TextRenderer) Render(d *diff.Diff) string {
	var sb strings.Builder
	writeTitle(&sb, "Schema Diff Report", '=')
	writeTextSections(&sb, orEmpty(d))
	return sb.String()
}

func (r *TextRenderer) RenderChangelog(e Entry) string {
	var sb strings.Builder
	writeTitle(&sb, fmt.Sprintf("Schema Changes (%s → %s)", e.From.Label(), e.To.Label()), '=')
	writeTextSections(&sb, orEmpty(e.Diff))
	return sb.String()
}

func (r *TextRenderer) RenderHistory(h History) string {
	var sb strings.Builder
	writeTitle(&sb, h.Title, '=')
	if !h.GeneratedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Generated on: %s\n\n", h.GeneratedAt.Format(TimeLayout)))
	}
	for _, e := range h.Entries {
		sb.WriteString(r.RenderChangelog(e))
		sb.WriteString("\n" + strings.Repeat("-", 40) + "\n\n")
	}
	return sb.String()
}

func writeTitle(sb *strings.Builder, title string, underline rune) {
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat(string(underline), utf8.RuneCountInString(title)) + "\n\n")
}

func writeTextSections(sb *strings.Builder, d *diff.Diff) {
	if len(d.NewTables) > 0 {
		sb.WriteString("New Tables:\n")
		for _, table := range d.NewTables {
			sb.WriteString(fmt.Sprintf("  + %s\n", table))
		}
		sb.WriteString("\n")
	}

	if len(d.RemovedTables) > 0 {
		sb.WriteString("Removed Tables:\n")
		for _, table := range d.RemovedTables {
			sb.WriteString(fmt.Sprintf("  - %s\n", table))
		}
		sb.WriteString("\n")
	}

	if len(d.ModifiedTables) == 0 {
		return
	}

	sb.WriteString("Modified Tables:\n")
	for _, table := range d.ModifiedTableNames() {
		td := d.ModifiedTables[table]
		sb.WriteString(fmt.Sprintf("  %s:\n", table))

		for _, column := range td.NewColumns {
			sb.WriteString(fmt.Sprintf("    + Added: %s\n", column))
		}
		for _, column := range td.RemovedColumns {
			sb.WriteString(fmt.Sprintf("    - Removed: %s\n", column))
		}
		for _, column := range td.ModifiedColumnNames() {
			writeTextChanges(sb, "Changed", column, td.ModifiedColumns[column])
		}

		for _, index := range td.NewIndexes {
			sb.WriteString(fmt.Sprintf("    + Added index: %s\n", index))
		}
		for _, index := range td.RemovedIndexes {
			sb.WriteString(fmt.Sprintf("    - Removed index: %s\n", index))
		}
		for _, index := range td.ModifiedIndexNames() {
			writeTextChanges(sb, "Changed index", index, td.ModifiedIndexes[index])
		}
	}
	sb.WriteString("\n")
}

func writeTextChanges(sb *strings.Builder, label, name string, changes diff.Changes) {
	for _, key := range changes.Keys() {
		ch := changes[key]
		sb.WriteString(fmt.Sprintf("    ~ %s: %s (%s: %s → %s)\n",
			label, name, diff.FieldName(key), schema.FormatValue(ch.From), schema.FormatValue(ch.To)))
	}
}
