package report

import (
	"fmt"
	"strings"

	"github.com/alc6/schematrack/diff"
	"github.com/alc6/schematrack/schema"
)

// MarkdownRenderer renders GitHub-flavoured markdown with a summary block
type MarkdownRenderer struct {
	policy diff.Policy
}

func (r *MarkdownRenderer) Format() Format {
	return FormatMarkdown
}

func (r *MarkdownRenderer) Render(d *diff.Diff) string {
	var sb strings.Builder
	sb.WriteString("# Schema Changes\n\n")
	r.writeBody(&sb, orEmpty(d), 2)
	return sb.String()
}

func (r *MarkdownRenderer) RenderChangelog(e Entry) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Schema Changes (%s → %s)\n\n", e.From.Label(), e.To.Label()))
	r.writeBody(&sb, orEmpty(e.Diff), 3)
	return sb.String()
}

func (r *MarkdownRenderer) RenderHistory(h History) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", h.Title))
	if !h.GeneratedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Generated on: %s\n\n", h.GeneratedAt.Format(TimeLayout)))
	}
	for _, e := range h.Entries {
		sb.WriteString(r.RenderChangelog(e))
		sb.WriteString("\n---\n\n")
	}
	return sb.String()
}

// writeBody writes the change sections with their headings at level and
// table headings one level deeper, then the summary block.
func (r *MarkdownRenderer) writeBody(sb *strings.Builder, d *diff.Diff, level int) {
	section := strings.Repeat("#", level)
	sub := section + "#"

	if len(d.NewTables) > 0 {
		sb.WriteString(section + " New Tables\n\n")
		for _, table := range d.NewTables {
			sb.WriteString(fmt.Sprintf("- `%s`\n", table))
		}
		sb.WriteString("\n")
	}

	if len(d.RemovedTables) > 0 {
		sb.WriteString(section + " Removed Tables\n\n")
		for _, table := range d.RemovedTables {
			sb.WriteString(fmt.Sprintf("- `%s`\n", table))
		}
		sb.WriteString("\n")
	}

	if len(d.ModifiedTables) > 0 {
		sb.WriteString(section + " Modified Tables\n\n")
		for _, table := range d.ModifiedTableNames() {
			td := d.ModifiedTables[table]
			sb.WriteString(fmt.Sprintf("%s `%s`\n\n", sub, table))

			writeMarkdownList(sb, "Added Columns", td.NewColumns)
			writeMarkdownList(sb, "Removed Columns", td.RemovedColumns)
			writeMarkdownChanges(sb, "Modified Columns", td.ModifiedColumnNames(), td.ModifiedColumns)
			writeMarkdownList(sb, "Added Indexes", td.NewIndexes)
			writeMarkdownList(sb, "Removed Indexes", td.RemovedIndexes)
			writeMarkdownChanges(sb, "Modified Indexes", td.ModifiedIndexNames(), td.ModifiedIndexes)
		}
	}

	s := diff.Summarize(d, r.policy)
	breaking := "No"
	if s.BreakingChanges {
		breaking = "Yes"
	}
	sb.WriteString(section + " Summary\n\n")
	sb.WriteString(fmt.Sprintf("- **Total Changes**: %d\n", s.TotalChanges))
	sb.WriteString(fmt.Sprintf("- **New Tables**: %d\n", s.NewTables))
	sb.WriteString(fmt.Sprintf("- **Removed Tables**: %d\n", s.RemovedTables))
	sb.WriteString(fmt.Sprintf("- **Modified Tables**: %d\n", s.ModifiedTables))
	sb.WriteString(fmt.Sprintf("- **Breaking Changes**: %s\n", breaking))
}

func writeMarkdownList(sb *strings.Builder, label string, names []string) {
	if len(names) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("**%s:**\n", label))
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("- `%s`\n", name))
	}
	sb.WriteString("\n")
}

func writeMarkdownChanges(sb *strings.Builder, label string, names []string, changes map[string]diff.Changes) {
	if len(names) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("**%s:**\n", label))
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("- `%s`:\n", name))
		for _, key := range changes[name].Keys() {
			ch := changes[name][key]
			sb.WriteString(fmt.Sprintf("  - **%s**: `%s` → `%s`\n",
				diff.FieldName(key), schema.FormatValue(ch.From), schema.FormatValue(ch.To)))
		}
	}
	sb.WriteString("\n")
}
