package providers

import (
	"fmt"
	"strings"

	"github.com/alc6/schematrack/schema"
)

// FormatSchemaInfo formats schema as human-readable text
func FormatSchemaInfo(s schema.Schema) string {
	var sb strings.Builder

	for _, name := range s.TableNames() {
		table := s[name]
		primary := primaryColumns(table)

		sb.WriteString(fmt.Sprintf("Table: %s\n", name))
		sb.WriteString("Columns:\n")

		for _, colName := range table.ColumnNames() {
			col := table.Columns[colName]
			nullable := "NOT NULL"
			if col.Nullable {
				nullable = "NULL"
			}

			defaultVal := ""
			if col.Default != nil {
				defaultVal = fmt.Sprintf(" DEFAULT %s", schema.FormatValue(col.Default))
			}

			extra := ""
			if col.AutoIncrement {
				extra += " AUTO_INCREMENT"
			}
			if primary[colName] {
				extra += " (PRIMARY KEY)"
			}

			sb.WriteString(fmt.Sprintf("  - %s %s %s%s%s\n",
				colName, DisplayType(col), nullable, defaultVal, extra))
		}

		if len(table.Indexes) > 0 {
			sb.WriteString("Indexes:\n")
			for _, idxName := range table.IndexNames() {
				idx := table.Indexes[idxName]
				kind := ""
				switch {
				case idx.IsPrimary:
					kind = " (PRIMARY)"
				case idx.IsUnique:
					kind = " (UNIQUE)"
				}
				sb.WriteString(fmt.Sprintf("  - %s on (%s)%s\n",
					idxName, strings.Join(idx.Columns, ", "), kind))
			}
		}

		if len(table.ForeignKeys) > 0 {
			sb.WriteString("Foreign Keys:\n")
			for _, fkName := range table.ForeignKeyNames() {
				fk := table.ForeignKeys[fkName]
				sb.WriteString(fmt.Sprintf("  - %s (%s) references %s (%s)%s\n",
					fkName, strings.Join(fk.LocalColumns, ", "), fk.ForeignTable,
					strings.Join(fk.ForeignColumns, ", "), actions(fk)))
			}
		}

		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatSchemaSQL formats schema as SQL CREATE statements
func FormatSchemaSQL(s schema.Schema) string {
	var sb strings.Builder

	for _, name := range s.TableNames() {
		table := s[name]
		sb.WriteString(fmt.Sprintf("create table %s (\n", name))

		var defs []string
		for _, colName := range table.ColumnNames() {
			col := table.Columns[colName]
			var colDef strings.Builder
			colDef.WriteString(fmt.Sprintf("    %s %s", colName, strings.ToLower(DisplayType(col))))

			if !col.Nullable {
				colDef.WriteString(" not null")
			}

			if col.Default != nil {
				colDef.WriteString(fmt.Sprintf(" default %s", sqlLiteral(col.Default)))
			}

			defs = append(defs, colDef.String())
		}

		var secondary []string
		for _, idxName := range table.IndexNames() {
			idx := table.Indexes[idxName]
			if idx.IsPrimary {
				defs = append(defs, fmt.Sprintf("    primary key (%s)", strings.Join(idx.Columns, ", ")))
				continue
			}
			secondary = append(secondary, idxName)
		}

		for _, fkName := range table.ForeignKeyNames() {
			fk := table.ForeignKeys[fkName]
			defs = append(defs, fmt.Sprintf("    constraint %s foreign key (%s) references %s (%s)%s",
				fkName, strings.Join(fk.LocalColumns, ", "), fk.ForeignTable,
				strings.Join(fk.ForeignColumns, ", "), strings.ToLower(actions(fk))))
		}

		sb.WriteString(strings.Join(defs, ",\n"))
		sb.WriteString("\n);\n\n")

		for _, idxName := range secondary {
			idx := table.Indexes[idxName]
			unique := ""
			if idx.IsUnique {
				unique = "unique "
			}
			sb.WriteString(fmt.Sprintf("create %sindex %s on %s (%s);\n",
				unique, idxName, name, strings.Join(idx.Columns, ", ")))
		}

		if len(secondary) > 0 {
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// DisplayType renders a column type with its arguments, e.g. VARCHAR(255),
// DECIMAL(10,2) or INTEGER UNSIGNED.
func DisplayType(col schema.Column) string {
	t := strings.ToUpper(col.Type)
	switch {
	case col.Precision != nil && col.Scale != nil:
		t = fmt.Sprintf("%s(%d,%d)", t, *col.Precision, *col.Scale)
	case col.Precision != nil:
		t = fmt.Sprintf("%s(%d)", t, *col.Precision)
	case col.Length != nil:
		t = fmt.Sprintf("%s(%d)", t, *col.Length)
	}
	if col.Unsigned {
		t += " UNSIGNED"
	}
	return t
}

func primaryColumns(table schema.Table) map[string]bool {
	cols := make(map[string]bool)
	for _, idx := range table.Indexes {
		if idx.IsPrimary {
			for _, c := range idx.Columns {
				cols[c] = true
			}
		}
	}
	return cols
}

func actions(fk schema.ForeignKey) string {
	var out string
	if fk.OnDelete != "" && fk.OnDelete != "NO ACTION" {
		out += " ON DELETE " + fk.OnDelete
	}
	if fk.OnUpdate != "" && fk.OnUpdate != "NO ACTION" {
		out += " ON UPDATE " + fk.OnUpdate
	}
	return out
}

func sqlLiteral(v any) string {
	if s, ok := v.(string); ok && !looksLikeExpression(s) {
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
	return schema.FormatValue(v)
}

func looksLikeExpression(s string) bool {
	upper := strings.ToUpper(s)
	return strings.HasPrefix(upper, "CURRENT_") || strings.HasSuffix(s, ")")
}
