package providers

import (
	"database/sql"
	"regexp"
	"strconv"
	"strings"

	"github.com/alc6/schematrack/schema"
)

var (
	typeDeclPattern = regexp.MustCompile(`^([a-z][a-z0-9_ ]*?)\s*(?:\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\))?$`)
	castPattern     = regexp.MustCompile(`::[a-z_][a-z0-9_ ]*(\[\])?$`)
)

// numericTypes take (precision, scale) arguments rather than a length.
var numericTypes = map[string]bool{
	"decimal": true, "numeric": true, "float": true, "double": true, "real": true,
}

// parseColumnType splits a declared type such as "VARCHAR(255)",
// "decimal(10, 2)" or "int unsigned" into a base type and its arguments.
func parseColumnType(decl string) (col schema.Column) {
	decl = strings.ToLower(strings.TrimSpace(decl))
	if strings.Contains(decl, "unsigned") {
		col.Unsigned = true
		decl = strings.TrimSpace(strings.ReplaceAll(decl, "unsigned", ""))
	}
	decl = strings.TrimSpace(strings.ReplaceAll(decl, "zerofill", ""))

	m := typeDeclPattern.FindStringSubmatch(decl)
	if m == nil {
		col.Type = decl
		return col
	}
	col.Type = strings.TrimSpace(m[1])
	if m[2] == "" {
		return col
	}

	first, _ := strconv.Atoi(m[2])
	switch {
	case numericTypes[col.Type]:
		col.Precision = schema.Int(first)
		if m[3] != "" {
			second, _ := strconv.Atoi(m[3])
			col.Scale = schema.Int(second)
		}
	default:
		col.Length = schema.Int(first)
	}
	return col
}

// parseDefault turns a catalog default expression into a scalar: NULL
// becomes nil, quoted literals lose their quotes and casts, numbers become
// int64 or float64. Anything else (CURRENT_TIMESTAMP, now()) is kept as
// the expression text.
func parseDefault(raw sql.NullString) any {
	if !raw.Valid {
		return nil
	}
	s := strings.TrimSpace(raw.String)
	for castPattern.MatchString(s) {
		s = strings.TrimSpace(castPattern.ReplaceAllString(s, ""))
	}

	if strings.EqualFold(s, "null") {
		return nil
	}
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	if len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		if inner := parseDefault(sql.NullString{String: s[1 : len(s)-1], Valid: true}); inner != nil {
			if _, ok := inner.(string); !ok {
				return inner
			}
		}
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
