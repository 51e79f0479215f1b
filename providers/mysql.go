package providers

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/alc6/schematrack/schema"
)

// MySQLProvider reads the current database through information_schema
type MySQLProvider struct{}

// NewMySQLProvider creates a new mysql provider
func NewMySQLProvider() SchemaProvider {
	return &MySQLProvider{}
}

func (p *MySQLProvider) Name() string {
	return "mysql"
}

func (p *MySQLProvider) Drivers() []string {
	return []string{"mysql"}
}

func (p *MySQLProvider) SQLDriver(string) string {
	return "mysql"
}

func (p *MySQLProvider) ExtractSchema(ctx context.Context, db *sql.DB, params ExtractParams) (schema.Schema, error) {
	return extractSchema(ctx, db, p, params)
}

func (p *MySQLProvider) tables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (p *MySQLProvider) columns(ctx context.Context, db *sql.DB, table string) (map[string]schema.Column, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			column_name,
			data_type,
			column_type,
			is_nullable,
			column_default,
			extra,
			character_maximum_length,
			numeric_precision,
			numeric_scale
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]schema.Column)
	for rows.Next() {
		var (
			name, dataType, columnType, nullable, extra string
			defaultValue                                sql.NullString
			length, precision, numericScale             sql.NullInt64
		)
		if err := rows.Scan(&name, &dataType, &columnType, &nullable, &defaultValue, &extra, &length, &precision, &numericScale); err != nil {
			return nil, err
		}

		dataType = strings.ToLower(dataType)
		col := schema.Column{
			Type:          dataType,
			Nullable:      nullable == "YES",
			Default:       parseDefault(defaultValue),
			AutoIncrement: strings.Contains(strings.ToLower(extra), "auto_increment"),
			Unsigned:      strings.Contains(strings.ToLower(columnType), "unsigned"),
			Fixed:         dataType == "char" || dataType == "binary",
		}
		switch {
		case dataType == "decimal" || dataType == "numeric":
			col.Precision = intPtr(precision)
			col.Scale = intPtr(numericScale)
		case dataType == "char" || dataType == "varchar" || dataType == "binary" || dataType == "varbinary":
			col.Length = intPtr(length)
		}
		columns[name] = col
	}
	return columns, rows.Err()
}

func (p *MySQLProvider) indexes(ctx context.Context, db *sql.DB, table string) (map[string]schema.Index, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT index_name, non_unique, column_name
		FROM information_schema.statistics
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY index_name, seq_in_index
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	indexes := make(map[string]schema.Index)
	for rows.Next() {
		var (
			name, column string
			nonUnique    int
		)
		if err := rows.Scan(&name, &nonUnique, &column); err != nil {
			return nil, err
		}
		idx := indexes[name]
		idx.Columns = append(idx.Columns, column)
		idx.IsUnique = nonUnique == 0
		idx.IsPrimary = name == "PRIMARY"
		indexes[name] = idx
	}
	return indexes, rows.Err()
}

func (p *MySQLProvider) foreignKeys(ctx context.Context, db *sql.DB, table string) (map[string]schema.ForeignKey, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT kcu.constraint_name, kcu.column_name, kcu.referenced_table_name,
			kcu.referenced_column_name, rc.delete_rule, rc.update_rule
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_schema = kcu.constraint_schema
			AND rc.constraint_name = kcu.constraint_name
		WHERE kcu.table_schema = DATABASE() AND kcu.table_name = ?
		AND kcu.referenced_table_name IS NOT NULL
		ORDER BY kcu.constraint_name, kcu.ordinal_position
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fks := make(map[string]schema.ForeignKey)
	for rows.Next() {
		var name, local, foreignTable, foreign, onDelete, onUpdate string
		if err := rows.Scan(&name, &local, &foreignTable, &foreign, &onDelete, &onUpdate); err != nil {
			return nil, err
		}
		fk := fks[name]
		fk.LocalColumns = append(fk.LocalColumns, local)
		fk.ForeignColumns = append(fk.ForeignColumns, foreign)
		fk.ForeignTable = foreignTable
		fk.OnDelete = onDelete
		fk.OnUpdate = onUpdate
		fks[name] = fk
	}
	return fks, rows.Err()
}
