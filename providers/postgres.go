package providers

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/alc6/schematrack/schema"
)

// PostgresProvider reads the public schema through information_schema and
// the pg catalogs
type PostgresProvider struct{}

// NewPostgresProvider creates a new postgres provider
func NewPostgresProvider() SchemaProvider {
	return &PostgresProvider{}
}

func (p *PostgresProvider) Name() string {
	return "postgres"
}

func (p *PostgresProvider) Drivers() []string {
	return []string{"pgsql", "postgres", "pgx"}
}

// SQLDriver maps pgx to jackc/pgx and everything else to lib/pq.
func (p *PostgresProvider) SQLDriver(driver string) string {
	if driver == "pgx" {
		return "pgx"
	}
	return "postgres"
}

func (p *PostgresProvider) ExtractSchema(ctx context.Context, db *sql.DB, params ExtractParams) (schema.Schema, error) {
	return extractSchema(ctx, db, p, params)
}

func (p *PostgresProvider) tables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (p *PostgresProvider) columns(ctx context.Context, db *sql.DB, table string) (map[string]schema.Column, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			c.udt_name,
			c.is_nullable = 'YES' AS is_nullable,
			c.column_default,
			c.is_identity = 'YES' AS is_identity,
			c.character_maximum_length,
			c.numeric_precision,
			c.numeric_scale
		FROM information_schema.columns c
		WHERE c.table_name = $1 AND c.table_schema = 'public'
		ORDER BY c.ordinal_position
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]schema.Column)
	for rows.Next() {
		var (
			name, dataType, udtName         string
			nullable, identity              bool
			defaultValue                    sql.NullString
			length, precision, numericScale sql.NullInt64
		)
		if err := rows.Scan(&name, &dataType, &udtName, &nullable, &defaultValue, &identity, &length, &precision, &numericScale); err != nil {
			return nil, err
		}

		col := schema.Column{
			Type:     postgresType(dataType, udtName),
			Length:   intPtr(length),
			Nullable: nullable,
			Fixed:    dataType == "character",
		}
		if col.Type == "numeric" {
			col.Precision = intPtr(precision)
			col.Scale = intPtr(numericScale)
		}
		if identity || strings.HasPrefix(defaultValue.String, "nextval(") {
			col.AutoIncrement = true
		} else {
			col.Default = parseDefault(defaultValue)
		}
		columns[name] = col
	}
	return columns, rows.Err()
}

func (p *PostgresProvider) indexes(ctx context.Context, db *sql.DB, table string) (map[string]schema.Index, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT ic.relname, ix.indisunique, ix.indisprimary, a.attname
		FROM pg_class t
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_index ix ON ix.indrelid = t.oid
		JOIN pg_class ic ON ic.oid = ix.indexrelid
		JOIN LATERAL unnest(ix.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord) ON true
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE n.nspname = 'public' AND t.relname = $1
		ORDER BY ic.relname, k.ord
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	indexes := make(map[string]schema.Index)
	for rows.Next() {
		var (
			name, column      string
			unique, isPrimary bool
		)
		if err := rows.Scan(&name, &unique, &isPrimary, &column); err != nil {
			return nil, err
		}
		idx := indexes[name]
		idx.Columns = append(idx.Columns, column)
		idx.IsUnique = unique
		idx.IsPrimary = isPrimary
		indexes[name] = idx
	}
	return indexes, rows.Err()
}

func (p *PostgresProvider) foreignKeys(ctx context.Context, db *sql.DB, table string) (map[string]schema.ForeignKey, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT con.conname, a.attname, rt.relname, ra.attname,
			con.confdeltype::text, con.confupdtype::text
		FROM pg_constraint con
		JOIN pg_class t ON t.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_class rt ON rt.oid = con.confrelid
		JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(local_attnum, foreign_attnum, ord) ON true
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.local_attnum
		JOIN pg_attribute ra ON ra.attrelid = con.confrelid AND ra.attnum = k.foreign_attnum
		WHERE con.contype = 'f' AND n.nspname = 'public' AND t.relname = $1
		ORDER BY con.conname, k.ord
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
		fk.OnDelete = postgresAction(onDelete)
		fk.OnUpdate = postgresAction(onUpdate)
		fks[name] = fk
	}
	return fks, rows.Err()
}

func postgresType(dataType, udtName string) string {
	switch dataType {
	case "character varying":
		return "varchar"
	case "character":
		return "char"
	case "timestamp without time zone":
		return "timestamp"
	case "timestamp with time zone":
		return "timestamptz"
	case "time without time zone":
		return "time"
	case "time with time zone":
		return "timetz"
	case "bit varying":
		return "varbit"
	case "USER-DEFINED", "ARRAY":
		return udtName
	default:
		return strings.ToLower(dataType)
	}
}

// postgresAction decodes pg_constraint.confdeltype / confupdtype.
func postgresAction(code string) string {
	switch code {
	case "r":
		return "RESTRICT"
	case "c":
		return "CASCADE"
	case "n":
		return "SET NULL"
	case "d":
		return "SET DEFAULT"
	default:
		return "NO ACTION"
	}
}
