package providers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/alc6/schematrack/schema"
)

// SQLiteProvider reads sqlite_master and the table pragmas
type SQLiteProvider struct{}

// NewSQLiteProvider creates a new sqlite provider
func NewSQLiteProvider() SchemaProvider {
	return &SQLiteProvider{}
}

func (p *SQLiteProvider) Name() string {
	return "sqlite"
}

func (p *SQLiteProvider) Drivers() []string {
	return []string{"sqlite"}
}

func (p *SQLiteProvider) SQLDriver(string) string {
	return "sqlite"
}

func (p *SQLiteProvider) ExtractSchema(ctx context.Context, db *sql.DB, params ExtractParams) (schema.Schema, error) {
	return extractSchema(ctx, db, p, params)
}

func (p *SQLiteProvider) tables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (p *SQLiteProvider) columns(ctx context.Context, db *sql.DB, table string) (map[string]schema.Column, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type pragmaColumn struct {
		name         string
		decl         string
		notNull      bool
		defaultValue sql.NullString
		pk           int
	}
	var raw []pragmaColumn
	pkCount := 0
	for rows.Next() {
		var c pragmaColumn
		if err := rows.Scan(&c.name, &c.decl, &c.notNull, &c.defaultValue, &c.pk); err != nil {
			return nil, err
		}
		if c.pk > 0 {
			pkCount++
		}
		raw = append(raw, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	columns := make(map[string]schema.Column, len(raw))
	for _, c := range raw {
		col := parseColumnType(c.decl)
		// a lone INTEGER PRIMARY KEY aliases the rowid
		col.AutoIncrement = c.pk > 0 && pkCount == 1 && col.Type == "integer"
		col.Nullable = !c.notNull && c.pk == 0
		col.Default = parseDefault(c.defaultValue)
		col.Fixed = col.Type == "char" || col.Type == "character"
		columns[c.name] = col
	}
	return columns, nil
}

func (p *SQLiteProvider) indexes(ctx context.Context, db *sql.DB, table string) (map[string]schema.Index, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name, "unique", origin FROM pragma_index_list(?) ORDER BY name`, table)
	if err != nil {
		return nil, err
	}

	type pragmaIndex struct {
		name   string
		unique bool
		origin string
	}
	var list []pragmaIndex
	for rows.Next() {
		var idx pragmaIndex
		if err := rows.Scan(&idx.name, &idx.unique, &idx.origin); err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, idx)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	indexes := make(map[string]schema.Index, len(list))
	for _, idx := range list {
		colRows, err := db.QueryContext(ctx, `SELECT name FROM pragma_index_info(?) ORDER BY seqno`, idx.name)
		if err != nil {
			return nil, err
		}
		columns, err := scanStrings(colRows)
		if err != nil {
			return nil, fmt.Errorf("failed to read index %s: %w", idx.name, err)
		}
		indexes[idx.name] = schema.Index{
			Columns:   columns,
			IsUnique:  idx.unique,
			IsPrimary: idx.origin == "pk",
		}
	}
	return indexes, nil
}

func (p *SQLiteProvider) foreignKeys(ctx context.Context, db *sql.DB, table string) (map[string]schema.ForeignKey, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, "table", "from", "to", on_update, on_delete
		FROM pragma_foreign_key_list(?)
		ORDER BY id, seq
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int]*schema.ForeignKey)
	var order []int
	for rows.Next() {
		var (
			id                  int
			foreignTable, local string
			foreign             sql.NullString
			onUpdate, onDelete  string
		)
		if err := rows.Scan(&id, &foreignTable, &local, &foreign, &onUpdate, &onDelete); err != nil {
			return nil, err
		}
		fk, ok := byID[id]
		if !ok {
			fk = &schema.ForeignKey{ForeignTable: foreignTable, OnDelete: onDelete, OnUpdate: onUpdate}
			byID[id] = fk
			order = append(order, id)
		}
		fk.LocalColumns = append(fk.LocalColumns, local)
		fk.ForeignColumns = append(fk.ForeignColumns, foreign.String)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// sqlite constraints are anonymous; name them the way migration tools do
	fks := make(map[string]schema.ForeignKey, len(byID))
	for _, id := range order {
		fk := byID[id]
		name := fmt.Sprintf("%s_%s_foreign", table, strings.Join(fk.LocalColumns, "_"))
		fks[name] = *fk
	}
	return fks, nil
}
