package providers

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/alc6/schematrack/schema"
)

// catalog is the per-database metadata queries behind a provider
type catalog interface {
	tables(ctx context.Context, db *sql.DB) ([]string, error)
	columns(ctx context.Context, db *sql.DB, table string) (map[string]schema.Column, error)
	indexes(ctx context.Context, db *sql.DB, table string) (map[string]schema.Index, error)
	foreignKeys(ctx context.Context, db *sql.DB, table string) (map[string]schema.ForeignKey, error)
}

func extractSchema(ctx context.Context, db *sql.DB, c catalog, params ExtractParams) (schema.Schema, error) {
	if db == nil {
		return nil, fmt.Errorf("schema extraction requires a database connection")
	}

	slog.Debug("starting schema extraction")
	names, err := c.tables(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	skip := params.excluded()
	result := make(schema.Schema, len(names))
	for _, name := range names {
		if skip[name] {
			slog.Debug("skipping excluded table", "table", name)
			continue
		}
		slog.Debug("processing table", "table", name)

		table := schema.NewTable()
		if table.Columns, err = c.columns(ctx, db, name); err != nil {
			return nil, fmt.Errorf("failed to get columns for table %s: %w", name, err)
		}
		if table.Indexes, err = c.indexes(ctx, db, name); err != nil {
			return nil, fmt.Errorf("failed to get indexes for table %s: %w", name, err)
		}
		if table.ForeignKeys, err = c.foreignKeys(ctx, db, name); err != nil {
			return nil, fmt.Errorf("failed to get foreign keys for table %s: %w", name, err)
		}
		slog.Debug("found table structure", "table", name,
			"columns", len(table.Columns), "indexes", len(table.Indexes), "foreign_keys", len(table.ForeignKeys))

		result[name] = table
	}

	slog.Info("schema extraction completed", "tables", len(result), "excluded", len(names)-len(result))
	return result, nil
}

// Extractor reads the live schema of one configured connection. It opens a
// connection per extraction unless built around an existing *sql.DB.
type Extractor struct {
	driver   string
	dsn      string
	db       *sql.DB
	provider SchemaProvider
	registry *ProviderRegistry
	params   ExtractParams
}

// NewExtractor returns an extractor that connects with dsn on every Extract.
func NewExtractor(registry *ProviderRegistry, driver, dsn string, params ExtractParams) (*Extractor, error) {
	provider, ok := registry.Get(driver)
	if !ok {
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
	return &Extractor{driver: driver, dsn: dsn, provider: provider, registry: registry, params: params}, nil
}

// NewDBExtractor returns an extractor bound to an already open connection,
// which it never closes.
func NewDBExtractor(provider SchemaProvider, driver string, db *sql.DB, params ExtractParams) *Extractor {
	return &Extractor{driver: driver, db: db, provider: provider, params: params}
}

// Driver returns the configured driver label
func (e *Extractor) Driver() string {
	return e.driver
}

// Extract reads the current schema.
func (e *Extractor) Extract(ctx context.Context) (schema.Schema, error) {
	db := e.db
	if db == nil {
		var err error
		if db, err = e.registry.Open(ctx, e.driver, e.dsn); err != nil {
			return nil, err
		}
		defer db.Close()
	}
	return e.provider.ExtractSchema(ctx, db, e.params)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return schema.Int(int(v.Int64))
}
