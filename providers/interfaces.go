package providers

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/alc6/schematrack/schema"
)

// SchemaProvider extracts the schema of one family of databases
type SchemaProvider interface {
	// Name returns the provider name for identification
	Name() string

	// Drivers lists the configuration driver names this provider serves
	Drivers() []string

	// SQLDriver returns the database/sql driver registered for a configuration driver
	SQLDriver(driver string) string

	// ExtractSchema reads every non-excluded table from an open connection.
	// The context allows for cancellation and timeout control
	ExtractSchema(ctx context.Context, db *sql.DB, params ExtractParams) (schema.Schema, error)
}

// ExtractParams contains parameters shared by every provider
type ExtractParams struct {
	// ExcludeTables are skipped entirely
	ExcludeTables []string
}

func (p ExtractParams) excluded() map[string]bool {
	set := make(map[string]bool, len(p.ExcludeTables))
	for _, name := range p.ExcludeTables {
		set[name] = true
	}
	return set
}

// ProviderRegistry maps configuration driver names to providers
type ProviderRegistry struct {
	providers map[string]SchemaProvider
}

// NewProviderRegistry creates an empty registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]SchemaProvider),
	}
}

// DefaultRegistry returns a registry with the postgres, mysql and sqlite providers.
func DefaultRegistry() *ProviderRegistry {
	r := NewProviderRegistry()
	r.Register(NewPostgresProvider())
	r.Register(NewMySQLProvider())
	r.Register(NewSQLiteProvider())
	return r
}

// Register adds a provider under each of its driver names
func (r *ProviderRegistry) Register(provider SchemaProvider) {
	for _, driver := range provider.Drivers() {
		r.providers[driver] = provider
	}
}

// Get retrieves the provider for a driver name
func (r *ProviderRegistry) Get(driver string) (SchemaProvider, bool) {
	provider, exists := r.providers[driver]
	return provider, exists
}

// Drivers returns every registered driver name in order
func (r *ProviderRegistry) Drivers() []string {
	drivers := make([]string, 0, len(r.providers))
	for driver := range r.providers {
		drivers = append(drivers, driver)
	}
	sort.Strings(drivers)
	return drivers
}

// Open opens and pings a connection for driver using the provider's sql driver.
func (r *ProviderRegistry) Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	provider, ok := r.Get(driver)
	if !ok {
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
	db, err := sql.Open(provider.SQLDriver(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}
	return db, nil
}
