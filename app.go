package main

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/alc6/schematrack/config"
	"github.com/alc6/schematrack/diff"
	"github.com/alc6/schematrack/providers"
	"github.com/alc6/schematrack/store"
	"github.com/alc6/schematrack/tracker"
)

// migrationDriver labels snapshots taken from replayed migrations.
const migrationDriver = "pgsql"

// app wires configuration into the store, extractors and tracker
type app struct {
	cfg      *config.Config
	registry *providers.ProviderRegistry
	store    *store.FileStore
	policy   diff.Policy
	envs     map[string]tracker.Environment
	tracker  *tracker.Tracker
	out      io.Writer

	// migration replay collaborators, replaced in tests
	migrationReader   MigrationReader
	migrationProvider providers.SchemaProvider
	newDBManager      func(image string) DatabaseManager
}

func newApp(cfg *config.Config, out io.Writer) (*app, error) {
	st, err := store.NewFileStore(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}

	policy, err := cfg.Policy()
	if err != nil {
		return nil, fmt.Errorf("failed to build breaking change policy: %w", err)
	}

	a := &app{
		cfg:      cfg,
		registry: providers.DefaultRegistry(),
		store:    st,
		policy:   policy,
		envs:     make(map[string]tracker.Environment),
		out:      out,

		migrationReader:   NewFileMigrationReader(),
		migrationProvider: providers.NewPostgresProvider(),
		newDBManager: func(image string) DatabaseManager {
			return NewPostgreSQLManager(image)
		},
	}

	extractor, err := a.extractorFor(cfg.Connection)
	if err != nil {
		return nil, err
	}

	for name, env := range cfg.Environments {
		envExtractor, err := a.extractorFor(env.Connection)
		if err != nil {
			return nil, fmt.Errorf("environment %s: %w", name, err)
		}
		a.envs[name] = tracker.Environment{Enabled: env.Enabled, Extractor: envExtractor}
	}

	a.tracker = a.newTracker(extractor)
	return a, nil
}

func (a *app) params() providers.ExtractParams {
	return providers.ExtractParams{ExcludeTables: a.cfg.ExcludeTables}
}

// extractorFor returns nil for a connection without a driver.
func (a *app) extractorFor(conn config.Connection) (tracker.SchemaExtractor, error) {
	if !conn.Configured() {
		return nil, nil
	}
	dsn, err := conn.BuildDSN()
	if err != nil {
		return nil, err
	}
	extractor, err := providers.NewExtractor(a.registry, conn.Driver, dsn, a.params())
	if err != nil {
		return nil, err
	}
	return extractor, nil
}

// migrationExtractor reads a database produced by replaying migrations.
func (a *app) migrationExtractor(db *sql.DB) tracker.SchemaExtractor {
	return providers.NewDBExtractor(a.migrationProvider, migrationDriver, db, a.params())
}

func (a *app) newTracker(extractor tracker.SchemaExtractor) *tracker.Tracker {
	opts := []tracker.Option{
		tracker.WithEngine(diff.NewEngine(diff.WithIndexComparison(a.cfg.Diff.CompareIndexes))),
		tracker.WithPolicy(a.policy),
		tracker.WithPrefix(a.cfg.SnapshotPrefix),
		tracker.WithAutoSnapshot(a.cfg.AutoSnapshot),
	}
	for name, env := range a.envs {
		opts = append(opts, tracker.WithEnvironment(name, env))
	}
	return tracker.New(a.store, extractor, opts...)
}
