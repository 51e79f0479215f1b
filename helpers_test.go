package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/alc6/schematrack/config"
	"github.com/alc6/schematrack/providers"
)

// MockDatabaseManager is a mock implementation of DatabaseManager for testing
type MockDatabaseManager struct {
	SetupFunc         func(ctx context.Context) error
	CloseFunc         func(ctx context.Context) error
	RunMigrationsFunc func(migrations []Migration) error
	GetDBFunc         func() *sql.DB

	// Track calls for verification
	SetupCalled         bool
	CloseCalled         bool
	RunMigrationsCalled bool
	GetDBCalled         bool
}

func (m *MockDatabaseManager) Setup(ctx context.Context) error {
	m.SetupCalled = true
	if m.SetupFunc != nil {
		return m.SetupFunc(ctx)
	}
	return nil
}

func (m *MockDatabaseManager) Close(ctx context.Context) error {
	m.CloseCalled = true
	if m.CloseFunc != nil {
		return m.CloseFunc(ctx)
	}
	return nil
}

func (m *MockDatabaseManager) RunMigrations(migrations []Migration) error {
	m.RunMigrationsCalled = true
	if m.RunMigrationsFunc != nil {
		return m.RunMigrationsFunc(migrations)
	}
	return nil
}

func (m *MockDatabaseManager) GetDB() *sql.DB {
	m.GetDBCalled = true
	if m.GetDBFunc != nil {
		return m.GetDBFunc()
	}
	return nil
}

// MockMigrationReader is a mock implementation of MigrationReader for testing
type MockMigrationReader struct {
	DiscoverMigrationsFunc func(dir string) ([]Migration, error)
}

func (m *MockMigrationReader) DiscoverMigrations(dir string) ([]Migration, error) {
	if m.DiscoverMigrationsFunc != nil {
		return m.DiscoverMigrationsFunc(dir)
	}
	return []Migration{}, nil
}

// newSQLiteManager returns a DatabaseManager that replays migrations into a
// fresh SQLite file instead of a PostgreSQL container.
func newSQLiteManager(t *testing.T) *MockDatabaseManager {
	t.Helper()
	var db *sql.DB
	return &MockDatabaseManager{
		SetupFunc: func(ctx context.Context) error {
			var err error
			db, err = sql.Open("sqlite", filepath.Join(t.TempDir(), "replay.db"))
			if err != nil {
				return err
			}
			return db.PingContext(ctx)
		},
		CloseFunc: func(context.Context) error {
			return db.Close()
		},
		RunMigrationsFunc: func(migrations []Migration) error {
			for _, m := range migrations {
				content, err := os.ReadFile(m.UpFile)
				if err != nil {
					return err
				}
				if _, err := db.Exec(string(content)); err != nil {
					return fmt.Errorf("migration %s: %w", m.Name, err)
				}
			}
			return nil
		},
		GetDBFunc: func() *sql.DB { return db },
	}
}

// writeFiles writes name -> content pairs under dir.
func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

// newSQLiteDatabase creates a SQLite database file with the given statements
// applied and returns its path.
func newSQLiteDatabase(t *testing.T, statements ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return path
}

// testConfig returns a configuration storing snapshots in a temp directory
// and reading the SQLite database at dbPath.
func testConfig(t *testing.T, dbPath string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.StoragePath = filepath.Join(t.TempDir(), "snapshots")
	cfg.Connection = config.Connection{Driver: "sqlite", Database: dbPath}
	cfg.ExcludeTables = nil
	return cfg
}

// newTestApp wires cfg with migration replay going to SQLite.
func newTestApp(t *testing.T, cfg *config.Config) (*app, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	a, err := newApp(cfg, out)
	require.NoError(t, err)
	a.migrationProvider = providers.NewSQLiteProvider()
	a.newDBManager = func(string) DatabaseManager { return newSQLiteManager(t) }
	return a, out
}

// writeConfig marshals cfg to a YAML file and returns its path.
func writeConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), config.DefaultFile)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
