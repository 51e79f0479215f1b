package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUpMigration(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"001_create_users.up.sql", true},
		{"20240115120000_add_index.up.sql", true},
		{"001_create_users.down.sql", false},
		{"001_create_users.sql", false},
		{"001_create_users.up.sql.swp", false},
		{"001_create_users.UP.SQL", false},
		{"README.md", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUpMigration(tt.name))
		})
	}
}

func TestParseMigrations(t *testing.T) {
	t.Run("pairs_up_and_down_files", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{
			"001_create_users.up.sql":   "create table users (id serial primary key);",
			"001_create_users.down.sql": "drop table users;",
			"002_create_posts.up.sql":   "create table posts (id serial primary key, user_id integer);",
			"003_index_users.up.sql":    "create index users_id_index on users(id);",
		})

		migrations, err := ParseMigrations(dir)
		require.NoError(t, err)
		require.Len(t, migrations, 3)

		assert.Equal(t, Migration{
			Name:     "001_create_users",
			UpFile:   filepath.Join(dir, "001_create_users.up.sql"),
			DownFile: filepath.Join(dir, "001_create_users.down.sql"),
		}, migrations[0])
		assert.Equal(t, "002_create_posts", migrations[1].Name)
		assert.Equal(t, "003_index_users", migrations[2].Name)
		assert.Empty(t, migrations[2].DownFile)
	})

	t.Run("empty_directory_returns_empty_slice", func(t *testing.T) {
		migrations, err := ParseMigrations(t.TempDir())
		require.NoError(t, err)
		assert.NotNil(t, migrations)
		assert.Empty(t, migrations)
	})

	t.Run("ignores_non_migration_files", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{
			"README.md":            "# migrations",
			"001_notes.txt":        "not a migration",
			"002_seed.sql":         "insert into users values (1);",
			"003_valid.up.sql":     "create table audits (id int);",
			"004_orphan.down.sql":  "drop table orphan;",
			".003_valid.up.sql.sw": "editor swap file",
		})

		migrations, err := ParseMigrations(dir)
		require.NoError(t, err)
		require.Len(t, migrations, 1)
		assert.Equal(t, "003_valid", migrations[0].Name)
		assert.Empty(t, migrations[0].DownFile)
	})

	t.Run("timestamp_names_sort_chronologically", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{
			"20240220143000_add_inventory.up.sql":     "alter table products add column inventory integer;",
			"20240115120000_create_products.up.sql":   "create table products (id serial primary key);",
			"20240115120000_create_products.down.sql": "drop table products;",
		})

		migrations, err := ParseMigrations(dir)
		require.NoError(t, err)
		require.Len(t, migrations, 2)
		assert.Equal(t, "20240115120000_create_products", migrations[0].Name)
		assert.Equal(t, "20240220143000_add_inventory", migrations[1].Name)
	})

	t.Run("walks_subdirectories", func(t *testing.T) {
		dir := t.TempDir()
		nested := filepath.Join(dir, "2024")
		require.NoError(t, os.Mkdir(nested, 0o755))
		writeFiles(t, dir, map[string]string{"001_users.up.sql": "create table users (id int);"})
		writeFiles(t, nested, map[string]string{"002_posts.up.sql": "create table posts (id int);"})

		migrations, err := ParseMigrations(dir)
		require.NoError(t, err)
		require.Len(t, migrations, 2)
		assert.Equal(t, filepath.Join(nested, "002_posts.up.sql"), migrations[1].UpFile)
	})

	t.Run("missing_directory", func(t *testing.T) {
		_, err := ParseMigrations(filepath.Join(t.TempDir(), "missing"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to walk migration directory")
	})

	t.Run("unreadable_directory", func(t *testing.T) {
		if os.Getuid() == 0 {
			t.Skip("skipping permission test when running as root")
		}

		dir := t.TempDir()
		if err := os.Chmod(dir, 0o000); err != nil {
			t.Skip("cannot change directory permissions")
		}
		defer os.Chmod(dir, 0o755)

		_, err := ParseMigrations(dir)
		assert.Error(t, err)
	})
}

func TestFileMigrationReader(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"001_users.up.sql": "create table users (id int);"})

	migrations, err := NewFileMigrationReader().DiscoverMigrations(dir)
	require.NoError(t, err)
	require.Len(t, migrations, 1)
	assert.Equal(t, "001_users", migrations[0].Name)
}
