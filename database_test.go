package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alc6/schematrack/providers"
)

func skipWithoutDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	if os.Getenv("SCHEMATRACK_SKIP_DOCKER") != "" {
		t.Skip("docker tests disabled via SCHEMATRACK_SKIP_DOCKER")
	}
}

func TestNewPostgreSQLManager(t *testing.T) {
	assert.Equal(t, defaultPostgresImage, NewPostgreSQLManager("").image)
	assert.Equal(t, "postgres:15", NewPostgreSQLManager("postgres:15").image)

	m := NewPostgreSQLManager("")
	assert.Nil(t, m.GetDB())
	assert.NoError(t, m.Close(context.Background()))

	err := m.RunMigrations([]Migration{{Name: "001_test", UpFile: "001_test.up.sql"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not set up")
}

func TestPostgreSQLManager(t *testing.T) {
	skipWithoutDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	m := NewPostgreSQLManager("")
	require.NoError(t, m.Setup(ctx))
	defer m.Close(ctx)

	require.NotNil(t, m.GetDB())
	assert.NoError(t, m.GetDB().PingContext(ctx))

	t.Run("successful_migration", func(t *testing.T) {
		testFile := filepath.Join(t.TempDir(), "001_test.up.sql")
		require.NoError(t, os.WriteFile(testFile, []byte("CREATE TABLE test_table (id SERIAL PRIMARY KEY);"), 0644))

		require.NoError(t, m.RunMigrations([]Migration{{Name: "001_test", UpFile: testFile}}))

		var exists bool
		query := `SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = 'test_table'
		)`
		require.NoError(t, m.GetDB().QueryRow(query).Scan(&exists))
		assert.True(t, exists)
	})

	t.Run("migration_file_not_found", func(t *testing.T) {
		err := m.RunMigrations([]Migration{{Name: "nonexistent", UpFile: "/nonexistent/file.sql"}})
		assert.Error(t, err)
	})
}

func TestPostgresMigrationSnapshot(t *testing.T) {
	skipWithoutDocker(t)

	migrationDir := t.TempDir()
	writeFiles(t, migrationDir, map[string]string{
		"001_create_users.up.sql": `
			create table users (
				id serial primary key,
				email varchar(255) not null unique,
				score numeric(8,2) default 0,
				created_at timestamp default current_timestamp
			);
		`,
		"002_create_posts.up.sql": `
			create table posts (
				id bigserial primary key,
				title varchar(255) not null,
				user_id integer not null references users(id) on delete cascade
			);
			create index idx_posts_user_id on posts(user_id);
		`,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg := testConfig(t, filepath.Join(t.TempDir(), "unused.db"))
	a, err := newApp(cfg, os.Stdout)
	require.NoError(t, err)

	snap, err := a.takeSnapshot(ctx, "postgres", snapshotOptions{migrations: migrationDir})
	require.NoError(t, err)
	assert.Equal(t, migrationDriver, snap.Database)

	users := snap.Schema["users"]
	assert.True(t, users.Columns["id"].AutoIncrement)
	assert.Nil(t, users.Columns["id"].Default)
	assert.Equal(t, "varchar", users.Columns["email"].Type)
	require.NotNil(t, users.Columns["email"].Length)
	assert.Equal(t, 255, *users.Columns["email"].Length)
	assert.Equal(t, "numeric", users.Columns["score"].Type)

	posts := snap.Schema["posts"]
	assert.True(t, posts.Indexes["posts_pkey"].IsPrimary)
	assert.Equal(t, []string{"user_id"}, posts.Indexes["idx_posts_user_id"].Columns)
	require.Len(t, posts.ForeignKeys, 1)
	for _, fk := range posts.ForeignKeys {
		assert.Equal(t, "users", fk.ForeignTable)
		assert.Equal(t, "CASCADE", fk.OnDelete)
	}

	assert.Contains(t, providers.FormatSchemaSQL(snap.Schema), "create table posts (")
}
