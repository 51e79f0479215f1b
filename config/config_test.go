package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alc6/schematrack/diff"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schematrack.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ".schematrack", cfg.StoragePath)
	assert.True(t, cfg.AutoSnapshot)
	assert.Contains(t, cfg.ExcludeTables, "migrations")
	assert.Equal(t, []string{"production", "staging"}, cfg.EnvironmentNames())

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.True(t, policy.Watches(diff.TableRemoval))
	assert.False(t, policy.Watches(diff.IndexRemoval))
}

func TestLoad(t *testing.T) {
	t.Run("missing_default_file", func(t *testing.T) {
		t.Chdir(t.TempDir())
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "schema_snapshot", cfg.SnapshotPrefix)
	})

	t.Run("dsn_override_requires_driver", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("SCHEMA_TRACK_DSN", "postgres://localhost/app")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection driver is empty")
	})

	t.Run("dsn_override_with_driver", func(t *testing.T) {
		t.Setenv("SCHEMA_TRACK_DSN", "postgres://localhost/app")
		path := writeConfig(t, "connection:\n  driver: pgsql\n")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.True(t, cfg.Connection.Configured())
		dsn, err := cfg.Connection.BuildDSN()
		require.NoError(t, err)
		assert.Equal(t, "postgres://localhost/app", dsn)
	})

	t.Run("missing_explicit_file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
		assert.Error(t, err)
	})

	t.Run("file_overrides_defaults", func(t *testing.T) {
		path := writeConfig(t, `
storage_path: /var/lib/snapshots
auto_snapshot: false
connection:
  driver: sqlite
  database: app.db
exclude_tables: [sessions]
environments:
  staging:
    enabled: true
    connection:
      driver: mysql
      host: staging.db
      database: app
breaking_changes:
  enabled: true
  warn_on: [table_removal, nullable_to_not_null]
diff:
  compare_indexes: true
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "/var/lib/snapshots", cfg.StoragePath)
		assert.False(t, cfg.AutoSnapshot)
		assert.Equal(t, "schema_snapshot", cfg.SnapshotPrefix)
		assert.Equal(t, []string{"sessions"}, cfg.ExcludeTables)
		assert.True(t, cfg.Diff.CompareIndexes)
		assert.True(t, cfg.Environments["staging"].Enabled)
		assert.Equal(t, "mysql", cfg.Environments["staging"].Connection.Driver)

		policy, err := cfg.Policy()
		require.NoError(t, err)
		assert.True(t, policy.Watches(diff.NullableToNotNull))
		assert.False(t, policy.Watches(diff.ColumnRemoval))
	})

	t.Run("invalid_yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "storage_path: [unterminated"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"unknown_driver", func(c *Config) { c.Connection.Driver = "oracle" }, "Driver"},
		{"unknown_category", func(c *Config) { c.BreakingChanges.WarnOn = []string{"column_rename"} }, "WarnOn"},
		{"unknown_format", func(c *Config) { c.ChangelogFormats = []string{"html"} }, "ChangelogFormats"},
		{"empty_storage_path", func(c *Config) { c.StoragePath = "" }, "StoragePath"},
		{"bad_port", func(c *Config) { c.Connection.Port = 70000 }, "Port"},
		{"enabled_environment_without_driver", func(c *Config) {
			c.Environments["staging"] = Environment{Enabled: true}
		}, "environment staging"},
		{"dsn_without_driver", func(c *Config) { c.Connection.DSN = "postgres://localhost/app" }, "connection driver is empty"},
		{"environment_dsn_without_driver", func(c *Config) {
			c.Environments["production"] = Environment{Connection: Connection{DSN: "postgres://prod/app"}}
		}, "environment production has a dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(lookupFrom(map[string]string{
		"SCHEMA_TRACK_AUTO_SNAPSHOT":         "false",
		"SCHEMA_TRACK_PREFIX":                "nightly",
		"SCHEMA_TRACK_STORAGE_PATH":          "/tmp/snaps",
		"SCHEMA_TRACK_DSN":                   "postgres://localhost/app",
		"SCHEMA_TRACK_STAGING_ENABLED":       "true",
		"SCHEMA_TRACK_NOTIFICATIONS_ENABLED": "1",
	}))
	require.NoError(t, err)

	assert.False(t, cfg.AutoSnapshot)
	assert.Equal(t, "nightly", cfg.SnapshotPrefix)
	assert.Equal(t, "/tmp/snaps", cfg.StoragePath)
	assert.Equal(t, "postgres://localhost/app", cfg.Connection.DSN)
	assert.True(t, cfg.Environments["staging"].Enabled)
	assert.False(t, cfg.Environments["production"].Enabled)
	assert.True(t, cfg.Notifications.Enabled)

	err = Default().ApplyEnv(lookupFrom(map[string]string{"SCHEMA_TRACK_AUTO_SNAPSHOT": "maybe"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCHEMA_TRACK_AUTO_SNAPSHOT")
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		conn Connection
		want string
	}{
		{
			name: "explicit_dsn_wins",
			conn: Connection{Driver: "pgsql", DSN: "postgres://x/y", Host: "ignored"},
			want: "postgres://x/y",
		},
		{
			name: "postgres",
			conn: Connection{Driver: "postgres", Host: "db", Port: 5433, Username: "app", Password: "secret", Database: "shop", SSL: "require"},
			want: "postgres://app:secret@db:5433/shop?sslmode=require",
		},
		{
			name: "pgx_defaults",
			conn: Connection{Driver: "pgx", Database: "shop"},
			want: "postgres://localhost:5432/shop?sslmode=disable",
		},
		{
			name: "sqlite",
			conn: Connection{Driver: "sqlite", Database: "/data/app.db"},
			want: "/data/app.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.conn.BuildDSN()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("mysql", func(t *testing.T) {
		got, err := Connection{Driver: "mysql", Host: "db.local", Port: 3307, Username: "root", Password: "pw", Database: "app"}.BuildDSN()
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(got, "root:pw@tcp(db.local:3307)/app?"), got)
		assert.Contains(t, got, "parseTime=true")
	})

	t.Run("errors", func(t *testing.T) {
		for _, conn := range []Connection{{}, {Driver: "sqlite"}, {Driver: "oracle"}} {
			_, err := conn.BuildDSN()
			assert.Error(t, err)
		}
	})
}
