// Package config loads the schematrack YAML configuration, applies
// environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"

	"github.com/alc6/schematrack/diff"
	"github.com/alc6/schematrack/report"
)

// DefaultFile is read when no config path is given. It may be absent.
const DefaultFile = "schematrack.yml"

const envPrefix = "SCHEMA_TRACK_"

// Config is the full tool configuration
type Config struct {
	StoragePath        string                 `yaml:"storage_path" validate:"required"`
	AutoSnapshot       bool                   `yaml:"auto_snapshot"`
	SnapshotPrefix     string                 `yaml:"snapshot_prefix" validate:"required"`
	Connection         Connection             `yaml:"connection"`
	SupportedDatabases []string               `yaml:"supported_databases"`
	ExcludeTables      []string               `yaml:"exclude_tables"`
	ChangelogFormats   []string               `yaml:"changelog_formats" validate:"dive,report_format"`
	Environments       map[string]Environment `yaml:"environments" validate:"dive"`
	BreakingChanges    BreakingChanges        `yaml:"breaking_changes"`
	Diff               DiffOptions            `yaml:"diff"`
	Notifications      Notifications          `yaml:"notifications"`
}

// Connection describes how to reach one database. DSN wins over the
// individual fields when both are set.
type Connection struct {
	Driver   string `yaml:"driver" validate:"omitempty,oneof=pgsql postgres pgx mysql sqlite"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSL      string `yaml:"ssl"`
}

// Environment is a named database to compare against
type Environment struct {
	Connection Connection `yaml:"connection"`
	Enabled    bool       `yaml:"enabled"`
}

type BreakingChanges struct {
	Enabled bool     `yaml:"enabled"`
	WarnOn  []string `yaml:"warn_on" validate:"dive,policy_category"`
}

type DiffOptions struct {
	CompareIndexes bool `yaml:"compare_indexes"`
}

// Notifications are parsed for compatibility; nothing sends them.
type Notifications struct {
	Enabled  bool               `yaml:"enabled"`
	Channels map[string]Channel `yaml:"channels"`
	Events   []string           `yaml:"events"`
}

type Channel struct {
	WebhookURL string `yaml:"webhook_url"`
	To         string `yaml:"to"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	warnOn := make([]string, 0, len(diff.DefaultCategories))
	for _, c := range diff.DefaultCategories {
		warnOn = append(warnOn, string(c))
	}
	return &Config{
		StoragePath:        ".schematrack",
		AutoSnapshot:       true,
		SnapshotPrefix:     "schema_snapshot",
		SupportedDatabases: []string{"pgsql", "mysql", "sqlite"},
		ExcludeTables: []string{
			"migrations", "failed_jobs", "password_reset_tokens",
			"personal_access_tokens", "sessions", "cache", "cache_locks",
		},
		ChangelogFormats: report.Formats(),
		Environments: map[string]Environment{
			"staging":    {},
			"production": {},
		},
		BreakingChanges: BreakingChanges{Enabled: true, WarnOn: warnOn},
		Notifications: Notifications{
			Events: []string{"breaking_changes", "new_tables", "removed_tables"},
		},
	}
}

// Load reads path over the defaults, applies SCHEMA_TRACK_* overrides and
// validates. An empty path means DefaultFile, which is allowed to be missing.
func Load(path string) (*Config, error) {
	cfg := Default()

	optional := path == ""
	if optional {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from SCHEMA_TRACK_* variables read via lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(envPrefix + "AUTO_SNAPSHOT"); ok {
		b, err := parseBool(envPrefix+"AUTO_SNAPSHOT", v)
		if err != nil {
			return err
		}
		c.AutoSnapshot = b
	}
	if v, ok := lookup(envPrefix + "PREFIX"); ok && v != "" {
		c.SnapshotPrefix = v
	}
	if v, ok := lookup(envPrefix + "STORAGE_PATH"); ok && v != "" {
		c.StoragePath = v
	}
	if v, ok := lookup(envPrefix + "DSN"); ok && v != "" {
		c.Connection.DSN = v
	}
	if v, ok := lookup(envPrefix + "NOTIFICATIONS_ENABLED"); ok {
		b, err := parseBool(envPrefix+"NOTIFICATIONS_ENABLED", v)
		if err != nil {
			return err
		}
		c.Notifications.Enabled = b
	}

	for name, env := range c.Environments {
		key := envPrefix + strings.ToUpper(name) + "_ENABLED"
		v, ok := lookup(key)
		if !ok {
			continue
		}
		b, err := parseBool(key, v)
		if err != nil {
			return err
		}
		env.Enabled = b
		c.Environments[name] = env
	}
	return nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("invalid boolean for %s: %q", key, value)
	}
	return b, nil
}

// Validate checks field constraints and that enabled environments can connect.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("policy_category", func(fl validator.FieldLevel) bool {
		_, err := diff.NewPolicy(true, []string{fl.Field().String()})
		return err == nil
	}); err != nil {
		return fmt.Errorf("failed to register validation: %w", err)
	}
	if err := v.RegisterValidation("report_format", func(fl validator.FieldLevel) bool {
		_, err := report.ParseFormat(fl.Field().String())
		return err == nil
	}); err != nil {
		return fmt.Errorf("failed to register validation: %w", err)
	}

	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Connection.DSN != "" && c.Connection.Driver == "" {
		return fmt.Errorf("invalid configuration: connection dsn is set but connection driver is empty")
	}
	for _, name := range c.EnvironmentNames() {
		env := c.Environments[name]
		if env.Enabled && env.Connection.Driver == "" {
			return fmt.Errorf("invalid configuration: environment %s is enabled but has no connection driver", name)
		}
		if env.Connection.DSN != "" && env.Connection.Driver == "" {
			return fmt.Errorf("invalid configuration: environment %s has a dsn but no connection driver", name)
		}
	}
	return nil
}

// Policy builds the breaking-change policy from breaking_changes.
func (c *Config) Policy() (diff.Policy, error) {
	return diff.NewPolicy(c.BreakingChanges.Enabled, c.BreakingChanges.WarnOn)
}

// EnvironmentNames returns the configured environment names in order.
func (c *Config) EnvironmentNames() []string {
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configured reports whether a driver has been set. A DSN alone is not
// enough; Validate rejects it.
func (c Connection) Configured() bool {
	return c.Driver != ""
}

// BuildDSN returns DSN when set, otherwise assembles a data source name for
// the driver from the individual fields.
func (c Connection) BuildDSN() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}

	switch c.Driver {
	case "pgsql", "postgres", "pgx":
		u := url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(orDefault(c.Host, "localhost"), strconv.Itoa(portOr(c.Port, 5432))),
			Path:   "/" + c.Database,
		}
		if c.Username != "" {
			u.User = url.UserPassword(c.Username, c.Password)
		}
		q := url.Values{}
		q.Set("sslmode", orDefault(c.SSL, "disable"))
		u.RawQuery = q.Encode()
		return u.String(), nil
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = c.Username
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(orDefault(c.Host, "127.0.0.1"), strconv.Itoa(portOr(c.Port, 3306)))
		mc.DBName = c.Database
		mc.ParseTime = true
		return mc.FormatDSN(), nil
	case "sqlite":
		if c.Database == "" {
			return "", fmt.Errorf("sqlite connection requires a database path")
		}
		return c.Database, nil
	case "":
		return "", fmt.Errorf("no database connection configured")
	default:
		return "", fmt.Errorf("unsupported driver: %s", c.Driver)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func portOr(p, def int) int {
	if p == 0 {
		return def
	}
	return p
}
