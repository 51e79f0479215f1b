package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const defaultPostgresImage = "postgres:16-alpine"

// PostgreSQLManager runs a disposable PostgreSQL container for replaying
// migrations
type PostgreSQLManager struct {
	image     string
	container testcontainers.Container
	db        *sql.DB
	connStr   string
}

// NewPostgreSQLManager returns a manager for image, or the default image when empty.
func NewPostgreSQLManager(image string) *PostgreSQLManager {
	if image == "" {
		image = defaultPostgresImage
	}
	return &PostgreSQLManager{image: image}
}

func (p *PostgreSQLManager) Setup(ctx context.Context) error {
	slog.Debug("starting postgresql container", "image", p.image)
	container, err := postgres.Run(ctx,
		p.image,
		postgres.WithDatabase("schematrack"),
		postgres.WithUsername("schematrack"),
		postgres.WithPassword("schematrack"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute)),
	)
	if err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	p.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("failed to get connection string: %w", err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	p.db = db
	p.connStr = connStr

	slog.Info("postgresql container ready", "image", p.image)
	return nil
}

func (p *PostgreSQLManager) Close(ctx context.Context) error {
	if p.db != nil {
		p.db.Close()
		p.db = nil
	}
	if p.container != nil {
		err := p.container.Terminate(ctx)
		p.container = nil
		return err
	}
	return nil
}

func (p *PostgreSQLManager) RunMigrations(migrations []Migration) error {
	if p.db == nil {
		return fmt.Errorf("database is not set up")
	}
	for _, migration := range migrations {
		slog.Info("running migration", "name", migration.Name, "file", migration.UpFile)

		content, err := os.ReadFile(migration.UpFile)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", migration.UpFile, err)
		}

		if _, err := p.db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", migration.Name, err)
		}

		slog.Debug("migration completed successfully", "name", migration.Name)
	}
	slog.Info("all migrations completed successfully", "count", len(migrations))
	return nil
}

func (p *PostgreSQLManager) GetDB() *sql.DB {
	return p.db
}

// FileMigrationReader discovers *.up.sql / *.down.sql pairs on disk
type FileMigrationReader struct{}

func NewFileMigrationReader() MigrationReader {
	return &FileMigrationReader{}
}

func (r *FileMigrationReader) DiscoverMigrations(dir string) ([]Migration, error) {
	return ParseMigrations(dir)
}
