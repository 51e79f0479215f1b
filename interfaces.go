package main

import (
	"context"
	"database/sql"
)

// DatabaseManager handles the lifecycle of the throwaway database that
// migrations are replayed into
type DatabaseManager interface {
	// Setup creates and initializes the database connection
	Setup(ctx context.Context) error
	// Close cleans up database resources
	Close(ctx context.Context) error
	// RunMigrations executes the provided migrations
	RunMigrations(migrations []Migration) error
	// GetDB returns the underlying database connection
	GetDB() *sql.DB
}

// MigrationReader handles reading migration files
type MigrationReader interface {
	// DiscoverMigrations finds all migration files in the given directory
	DiscoverMigrations(dir string) ([]Migration, error)
}
