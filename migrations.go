package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Migration is one up file and its optional down file
type Migration struct {
	Name     string
	UpFile   string
	DownFile string
}

// ParseMigrations pairs up and down files under migrationDir, sorted by name.
func ParseMigrations(migrationDir string) ([]Migration, error) {
	slog.Debug("scanning migration directory", "directory", migrationDir)
	upFiles := make(map[string]string)
	downFiles := make(map[string]string)

	err := filepath.WalkDir(migrationDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		fileName := d.Name()
		switch {
		case isUpMigration(fileName):
			upFiles[strings.TrimSuffix(fileName, upSuffix)] = path
		case strings.HasSuffix(fileName, downSuffix):
			downFiles[strings.TrimSuffix(fileName, downSuffix)] = path
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk migration directory: %w", err)
	}

	migrations := make([]Migration, 0, len(upFiles))
	for baseName, upFile := range upFiles {
		migrations = append(migrations, Migration{
			Name:     baseName,
			UpFile:   upFile,
			DownFile: downFiles[baseName],
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Name < migrations[j].Name
	})

	slog.Debug("parsed migrations", "count", len(migrations), "upFiles", len(upFiles), "downFiles", len(downFiles))
	return migrations, nil
}

func isUpMigration(name string) bool {
	return strings.HasSuffix(name, upSuffix)
}

// replayMigrations applies every migration under dir to a fresh database
// from dbManager and hands the migrated connection to fn before tearing the
// database down.
func replayMigrations(ctx context.Context, dir string, reader MigrationReader, dbManager DatabaseManager, fn func(db *sql.DB) error) error {
	slog.Info("processing migration directory", "directory", dir)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("migration directory does not exist: %s", dir)
	}

	migrations, err := reader.DiscoverMigrations(dir)
	if err != nil {
		return fmt.Errorf("failed to parse migrations: %w", err)
	}
	if len(migrations) == 0 {
		return fmt.Errorf("no migration files found in directory: %s", dir)
	}
	slog.Info("found migrations", "count", len(migrations))

	if err := dbManager.Setup(ctx); err != nil {
		return fmt.Errorf("failed to setup database: %w", err)
	}
	defer func() {
		if err := dbManager.Close(context.WithoutCancel(ctx)); err != nil {
			slog.Error("failed to cleanup", "error", err)
		}
	}()

	if err := dbManager.RunMigrations(migrations); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return fn(dbManager.GetDB())
}
