package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/alc6/schematrack/report"
	"github.com/alc6/schematrack/tracker"
)

const defaultWatchDebounce = 500 * time.Millisecond

// WatcherOption configures a MigrationWatcher.
type WatcherOption func(*MigrationWatcher)

// WithWatchDebounce sets how long the directory must stay quiet before
// onChange runs.
func WithWatchDebounce(d time.Duration) WatcherOption {
	return func(w *MigrationWatcher) { w.debounce = d }
}

// MigrationWatcher calls onChange with the up migrations that were created
// or written since the last call, once the directory has been quiet for the
// debounce period.
type MigrationWatcher struct {
	dir      string
	debounce time.Duration
	onChange func(ctx context.Context, files []string) error
}

func NewMigrationWatcher(dir string, onChange func(ctx context.Context, files []string) error, opts ...WatcherOption) *MigrationWatcher {
	w := &MigrationWatcher{
		dir:      dir,
		debounce: defaultWatchDebounce,
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is cancelled. Errors from onChange are logged and do
// not stop the watcher.
func (w *MigrationWatcher) Run(ctx context.Context) error {
	if _, err := os.Stat(w.dir); err != nil {
		return fmt.Errorf("migration directory does not exist: %s", w.dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	slog.Info("watching migration directory", "directory", w.dir, "debounce", w.debounce)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 || !isUpMigration(filepath.Base(event.Name)) {
				continue
			}
			slog.Debug("migration change", "file", event.Name, "op", event.Op.String())
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("migration watcher error", "error", err)

		case <-timer.C:
			files := make([]string, 0, len(pending))
			for f := range pending {
				files = append(files, f)
			}
			sort.Strings(files)
			clear(pending)

			if err := w.onChange(ctx, files); err != nil {
				slog.Error("failed to process migration change", "files", files, "error", err)
			}
		}
	}
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	var (
		image    string
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <migration-dir>",
		Short: "Snapshot the schema every time a migration is added",
		Long: `Watch a migration directory and, whenever a .up.sql file is created or
changed, replay the whole directory in a throwaway PostgreSQL, take an
auto_migration_* snapshot and print the diff against the previous latest
snapshot. Stops on SIGINT or SIGTERM.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd)
			if err != nil {
				return err
			}
			if !a.cfg.AutoSnapshot {
				return fmt.Errorf("auto_snapshot is disabled in the configuration")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := NewMigrationWatcher(args[0], a.migrationChanged(args[0], image), WithWatchDebounce(debounce))
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&image, "image", defaultPostgresImage, "PostgreSQL image used to replay migrations")
	cmd.Flags().DurationVar(&debounce, "debounce", defaultWatchDebounce, "Quiet period before a change is processed")
	return cmd
}

// migrationChanged snapshots the replayed directory and prints what changed
// relative to the snapshot that was latest before it.
func (a *app) migrationChanged(dir, image string) func(ctx context.Context, files []string) error {
	return func(ctx context.Context, files []string) error {
		slog.Info("migrations changed", "files", files)

		previous, err := a.tracker.Get(tracker.LatestRef)
		if err != nil && !errors.Is(err, tracker.ErrUnresolved) {
			return err
		}

		snap, err := a.takeSnapshot(ctx, "", snapshotOptions{auto: true, migrations: dir, image: image})
		if err != nil {
			return err
		}
		if snap == nil {
			return nil
		}
		fmt.Fprintf(a.out, "Snapshot created: %s (%d tables)\n", snap.Name, len(snap.Schema))

		if previous == nil {
			return nil
		}
		cmp, err := a.tracker.Compare(previous.Name, snap.Name)
		if err != nil {
			return err
		}
		out, err := a.renderDiff(cmp.Diff, report.FormatText, false)
		if err != nil {
			return err
		}
		fmt.Fprint(a.out, out)
		return nil
	}
}
