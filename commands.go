package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alc6/schematrack/config"
	"github.com/alc6/schematrack/diff"
	"github.com/alc6/schematrack/providers"
	"github.com/alc6/schematrack/report"
	"github.com/alc6/schematrack/schema"
	"github.com/alc6/schematrack/tracker"
)

const noBreakingMessage = "No breaking changes detected."

type snapshotOptions struct {
	force      bool
	auto       bool
	migrations string
	image      string
}

func newSnapshotCmd(root *rootOptions) *cobra.Command {
	opts := &snapshotOptions{}
	cmd := &cobra.Command{
		Use:   "snapshot [name]",
		Short: "Take a snapshot of the current database schema",
		Long: `Take a snapshot of the configured database, or of the schema produced by
replaying a migration directory with --migrations.

Without a name the snapshot is called <snapshot_prefix>_YYYY_MM_DD_HHMMSS.
--auto is the migration hook: it names the snapshot auto_migration_* and
does nothing when auto_snapshot is disabled.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd)
			if err != nil {
				return err
			}
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			if opts.auto && name != "" {
				return fmt.Errorf("a snapshot name cannot be combined with --auto")
			}
			return a.snapshot(cmd.Context(), name, *opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite an existing snapshot with the same name")
	cmd.Flags().BoolVar(&opts.auto, "auto", false, "Take an automatic post-migration snapshot")
	cmd.Flags().StringVarP(&opts.migrations, "migrations", "m", "", "Replay this migration directory in a throwaway PostgreSQL and snapshot the result")
	cmd.Flags().StringVar(&opts.image, "image", defaultPostgresImage, "PostgreSQL image used with --migrations")
	return cmd
}

func (a *app) snapshot(ctx context.Context, name string, opts snapshotOptions) error {
	snap, err := a.takeSnapshot(ctx, name, opts)
	if err != nil {
		return err
	}
	if snap == nil {
		fmt.Fprintln(a.out, "Auto snapshot disabled, nothing to do.")
		return nil
	}
	fmt.Fprintln(a.out, "Snapshot created successfully!")
	fmt.Fprintf(a.out, "Name: %s\n", snap.Name)
	fmt.Fprintf(a.out, "Timestamp: %s\n", snap.Timestamp.Format(report.TimeLayout))
	fmt.Fprintf(a.out, "Database: %s\n", snap.Database)
	fmt.Fprintf(a.out, "Tables: %d\n", len(snap.Schema))
	return nil
}

// takeSnapshot returns a nil snapshot when opts.auto is set and automatic
// snapshots are disabled.
func (a *app) takeSnapshot(ctx context.Context, name string, opts snapshotOptions) (*schema.Snapshot, error) {
	if opts.auto && !a.cfg.AutoSnapshot {
		return nil, nil
	}

	take := func(t *tracker.Tracker) (*schema.Snapshot, error) {
		if opts.auto {
			return t.AutoSnapshot(ctx)
		}
		return t.TakeSnapshot(ctx, name, opts.force)
	}

	if opts.migrations == "" {
		return take(a.tracker)
	}

	var snap *schema.Snapshot
	err := replayMigrations(ctx, opts.migrations, a.migrationReader, a.newDBManager(opts.image), func(db *sql.DB) error {
		var err error
		snap, err = take(a.newTracker(a.migrationExtractor(db)))
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func newListCmd(root *rootOptions) *cobra.Command {
	var (
		format string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored schema snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd)
			if err != nil {
				return err
			}
			out, err := a.listSnapshots(format, limit)
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format (table, json)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Show only the N most recent snapshots")
	return cmd
}

// snapshotSummary is the list view of a snapshot
type snapshotSummary struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Tables    int       `json:"tables"`
}

func (a *app) listSnapshots(format string, limit int) (string, error) {
	if format != "table" && format != "json" {
		return "", fmt.Errorf("unsupported format: %s (expected table or json)", format)
	}

	snaps, err := a.tracker.List(limit)
	if err != nil {
		return "", err
	}
	if len(snaps) == 0 {
		return "No snapshots found.\n", nil
	}

	summaries := make([]snapshotSummary, 0, len(snaps))
	for _, s := range snaps {
		summaries = append(summaries, snapshotSummary{Name: s.Name, Timestamp: s.Timestamp, Database: s.Database, Tables: len(s.Schema)})
	}

	if format == "json" {
		data, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal snapshots: %w", err)
		}
		return string(data) + "\n", nil
	}

	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTIMESTAMP\tDATABASE\tTABLES")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", s.Name, s.Timestamp.Format(report.TimeLayout), s.Database, s.Tables)
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("failed to render table: %w", err)
	}
	return buf.String(), nil
}

func newShowCmd(root *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <name|latest>",
		Short: "Print the schema stored in a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd)
			if err != nil {
				return err
			}
			out, err := a.showSnapshot(args[0], format)
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "info", "Output format (info, sql, json)")
	return cmd
}

func (a *app) showSnapshot(ref, format string) (string, error) {
	snap, err := a.tracker.Get(ref)
	if err != nil {
		return "", err
	}

	switch format {
	case "info":
		header := fmt.Sprintf("Snapshot: %s\nTimestamp: %s\nDatabase: %s\n\n",
			snap.Name, snap.Timestamp.Format(report.TimeLayout), snap.Database)
		return header + providers.FormatSchemaInfo(snap.Schema), nil
	case "sql":
		return providers.FormatSchemaSQL(snap.Schema), nil
	case "json":
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal snapshot: %w", err)
		}
		return string(data) + "\n", nil
	default:
		return "", fmt.Errorf("unsupported format: %s (expected info, sql or json)", format)
	}
}

func newDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd)
			if err != nil {
				return err
			}
			if err := a.tracker.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Snapshot deleted: %s\n", args[0])
			return nil
		},
	}
}

type diffOptions struct {
	from         string
	to           string
	format       string
	breakingOnly bool
	indexes      bool
}

func newDiffCmd(root *rootOptions) *cobra.Command {
	opts := &diffOptions{}
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare two schema snapshots and show differences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd, withIndexes(opts.indexes))
			if err != nil {
				return err
			}
			out, err := a.diffSnapshots(opts.from, opts.to, opts.format, opts.breakingOnly)
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.from, "from", tracker.LatestRef, `From snapshot name or "latest"`)
	cmd.Flags().StringVar(&opts.to, "to", tracker.LatestRef, `To snapshot name or "latest"`)
	cmd.Flags().StringVar(&opts.format, "format", string(report.FormatText), "Output format (text, markdown, json)")
	cmd.Flags().BoolVar(&opts.breakingOnly, "breaking-only", false, "Only report when the diff contains breaking changes")
	cmd.Flags().BoolVar(&opts.indexes, "indexes", false, "Also compare indexes")
	return cmd
}

func withIndexes(enabled bool) func(*config.Config) {
	return func(cfg *config.Config) {
		if enabled {
			cfg.Diff.CompareIndexes = true
		}
	}
}

func (a *app) diffSnapshots(from, to, format string, breakingOnly bool) (string, error) {
	f, err := report.ParseFormat(format)
	if err != nil {
		return "", err
	}
	cmp, err := a.tracker.Compare(from, to)
	if errors.Is(err, tracker.ErrUnresolved) {
		return "", fmt.Errorf("could not resolve snapshot names, use --from and --to: %w", err)
	}
	if err != nil {
		return "", err
	}
	return a.renderDiff(cmp.Diff, f, breakingOnly)
}

// renderDiff renders d. Text output gets a summary footer; markdown carries
// its own summary section and JSON stays a single document.
func (a *app) renderDiff(d *diff.Diff, format report.Format, breakingOnly bool) (string, error) {
	if breakingOnly && !a.policy.IsBreaking(d) {
		return noBreakingMessage + "\n", nil
	}

	r, err := a.tracker.Renderer(format)
	if err != nil {
		return "", err
	}
	out := r.Render(d)

	summary := a.tracker.Summarize(d)
	slog.Debug("diff summary", "total_changes", summary.TotalChanges, "breaking", summary.BreakingChanges)
	if format != report.FormatText {
		return out, nil
	}

	out += fmt.Sprintf("\nSummary: %d total changes\n", summary.TotalChanges)
	if summary.BreakingChanges {
		out += "Warning: breaking changes detected!\n"
	}
	return out, nil
}

func newCompareCmd(root *rootOptions) *cobra.Command {
	var (
		env          string
		format       string
		breakingOnly bool
		indexes      bool
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare the current database schema with another environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd, withIndexes(indexes))
			if err != nil {
				return err
			}
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}

			slog.Info("comparing with environment", "environment", env)
			d, err := a.tracker.CompareWithEnvironment(cmd.Context(), env)
			if err != nil {
				return fmt.Errorf("failed to compare with environment: %w", err)
			}
			out, err := a.renderDiff(d, f, breakingOnly)
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "Environment to compare with (as named under environments)")
	cmd.Flags().StringVar(&format, "format", string(report.FormatText), "Output format (text, markdown, json)")
	cmd.Flags().BoolVar(&breakingOnly, "breaking-only", false, "Only report when the diff contains breaking changes")
	cmd.Flags().BoolVar(&indexes, "indexes", false, "Also compare indexes")
	_ = cmd.MarkFlagRequired("env")
	return cmd
}

// changelogRequest selects one of the three changelog modes: full history,
// a date range, or a single from/to pair.
type changelogRequest struct {
	From     string
	To       string
	Format   string
	Full     bool
	DateFrom string
	DateTo   string
}

func newChangelogCmd(root *rootOptions) *cobra.Command {
	var (
		req    changelogRequest
		output string
	)
	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Generate a changelog from stored snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd)
			if err != nil {
				return err
			}
			content, err := a.changelog(req)
			if err != nil {
				return fmt.Errorf("failed to generate changelog: %w", err)
			}
			if output == "" {
				fmt.Fprintln(a.out, content)
				return nil
			}
			if err := writeOutput(output, content); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Changelog saved to: %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.From, "from", tracker.LatestRef, `From snapshot name or "latest"`)
	cmd.Flags().StringVar(&req.To, "to", tracker.LatestRef, `To snapshot name or "latest"`)
	cmd.Flags().StringVar(&req.Format, "format", string(report.FormatMarkdown), "Output format (markdown, json, text)")
	cmd.Flags().BoolVar(&req.Full, "full", false, "Walk every stored snapshot")
	cmd.Flags().StringVar(&req.DateFrom, "date-from", "", "Start of the date range (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&req.DateTo, "date-to", "", "End of the date range, inclusive")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the changelog to this file")
	return cmd
}

func (a *app) changelog(req changelogRequest) (string, error) {
	format, err := report.ParseFormat(req.Format)
	if err != nil {
		return "", err
	}

	switch {
	case req.Full:
		return a.tracker.FullChangelog(format)
	case req.DateFrom != "" || req.DateTo != "":
		if req.DateFrom == "" || req.DateTo == "" {
			return "", fmt.Errorf("both date-from and date-to are required for a date range")
		}
		return a.tracker.RangeChangelog(req.DateFrom, req.DateTo, format)
	default:
		from, to := orLatest(req.From), orLatest(req.To)
		out, err := a.tracker.Changelog(from, to, format)
		if errors.Is(err, tracker.ErrUnresolved) {
			return "", fmt.Errorf("could not resolve snapshot names, use --from and --to: %w", err)
		}
		return out, err
	}
}

func orLatest(ref string) string {
	if ref == "" {
		return tracker.LatestRef
	}
	return ref
}

func writeOutput(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &tracker.WriteError{Target: path, Err: err}
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return &tracker.WriteError{Target: path, Err: err}
	}
	return nil
}
