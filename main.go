package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alc6/schematrack/config"
)

var logLevel = new(slog.LevelVar)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "schematrack",
		Short: "Track database schema evolution with snapshots, diffs and changelogs",
		Long: `schematrack captures point-in-time snapshots of a database schema, diffs
them, classifies breaking changes and renders changelogs.

Snapshots are taken from a live connection (postgres, mysql or sqlite) or by
replaying a directory of .up.sql migrations in a throwaway PostgreSQL
container. They are stored as JSON documents under storage_path.

Configuration is read from schematrack.yml unless --config is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				logLevel.Set(slog.LevelDebug)
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to the configuration file (default schematrack.yml)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(
		newSnapshotCmd(opts),
		newListCmd(opts),
		newShowCmd(opts),
		newDeleteCmd(opts),
		newDiffCmd(opts),
		newCompareCmd(opts),
		newChangelogCmd(opts),
		newWatchCmd(opts),
		newMCPCmd(opts),
	)
	return cmd
}

// load reads the configuration, applies any command-level overrides and
// wires the application.
func (o *rootOptions) load(cmd *cobra.Command, overrides ...func(*config.Config)) (*app, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}
	return newApp(cfg, cmd.OutOrStdout())
}

func main() {
	if err := run(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	return newRootCmd().Execute()
}
