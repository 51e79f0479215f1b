package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/alc6/schematrack/report"
	"github.com/alc6/schematrack/tracker"
)

const (
	mcpServerName    = "schematrack"
	mcpServerVersion = "1.0.0"
)

func newMCPCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start an MCP server on stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout exposing snapshot
listing, diffing, changelog generation and migration snapshots as tools.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd)
			if err != nil {
				return err
			}
			slog.Info("starting schematrack mcp server")
			return server.ServeStdio(a.newMCPServer())
		},
	}
}

func (a *app) newMCPServer() *server.MCPServer {
	s := server.NewMCPServer(
		mcpServerName,
		mcpServerVersion,
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("list_snapshots",
		mcp.WithDescription("List stored schema snapshots, oldest first"),
		mcp.WithNumber("limit",
			mcp.Description("Only return the N most recent snapshots (default: all)"),
		),
	), a.handleListSnapshots)

	s.AddTool(mcp.NewTool("show_snapshot",
		mcp.WithDescription("Show the schema stored in a snapshot"),
		mcp.WithString("snapshot",
			mcp.Required(),
			mcp.Description(`Snapshot name or "latest"`),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'info' (default), 'sql' or 'json'"),
			mcp.Enum("info", "sql", "json"),
		),
	), a.handleShowSnapshot)

	s.AddTool(mcp.NewTool("diff_snapshots",
		mcp.WithDescription("Compare two schema snapshots and report the differences"),
		mcp.WithString("from",
			mcp.Description(`From snapshot name or "latest" (default: latest)`),
		),
		mcp.WithString("to",
			mcp.Description(`To snapshot name or "latest" (default: latest)`),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'text' (default), 'markdown' or 'json'"),
			mcp.Enum(report.Formats()...),
		),
		mcp.WithBoolean("breaking_only",
			mcp.Description("Only report when the diff contains breaking changes"),
		),
	), a.handleDiffSnapshots)

	s.AddTool(mcp.NewTool("generate_changelog",
		mcp.WithDescription("Generate a changelog for a snapshot pair, a date range or the full history"),
		mcp.WithString("from",
			mcp.Description(`From snapshot name or "latest" (default: latest)`),
		),
		mcp.WithString("to",
			mcp.Description(`To snapshot name or "latest" (default: latest)`),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'markdown' (default), 'json' or 'text'"),
			mcp.Enum(report.Formats()...),
		),
		mcp.WithBoolean("full",
			mcp.Description("Walk every stored snapshot"),
		),
		mcp.WithString("date_from",
			mcp.Description("Start of a date range (YYYY-MM-DD or RFC 3339)"),
		),
		mcp.WithString("date_to",
			mcp.Description("End of a date range, inclusive"),
		),
	), a.handleGenerateChangelog)

	s.AddTool(mcp.NewTool("snapshot_migrations",
		mcp.WithDescription("Replay a migration directory in a throwaway PostgreSQL and store a snapshot of the result"),
		mcp.WithString("migration_directory",
			mcp.Required(),
			mcp.Description("Path to directory containing migration files"),
		),
		mcp.WithString("name",
			mcp.Description("Snapshot name (default: generated from snapshot_prefix)"),
		),
		mcp.WithBoolean("force",
			mcp.Description("Overwrite an existing snapshot with the same name"),
		),
		mcp.WithString("postgres_image",
			mcp.Description("PostgreSQL Docker image to use (default: postgres:16-alpine)"),
		),
	), a.handleSnapshotMigrations)

	s.AddTool(mcp.NewTool("validate_migrations",
		mcp.WithDescription("Validate migration files in directory without running them"),
		mcp.WithString("migration_directory",
			mcp.Required(),
			mcp.Description("Path to directory containing migration files"),
		),
	), a.handleValidateMigrations)

	return s
}

func (a *app) handleListSnapshots(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	output, err := a.listSnapshots("json", request.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(output), nil
}

func (a *app) handleShowSnapshot(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("snapshot")
	if err != nil {
		return mcp.NewToolResultError("snapshot parameter is required"), nil
	}

	output, err := a.showSnapshot(ref, request.GetString("format", "info"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(output), nil
}

func (a *app) handleDiffSnapshots(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	output, err := a.diffSnapshots(
		request.GetString("from", tracker.LatestRef),
		request.GetString("to", tracker.LatestRef),
		request.GetString("format", string(report.FormatText)),
		request.GetBool("breaking_only", false),
	)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(output), nil
}

func (a *app) handleGenerateChangelog(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	output, err := a.changelog(changelogRequest{
		From:     request.GetString("from", tracker.LatestRef),
		To:       request.GetString("to", tracker.LatestRef),
		Format:   request.GetString("format", string(report.FormatMarkdown)),
		Full:     request.GetBool("full", false),
		DateFrom: request.GetString("date_from", ""),
		DateTo:   request.GetString("date_to", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(output), nil
}

func (a *app) handleSnapshotMigrations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	migrationDir, err := request.RequireString("migration_directory")
	if err != nil {
		return mcp.NewToolResultError("migration_directory parameter is required"), nil
	}

	snap, err := a.takeSnapshot(ctx, request.GetString("name", ""), snapshotOptions{
		force:      request.GetBool("force", false),
		migrations: migrationDir,
		image:      request.GetString("postgres_image", defaultPostgresImage),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("snapshot %s created with %d tables", snap.Name, len(snap.Schema))), nil
}

func (a *app) handleValidateMigrations(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	migrationDir, err := request.RequireString("migration_directory")
	if err != nil {
		return mcp.NewToolResultError("migration_directory parameter is required"), nil
	}

	output, err := validateMigrationsCore(a.migrationReader, migrationDir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("migration validation completed:\n\n%s", output)), nil
}

type migrationInfo struct {
	Name        string `json:"name"`
	UpFile      string `json:"up_file"`
	DownFile    string `json:"down_file,omitempty"`
	HasDownFile bool   `json:"has_down_file"`
}

type validationResult struct {
	Valid          bool            `json:"valid"`
	MigrationCount int             `json:"migration_count"`
	Migrations     []migrationInfo `json:"migrations"`
}

// validateMigrationsCore lists the migrations under migrationDir as JSON
// without running them.
func validateMigrationsCore(reader MigrationReader, migrationDir string) (string, error) {
	if _, err := os.Stat(migrationDir); os.IsNotExist(err) {
		return "", fmt.Errorf("migration directory does not exist: %s", migrationDir)
	}

	migrations, err := reader.DiscoverMigrations(migrationDir)
	if err != nil {
		return "", fmt.Errorf("failed to parse migrations: %w", err)
	}

	result := validationResult{
		Valid:          true,
		MigrationCount: len(migrations),
		Migrations:     make([]migrationInfo, 0, len(migrations)),
	}
	for _, m := range migrations {
		result.Migrations = append(result.Migrations, migrationInfo{
			Name:        m.Name,
			UpFile:      m.UpFile,
			DownFile:    m.DownFile,
			HasDownFile: m.DownFile != "",
		})
	}

	jsonOutput, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result to JSON: %w", err)
	}
	return string(jsonOutput), nil
}
