// ABOUTME: CLI command for copying workout history between backends.
// ABOUTME: Copies from the configured backend into a Postgres DSN or SQLite file.
package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/lift/internal/config"
	"github.com/harperreed/lift/internal/storage"
)

var migrateDryRun bool

var migrateCmd = &cobra.Command{
	Use:         "migrate <destination>",
	Short:       "Copy workout history to another backend",
	Annotations: map[string]string{"needs": needsRepo},
	Long: `Copy all finished workouts from the configured backend to another one.

The destination is a Postgres connection string (postgres://...) or a path
to a SQLite file. Writes are idempotent, so an interrupted migration can
simply be run again.

USAGE:

  lift migrate --dry-run postgres://localhost/lift
  lift migrate postgres://user@localhost/lift?sslmode=disable
  lift migrate ~/backup/lift.db

AFTER MIGRATION:

  Point lift at the new backend in ~/.config/lift/config.yaml:

    backend: postgres
    database_url: postgres://user@localhost/lift`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if migrateDryRun {
			color.Yellow("Dry run mode - no changes will be made")
			fmt.Println()
			summaries, err := repo.ListSummaries(ctx, nil, 0)
			if err != nil {
				return fmt.Errorf("failed to list history: %w", err)
			}
			fmt.Printf("Would copy %d workouts to %s\n", len(summaries), args[0])
			return nil
		}

		dst, err := openDestination(ctx, args[0])
		if err != nil {
			return err
		}
		defer func() { _ = dst.Close() }()

		summary, err := storage.MigrateData(ctx, repo, dst)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		color.Green("✓ Migrated %d workouts, %d new sets, %d plan days", summary.Sessions, summary.Sets, summary.Days)
		return nil
	},
}

func openDestination(ctx context.Context, dest string) (storage.Repository, error) {
	if strings.HasPrefix(dest, "postgres://") || strings.HasPrefix(dest, "postgresql://") {
		pg, err := storage.OpenPostgres(ctx, dest)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return pg, nil
	}
	db, err := storage.OpenSQLite(config.ExpandPath(dest))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	return db, nil
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "preview migration without making changes")
	rootCmd.AddCommand(migrateCmd)
}
