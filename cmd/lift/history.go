// ABOUTME: CLI commands for finished workout history.
// ABOUTME: history lists and shows sessions; export and import move history in and out.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/lift/internal/storage"
)

var (
	historyPlan  string
	historyLimit int

	exportOutput string
	exportSince  string
)

var historyCmd = &cobra.Command{
	Use:         "history [session-id]",
	Aliases:     []string{"h"},
	Short:       "Show finished workouts",
	Annotations: map[string]string{"needs": needsRepo},
	Long: `Show finished workouts, newest first.

With a session id (or an 8-character prefix) the logged sets are shown.

EXAMPLES:

  lift history                 # Last 20 workouts
  lift history --plan legs     # Only one plan
  lift history 01HV3K2A        # Sets of one workout`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if len(args) == 1 {
			return showSession(cmd, args[0])
		}

		var planID *string
		if historyPlan != "" {
			planID = &historyPlan
		}
		summaries, err := repo.ListSummaries(ctx, planID, historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list history: %w", err)
		}
		if len(summaries) == 0 {
			fmt.Println("No workouts found.")
			return nil
		}

		faint := color.New(color.Faint)
		for _, s := range summaries {
			notes := ""
			if s.Notes != nil && *s.Notes != "" {
				notes = faint.Sprintf(" (%s)", truncate(*s.Notes, 30))
			}
			fmt.Printf("%s %s %s %3d sets %8s vol %s%s\n",
				faint.Sprint(shortID(s.SessionID)),
				faint.Sprint(s.FinishedAt.Local().Format("2006-01-02 15:04")),
				padRight(s.PlanID, 12),
				s.TotalSets,
				formatLoad(s.TotalVolume),
				formatDuration(time.Duration(s.ElapsedSeconds)*time.Second),
				notes)
		}
		return nil
	},
}

func showSession(cmd *cobra.Command, id string) error {
	ctx := cmd.Context()
	sum, err := repo.GetSummary(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get workout: %w", err)
	}
	sets, err := repo.ListSets(ctx, sum.SessionID)
	if err != nil {
		return fmt.Errorf("failed to list sets: %w", err)
	}

	printRecord(*sum)
	faint := color.New(color.Faint)
	for _, s := range sets {
		mark := ""
		if s.Failed {
			mark = color.RedString(" failed")
		}
		fmt.Printf("  %s set %d  %d @ %s%s\n", padRight(s.ExerciseName, 24), s.SetIndex, s.Reps, formatLoad(s.Load), mark)
	}
	if sum.Notes != nil {
		fmt.Println(faint.Sprintf("  %s", *sum.Notes))
	}
	return nil
}

var exportCmd = &cobra.Command{
	Use:         "export <format>",
	Short:       "Export workout history",
	Annotations: map[string]string{"needs": needsRepo},
	Long: `Export workout history in various formats.

FORMATS:

  json       Full JSON export (suitable for backup/restore)
  yaml       YAML export (human-readable)
  markdown   Markdown tables (for documentation/sharing)

EXAMPLES:

  lift export json -o backup.json
  lift export yaml
  lift export markdown --since 2025-01-01`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"json", "yaml", "markdown"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var data []byte
		var err error
		switch args[0] {
		case "json":
			data, err = storage.ExportJSON(ctx, repo)
		case "yaml":
			data, err = storage.ExportYAML(ctx, repo)
		case "markdown":
			var since *time.Time
			if exportSince != "" {
				t, perr := parseTime(exportSince)
				if perr != nil {
					return fmt.Errorf("invalid date format: %s (use YYYY-MM-DD)", exportSince)
				}
				since = &t
			}
			var md string
			md, err = storage.ExportMarkdown(ctx, repo, since)
			data = []byte(md)
		default:
			return fmt.Errorf("unknown format: %s (use json, yaml, or markdown)", args[0])
		}
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		if exportOutput != "" {
			if err := os.WriteFile(exportOutput, data, 0600); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			color.Green("✓ Exported to %s", exportOutput)
			return nil
		}
		fmt.Println(string(data))
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:         "import <file>",
	Short:       "Import workout history from JSON",
	Annotations: map[string]string{"needs": needsRepo},
	Long: `Import workout history from a JSON backup made with 'lift export json'.

Sessions already present are updated in place, so importing twice is safe.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		if err := storage.ImportJSON(cmd.Context(), repo, data); err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		color.Green("✓ Imported from %s", args[0])
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historyPlan, "plan", "p", "", "filter by plan id")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "max number of results")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "only include workouts since date (markdown only)")

	rootCmd.AddCommand(historyCmd, exportCmd, importCmd)
}
