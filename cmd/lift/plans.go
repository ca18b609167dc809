// ABOUTME: CLI commands for browsing workout plans.
// ABOUTME: Plans are YAML files in the plans directory; show prints targets and fingerprint.
package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/lift/internal/fingerprint"
	"github.com/harperreed/lift/internal/plans"
)

var plansCmd = &cobra.Command{
	Use:         "plans",
	Aliases:     []string{"p"},
	Short:       "Browse workout plans",
	Annotations: map[string]string{"needs": needsNone},
	Long: `Browse the workout plans in your plans directory.

Each plan is a YAML file; the file name is the plan id unless the file
sets one:

  name: Push A
  day: 1
  exercises:
    - id: bench
      name: Bench Press
      sets: 3
      reps: 8
      load: 60
      rest_seconds: 120

EXAMPLES:

  lift plans list
  lift plans show push-a`,
}

var plansListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List plans",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := cfg.OpenPlans().List()
		if err != nil {
			return fmt.Errorf("failed to list plans: %w", err)
		}
		if len(list) == 0 {
			fmt.Printf("No plans found in %s\n", cfg.GetPlansDir())
			return nil
		}

		faint := color.New(color.Faint)
		for _, p := range list {
			name := p.Name
			if name == "" {
				name = p.ID
			}
			fmt.Printf("%s %s %s\n",
				padRight(p.ID, 16),
				padRight(truncate(name, 30), 30),
				faint.Sprintf("%d exercises, %d sets", len(p.Exercises), p.TotalSets()))
		}
		return nil
	},
}

var plansShowCmd = &cobra.Command{
	Use:   "show <plan-id>",
	Short: "Show a plan's exercises",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := cfg.OpenPlans().Get(args[0])
		if errors.Is(err, plans.ErrNotFound) {
			return fmt.Errorf("plan not found: %s", args[0])
		}
		if err != nil {
			return err
		}

		faint := color.New(color.Faint)
		bold := color.New(color.Bold)
		title := p.ID
		if p.Name != "" {
			title = p.Name
		}
		fmt.Println(bold.Sprint(title))
		if p.Day > 0 {
			fmt.Printf("  Day %d\n", p.Day)
		}
		for i, ex := range p.Exercises {
			rest := ""
			if ex.RestSeconds > 0 {
				rest = faint.Sprintf("  rest %ds", ex.RestSeconds)
			}
			fmt.Printf("  %d. %s  %dx%d @ %s%s\n", i+1, padRight(ex.Name, 24), ex.Sets, ex.Reps, formatLoad(ex.Load), rest)
		}
		fmt.Println(faint.Sprintf("  fingerprint %s", fingerprint.Fingerprint(p)))
		return nil
	},
}

func init() {
	plansCmd.AddCommand(plansListCmd, plansShowCmd)
	rootCmd.AddCommand(plansCmd)
}
