// ABOUTME: CLI commands for interrupted workouts and failed saves.
// ABOUTME: recover inspects, resumes, or discards a snapshot; retry re-saves a finished session.
package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/lift/internal/engine"
	"github.com/harperreed/lift/internal/recovery"
)

var (
	recoverPlan    string
	recoverResume  bool
	recoverDiscard bool
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Check for an interrupted workout",
	Long: `Check whether a workout was interrupted and what it held.

The saved progress is checked against the plan (by default the plan it was
started from). Progress that is too old, or whose plan has changed since, is
discarded and the reason shown.

EXAMPLES:

  lift recover                    # Show what was interrupted
  lift recover --resume           # Continue it
  lift recover --discard          # Drop it
  lift recover --plan push-b      # Check against another plan`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if recoverResume && recoverDiscard {
			return errors.New("--resume and --discard are mutually exclusive")
		}
		planID := recoverPlan
		if planID == "" {
			planID = eng.SavedPlanID()
		}

		res, err := eng.TryRecoverOnStartup(cmd.Context(), planID)
		if err != nil {
			return err
		}
		printPending(res)
		if res.Code == engine.CodeSessionActive {
			return &rejected{code: res.Code, reason: res.Reason}
		}

		o := res.Offer
		switch {
		case o == nil || o.Decision == recovery.None:
			fmt.Println("No interrupted workout.")
			return nil
		case o.Decision == recovery.Discarded:
			color.Yellow("Interrupted workout discarded: %s", o.Reason)
			return nil
		}

		printOffer(o)
		switch {
		case recoverResume:
			res, err := check(eng.ResumeRecovered())
			if err != nil {
				return err
			}
			color.Green("✓ Resumed")
			printView(res.State)
		case recoverDiscard:
			if _, err := check(eng.DiscardRecovered()); err != nil {
				return err
			}
			color.Yellow("Discarded")
		default:
			fmt.Println(color.New(color.Faint).Sprint("Run 'lift recover --resume' to continue or --discard to drop it."))
		}
		return nil
	},
}

func printOffer(o *engine.OfferInfo) {
	fmt.Printf("Interrupted %s workout %s\n", color.New(color.Bold).Sprint(o.PlanID), shortID(o.SessionID))
	fmt.Printf("  Sets logged: %d  Saved: %s ago\n", o.SetsLogged, formatDuration(o.Age))
	if o.RestRemaining > 0 {
		fmt.Printf("  Rest left: %s\n", formatDuration(o.RestRemaining))
	}
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry saving a finished workout",
	Long: `Re-run the save steps of a finished workout that did not fully persist.

Steps that already succeeded are safe to repeat.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := eng.RetryFinalize(cmd.Context())
		if err != nil {
			return err
		}
		if res.Report != nil {
			printSteps(res.Report.Steps)
		}
		if _, err := check(res, nil); err != nil {
			return err
		}
		color.Green("✓ Workout %s saved", shortID(res.Report.Record.SessionID))
		return nil
	},
}

func init() {
	recoverCmd.Flags().StringVarP(&recoverPlan, "plan", "p", "", "plan to check against (default: the saved plan)")
	recoverCmd.Flags().BoolVar(&recoverResume, "resume", false, "continue the interrupted workout")
	recoverCmd.Flags().BoolVar(&recoverDiscard, "discard", false, "drop the interrupted workout")

	rootCmd.AddCommand(recoverCmd, retryCmd)
}
