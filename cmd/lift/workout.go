// ABOUTME: CLI commands that drive the live workout session.
// ABOUTME: start, set, fail, rest, skip, pause, resume, goto, status, finish, abandon.
package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/lift/internal/completion"
	"github.com/harperreed/lift/internal/engine"
	"github.com/harperreed/lift/internal/models"
	"github.com/harperreed/lift/internal/session"
)

var (
	setLoad     float64
	setExercise int
	setNumber   int

	restWait bool

	finishEffort  int
	finishFatigue int
	finishMood    int
	finishNotes   string

	abandonDiscard bool

	startForce bool
)

var startCmd = &cobra.Command{
	Use:   "start <plan-id>",
	Short: "Start a workout",
	Long: `Start a workout for one of your plans.

If an interrupted workout is still saved on this device, start refuses
to replace it unless --force is given.

EXAMPLES:

  lift start push-a
  lift start legs --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cur, err := attach(cmd.Context())
		var rej *rejected
		if err != nil && !(errors.As(err, &rej) && rej.code == engine.CodeNoActiveSession) {
			return err
		}
		if err == nil && cur.State.Status.Started() {
			if !startForce {
				return fmt.Errorf("an interrupted %s workout with %d sets is saved; run 'lift status' to continue or 'lift start --force' to discard it", cur.State.PlanID, cur.State.CompletedSets)
			}
			if _, err := check(eng.AbandonSession(true)); err != nil {
				return err
			}
			color.Yellow("Discarded the interrupted %s workout", cur.State.PlanID)
		}
		res, err := check(eng.StartSession(args[0]))
		if err != nil {
			return err
		}
		color.Green("✓ Started %s", args[0])
		printView(res.State)
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:     "set <reps>",
	Aliases: []string{"s"},
	Short:   "Log a completed set",
	Long: `Log the next set of the current exercise.

The load defaults to the last load used for the exercise (or the plan's
target), and the exercise and set default to the ones 'lift status' shows.
Exercises and sets are numbered from 1.

EXAMPLES:

  lift set 8                      # 8 reps at the suggested load
  lift set 6 --load 62.5          # 6 reps at 62.5
  lift set 10 --exercise 2 --set 1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return logSet(cmd, args, false)
	},
}

var failCmd = &cobra.Command{
	Use:   "fail <reps>",
	Short: "Log a set that fell short",
	Long: `Log the next set as failed with the reps you actually managed.

Failed sets count toward progress and volume and are tallied separately.

EXAMPLES:

  lift fail 5 --load 100`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return logSet(cmd, args, true)
	},
}

func logSet(cmd *cobra.Command, args []string, failed bool) error {
	reps, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid reps: %s", args[0])
	}
	cur, err := attach(cmd.Context())
	if err != nil {
		return err
	}

	v := cur.State
	exercise := v.CurrentExercise
	if setExercise > 0 {
		exercise = setExercise - 1
	}
	set := v.NextSet
	if setNumber > 0 {
		set = setNumber
	} else if exercise != v.CurrentExercise {
		set = 0
	}
	if set == 0 {
		return fmt.Errorf("specify --set for exercise %d", exercise+1)
	}
	load := v.SuggestedLoad
	if cmd.Flags().Changed("load") {
		load = setLoad
	}

	var res engine.Result
	if failed {
		res, err = check(eng.FailSet(exercise, set, load, reps))
	} else {
		res, err = check(eng.ConfirmSet(exercise, set, load, reps))
	}
	if err != nil {
		return err
	}
	mark := color.GreenString("✓")
	if failed {
		mark = color.RedString("✗")
	}
	fmt.Printf("%s Set %d: %d reps @ %s\n", mark, set, reps, formatLoad(load))
	if res.State.Status == session.Finalizing {
		color.Green("All sets done. Run 'lift finish' to save the workout.")
		return nil
	}
	printView(res.State)
	return nil
}

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Show the rest countdown",
	Long: `Show how much rest is left.

With --wait the command counts down in place until the rest is over.

EXAMPLES:

  lift rest
  lift rest --wait`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := attach(cmd.Context())
		if err != nil {
			return err
		}
		left := res.State.RestRemaining
		if left <= 0 {
			fmt.Println("Not resting.")
			return nil
		}
		if !restWait {
			fmt.Printf("Rest: %s\n", color.CyanString(formatDuration(left)))
			return nil
		}

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for left > 0 {
			fmt.Printf("\rRest: %s ", color.CyanString(formatDuration(left)))
			select {
			case <-cmd.Context().Done():
				fmt.Println()
				return cmd.Context().Err()
			case <-ticker.C:
			}
			left = eng.Status().State.RestRemaining
		}
		fmt.Println()
		color.Green("✓ Rest over")
		return nil
	},
}

var skipCmd = &cobra.Command{
	Use:   "skip",
	Short: "Skip the rest of the current rest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := attach(cmd.Context()); err != nil {
			return err
		}
		res, err := check(eng.SkipRest())
		if err != nil {
			return err
		}
		color.Green("✓ Skipped %s of rest", formatDuration(res.RestSkipped))
		return nil
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the workout clock and rest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := attach(cmd.Context()); err != nil {
			return err
		}
		if _, err := check(eng.Pause()); err != nil {
			return err
		}
		color.Yellow("Paused")
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused workout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := attach(cmd.Context()); err != nil {
			return err
		}
		res, err := check(eng.Resume())
		if err != nil {
			return err
		}
		color.Green("✓ Resumed")
		printView(res.State)
		return nil
	},
}

var gotoCmd = &cobra.Command{
	Use:   "goto <exercise>",
	Short: "Jump to another exercise",
	Long: `Move to another exercise (numbered from 1) without logging anything.

EXAMPLES:

  lift goto 3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid exercise number: %s", args[0])
		}
		if _, err := attach(cmd.Context()); err != nil {
			return err
		}
		res, err := check(eng.GoToExercise(n - 1))
		if err != nil {
			return err
		}
		printView(res.State)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"st"},
	Short:   "Show the current workout",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := attach(cmd.Context())
		var rej *rejected
		if err != nil && !(errors.As(err, &rej) && rej.code == engine.CodeNoActiveSession) {
			return err
		}
		printView(res.State)
		return nil
	},
}

var finishCmd = &cobra.Command{
	Use:   "finish",
	Short: "Finish and save the workout",
	Long: `Finish the workout, compute its totals, and save it to history.

If saving fails part way, the workout is still closed locally and a retry
marker is kept; run 'lift retry' once the backend is reachable.

EXAMPLES:

  lift finish
  lift finish --effort 8 --fatigue 6 --notes "felt strong"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := attach(cmd.Context()); err != nil {
			return err
		}
		res, err := eng.Finalize(cmd.Context(), finishExtra(cmd))
		if err != nil {
			return err
		}
		if res.Report != nil {
			printRecord(res.Report.Record)
			printSteps(res.Report.Steps)
		}
		_, err = check(res, nil)
		return err
	},
}

func finishExtra(cmd *cobra.Command) completion.Extra {
	var extra completion.Extra
	rating := func(name string, v int) *int {
		if !cmd.Flags().Changed(name) {
			return nil
		}
		return &v
	}
	effort, fatigue, mood := rating("effort", finishEffort), rating("fatigue", finishFatigue), rating("mood", finishMood)
	if effort != nil || fatigue != nil || mood != nil {
		extra.Ratings = &models.Ratings{Effort: effort, Fatigue: fatigue, Mood: mood}
	}
	if finishNotes != "" {
		notes := finishNotes
		extra.Notes = &notes
	}
	return extra
}

func printRecord(r models.CompletionRecord) {
	color.Green("✓ Workout %s finished", shortID(r.SessionID))
	fmt.Printf("  Sets: %d (%d failed)  Reps: %d  Volume: %s\n", r.TotalSets, r.FailedSets, r.TotalReps, formatLoad(r.TotalVolume))
	fmt.Printf("  Exercises: %d  Time: %s\n", r.DistinctExercises, formatDuration(time.Duration(r.ElapsedSeconds)*time.Second))
}

func printSteps(steps []completion.StepResult) {
	faint := color.New(color.Faint)
	for _, s := range steps {
		switch {
		case s.Skipped:
			fmt.Printf("  %s %s\n", faint.Sprint("-"), faint.Sprint(s.Name))
		case s.OK:
			fmt.Printf("  %s %s\n", color.GreenString("✓"), s.Name)
		default:
			fmt.Printf("  %s %s %s\n", color.RedString("✗"), s.Name, faint.Sprintf("(%s after %d attempts)", s.Kind, s.Attempts))
		}
	}
}

var abandonCmd = &cobra.Command{
	Use:   "abandon",
	Short: "Stop the workout without saving",
	Long: `Stop the workout without saving it to history.

Progress stays on this device so 'lift recover' can bring it back, unless
--discard is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := attach(cmd.Context()); err != nil {
			return err
		}
		if _, err := check(eng.AbandonSession(abandonDiscard)); err != nil {
			return err
		}
		if abandonDiscard {
			color.Yellow("Workout abandoned and discarded")
		} else {
			color.Yellow("Workout abandoned (recoverable with 'lift recover')")
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{setCmd, failCmd} {
		c.Flags().Float64VarP(&setLoad, "load", "l", 0, "load used (default: suggested load)")
		c.Flags().IntVarP(&setExercise, "exercise", "e", 0, "exercise number (default: current)")
		c.Flags().IntVar(&setNumber, "set", 0, "set number (default: next)")
	}
	restCmd.Flags().BoolVarP(&restWait, "wait", "w", false, "count down until the rest is over")
	finishCmd.Flags().IntVar(&finishEffort, "effort", 0, "perceived effort (1-10)")
	finishCmd.Flags().IntVar(&finishFatigue, "fatigue", 0, "fatigue (1-10)")
	finishCmd.Flags().IntVar(&finishMood, "mood", 0, "mood (1-10)")
	finishCmd.Flags().StringVar(&finishNotes, "notes", "", "notes for the session")
	startCmd.Flags().BoolVarP(&startForce, "force", "f", false, "discard an interrupted workout")
	abandonCmd.Flags().BoolVar(&abandonDiscard, "discard", false, "also delete the saved progress")

	rootCmd.AddCommand(startCmd, setCmd, failCmd, restCmd, skipCmd, pauseCmd, resumeCmd,
		gotoCmd, statusCmd, finishCmd, abandonCmd)
}
