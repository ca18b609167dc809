// ABOUTME: Terminal rendering of engine results and shared CLI helpers.
// ABOUTME: Expected rejections become errors carrying the engine's reason.
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/harperreed/lift/internal/engine"
	"github.com/harperreed/lift/internal/recovery"
	"github.com/harperreed/lift/internal/session"
)

// rejected is an expected engine condition surfaced as a command error.
type rejected struct {
	code   engine.Code
	reason string
}

func (r *rejected) Error() string {
	return fmt.Sprintf("%s: %s", r.code, r.reason)
}

// check converts an engine outcome into a command error.
func check(res engine.Result, err error) (engine.Result, error) {
	if err != nil {
		return res, err
	}
	if !res.OK() {
		return res, &rejected{code: res.Code, reason: res.Reason}
	}
	return res, nil
}

// attach continues the stored session, explaining anything it had to discard.
func attach(ctx context.Context) (engine.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := eng.Attach(ctx)
	if err != nil {
		return res, err
	}
	printPending(res)
	if res.Offer != nil && res.Offer.Decision == recovery.Discarded {
		color.Yellow("Previous workout discarded: %s", res.Offer.Reason)
	}
	return check(res, nil)
}

func printView(v session.View) {
	faint := color.New(color.Faint)
	bold := color.New(color.Bold)

	if v.SessionID == "" {
		fmt.Println("No workout in progress.")
		return
	}

	fmt.Printf("%s %s  %s\n", bold.Sprint(v.PlanID), faint.Sprint(shortID(v.SessionID)), statusColor(v.Status).Sprint(v.Status))
	fmt.Printf("  Exercise %d: %s\n", v.CurrentExercise+1, bold.Sprint(v.ExerciseName))
	if v.NextSet > 0 {
		fmt.Printf("  Next set %d/%d: %d reps @ %s\n", v.NextSet, v.TargetSets, v.TargetReps, formatLoad(v.SuggestedLoad))
	} else {
		fmt.Printf("  %s\n", faint.Sprint("all sets done for this exercise"))
	}
	if v.RestRemaining > 0 {
		fmt.Printf("  Rest: %s\n", color.CyanString(formatDuration(v.RestRemaining)))
	}
	fmt.Printf("  Progress: %d/%d sets  Elapsed: %s\n", v.CompletedSets, v.TotalSets, formatDuration(v.Elapsed))
}

func printPending(res engine.Result) {
	if res.Pending == nil {
		return
	}
	if c := res.Pending.Completed; c != nil {
		ok := true
		for _, s := range c.Steps {
			ok = ok && (s.OK || s.Skipped)
		}
		if ok {
			color.Green("✓ Last workout saved: %d sets, %.0f volume", c.Record.TotalSets, c.Record.TotalVolume)
		}
	}
	if f := res.Pending.Failed; f != nil {
		color.Yellow("! Workout %s was not fully saved (run 'lift retry')", shortID(f.Input.Record.SessionID))
	}
}

func statusColor(s session.Status) *color.Color {
	switch s {
	case session.Active:
		return color.New(color.FgGreen)
	case session.Resting:
		return color.New(color.FgCyan)
	case session.Paused:
		return color.New(color.FgYellow)
	case session.Finalizing, session.Finalized:
		return color.New(color.FgMagenta)
	default:
		return color.New(color.Faint)
	}
}

func formatLoad(load float64) string {
	if load == float64(int64(load)) {
		return fmt.Sprintf("%d", int64(load))
	}
	return fmt.Sprintf("%.1f", load)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func padRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}

func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04",
		"2006-01-02T15:04",
		"2006-01-02",
		time.RFC3339,
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format")
}
