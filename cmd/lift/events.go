// ABOUTME: CLI commands for buffered telemetry events.
// ABOUTME: flush sends pending events now; log shows the durable local event log.
package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	eventsLimit int
	eventsClear bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect workout telemetry",
	Long: `Inspect the telemetry events recorded during workouts.

Events are buffered in memory and delivered in batches to the configured
telemetry endpoint. Every delivered batch is also appended to a capped log
kept alongside your workout progress.

EXAMPLES:

  lift events flush      # Deliver anything still buffered
  lift events log -n 50  # Show the last 50 logged events
  lift events log --clear`,
}

var eventsFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Deliver buffered events now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r := eng.Flush(cmd.Context()).Flush
		switch {
		case r == nil || r.Count == 0:
			fmt.Println("Nothing to flush.")
		case r.Offline:
			color.Yellow("Offline: %d events kept in the local log", r.Count)
		case r.Err != nil:
			return fmt.Errorf("delivery failed, %d events kept in the local log: %w", r.Count, r.Err)
		default:
			color.Green("✓ Flushed %d events", r.Count)
		}
		return nil
	},
}

var eventsLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the local event log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := eng.EventLog()
		if eventsClear {
			if err := log.Clear(); err != nil {
				return fmt.Errorf("failed to clear event log: %w", err)
			}
			color.Green("✓ Event log cleared")
			return nil
		}

		entries, err := log.Entries()
		if err != nil {
			return fmt.Errorf("failed to read event log: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("No events logged.")
			return nil
		}
		if eventsLimit > 0 && len(entries) > eventsLimit {
			entries = entries[len(entries)-eventsLimit:]
		}

		faint := color.New(color.Faint)
		for _, e := range entries {
			fmt.Printf("%s %s %s\n",
				faint.Sprint(e.At.Local().Format("2006-01-02 15:04:05")),
				padRight(string(e.Kind), 20),
				faint.Sprint(shortID(e.SessionID)))
		}
		return nil
	},
}

func init() {
	eventsLogCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "max number of events (0 for all)")
	eventsLogCmd.Flags().BoolVar(&eventsClear, "clear", false, "delete the local event log")

	eventsCmd.AddCommand(eventsFlushCmd, eventsLogCmd)
	rootCmd.AddCommand(eventsCmd)
}
