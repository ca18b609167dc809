// ABOUTME: CLI command for starting the MCP server.
// ABOUTME: Runs a stdio MCP server that drives the workout engine.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harperreed/lift/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server",
	Long: `Start the Model Context Protocol (MCP) server for AI assistant integration.

The server keeps one workout engine alive for as long as it runs, so rest
timers and telemetry flushes tick in real time. It communicates via
stdin/stdout.

CLAUDE DESKTOP CONFIGURATION:

  {
    "mcpServers": {
      "lift": {
        "command": "lift",
        "args": ["mcp"]
      }
    }
  }

AVAILABLE TOOLS:

  start_session       Start a workout for a plan
  confirm_set         Log a completed set
  fail_set            Log a set that fell short
  skip_rest           End the current rest early
  goto_exercise       Move to another exercise
  pause_session       Pause the workout
  resume_session      Resume a paused workout
  abandon_session     Stop without saving
  finish_session      Save the workout to history
  check_recovery      Look for an interrupted workout
  resume_recovered    Continue the interrupted workout
  discard_recovered   Drop the interrupted workout
  retry_finalize      Retry a partially saved workout
  get_status          Current exercise, set, rest, and progress
  list_plans          Available plans
  list_history        Finished workouts

AVAILABLE RESOURCES:

  lift://status     Current session view
  lift://plans      Available plans
  lift://history    Recent finished workouts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := mcp.NewServer(eng, repo)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		return server.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
