// ABOUTME: Root Cobra command for lift CLI.
// ABOUTME: Opens config, stores, and the engine via PersistentPre/PostRunE.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/harperreed/lift/internal/charm"
	"github.com/harperreed/lift/internal/config"
	"github.com/harperreed/lift/internal/engine"
	"github.com/harperreed/lift/internal/events"
	"github.com/harperreed/lift/internal/kv"
	"github.com/harperreed/lift/internal/storage"
)

// Resource needs a command declares through its "needs" annotation.
const (
	needsNone   = "none"
	needsStore  = "store"
	needsRepo   = "repo"
	needsEngine = "engine"
)

var (
	verbose bool

	cfg    *config.Config
	logger *slog.Logger
	store  kv.Store
	repo   storage.Repository
	eng    *engine.Engine
)

var rootCmd = &cobra.Command{
	Use:   "lift",
	Short: "Crash-safe strength workout tracker",
	Long: `Lift walks you through a strength workout set by set, runs your rest
timers, and never loses progress: every change is saved locally, so a crash,
a closed terminal, or a dead battery just means picking up where you left off.

QUICK START:

  $ lift plans list                 # Plans live as YAML in ~/.local/share/lift/plans
  $ lift start push-a               # Begin a workout
  $ lift set 8 --load 60            # Log the next set: 8 reps at 60
  $ lift rest --wait                # Count down the rest
  $ lift status                     # Current exercise, next set, progress
  $ lift finish --effort 8          # Save the session

RECOVERY:

  $ lift recover --plan push-a      # Check for an interrupted workout
  $ lift recover --resume           # Continue it
  $ lift recover --discard          # Or drop it
  $ lift retry                      # Re-save a session that failed to persist

MCP INTEGRATION:

  Run 'lift mcp' to expose the workout engine to MCP-compatible assistants:

  {
    "mcpServers": {
      "lift": { "command": "lift", "args": ["mcp"] }
    }
  }

CONFIGURATION:

  ~/.config/lift/config.yaml, overridable with LIFT_* environment variables.
  Progress is kept in Charm KV by default (store: badger for local only);
  finished sessions go to SQLite (backend: postgres with database_url).
  'lift store status' shows what is saved; 'lift store sync' pulls from Charm Cloud.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger = cfg.Logger(os.Stderr, verbose)

		switch needs(cmd) {
		case needsNone:
			return nil
		case needsStore:
			store, err = cfg.OpenStore()
			if err != nil {
				return fmt.Errorf("failed to open %s store: %w", cfg.GetStore(), err)
			}
			return nil
		case needsRepo:
			repo, err = cfg.OpenRepository(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to open %s backend: %w", cfg.GetBackend(), err)
			}
			return nil
		}
		return openEngine(cmd.Context())
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")
}

func needs(cmd *cobra.Command) string {
	for c := cmd; c != nil; c = c.Parent() {
		if n, ok := c.Annotations["needs"]; ok {
			return n
		}
	}
	return needsEngine
}

func openEngine(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deviceID, err := cfg.EnsureDeviceID()
	if err != nil {
		logger.Warn("could not save device id", "error", err)
	}

	store, err = cfg.OpenStore()
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.GetStore(), err)
	}
	if c, ok := store.(*charm.Client); ok && c.IsReadOnly() {
		logger.Warn("charm store is locked by another process, progress cannot be saved")
	}
	repo, err = cfg.OpenRepository(ctx)
	if err != nil {
		logger.Warn("history backend unavailable, sessions will be kept for retry", "backend", cfg.GetBackend(), "error", err)
		repo = nil
	}

	opts := engine.Options{
		Store:               store,
		Plans:               cfg.OpenPlans(),
		Threshold:           cfg.Telemetry.Threshold,
		FlushInterval:       cfg.GetFlushInterval(),
		LogMax:              cfg.Telemetry.LogMax,
		DeviceID:            deviceID,
		BetweenExerciseRest: cfg.GetBetweenExerciseRest(),
		MaxSnapshotAge:      cfg.GetSnapshotMaxAge(),
		Logger:              logger,
		OnFlush:             logFlush,
	}
	if repo != nil {
		opts.Repo = repo
	}
	if cfg.Telemetry.Endpoint != "" {
		opts.Sink = events.NewHTTPSink(cfg.Telemetry.Endpoint, cfg.Telemetry.APIKey)
	}
	eng, err = engine.New(opts)
	return err
}

func logFlush(r events.FlushResult) {
	switch {
	case r.Err != nil:
		logger.Warn("telemetry not delivered, kept in the local log", "events", r.Count, "error", r.Err)
	case r.Offline:
		logger.Debug("telemetry offline, kept in the local log", "events", r.Count)
	default:
		logger.Debug("telemetry delivered", "events", r.Count)
	}
}

// execute runs the command line and releases everything it opened, also
// when the command failed and the post-run hook was skipped.
func execute(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	return errors.Join(err, closeAll())
}

func closeAll() error {
	var errs []error
	if eng != nil {
		errs = append(errs, eng.Close())
		eng = nil
	}
	if repo != nil {
		errs = append(errs, repo.Close())
		repo = nil
	}
	if store != nil {
		errs = append(errs, store.Close())
		store = nil
	}
	return errors.Join(errs...)
}
