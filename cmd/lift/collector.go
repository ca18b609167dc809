// ABOUTME: CLI command running the telemetry collector HTTP server.
// ABOUTME: Accepts event batches from lift clients and appends them to a local log.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harperreed/lift/internal/events"
	"github.com/harperreed/lift/internal/kv"
)

const defaultCollectorAddr = "127.0.0.1:8085"

var (
	collectorAddr   string
	collectorAPIKey string
)

var collectorCmd = &cobra.Command{
	Use:         "collector",
	Short:       "Run the telemetry collector",
	Annotations: map[string]string{"needs": needsNone},
	Long: `Run a small HTTP server that accepts telemetry batches from lift clients.

Clients send batches to POST /api/v1/events when their config sets
telemetry.endpoint to this server. Received events are kept in a capped
log under the data directory.

EXAMPLES:

  lift collector
  lift collector --addr :9000 --api-key s3cret`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := firstNonEmpty(collectorAddr, cfg.Collector.Addr, defaultCollectorAddr)
		apiKey := firstNonEmpty(collectorAPIKey, cfg.Collector.APIKey)

		db, err := kv.OpenBadger(filepath.Join(cfg.GetDataDir(), "collector"))
		if err != nil {
			return fmt.Errorf("failed to open collector store: %w", err)
		}
		defer func() { _ = db.Close() }()

		log := events.NewLog(db, cfg.Telemetry.LogMax)
		handler := events.NewCollector(events.LogHandler(log), apiKey, logger)

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		logger.Info("collector starting", "addr", listener.Addr().String(), "auth", apiKey != "")
		fmt.Printf("Collector listening on %s\n", listener.Addr())

		httpSrv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
		serveErr := make(chan error, 1)
		go func() {
			if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case err := <-serveErr:
			return err
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("collector stopped")
		return nil
	},
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func init() {
	collectorCmd.Flags().StringVar(&collectorAddr, "addr", "", "listen address (default "+defaultCollectorAddr+")")
	collectorCmd.Flags().StringVar(&collectorAPIKey, "api-key", "", "require this key in the X-API-Key header")
	rootCmd.AddCommand(collectorCmd)
}
