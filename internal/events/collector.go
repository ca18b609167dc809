// ABOUTME: chi-routed HTTP collector that receives event batches from HTTPSink.
// ABOUTME: Batches are validated and handed to a callback, typically a durable Log.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harperreed/lift/internal/models"
)

// BatchHandler receives accepted batches.
type BatchHandler func(ctx context.Context, batch []models.BufferedEvent) error

// LogHandler returns a BatchHandler that appends to log.
func LogHandler(log *Log) BatchHandler {
	return func(_ context.Context, batch []models.BufferedEvent) error {
		return log.Append(batch)
	}
}

// Collector serves the telemetry ingest endpoint.
type Collector struct {
	handle BatchHandler
	apiKey string
	log    *slog.Logger
	router chi.Router
}

// NewCollector creates a Collector with its routes configured.
func NewCollector(handle BatchHandler, apiKey string, log *slog.Logger) *Collector {
	c := &Collector{
		handle: handle,
		apiKey: apiKey,
		log:    log,
		router: chi.NewRouter(),
	}
	c.routes()
	return c
}

// ServeHTTP implements http.Handler.
func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.router.ServeHTTP(w, r)
}

func (c *Collector) routes() {
	c.router.Use(RequestLogging(c.log))

	c.router.Route("/api/v1/events", func(r chi.Router) {
		if c.apiKey != "" {
			r.Use(APIKeyAuth(c.apiKey))
		}
		r.Post("/", c.handleIngest)
	})
	c.router.Get("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (c *Collector) handleIngest(w http.ResponseWriter, r *http.Request) {
	var batch Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	for i, e := range batch.Events {
		if !models.IsValidEventKind(string(e.Kind)) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("event %d: unknown kind %q", i, e.Kind)})
			return
		}
	}

	if err := c.handle(r.Context(), batch.Events); err != nil {
		c.log.Error("collector handler failed", "events", len(batch.Events), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(batch.Events)})
}

// APIKeyAuth returns middleware that validates the X-API-Key header.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				http.Error(w, `{"error":"missing API key"}`, http.StatusUnauthorized)
				return
			}
			if key != apiKey {
				http.Error(w, `{"error":"invalid API key"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogging returns middleware that logs each request.
func RequestLogging(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start).String(),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
