// ABOUTME: Telemetry sink contract and HTTP implementation.
// ABOUTME: The HTTP sink posts one batch per call; retries are the buffer's offline log, not the sink.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/harperreed/lift/internal/models"
)

// Sink accepts a batch of events.
type Sink interface {
	Deliver(ctx context.Context, batch []models.BufferedEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, batch []models.BufferedEvent) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, batch []models.BufferedEvent) error {
	return f(ctx, batch)
}

// Connectivity reports whether the telemetry endpoint is reachable at all.
type Connectivity interface {
	Online() bool
}

// ConnectivityFunc adapts a function to Connectivity.
type ConnectivityFunc func() bool

// Online calls f.
func (f ConnectivityFunc) Online() bool { return f() }

// Online and Offline are fixed Connectivity values.
var (
	Online  Connectivity = ConnectivityFunc(func() bool { return true })
	Offline Connectivity = ConnectivityFunc(func() bool { return false })
)

// Batch is the wire body exchanged between HTTPSink and Collector.
type Batch struct {
	Events []models.BufferedEvent `json:"events"`
}

// HTTPSink posts batches to a collector endpoint.
type HTTPSink struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPSink creates an HTTPSink for the collector at endpoint.
func NewHTTPSink(endpoint, apiKey string) *HTTPSink {
	return &HTTPSink{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Deliver POSTs the batch. Any non-2xx status is an error.
func (s *HTTPSink) Deliver(ctx context.Context, batch []models.BufferedEvent) error {
	data, err := json.Marshal(Batch{Events: batch})
	if err != nil {
		return fmt.Errorf("marshaling batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telemetry rejected (status %d): %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
