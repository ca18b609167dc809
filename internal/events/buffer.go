// ABOUTME: Event buffer that batches telemetry and degrades to the durable log when offline.
// ABOUTME: Flushes on size threshold and interval timers, and on host shutdown.
package events

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/harperreed/lift/internal/models"
	"github.com/harperreed/lift/internal/registry"
)

const (
	// DefaultThreshold is the buffered count that triggers a flush.
	DefaultThreshold = 20
	// DefaultInterval is the periodic flush interval.
	DefaultInterval = 30 * time.Second

	// FlushTimerID is the registry id of the periodic flush.
	FlushTimerID = "events:flush"
	// FlushNowID is the registry id of a threshold flush handed off by Record.
	FlushNowID = "events:flush-now"
	// ShutdownEvent is the host signal that forces a synchronous flush.
	ShutdownEvent = "shutdown"
)

// Recorder is what the engine components use to report transitions.
type Recorder interface {
	Record(kind models.EventKind, sessionID string, payload map[string]any)
}

// Discard is a Recorder that drops everything.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(models.EventKind, string, map[string]any) {}

// Options configures a Buffer.
type Options struct {
	Threshold    int
	Interval     time.Duration
	Sink         Sink
	Log          *Log
	Connectivity Connectivity
	Logger       *slog.Logger
}

// FlushResult describes one flush.
type FlushResult struct {
	Count     int
	Delivered bool
	Offline   bool
	Err       error
}

// Buffer collects events in memory until a flush trigger fires.
type Buffer struct {
	mu        sync.Mutex
	pending   []models.BufferedEvent
	reg       *registry.Registry
	sink      Sink
	log       *Log
	online    Connectivity
	logger    *slog.Logger
	threshold int
	interval  time.Duration
	onFlush   func(FlushResult)
}

// NewBuffer creates a Buffer. Without a Sink every flush goes to the log.
func NewBuffer(reg *registry.Registry, opts Options) *Buffer {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Connectivity == nil {
		opts.Connectivity = Online
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Buffer{
		reg:       reg,
		sink:      opts.Sink,
		log:       opts.Log,
		online:    opts.Connectivity,
		logger:    opts.Logger,
		threshold: opts.Threshold,
		interval:  opts.Interval,
	}
}

// Start schedules the periodic flush and, when host is non-nil, a forced
// flush on its shutdown signal.
func (b *Buffer) Start(host registry.Source) {
	b.reg.ScheduleRepeating(FlushTimerID, func() {
		b.Flush(context.Background())
	}, b.interval)
	if host != nil {
		b.reg.Subscribe(host, ShutdownEvent, func(any) {
			b.Flush(context.Background())
		})
	}
}

// Stop cancels the flush timers and flushes whatever is pending.
func (b *Buffer) Stop(ctx context.Context) FlushResult {
	b.reg.Cancel(FlushTimerID)
	b.reg.Cancel(FlushNowID)
	return b.Flush(ctx)
}

// OnFlush registers a callback invoked after every non-empty flush.
func (b *Buffer) OnFlush(fn func(FlushResult)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFlush = fn
}

// Record buffers an event. Reaching the threshold schedules an immediate
// flush on the registry; callers never wait on delivery.
func (b *Buffer) Record(kind models.EventKind, sessionID string, payload map[string]any) {
	e := models.NewBufferedEvent(kind, sessionID, b.reg.Clock().Now()).WithPayload(payload)

	b.mu.Lock()
	b.pending = append(b.pending, *e)
	full := len(b.pending) >= b.threshold
	b.mu.Unlock()

	if full {
		b.reg.ScheduleOnce(FlushNowID, func() {
			b.Flush(context.Background())
		}, 0)
	}
}

// Pending returns a copy of the buffered events.
func (b *Buffer) Pending() []models.BufferedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.BufferedEvent, len(b.pending))
	copy(out, b.pending)
	return out
}

// Flush empties the buffer. Delivery is attempted only when online; on
// failure or when offline the batch goes to the durable log. The batch is
// put back only if the durable log itself cannot be written.
func (b *Buffer) Flush(ctx context.Context) FlushResult {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	onFlush := b.onFlush
	b.mu.Unlock()

	if len(batch) == 0 {
		return FlushResult{}
	}

	res := FlushResult{Count: len(batch)}
	toLog := batch

	switch {
	case b.sink == nil || !b.online.Online():
		res.Offline = true
	default:
		if err := b.sink.Deliver(ctx, batch); err != nil {
			b.logger.Warn("telemetry delivery failed, keeping events offline", "events", len(batch), "error", err)
			res.Err = err
			syncErr := models.NewBufferedEvent(models.EventSyncError, batch[len(batch)-1].SessionID, b.reg.Clock().Now()).
				WithPayload(map[string]any{"error": err.Error(), "events": len(batch)})
			toLog = append(append([]models.BufferedEvent{}, batch...), *syncErr)
		} else {
			res.Delivered = true
		}
	}

	if b.log != nil {
		if err := b.log.Append(toLog); err != nil {
			b.logger.Error("event log write failed, requeueing", "events", len(batch), "error", err)
			b.requeue(batch)
			res.Err = fmt.Errorf("append event log: %w", err)
			res.Delivered = false
		}
	}

	b.logger.Debug("flushed events", "events", res.Count, "delivered", res.Delivered, "offline", res.Offline)
	if onFlush != nil {
		onFlush(res)
	}
	return res
}

func (b *Buffer) requeue(batch []models.BufferedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(append([]models.BufferedEvent{}, batch...), b.pending...)
}
