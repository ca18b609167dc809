// ABOUTME: Finalization pipeline: statistics, three retried persistence steps, and cleanup.
// ABOUTME: Local cleanup always happens; failed steps leave an error marker for a later retry.
package completion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/harperreed/lift/internal/events"
	"github.com/harperreed/lift/internal/kv"
	"github.com/harperreed/lift/internal/models"
	"github.com/harperreed/lift/internal/registry"
	"github.com/harperreed/lift/internal/session"
	"github.com/harperreed/lift/internal/snapshot"
	"github.com/harperreed/lift/internal/storage"
)

// Step names.
const (
	StepSummary = "summary"
	StepSets    = "sets"
	StepPlanDay = "plan-day"
)

const (
	DefaultAttempts = 3
	DefaultBackoff  = 500 * time.Millisecond
)

var (
	// ErrNoActiveSession means there is nothing to finalize.
	ErrNoActiveSession = errors.New("no active session")
	// ErrNothingToRetry means no error marker is stored.
	ErrNothingToRetry = errors.New("no failed finalization to retry")
)

// Extra carries the optional subjective input captured at the end.
type Extra struct {
	Ratings *models.Ratings
	Notes   *string
}

// StepResult is the outcome of one persistence step.
type StepResult struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Skipped  bool   `json:"skipped,omitempty"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// Report describes a finalization.
type Report struct {
	Record models.CompletionRecord
	Steps  []StepResult
}

// OK reports whether every step succeeded.
func (r Report) OK() bool {
	for _, s := range r.Steps {
		if !s.OK {
			return false
		}
	}
	return true
}

// Failed returns the names of failed steps.
func (r Report) Failed() []string {
	var out []string
	for _, s := range r.Steps {
		if !s.OK {
			out = append(out, s.Name)
		}
	}
	return out
}

// Pending is what a previous run left behind.
type Pending struct {
	Completed *Marker
	Failed    *ErrorMarker
}

// Options configures a Pipeline.
type Options struct {
	Repo      storage.Repository
	Store     kv.Store
	Snapshots *snapshot.Store
	Registry  *registry.Registry
	Events    events.Recorder
	Logger    *slog.Logger
	Attempts  int
	Backoff   time.Duration
	// Sleep waits between attempts; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Pipeline finalizes sessions.
type Pipeline struct {
	repo      storage.Repository
	store     kv.Store
	snapshots *snapshot.Store
	reg       *registry.Registry
	events    events.Recorder
	logger    *slog.Logger
	attempts  int
	backoff   time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	if opts.Registry == nil {
		opts.Registry = registry.New(nil)
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Pipeline{
		repo:      opts.Repo,
		store:     opts.Store,
		snapshots: opts.Snapshots,
		reg:       opts.Registry,
		events:    opts.Events,
		logger:    opts.Logger,
		attempts:  opts.Attempts,
		backoff:   opts.Backoff,
		sleep:     opts.Sleep,
	}
}

// Finalize persists a live session and tears it down. Persistence failures
// are reported in the Report, never returned as an error.
func (p *Pipeline) Finalize(ctx context.Context, s *session.Session, extra Extra) (Report, error) {
	if s == nil || !s.Status().Started() {
		return Report{}, ErrNoActiveSession
	}

	now := p.reg.Clock().Now()
	plan := s.Plan()
	log := s.Log()
	rec := ComputeRecord(s.ID(), plan.ID, s.StartedAt(), now, s.Elapsed(now), log)
	rec.Ratings = extra.Ratings
	rec.Notes = extra.Notes

	input := Input{Record: rec, Sets: log, PlanID: plan.ID, Day: plan.Day}
	report := p.run(ctx, input)

	p.reg.CancelContext(session.WorkoutContext)
	p.reg.CancelContext(session.RestContext)
	if err := s.MarkFinalized(); err != nil {
		p.logger.Warn("mark finalized", "session", rec.SessionID, "error", err)
	}
	if p.snapshots != nil {
		if err := p.snapshots.Clear(); err != nil {
			p.logger.Warn("clear snapshot after finalize", "session", rec.SessionID, "error", err)
		}
	}

	p.settle(input, report, now, 1)
	p.events.Record(models.EventSessionFinished, rec.SessionID, map[string]any{
		"sets":            rec.TotalSets,
		"reps":            rec.TotalReps,
		"volume":          rec.TotalVolume,
		"elapsed_seconds": rec.ElapsedSeconds,
		"persisted":       report.OK(),
	})
	p.logger.Info("session finalized", "session", rec.SessionID, "ok", report.OK())
	return report, nil
}

// Pending surfaces what an earlier run left behind. An unexpired completion
// marker is returned once and deleted; an expired one is dropped silently.
// An error marker stays until a retry succeeds.
func (p *Pipeline) Pending(ctx context.Context) (Pending, error) {
	var out Pending
	if p.store == nil {
		return out, nil
	}

	var m Marker
	found, err := readJSON(p.store, MarkerKey, &m)
	if err != nil {
		p.logger.Warn("unreadable completion marker, dropping", "error", err)
		_ = deleteKey(p.store, MarkerKey)
	} else if found {
		if !m.Expired(p.reg.Clock().Now()) {
			out.Completed = &m
		}
		if err := deleteKey(p.store, MarkerKey); err != nil {
			return out, err
		}
	}

	var em ErrorMarker
	found, err = readJSON(p.store, ErrorMarkerKey, &em)
	if err != nil {
		return out, err
	}
	if found {
		out.Failed = &em
	}
	return out, nil
}

// Retry re-runs every step from the stored error marker.
func (p *Pipeline) Retry(ctx context.Context) (Report, error) {
	if p.store == nil {
		return Report{}, ErrNothingToRetry
	}
	var em ErrorMarker
	found, err := readJSON(p.store, ErrorMarkerKey, &em)
	if err != nil {
		return Report{}, err
	}
	if !found {
		return Report{}, ErrNothingToRetry
	}

	report := p.run(ctx, em.Input)
	p.settle(em.Input, report, p.reg.Clock().Now(), em.Attempts+1)
	p.logger.Info("finalization retried", "session", em.Input.Record.SessionID, "ok", report.OK())
	return report, nil
}

// settle writes the completion marker and writes or clears the error marker.
func (p *Pipeline) settle(input Input, report Report, now time.Time, attempt int) {
	if p.store == nil {
		return
	}
	marker := Marker{
		Record:    input.Record,
		Steps:     report.Steps,
		WrittenAt: now,
		ExpiresAt: now.Add(MarkerTTL),
	}
	if err := writeJSON(p.store, MarkerKey, marker); err != nil {
		p.logger.Warn("completion marker write failed", "error", err)
	}

	if report.OK() {
		if err := deleteKey(p.store, ErrorMarkerKey); err != nil {
			p.logger.Warn("error marker delete failed", "error", err)
		}
		return
	}

	em := ErrorMarker{Input: input, Steps: report.Steps, FailedAt: now, Attempts: attempt}
	if err := writeJSON(p.store, ErrorMarkerKey, em); err != nil {
		p.logger.Error("error marker write failed", "error", err)
	}
	p.events.Record(models.EventSyncError, input.Record.SessionID, map[string]any{
		"failed_steps": report.Failed(),
	})
}

func (p *Pipeline) run(ctx context.Context, in Input) Report {
	report := Report{Record: in.Record}
	if p.repo == nil {
		for _, name := range []string{StepSummary, StepSets, StepPlanDay} {
			report.Steps = append(report.Steps, StepResult{Name: name, Error: "no repository configured"})
		}
		return report
	}

	rec := in.Record
	report.Steps = append(report.Steps, p.step(ctx, StepSummary, func(ctx context.Context) error {
		return p.repo.UpsertSummary(ctx, &rec)
	}))
	report.Steps = append(report.Steps, p.step(ctx, StepSets, func(ctx context.Context) error {
		_, err := p.repo.InsertSets(ctx, in.Record.SessionID, in.Sets)
		return err
	}))
	if in.Day < 1 {
		report.Steps = append(report.Steps, StepResult{Name: StepPlanDay, OK: true, Skipped: true})
	} else {
		report.Steps = append(report.Steps, p.step(ctx, StepPlanDay, func(ctx context.Context) error {
			return p.repo.MarkDayCompleted(ctx, in.PlanID, in.Day, in.Record.SessionID, in.Record.FinishedAt)
		}))
	}
	return report
}

// step runs fn with exponential backoff, retrying only transient failures.
func (p *Pipeline) step(ctx context.Context, name string, fn func(context.Context) error) StepResult {
	res := StepResult{Name: name}
	var err error
	for attempt := 0; attempt < p.attempts; attempt++ {
		res.Attempts = attempt + 1
		if err = fn(ctx); err == nil {
			res.OK = true
			return res
		}
		if !storage.IsTransient(err) || attempt == p.attempts-1 {
			break
		}
		delay := p.backoff * time.Duration(1<<attempt)
		p.logger.Debug("retrying step", "step", name, "attempt", res.Attempts, "delay", delay, "error", err)
		if serr := p.sleep(ctx, delay); serr != nil {
			err = fmt.Errorf("%w (gave up: %v)", err, serr)
			break
		}
	}
	res.Error = err.Error()
	res.Kind = storage.KindOf(err).String()
	p.logger.Warn("persistence step failed", "step", name, "attempts", res.Attempts, "error", err)
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
