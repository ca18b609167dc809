// ABOUTME: Engine facade wiring registry, session, snapshots, recovery, completion, and telemetry.
// ABOUTME: Host surfaces (CLI, MCP) drive workouts only through this type.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/harperreed/lift/internal/completion"
	"github.com/harperreed/lift/internal/events"
	"github.com/harperreed/lift/internal/kv"
	"github.com/harperreed/lift/internal/models"
	"github.com/harperreed/lift/internal/plans"
	"github.com/harperreed/lift/internal/recovery"
	"github.com/harperreed/lift/internal/registry"
	"github.com/harperreed/lift/internal/session"
	"github.com/harperreed/lift/internal/snapshot"
	"github.com/harperreed/lift/internal/storage"
)

// HostID identifies the engine's lifecycle bus in subscription keys.
const HostID = "engine"

// Options configures an Engine.
type Options struct {
	// Store is the durable local store for snapshots, markers, and the event log.
	Store kv.Store
	// Repo receives finalized sessions. Nil leaves every step failed and retryable.
	Repo  storage.Repository
	Plans plans.Provider
	Clock registry.Clock

	Sink          events.Sink
	Connectivity  events.Connectivity
	Threshold     int
	FlushInterval time.Duration
	LogMax        int

	DeviceID            string
	BetweenExerciseRest time.Duration
	MaxSnapshotAge      time.Duration
	Logger              *slog.Logger
	// OnTick receives a view on every rest or elapsed tick.
	OnTick func(session.View)
	// OnFlush receives the outcome of every non-empty telemetry flush.
	OnFlush func(events.FlushResult)

	// Backoff and Sleep tune the completion retries; tests shorten them.
	Backoff time.Duration
	Sleep   func(ctx context.Context, d time.Duration) error
}

// Engine owns one workout at a time.
type Engine struct {
	mu sync.Mutex

	reg       *registry.Registry
	host      *registry.Bus
	snapshots *snapshot.Store
	buffer    *events.Buffer
	eventLog  *events.Log
	pipeline  *completion.Pipeline
	recovery  *recovery.Coordinator
	plans     plans.Provider
	logger    *slog.Logger
	opts      Options

	session   *session.Session
	offer     *recovery.Offer
	offerPlan *models.WorkoutPlan
	closed    bool
}

// New wires an Engine and starts its periodic telemetry flush.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("engine: a durable store is required")
	}
	if opts.Plans == nil {
		opts.Plans = plans.NewStatic()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	e := &Engine{
		reg:       registry.New(opts.Clock),
		host:      registry.NewBus(HostID),
		snapshots: snapshot.NewStore(opts.Store),
		eventLog:  events.NewLog(opts.Store, opts.LogMax),
		plans:     opts.Plans,
		logger:    opts.Logger,
		opts:      opts,
	}
	e.buffer = events.NewBuffer(e.reg, events.Options{
		Threshold:    opts.Threshold,
		Interval:     opts.FlushInterval,
		Sink:         opts.Sink,
		Log:          e.eventLog,
		Connectivity: opts.Connectivity,
		Logger:       opts.Logger.With("component", "events"),
	})
	if opts.OnFlush != nil {
		e.buffer.OnFlush(opts.OnFlush)
	}
	e.pipeline = completion.New(completion.Options{
		Repo:      opts.Repo,
		Store:     opts.Store,
		Snapshots: e.snapshots,
		Registry:  e.reg,
		Events:    e.buffer,
		Logger:    opts.Logger.With("component", "completion"),
		Backoff:   opts.Backoff,
		Sleep:     opts.Sleep,
	})
	e.recovery = recovery.New(recovery.Options{
		Store:    e.snapshots,
		Registry: e.reg,
		Events:   e.buffer,
		MaxAge:   opts.MaxSnapshotAge,
		Logger:   opts.Logger.With("component", "recovery"),
		Session:  e.newSession,
	})
	e.buffer.Start(e.host)
	return e, nil
}

func (e *Engine) newSession() *session.Session {
	return session.New(session.Options{
		Registry:            e.reg,
		Snapshots:           e.snapshots,
		Events:              e.buffer,
		DeviceID:            e.opts.DeviceID,
		BetweenExerciseRest: e.opts.BetweenExerciseRest,
		Logger:              e.opts.Logger.With("component", "session"),
		OnTick:              e.opts.OnTick,
	})
}

// Registry exposes the resource registry for inspection.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// EventLog exposes the durable offline event log.
func (e *Engine) EventLog() *events.Log {
	return e.eventLog
}

// Plans returns the plan provider.
func (e *Engine) Plans() plans.Provider {
	return e.plans
}

// outcome turns an operation error into a Result. Only errors without a code
// are returned as Go errors.
func (e *Engine) outcome(err error) (Result, error) {
	state := e.viewLocked()
	if err == nil {
		return Result{State: state}, nil
	}
	if codeFor(err) == CodeInternal {
		return Result{Code: CodeInternal, Reason: err.Error(), State: state}, err
	}
	return failed(err, state), nil
}

func (e *Engine) viewLocked() session.View {
	if e.session == nil {
		return session.View{Status: session.NotStarted}
	}
	return e.session.View()
}

func (e *Engine) liveLocked() (*session.Session, error) {
	if e.session == nil || !e.session.Status().Started() {
		return nil, completion.ErrNoActiveSession
	}
	return e.session, nil
}

// StartSession begins a workout for the plan with the given id. A resumable
// snapshot blocks the start with CodeRecoveryPending until it is resumed or
// discarded; a stale one is discarded with its reason first.
func (e *Engine) StartSession(planID string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil && e.session.Status().Started() {
		return Result{Code: CodeSessionActive, Reason: "a session is already in progress", State: e.viewLocked()}, nil
	}
	plan, err := e.plans.Get(planID)
	if err != nil {
		return e.outcome(err)
	}
	if e.offer == nil && e.snapshots.Exists() {
		if err := e.checkSavedLocked(); err != nil {
			return e.outcome(err)
		}
	}
	if e.offer != nil {
		return Result{
			Code:   CodeRecoveryPending,
			Reason: "an interrupted session must be resumed or discarded first",
			State:  e.viewLocked(),
			Offer:  offerInfo(*e.offer),
		}, nil
	}

	s := e.newSession()
	if err := s.Start(plan); err != nil {
		return e.outcome(err)
	}
	e.session = s
	return e.outcome(nil)
}

// ConfirmSet logs a completed set.
func (e *Engine) ConfirmSet(exerciseIndex, setIndex int, load float64, reps int) (Result, error) {
	return e.withSession(func(s *session.Session) error {
		return s.ConfirmSet(exerciseIndex, setIndex, load, reps)
	})
}

// FailSet logs a set the user could not complete as prescribed.
func (e *Engine) FailSet(exerciseIndex, setIndex int, load float64, reps int) (Result, error) {
	return e.withSession(func(s *session.Session) error {
		return s.FailSet(exerciseIndex, setIndex, load, reps)
	})
}

// SkipRest ends the current rest early.
func (e *Engine) SkipRest() (Result, error) {
	var skipped time.Duration
	res, err := e.withSession(func(s *session.Session) error {
		var err error
		skipped, err = s.SkipRest()
		return err
	})
	res.RestSkipped = skipped
	return res, err
}

// GoToExercise moves the cursor to another exercise.
func (e *Engine) GoToExercise(index int) (Result, error) {
	return e.withSession(func(s *session.Session) error {
		return s.GoToExercise(index)
	})
}

// Pause freezes the workout clock and any rest.
func (e *Engine) Pause() (Result, error) {
	return e.withSession(func(s *session.Session) error { return s.Pause() })
}

// Resume continues a paused workout.
func (e *Engine) Resume() (Result, error) {
	return e.withSession(func(s *session.Session) error { return s.ResumePaused() })
}

// AbandonSession stops the workout without persisting it. The snapshot stays
// available for recovery unless discard is set.
func (e *Engine) AbandonSession(discard bool) (Result, error) {
	return e.withSession(func(s *session.Session) error { return s.Abandon(discard) })
}

func (e *Engine) withSession(fn func(*session.Session) error) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.liveLocked()
	if err != nil {
		return e.outcome(err)
	}
	return e.outcome(fn(s))
}

// Finalize persists and closes the live session. Partial persistence failures
// are reported with CodePartialFailure and can be retried with RetryFinalize.
func (e *Engine) Finalize(ctx context.Context, extra completion.Extra) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	report, err := e.pipeline.Finalize(ctx, e.session, extra)
	if err != nil {
		return e.outcome(err)
	}
	res, _ := e.outcome(nil)
	res.Report = &report
	if !report.OK() {
		res.Code = CodePartialFailure
		res.Reason = fmt.Sprintf("not persisted: %v", report.Failed())
	}
	return res, nil
}

// RetryFinalize re-runs the persistence steps of a partially failed finalization.
func (e *Engine) RetryFinalize(ctx context.Context) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	report, err := e.pipeline.Retry(ctx)
	if err != nil {
		return e.outcome(err)
	}
	res, _ := e.outcome(nil)
	res.Report = &report
	if !report.OK() {
		res.Code = CodePartialFailure
		res.Reason = fmt.Sprintf("still not persisted: %v", report.Failed())
	}
	return res, nil
}

// TryRecoverOnStartup checks for an interrupted session against the plan the
// user has selected (empty for none) and surfaces completion markers. A
// resumable snapshot is held as an offer until ResumeRecovered or
// DiscardRecovered; a stale one is already discarded and explained.
func (e *Engine) TryRecoverOnStartup(ctx context.Context, planID string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil && e.session.Status().Started() {
		return Result{Code: CodeSessionActive, Reason: "a session is already in progress", State: e.viewLocked()}, nil
	}

	pending, err := e.pipeline.Pending(ctx)
	if err != nil {
		e.logger.Warn("read completion markers", "error", err)
	}

	var plan *models.WorkoutPlan
	if planID != "" {
		if p, err := e.plans.Get(planID); err == nil {
			plan = p
		} else {
			e.logger.Warn("selected plan unavailable", "plan", planID, "error", err)
		}
	}

	offer, err := e.recovery.Check(plan)
	res, oerr := e.outcome(err)
	if oerr != nil {
		return res, oerr
	}
	res.Offer = offerInfo(offer)
	if pending.Completed != nil || pending.Failed != nil {
		res.Pending = &pending
	}
	e.offer, e.offerPlan = nil, nil
	if offer.Decision == recovery.Resumable {
		e.offer, e.offerPlan = &offer, plan
	}
	return res, nil
}

// checkSavedLocked validates the stored snapshot against its own plan and
// holds it as the offer when resumable. Stale snapshots are discarded with a
// reason and do not block.
func (e *Engine) checkSavedLocked() error {
	var plan *models.WorkoutPlan
	if snap, err := e.snapshots.Load(); err == nil {
		if p, err := e.plans.Get(snap.PlanID); err == nil {
			plan = p
		}
	}
	offer, err := e.recovery.Check(plan)
	if err != nil && !errors.Is(err, recovery.ErrStaleSnapshot) {
		return err
	}
	if offer.Decision == recovery.Resumable {
		e.offer, e.offerPlan = &offer, plan
	}
	return nil
}

// ResumeRecovered rehydrates the offered session.
func (e *Engine) ResumeRecovered() (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.offer == nil {
		return Result{Code: CodeNoOffer, Reason: "no recovery offer pending", State: e.viewLocked()}, nil
	}
	s, err := e.recovery.Resume(*e.offer, e.offerPlan)
	if err != nil {
		return e.outcome(err)
	}
	info := offerInfo(*e.offer)
	e.session = s
	e.offer, e.offerPlan = nil, nil
	res, _ := e.outcome(nil)
	res.Offer = info
	return res, nil
}

// DiscardRecovered drops the offered snapshot. Calling it with no offer is harmless.
func (e *Engine) DiscardRecovered() (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.offer == nil {
		return e.outcome(nil)
	}
	if err := e.recovery.Discard(*e.offer); err != nil {
		return e.outcome(err)
	}
	e.offer, e.offerPlan = nil, nil
	return e.outcome(nil)
}

// Attach continues the session stored in the snapshot under its own plan.
// Short-lived hosts call it before every command.
func (e *Engine) Attach(ctx context.Context) (Result, error) {
	e.mu.Lock()
	if e.session != nil && e.session.Status().Started() {
		defer e.mu.Unlock()
		return e.outcome(nil)
	}
	snap, err := e.snapshots.Load()
	e.mu.Unlock()

	planID := ""
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshot):
		return Result{Code: CodeNoActiveSession, Reason: completion.ErrNoActiveSession.Error(), State: session.View{Status: session.NotStarted}}, nil
	case err == nil:
		planID = snap.PlanID
	}

	res, err := e.TryRecoverOnStartup(ctx, planID)
	if err != nil || !res.OK() || res.Offer == nil || res.Offer.Decision != recovery.Resumable {
		return res, err
	}
	return e.ResumeRecovered()
}

// SavedPlanID returns the plan id of the stored snapshot, or "" when there is
// none or it cannot be read.
func (e *Engine) SavedPlanID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, err := e.snapshots.Load()
	if err != nil {
		return ""
	}
	return snap.PlanID
}

// Status returns the current view.
func (e *Engine) Status() Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, _ := e.outcome(nil)
	if e.offer != nil {
		res.Offer = offerInfo(*e.offer)
	}
	return res
}

// Flush delivers buffered telemetry now.
func (e *Engine) Flush(ctx context.Context) Result {
	r := e.buffer.Flush(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()
	res, _ := e.outcome(nil)
	res.Flush = &r
	return res
}

// Close signals shutdown, which flushes pending telemetry, and releases every
// timer and subscription. The live session stays in its snapshot.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.host.Emit(events.ShutdownEvent, nil)
	released := e.reg.ReleaseAll()
	e.logger.Debug("engine closed", "released", released)
	return nil
}
