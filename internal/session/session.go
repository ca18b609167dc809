// ABOUTME: Workout session state machine: set progression, rest countdown, and execution log.
// ABOUTME: Every state change is written through to the snapshot store and recorded as an event.
package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/lift/internal/events"
	"github.com/harperreed/lift/internal/fingerprint"
	"github.com/harperreed/lift/internal/models"
	"github.com/harperreed/lift/internal/registry"
	"github.com/harperreed/lift/internal/snapshot"
)

// Status is a session lifecycle state.
type Status string

const (
	NotStarted Status = "not-started"
	Active     Status = "active"
	Resting    Status = "resting"
	Paused     Status = "paused"
	Finalizing Status = "finalizing"
	Finalized  Status = "finalized"
	Abandoned  Status = "abandoned"
)

// Started reports whether the status belongs to a live session.
func (s Status) Started() bool {
	switch s {
	case Active, Resting, Paused, Finalizing:
		return true
	}
	return false
}

// Registry ids and contexts owned by a session.
const (
	RestContext    = "rest"
	WorkoutContext = "workout"
	RestTimerID    = RestContext + ":countdown"
	ElapsedTimerID = WorkoutContext + ":elapsed"
)

// DefaultBetweenExerciseRest applies after the last set of an exercise when
// neither the plan nor the caller overrides it.
const DefaultBetweenExerciseRest = 120 * time.Second

var (
	ErrDuplicateSet = errors.New("set already confirmed")
	ErrOutOfRange   = errors.New("exercise or set index out of range")
	ErrInvalidPlan  = errors.New("invalid plan")
	ErrInvalidState = errors.New("operation not allowed in current state")
)

// Options configures a Session.
type Options struct {
	Registry            *registry.Registry
	Snapshots           *snapshot.Store
	Events              events.Recorder
	DeviceID            string
	BetweenExerciseRest time.Duration
	Logger              *slog.Logger
	// OnTick receives a fresh view after every timer message.
	OnTick func(View)
}

type restState struct {
	startedAt     time.Time
	duration      time.Duration
	exerciseIndex int
}

func (r *restState) remaining(now time.Time) time.Duration {
	if r == nil {
		return 0
	}
	left := r.startedAt.Add(r.duration).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Session is one workout in progress. All methods are safe for concurrent
// use; timer ticks are delivered through Dispatch and serialized with calls.
type Session struct {
	mu sync.Mutex

	reg         *registry.Registry
	store       *snapshot.Store
	events      events.Recorder
	logger      *slog.Logger
	deviceID    string
	betweenRest time.Duration
	onTick      func(View)

	id          string
	plan        *models.WorkoutPlan
	fingerprint string
	status      Status
	startedAt   time.Time
	current     int
	log         []models.SetExecution
	rest        *restState
	pausedAt    *time.Time
	paused      time.Duration
}

// New creates a session in NotStarted.
func New(opts Options) *Session {
	if opts.Registry == nil {
		opts.Registry = registry.New(nil)
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.BetweenExerciseRest <= 0 {
		opts.BetweenExerciseRest = DefaultBetweenExerciseRest
	}
	return &Session{
		reg:         opts.Registry,
		store:       opts.Snapshots,
		events:      opts.Events,
		logger:      opts.Logger,
		deviceID:    opts.DeviceID,
		betweenRest: opts.BetweenExerciseRest,
		onTick:      opts.OnTick,
		status:      NotStarted,
	}
}

// Start begins a session for plan.
func (s *Session) Start(plan *models.WorkoutPlan) error {
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != NotStarted {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, s.status)
	}

	// Stale timers from a previous session must never fire into this one.
	s.reg.CancelContext(RestContext)
	s.reg.CancelContext(WorkoutContext)

	s.id = uuid.NewString()
	s.plan = plan
	s.fingerprint = fingerprint.Fingerprint(plan)
	s.startedAt = s.now()
	s.current = 0
	s.log = nil
	s.status = Active

	s.startElapsedLocked()
	s.persistLocked()
	s.events.Record(models.EventSessionStarted, s.id, map[string]any{
		"plan_id":   plan.ID,
		"exercises": len(plan.Exercises),
		"sets":      plan.TotalSets(),
	})
	s.logger.Info("session started", "session", s.id, "plan", plan.ID)
	return nil
}

// ID returns the session identifier, empty before Start.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Plan returns the plan driving the session.
func (s *Session) Plan() *models.WorkoutPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

// StartedAt returns the elapsed-time origin.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// CurrentExercise returns the current exercise index.
func (s *Session) CurrentExercise() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Log returns a copy of the execution log.
func (s *Session) Log() []models.SetExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SetExecution, len(s.log))
	copy(out, s.log)
	return out
}

// Elapsed returns active workout time at now, excluding paused time.
func (s *Session) Elapsed(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked(now)
}

func (s *Session) elapsedLocked(now time.Time) time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	d := now.Sub(s.startedAt) - s.paused
	if s.pausedAt != nil {
		d -= now.Sub(*s.pausedAt)
	}
	if d < 0 {
		return 0
	}
	return d
}

// MarkFinalized moves a live session to Finalized.
func (s *Session) MarkFinalized() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Started() {
		return fmt.Errorf("%w: finalize from %s", ErrInvalidState, s.status)
	}
	s.reg.CancelContext(RestContext)
	s.reg.CancelContext(WorkoutContext)
	s.rest = nil
	s.status = Finalized
	return nil
}

// Abandon ends the session without finishing it. The snapshot is kept for a
// later resume unless discard is set.
func (s *Session) Abandon(discard bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Started() {
		return fmt.Errorf("%w: abandon from %s", ErrInvalidState, s.status)
	}

	s.reg.CancelContext(RestContext)
	s.reg.CancelContext(WorkoutContext)
	s.rest = nil
	s.status = Abandoned

	if discard && s.store != nil {
		if err := s.store.Clear(); err != nil {
			s.logger.Warn("failed to clear snapshot", "session", s.id, "error", err)
		}
	}
	s.events.Record(models.EventSessionAbandoned, s.id, map[string]any{
		"reason":      "user",
		"discarded":   discard,
		"sets_logged": len(s.log),
	})
	s.logger.Info("session abandoned", "session", s.id, "discarded", discard)
	return nil
}

func (s *Session) now() time.Time {
	return s.reg.Clock().Now()
}

func (s *Session) startElapsedLocked() {
	s.reg.ScheduleRepeating(ElapsedTimerID, func() {
		s.Dispatch(ElapsedTick{At: s.now()})
	}, time.Second)
}

func (s *Session) persistLocked() {
	if s.store == nil {
		return
	}
	if err := s.store.Save(s.snapshotLocked(s.now())); err != nil {
		s.logger.Warn("snapshot write failed", "session", s.id, "error", err)
	}
}
