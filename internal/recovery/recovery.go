// ABOUTME: Startup recovery: validates a stored snapshot and offers resume or discard.
// ABOUTME: Stale snapshots are discarded with a reason; fresh ones are never discarded silently.
package recovery

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/harperreed/lift/internal/events"
	"github.com/harperreed/lift/internal/fingerprint"
	"github.com/harperreed/lift/internal/models"
	"github.com/harperreed/lift/internal/registry"
	"github.com/harperreed/lift/internal/session"
	"github.com/harperreed/lift/internal/snapshot"
)

// DefaultMaxAge is how old a snapshot may be and still be offered.
const DefaultMaxAge = 7 * 24 * time.Hour

// Discard reasons.
const (
	ReasonCorrupt          = "corrupt snapshot"
	ReasonTooOld           = "too old"
	ReasonNoPlan           = "no plan selected"
	ReasonDifferentPlan    = "different plan"
	ReasonPlanChanged      = "plan changed"
	ReasonExercisesChanged = "exercises changed"
	ReasonUser             = "user discarded"
)

var (
	// ErrStaleSnapshot is wrapped by every StaleError.
	ErrStaleSnapshot = errors.New("stale snapshot")
	// ErrPlanMismatch additionally marks staleness caused by plan drift.
	ErrPlanMismatch = errors.New("plan mismatch")
)

// StaleError explains why a snapshot was discarded.
type StaleError struct {
	Reason string
}

func (e *StaleError) Error() string {
	return "stale snapshot: " + e.Reason
}

// Is matches ErrStaleSnapshot always and ErrPlanMismatch for plan drift.
func (e *StaleError) Is(target error) bool {
	switch target {
	case ErrStaleSnapshot:
		return true
	case ErrPlanMismatch:
		switch e.Reason {
		case ReasonNoPlan, ReasonDifferentPlan, ReasonPlanChanged, ReasonExercisesChanged:
			return true
		}
	}
	return false
}

// Decision is the outcome of a startup check.
type Decision string

const (
	None      Decision = "none"
	Resumable Decision = "resumable"
	Discarded Decision = "discarded"
)

// Offer is what the caller chooses from.
type Offer struct {
	Decision      Decision
	Reason        string
	Snapshot      *snapshot.Snapshot
	RestRemaining time.Duration
	Age           time.Duration
}

// Options configures a Coordinator.
type Options struct {
	Store    *snapshot.Store
	Registry *registry.Registry
	Events   events.Recorder
	MaxAge   time.Duration
	Logger   *slog.Logger
	// Session builds the session that Resume rehydrates.
	Session func() *session.Session
}

// Coordinator runs before any session exists.
type Coordinator struct {
	store      *snapshot.Store
	clock      registry.Clock
	events     events.Recorder
	maxAge     time.Duration
	logger     *slog.Logger
	newSession func() *session.Session
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	if opts.Registry == nil {
		opts.Registry = registry.New(nil)
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Session == nil {
		reg := opts.Registry
		store := opts.Store
		ev := opts.Events
		opts.Session = func() *session.Session {
			return session.New(session.Options{Registry: reg, Snapshots: store, Events: ev})
		}
	}
	return &Coordinator{
		store:      opts.Store,
		clock:      opts.Registry.Clock(),
		events:     opts.Events,
		maxAge:     opts.MaxAge,
		logger:     opts.Logger,
		newSession: opts.Session,
	}
}

// Check validates the stored snapshot against the currently selected plan,
// which may be nil. Stale snapshots are deleted and reported with a
// *StaleError alongside a Discarded offer.
func (c *Coordinator) Check(plan *models.WorkoutPlan) (Offer, error) {
	snap, err := c.store.Load()
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		return Offer{Decision: None}, nil
	}
	if err != nil {
		if errors.Is(err, snapshot.ErrCorrupt) || errors.Is(err, snapshot.ErrUnsupportedVersion) {
			c.logger.Warn("unreadable snapshot", "error", err)
			return c.discardStale(nil, ReasonCorrupt)
		}
		return Offer{}, fmt.Errorf("check snapshot: %w", err)
	}

	now := c.clock.Now()
	if reason := c.validate(snap, plan, now); reason != "" {
		return c.discardStale(snap, reason)
	}

	offer := Offer{
		Decision: Resumable,
		Snapshot: snap,
		Age:      now.Sub(snap.SavedAt),
	}
	if snap.Status != string(session.Paused) {
		offer.RestRemaining = snap.Rest.Remaining(now)
	} else if snap.Rest != nil && snap.PausedAt != nil {
		offer.RestRemaining = snap.Rest.Remaining(*snap.PausedAt)
	}
	return offer, nil
}

func (c *Coordinator) validate(snap *snapshot.Snapshot, plan *models.WorkoutPlan, now time.Time) string {
	if snap.SavedAt.IsZero() || snap.SavedAt.After(now) || now.Sub(snap.SavedAt) > c.maxAge {
		return ReasonTooOld
	}
	if plan == nil {
		return ReasonNoPlan
	}
	if snap.PlanID != plan.ID {
		return ReasonDifferentPlan
	}
	if !fingerprint.Matches(plan, snap.PlanFingerprint) {
		return ReasonPlanChanged
	}
	current := plan.ExerciseIDs()
	slices.Sort(current)
	if !slices.Equal(current, snap.SortedExerciseIDs()) {
		return ReasonExercisesChanged
	}
	return ""
}

func (c *Coordinator) discardStale(snap *snapshot.Snapshot, reason string) (Offer, error) {
	c.clear(snap, reason)
	c.logger.Info("discarded stale snapshot", "reason", reason)
	return Offer{Decision: Discarded, Reason: reason, Snapshot: snap}, &StaleError{Reason: reason}
}

// Resume rehydrates a session from a Resumable offer. The processed snapshot
// is cleared before the session writes its fresh one.
func (c *Coordinator) Resume(offer Offer, plan *models.WorkoutPlan) (*session.Session, error) {
	if offer.Decision != Resumable || offer.Snapshot == nil {
		return nil, fmt.Errorf("resume: offer is %s", offer.Decision)
	}
	if err := c.store.Clear(); err != nil {
		return nil, err
	}
	s := c.newSession()
	if err := s.Restore(offer.Snapshot, plan); err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	c.events.Record(models.EventSnapshotRecovered, offer.Snapshot.SessionID, map[string]any{
		"plan_id":        offer.Snapshot.PlanID,
		"sets":           len(offer.Snapshot.Executions),
		"rest_remaining": int(offer.RestRemaining / time.Second),
		"age_seconds":    int(offer.Age / time.Second),
	})
	c.logger.Info("resumed session", "session", offer.Snapshot.SessionID)
	return s, nil
}

// Discard drops the offered snapshot. Discarding twice is harmless.
func (c *Coordinator) Discard(offer Offer) error {
	if offer.Decision == None || !c.store.Exists() {
		return nil
	}
	return c.clear(offer.Snapshot, ReasonUser)
}

func (c *Coordinator) clear(snap *snapshot.Snapshot, reason string) error {
	if err := c.store.Clear(); err != nil {
		c.logger.Warn("failed to clear snapshot", "error", err)
		return err
	}
	sessionID := ""
	if snap != nil {
		sessionID = snap.SessionID
	}
	c.events.Record(models.EventSessionAbandoned, sessionID, map[string]any{"reason": reason})
	return nil
}
