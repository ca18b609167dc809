// ABOUTME: Snapshot projection and rehydration of a session.
// ABOUTME: Restore rebuilds timers from the snapshot's stored instants, not from counters.
package session

import (
	"fmt"
	"sort"
	"time"

	"github.com/harperreed/lift/internal/fingerprint"
	"github.com/harperreed/lift/internal/models"
	"github.com/harperreed/lift/internal/snapshot"
)

// Snapshot returns the serializable projection, or nil before Start.
func (s *Session) Snapshot() *snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		return nil
	}
	return s.snapshotLocked(s.now())
}

func (s *Session) snapshotLocked(now time.Time) *snapshot.Snapshot {
	ids := s.plan.ExerciseIDs()
	sort.Strings(ids)

	snap := &snapshot.Snapshot{
		Version:              snapshot.Version,
		SessionID:            s.id,
		PlanID:               s.plan.ID,
		PlanFingerprint:      s.fingerprint,
		Executions:           snapshot.FromExecutions(s.log),
		StartTimestamp:       s.startedAt,
		CurrentExerciseIndex: s.current,
		SavedAt:              now,
		DeviceID:             s.deviceID,
		ExerciseIDs:          ids,
		Status:               string(s.status),
		PausedSeconds:        s.paused.Seconds(),
	}
	if s.rest != nil {
		snap.Rest = &snapshot.Rest{
			StartedAt:       s.rest.startedAt,
			DurationSeconds: int(s.rest.duration / time.Second),
			ExerciseIndex:   s.rest.exerciseIndex,
		}
	}
	if s.pausedAt != nil {
		at := *s.pausedAt
		snap.PausedAt = &at
	}
	return snap
}

// Restore rehydrates a NotStarted session from a snapshot. A rest that ran
// out while the process was gone ends immediately; one still running resumes
// its countdown with whatever is left. The fresh snapshot is written at once.
func (s *Session) Restore(snap *snapshot.Snapshot, plan *models.WorkoutPlan) error {
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if snap == nil {
		return fmt.Errorf("restore: nil snapshot")
	}
	if snap.PlanID != plan.ID {
		return fmt.Errorf("%w: snapshot is for plan %s, not %s", ErrInvalidPlan, snap.PlanID, plan.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != NotStarted {
		return fmt.Errorf("%w: restore into %s session", ErrInvalidState, s.status)
	}

	log := snapshot.ToExecutions(snap.Executions)
	if err := checkLog(plan, log); err != nil {
		return err
	}
	if snap.CurrentExerciseIndex < 0 || snap.CurrentExerciseIndex >= len(plan.Exercises) {
		return fmt.Errorf("%w: current exercise %d", ErrOutOfRange, snap.CurrentExerciseIndex)
	}

	s.reg.CancelContext(RestContext)
	s.reg.CancelContext(WorkoutContext)

	s.id = snap.SessionID
	s.plan = plan
	s.fingerprint = fingerprint.Fingerprint(plan)
	s.startedAt = snap.StartTimestamp
	s.current = snap.CurrentExerciseIndex
	s.log = log
	s.paused = time.Duration(snap.PausedSeconds * float64(time.Second))
	s.rest = nil
	s.pausedAt = nil
	if snap.Rest != nil {
		s.rest = &restState{
			startedAt:     snap.Rest.StartedAt,
			duration:      time.Duration(snap.Rest.DurationSeconds) * time.Second,
			exerciseIndex: snap.Rest.ExerciseIndex,
		}
	}

	now := s.now()
	switch {
	case s.completeLocked():
		s.rest = nil
		s.status = Finalizing
		s.startElapsedLocked()
	case Status(snap.Status) == Paused:
		at := now
		if snap.PausedAt != nil {
			at = *snap.PausedAt
		}
		s.pausedAt = &at
		s.status = Paused
	default:
		s.status = Active
		if s.rest != nil && s.rest.remaining(now) > 0 {
			s.status = Resting
			s.scheduleRestTickLocked()
		} else {
			s.rest = nil
		}
		s.startElapsedLocked()
	}

	s.persistLocked()
	s.logger.Info("session restored", "session", s.id, "status", s.status, "sets", len(s.log))
	return nil
}

// checkLog verifies the log against the plan: known exercises, set indices
// strictly sequential from 1 and within target.
func checkLog(plan *models.WorkoutPlan, log []models.SetExecution) error {
	targets := make(map[string]int, len(plan.Exercises))
	for _, ex := range plan.Exercises {
		targets[ex.ID] = ex.Sets
	}
	next := make(map[string]int, len(plan.Exercises))
	for _, e := range log {
		target, ok := targets[e.ExerciseID]
		if !ok {
			return fmt.Errorf("%w: unknown exercise %s in log", ErrOutOfRange, e.ExerciseID)
		}
		want := next[e.ExerciseID] + 1
		if e.SetIndex != want || e.SetIndex > target {
			return fmt.Errorf("%w: %s set %d out of sequence", ErrOutOfRange, e.ExerciseID, e.SetIndex)
		}
		next[e.ExerciseID] = want
	}
	return nil
}
