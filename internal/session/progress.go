// ABOUTME: Set confirmation, rest orchestration, navigation, and pause handling.
// ABOUTME: Progress is always derived from the execution log, never kept as a counter.
package session

import (
	"fmt"
	"time"

	"github.com/harperreed/lift/internal/models"
)

// ConfirmSet logs a completed set.
func (s *Session) ConfirmSet(exerciseIndex, setIndex int, load float64, reps int) error {
	return s.recordSet(exerciseIndex, setIndex, load, reps, false)
}

// FailSet logs a set that could not be completed as prescribed.
func (s *Session) FailSet(exerciseIndex, setIndex int, load float64, reps int) error {
	return s.recordSet(exerciseIndex, setIndex, load, reps, true)
}

func (s *Session) recordSet(exIdx, setIdx int, load float64, reps int, failed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != Active && s.status != Resting {
		return fmt.Errorf("%w: confirm set while %s", ErrInvalidState, s.status)
	}
	if exIdx < 0 || exIdx >= len(s.plan.Exercises) {
		return fmt.Errorf("%w: exercise %d", ErrOutOfRange, exIdx)
	}
	ex := s.plan.Exercises[exIdx]
	if setIdx < 1 || setIdx > ex.Sets {
		return fmt.Errorf("%w: set %d of %s (target %d)", ErrOutOfRange, setIdx, ex.ID, ex.Sets)
	}
	if reps < 0 || load < 0 {
		return fmt.Errorf("%w: negative load or reps", ErrOutOfRange)
	}
	done := s.loggedLocked(ex.ID)
	if setIdx <= done {
		return fmt.Errorf("%w: %s set %d", ErrDuplicateSet, ex.ID, setIdx)
	}
	if setIdx != done+1 {
		return fmt.Errorf("%w: %s next set is %d, got %d", ErrOutOfRange, ex.ID, done+1, setIdx)
	}

	now := s.now()
	if s.status == Resting {
		s.endRestLocked()
	}

	exec := models.NewSetExecution(ex, setIdx, load, reps, now)
	kind := models.EventSetCompleted
	if failed {
		exec = exec.AsFailed()
		kind = models.EventSetFailed
	}
	s.log = append(s.log, exec)
	s.events.Record(kind, s.id, map[string]any{
		"exercise_id": ex.ID,
		"set_index":   setIdx,
		"load":        load,
		"reps":        reps,
	})

	exerciseDone := setIdx == ex.Sets
	if exerciseDone && exIdx == s.current {
		s.current = s.nextIncompleteLocked(exIdx)
	}

	if s.completeLocked() {
		s.status = Finalizing
		s.persistLocked()
		s.logger.Info("all sets logged", "session", s.id)
		return nil
	}

	rest := time.Duration(ex.RestSeconds) * time.Second
	if exerciseDone {
		rest = s.betweenExerciseRestLocked()
	}
	if rest > 0 {
		s.startRestLocked(now, rest, exIdx)
	} else {
		s.status = Active
	}
	s.persistLocked()
	return nil
}

// SkipRest ends the current rest early and returns the time that was left.
func (s *Session) SkipRest() (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Resting {
		return 0, fmt.Errorf("%w: skip rest while %s", ErrInvalidState, s.status)
	}
	left := s.rest.remaining(s.now())
	s.endRestLocked()
	s.events.Record(models.EventRestSkipped, s.id, map[string]any{
		"remaining_seconds": int(left.Round(time.Second) / time.Second),
	})
	s.persistLocked()
	return left, nil
}

// GoToExercise moves the current exercise pointer. It is the only way the
// index can move backwards.
func (s *Session) GoToExercise(idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Active && s.status != Resting {
		return fmt.Errorf("%w: navigate while %s", ErrInvalidState, s.status)
	}
	if idx < 0 || idx >= len(s.plan.Exercises) {
		return fmt.Errorf("%w: exercise %d", ErrOutOfRange, idx)
	}
	s.current = idx
	s.persistLocked()
	return nil
}

// Pause freezes elapsed time and any in-flight rest.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Active && s.status != Resting {
		return fmt.Errorf("%w: pause while %s", ErrInvalidState, s.status)
	}
	now := s.now()
	s.pausedAt = &now
	s.status = Paused
	s.reg.CancelContext(RestContext)
	s.reg.Cancel(ElapsedTimerID)
	s.events.Record(models.EventSessionPaused, s.id, nil)
	s.persistLocked()
	return nil
}

// ResumePaused returns to the state the session was paused from. Paused time
// is excluded from elapsed time and added to an in-flight rest.
func (s *Session) ResumePaused() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Paused {
		return fmt.Errorf("%w: resume while %s", ErrInvalidState, s.status)
	}
	now := s.now()
	span := now.Sub(*s.pausedAt)
	s.paused += span
	s.pausedAt = nil

	s.status = Active
	if s.rest != nil {
		s.rest.startedAt = s.rest.startedAt.Add(span)
		if s.rest.remaining(now) > 0 {
			s.status = Resting
			s.scheduleRestTickLocked()
		} else {
			s.rest = nil
		}
	}
	s.startElapsedLocked()
	s.events.Record(models.EventSessionResumed, s.id, map[string]any{
		"paused_seconds": int(span / time.Second),
	})
	s.persistLocked()
	return nil
}

func (s *Session) startRestLocked(now time.Time, d time.Duration, exIdx int) {
	s.rest = &restState{startedAt: now, duration: d, exerciseIndex: exIdx}
	s.status = Resting
	s.scheduleRestTickLocked()
	s.events.Record(models.EventRestStarted, s.id, map[string]any{
		"duration_seconds": int(d / time.Second),
		"exercise_index":   exIdx,
	})
}

func (s *Session) scheduleRestTickLocked() {
	s.reg.ScheduleRepeating(RestTimerID, func() {
		s.Dispatch(RestTick{At: s.now()})
	}, time.Second)
}

func (s *Session) endRestLocked() {
	s.reg.CancelContext(RestContext)
	s.rest = nil
	s.status = Active
}

func (s *Session) betweenExerciseRestLocked() time.Duration {
	if s.plan.BetweenExerciseRestSeconds > 0 {
		return time.Duration(s.plan.BetweenExerciseRestSeconds) * time.Second
	}
	return s.betweenRest
}

// loggedLocked returns the highest logged set index for an exercise.
func (s *Session) loggedLocked(exerciseID string) int {
	n := 0
	for _, e := range s.log {
		if e.ExerciseID == exerciseID && e.SetIndex > n {
			n = e.SetIndex
		}
	}
	return n
}

func (s *Session) completeLocked() bool {
	for _, ex := range s.plan.Exercises {
		if s.loggedLocked(ex.ID) < ex.Sets {
			return false
		}
	}
	return true
}

// nextIncompleteLocked finds the first unfinished exercise after from. It
// returns from when nothing later is left, so the index never moves back.
func (s *Session) nextIncompleteLocked(from int) int {
	for i := from + 1; i < len(s.plan.Exercises); i++ {
		ex := s.plan.Exercises[i]
		if s.loggedLocked(ex.ID) < ex.Sets {
			return i
		}
	}
	return from
}
