// ABOUTME: Read-only projection of a session for presentation layers.
package session

import (
	"time"

	"github.com/harperreed/lift/internal/models"
)

// View is an immutable copy of what a display needs.
type View struct {
	SessionID       string
	PlanID          string
	Status          Status
	CurrentExercise int
	ExerciseID      string
	ExerciseName    string
	// NextSet is 0 when the current exercise is complete.
	NextSet       int
	TargetSets    int
	TargetReps    int
	SuggestedLoad float64
	RestRemaining time.Duration
	Elapsed       time.Duration
	CompletedSets int
	TotalSets     int
	Log           []models.SetExecution
}

// View returns the current projection.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(s.now())
}

func (s *Session) viewLocked(now time.Time) View {
	v := View{
		SessionID: s.id,
		Status:    s.status,
	}
	if s.plan == nil {
		return v
	}
	v.PlanID = s.plan.ID
	v.CurrentExercise = s.current
	v.Elapsed = s.elapsedLocked(now)
	v.CompletedSets = len(s.log)
	v.TotalSets = s.plan.TotalSets()
	v.Log = make([]models.SetExecution, len(s.log))
	copy(v.Log, s.log)

	switch {
	case s.status == Resting:
		v.RestRemaining = s.rest.remaining(now)
	case s.status == Paused && s.rest != nil && s.pausedAt != nil:
		v.RestRemaining = s.rest.remaining(*s.pausedAt)
	}

	ex := s.plan.Exercises[s.current]
	v.ExerciseID = ex.ID
	v.ExerciseName = ex.Name
	v.TargetSets = ex.Sets
	v.TargetReps = ex.Reps
	v.SuggestedLoad = ex.Load
	if done := s.loggedLocked(ex.ID); done < ex.Sets {
		v.NextSet = done + 1
	}
	// Carry forward the most recent load used for this exercise.
	for i := len(s.log) - 1; i >= 0; i-- {
		if s.log[i].ExerciseID == ex.ID {
			v.SuggestedLoad = s.log[i].Load
			break
		}
	}
	return v
}
