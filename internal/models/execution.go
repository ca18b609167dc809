// ABOUTME: SetExecution model, one confirmed set in a session's execution log.
// ABOUTME: Executions are immutable; corrections are appended as new entries.
package models

import "time"

// SetExecution is a confirmed (or failed) set.
type SetExecution struct {
	ExerciseID   string    `json:"exercise_id"`
	ExerciseName string    `json:"exercise_name"`
	SetIndex     int       `json:"set_index"`
	Load         float64   `json:"load"`
	Reps         int       `json:"reps"`
	Failed       bool      `json:"failed,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}

// NewSetExecution creates a SetExecution for the given plan exercise.
func NewSetExecution(ex PlanExercise, setIndex int, load float64, reps int, at time.Time) SetExecution {
	return SetExecution{
		ExerciseID:   ex.ID,
		ExerciseName: ex.Name,
		SetIndex:     setIndex,
		Load:         load,
		Reps:         reps,
		CompletedAt:  at,
	}
}

// AsFailed returns a copy marked as a failed set.
func (s SetExecution) AsFailed() SetExecution {
	s.Failed = true
	return s
}

// Volume is load multiplied by reps.
func (s SetExecution) Volume() float64 {
	return s.Load * float64(s.Reps)
}
