// ABOUTME: WorkoutPlan and PlanExercise models supplied by the plan provider.
// ABOUTME: Plans are read-only to the session engine.
package models

import "fmt"

// PlanExercise is one exercise within a plan with its targets.
type PlanExercise struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Sets        int     `json:"sets" yaml:"sets"`
	Reps        int     `json:"reps" yaml:"reps"`
	Load        float64 `json:"load,omitempty" yaml:"load,omitempty"`
	RestSeconds int     `json:"rest_seconds,omitempty" yaml:"rest_seconds,omitempty"`
}

// WorkoutPlan is a single training day: an ordered list of exercises.
type WorkoutPlan struct {
	ID           string         `json:"id" yaml:"id"`
	ProtocolID   string         `json:"protocol_id,omitempty" yaml:"protocol_id,omitempty"`
	MuscleGroup  string         `json:"muscle_group,omitempty" yaml:"muscle_group,omitempty"`
	Day          int            `json:"day,omitempty" yaml:"day,omitempty"`
	Name         string         `json:"name,omitempty" yaml:"name,omitempty"`
	LastModified string         `json:"last_modified,omitempty" yaml:"last_modified,omitempty"`
	Exercises    []PlanExercise `json:"exercises" yaml:"exercises"`

	// BetweenExerciseRestSeconds overrides the configured rest used after the
	// last set of an exercise. Zero means use the default.
	BetweenExerciseRestSeconds int `json:"between_exercise_rest_seconds,omitempty" yaml:"between_exercise_rest_seconds,omitempty"`
}

// Validate reports whether the plan can drive a session.
func (p *WorkoutPlan) Validate() error {
	if p == nil {
		return fmt.Errorf("plan is nil")
	}
	if p.ID == "" {
		return fmt.Errorf("plan id is required")
	}
	if len(p.Exercises) == 0 {
		return fmt.Errorf("plan %s has no exercises", p.ID)
	}
	seen := make(map[string]bool, len(p.Exercises))
	for i, ex := range p.Exercises {
		if ex.ID == "" {
			return fmt.Errorf("exercise %d: id is required", i)
		}
		if seen[ex.ID] {
			return fmt.Errorf("exercise %d: duplicate id %q", i, ex.ID)
		}
		seen[ex.ID] = true
		if ex.Sets < 1 {
			return fmt.Errorf("exercise %s: sets must be at least 1", ex.ID)
		}
	}
	return nil
}

// ExerciseIDs returns the exercise identifiers in plan order.
func (p *WorkoutPlan) ExerciseIDs() []string {
	ids := make([]string, 0, len(p.Exercises))
	for _, ex := range p.Exercises {
		ids = append(ids, ex.ID)
	}
	return ids
}

// TotalSets returns the number of sets the plan prescribes.
func (p *WorkoutPlan) TotalSets() int {
	total := 0
	for _, ex := range p.Exercises {
		total += ex.Sets
	}
	return total
}
