// ABOUTME: CompletionRecord model with aggregate statistics for a finished session.
// ABOUTME: Computed once at finalization and persisted as the session summary.
package models

import "time"

// Ratings are optional subjective scores captured at the end of a workout.
type Ratings struct {
	Effort  *int `json:"effort,omitempty"`
	Fatigue *int `json:"fatigue,omitempty"`
	Mood    *int `json:"mood,omitempty"`
}

// CompletionRecord holds the statistics of a completed session.
type CompletionRecord struct {
	SessionID         string    `json:"session_id"`
	PlanID            string    `json:"plan_id"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	// ElapsedSeconds is workout time from StartedAt to FinishedAt minus any
	// time spent paused, so it can be less than FinishedAt - StartedAt.
	ElapsedSeconds    int64     `json:"elapsed_seconds"`
	TotalSets         int       `json:"total_sets"`
	TotalReps         int       `json:"total_reps"`
	TotalVolume       float64   `json:"total_volume"`
	DistinctExercises int       `json:"distinct_exercises"`
	FailedSets        int       `json:"failed_sets"`
	Ratings           *Ratings  `json:"ratings,omitempty"`
	Notes             *string   `json:"notes,omitempty"`
}

// WithRatings sets the subjective ratings.
func (r *CompletionRecord) WithRatings(ratings Ratings) *CompletionRecord {
	r.Ratings = &ratings
	return r
}

// WithNotes sets notes on the record.
func (r *CompletionRecord) WithNotes(notes string) *CompletionRecord {
	r.Notes = &notes
	return r
}
