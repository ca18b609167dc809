// ABOUTME: Aggregate statistics for a finished session.
package completion

import (
	"time"

	"github.com/harperreed/lift/internal/models"
)

// ComputeRecord derives the completion statistics from an execution log.
// Failed sets count toward sets, reps, and volume and are also tallied.
// elapsed is the session's paused-excluded workout time, not finishedAt - startedAt.
func ComputeRecord(sessionID, planID string, startedAt, finishedAt time.Time, elapsed time.Duration, log []models.SetExecution) models.CompletionRecord {
	rec := models.CompletionRecord{
		SessionID:      sessionID,
		PlanID:         planID,
		StartedAt:      startedAt,
		FinishedAt:     finishedAt,
		ElapsedSeconds: int64(elapsed / time.Second),
	}
	exercises := make(map[string]bool)
	for _, e := range log {
		rec.TotalSets++
		rec.TotalReps += e.Reps
		rec.TotalVolume += e.Volume()
		if e.Failed {
			rec.FailedSets++
		}
		exercises[e.ExerciseID] = true
	}
	rec.DistinctExercises = len(exercises)
	return rec
}
