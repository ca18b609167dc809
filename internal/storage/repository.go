// ABOUTME: Repository interface for finished-session persistence.
// ABOUTME: Summaries, set rows, and plan-day completion are independent, idempotent writes.
package storage

import (
	"context"
	"time"

	"github.com/harperreed/lift/internal/models"
)

// Repository defines the storage interface for completed sessions.
// This interface allows swapping implementations (e.g., for testing).
type Repository interface {
	// UpsertSummary writes the summary keyed by session id, replacing any
	// earlier write for the same session.
	UpsertSummary(ctx context.Context, rec *models.CompletionRecord) error
	// InsertSets stores set rows, ignoring rows already stored for the same
	// session, exercise, and set index. It returns how many rows were new.
	InsertSets(ctx context.Context, sessionID string, sets []models.SetExecution) (int, error)
	// MarkDayCompleted records that a plan day was finished by a session.
	MarkDayCompleted(ctx context.Context, planID string, day int, sessionID string, at time.Time) error

	GetSummary(ctx context.Context, idOrPrefix string) (*models.CompletionRecord, error)
	ListSummaries(ctx context.Context, planID *string, limit int) ([]*models.CompletionRecord, error)
	ListSets(ctx context.Context, sessionID string) ([]models.SetExecution, error)
	CompletedDays(ctx context.Context, planID string) ([]PlanDay, error)

	// Lifecycle
	Close() error
}

// PlanDay is a completed day of a plan.
type PlanDay struct {
	PlanID      string    `json:"plan_id"`
	Day         int       `json:"day"`
	SessionID   string    `json:"session_id"`
	CompletedAt time.Time `json:"completed_at"`
}

func validateSummary(rec *models.CompletionRecord) error {
	if rec == nil {
		return validation("upsert summary", "nil record")
	}
	if rec.SessionID == "" {
		return validation("upsert summary", "session id is required")
	}
	if rec.PlanID == "" {
		return validation("upsert summary", "plan id is required")
	}
	return nil
}

func validateSets(sessionID string, sets []models.SetExecution) error {
	if sessionID == "" {
		return validation("insert sets", "session id is required")
	}
	for _, s := range sets {
		if s.ExerciseID == "" || s.SetIndex < 1 {
			return validation("insert sets", "set rows need an exercise id and a positive set index")
		}
	}
	return nil
}

func validateDay(planID string, day int, sessionID string) error {
	if planID == "" || sessionID == "" {
		return validation("mark day completed", "plan id and session id are required")
	}
	if day < 1 {
		return validation("mark day completed", "day must be at least 1")
	}
	return nil
}
