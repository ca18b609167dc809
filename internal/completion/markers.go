// ABOUTME: Completion and error markers kept in the durable local store.
// ABOUTME: They make finalization observable and retryable after an interruption.
package completion

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/lift/internal/kv"
	"github.com/harperreed/lift/internal/models"
)

const (
	// MarkerKey holds the last completed finalization.
	MarkerKey = "completion:marker"
	// ErrorMarkerKey holds the input of a finalization that did not fully persist.
	ErrorMarkerKey = "completion:error"
	// MarkerTTL is how long a completion marker is surfaced on startup.
	MarkerTTL = time.Hour
)

// Input is everything needed to re-run the persistence steps.
type Input struct {
	Record models.CompletionRecord `json:"record"`
	Sets   []models.SetExecution   `json:"sets"`
	PlanID string                  `json:"plan_id"`
	Day    int                     `json:"day,omitempty"`
}

// Marker records a finalization and how each step went.
type Marker struct {
	Record    models.CompletionRecord `json:"record"`
	Steps     []StepResult            `json:"steps"`
	WrittenAt time.Time               `json:"written_at"`
	ExpiresAt time.Time               `json:"expires_at"`
}

// Expired reports whether the marker should no longer be surfaced.
func (m *Marker) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}

// ErrorMarker keeps the original input of a partially failed finalization.
type ErrorMarker struct {
	Input    Input        `json:"input"`
	Steps    []StepResult `json:"steps"`
	FailedAt time.Time    `json:"failed_at"`
	Attempts int          `json:"attempts"`
}

func readJSON(store kv.Store, key string, v any) (bool, error) {
	data, err := store.Get(key)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func writeJSON(store kv.Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := store.Set(key, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func deleteKey(store kv.Store, key string) error {
	if err := store.Delete(key); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
