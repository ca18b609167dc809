// ABOUTME: Versioned on-disk format of the active session snapshot.
// ABOUTME: Unknown or missing versions decode as ErrUnsupportedVersion and are treated as stale.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/harperreed/lift/internal/models"
)

// Version is the snapshot format written by this build.
const Version = 1

var (
	// ErrNoSnapshot means no snapshot is stored.
	ErrNoSnapshot = errors.New("no snapshot")
	// ErrCorrupt means the stored bytes could not be decoded.
	ErrCorrupt = errors.New("corrupt snapshot")
	// ErrUnsupportedVersion means the snapshot was written by an unknown format version.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
)

// Snapshot is the serializable projection of a workout session.
type Snapshot struct {
	Version              int         `json:"version"`
	SessionID            string      `json:"sessionId"`
	PlanID               string      `json:"planId"`
	PlanFingerprint      string      `json:"planFingerprint"`
	Executions           []Execution `json:"executions"`
	StartTimestamp       time.Time   `json:"startTimestamp"`
	CurrentExerciseIndex int         `json:"currentExerciseIndex"`
	SavedAt              time.Time   `json:"savedAt"`
	DeviceID             string      `json:"deviceId,omitempty"`
	ExerciseIDs          []string    `json:"exerciseIds"`
	Status               string      `json:"status"`
	Rest                 *Rest       `json:"rest,omitempty"`
	PausedAt             *time.Time  `json:"pausedAt,omitempty"`
	PausedSeconds        float64     `json:"pausedSeconds,omitempty"`
}

// Execution is the wire form of models.SetExecution.
type Execution struct {
	ExerciseID   string    `json:"exerciseId"`
	ExerciseName string    `json:"exerciseName"`
	SetIndex     int       `json:"setIndex"`
	Load         float64   `json:"load"`
	Reps         int       `json:"reps"`
	Failed       bool      `json:"failed,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Rest describes an in-flight rest countdown.
type Rest struct {
	StartedAt       time.Time `json:"startedAt"`
	DurationSeconds int       `json:"durationSeconds"`
	ExerciseIndex   int       `json:"exerciseIndex"`
}

// Remaining returns how much of the rest is left at now, clamped to zero.
func (r *Rest) Remaining(now time.Time) time.Duration {
	if r == nil {
		return 0
	}
	left := r.StartedAt.Add(time.Duration(r.DurationSeconds) * time.Second).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// FromExecutions converts model executions to wire form.
func FromExecutions(log []models.SetExecution) []Execution {
	out := make([]Execution, 0, len(log))
	for _, e := range log {
		out = append(out, Execution{
			ExerciseID:   e.ExerciseID,
			ExerciseName: e.ExerciseName,
			SetIndex:     e.SetIndex,
			Load:         e.Load,
			Reps:         e.Reps,
			Failed:       e.Failed,
			Timestamp:    e.CompletedAt,
		})
	}
	return out
}

// ToExecutions converts wire executions back to models.
func ToExecutions(wire []Execution) []models.SetExecution {
	out := make([]models.SetExecution, 0, len(wire))
	for _, e := range wire {
		out = append(out, models.SetExecution{
			ExerciseID:   e.ExerciseID,
			ExerciseName: e.ExerciseName,
			SetIndex:     e.SetIndex,
			Load:         e.Load,
			Reps:         e.Reps,
			Failed:       e.Failed,
			CompletedAt:  e.Timestamp,
		})
	}
	return out
}

// SortedExerciseIDs returns a sorted copy of the snapshot's exercise id set.
func (s *Snapshot) SortedExerciseIDs() []string {
	ids := make([]string, len(s.ExerciseIDs))
	copy(ids, s.ExerciseIDs)
	sort.Strings(ids)
	return ids
}

// Encode serializes the snapshot, stamping the current format version.
func Encode(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("encode snapshot: nil")
	}
	out := *s
	out.Version = Version
	if out.Executions == nil {
		out.Executions = []Execution{}
	}
	if out.ExerciseIDs == nil {
		out.ExerciseIDs = []string{}
	}
	return json.MarshalIndent(&out, "", "  ")
}

// Decode parses snapshot bytes. Corrupt data wraps ErrCorrupt; a missing or
// unknown version wraps ErrUnsupportedVersion.
func Decode(data []byte) (*Snapshot, error) {
	var probe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if probe.Version == nil {
		return nil, fmt.Errorf("%w: missing version", ErrUnsupportedVersion)
	}
	if *probe.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, *probe.Version)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if s.SessionID == "" || s.PlanID == "" {
		return nil, fmt.Errorf("%w: missing session or plan id", ErrCorrupt)
	}
	return &s, nil
}
