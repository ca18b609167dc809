// ABOUTME: Tests for the snapshot wire format and store.
// ABOUTME: The golden file pins the on-disk JSON layout of format version 1.
package snapshot

import (
	"errors"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/lift/internal/kv"
	"github.com/harperreed/lift/internal/models"
)

var (
	started = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	saved   = started.Add(2 * time.Minute)
)

func fixture() *Snapshot {
	return &Snapshot{
		SessionID:       "2f1c3a9e-0000-4000-8000-000000000001",
		PlanID:          "push-a",
		PlanFingerprint: "45numz",
		Executions: []Execution{{
			ExerciseID:   "bench",
			ExerciseName: "Bench Press",
			SetIndex:     1,
			Load:         60,
			Reps:         8,
			Timestamp:    saved,
		}},
		StartTimestamp:       started,
		CurrentExerciseIndex: 0,
		SavedAt:              saved,
		DeviceID:             "01JNGQ7R5W3X8YV2Z4KQ6M9TBC",
		ExerciseIDs:          []string{"bench", "ohp"},
		Status:               "resting",
		Rest:                 &Rest{StartedAt: saved, DurationSeconds: 90, ExerciseIndex: 0},
	}
}

func TestEncodeGolden(t *testing.T) {
	data, err := Encode(fixture())
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "snapshot_v1", data)
}

func TestDecodeRoundTrip(t *testing.T) {
	want := fixture()
	data, err := Encode(want)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)

	want.Version = Version
	require.Equal(t, want.SessionID, got.SessionID)
	require.Equal(t, want.Executions, got.Executions)
	require.True(t, want.StartTimestamp.Equal(got.StartTimestamp))
	require.Equal(t, want.CurrentExerciseIndex, got.CurrentExerciseIndex)
	require.Equal(t, want.Rest.DurationSeconds, got.Rest.DurationSeconds)
	require.Equal(t, Version, got.Version)
}

func TestDecodeRejectsUnknownVersions(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"missing version", `{"sessionId":"s","planId":"p"}`, ErrUnsupportedVersion},
		{"future version", `{"version":2,"sessionId":"s","planId":"p"}`, ErrUnsupportedVersion},
		{"zero version", `{"version":0,"sessionId":"s","planId":"p"}`, ErrUnsupportedVersion},
		{"not json", `{{{`, ErrCorrupt},
		{"missing ids", `{"version":1}`, ErrCorrupt},
		{"wrong types", `{"version":1,"sessionId":"s","planId":"p","executions":"nope"}`, ErrCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExecutionConversion(t *testing.T) {
	log := []models.SetExecution{
		{ExerciseID: "bench", ExerciseName: "Bench Press", SetIndex: 1, Load: 60, Reps: 8, CompletedAt: saved},
		{ExerciseID: "bench", ExerciseName: "Bench Press", SetIndex: 2, Load: 60, Reps: 5, Failed: true, CompletedAt: saved.Add(time.Minute)},
	}
	require.Equal(t, log, ToExecutions(FromExecutions(log)))
}

func TestRestRemaining(t *testing.T) {
	r := &Rest{StartedAt: saved, DurationSeconds: 90}
	require.Equal(t, 60*time.Second, r.Remaining(saved.Add(30*time.Second)))
	require.Equal(t, time.Duration(0), r.Remaining(saved.Add(5*time.Minute)))

	var none *Rest
	require.Equal(t, time.Duration(0), none.Remaining(saved))
}

func TestStoreLifecycle(t *testing.T) {
	mem := kv.NewMemory()
	s := NewStore(mem)

	_, err := s.Load()
	require.ErrorIs(t, err, ErrNoSnapshot)
	require.False(t, s.Exists())

	require.NoError(t, s.Save(fixture()))
	require.True(t, s.Exists())

	got, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, "push-a", got.PlanID)

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
	_, err = s.Load()
	require.True(t, errors.Is(err, ErrNoSnapshot))
}

func TestStoreLoadCorrupt(t *testing.T) {
	mem := kv.NewMemory()
	require.NoError(t, mem.Set(Key, []byte("garbage")))

	_, err := NewStore(mem).Load()
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestSortedExerciseIDs(t *testing.T) {
	s := &Snapshot{ExerciseIDs: []string{"ohp", "bench", "dips"}}
	require.Equal(t, []string{"bench", "dips", "ohp"}, s.SortedExerciseIDs())
	require.Equal(t, []string{"ohp", "bench", "dips"}, s.ExerciseIDs)
}
