// ABOUTME: Tests for startup recovery checks and the resume/discard paths.
// ABOUTME: Snapshots are produced by real sessions on a manual clock.
package recovery

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/lift/internal/kv"
	"github.com/harperreed/lift/internal/models"
	"github.com/harperreed/lift/internal/registry"
	"github.com/harperreed/lift/internal/session"
	"github.com/harperreed/lift/internal/snapshot"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type capture struct {
	mu      sync.Mutex
	kinds   []models.EventKind
	reasons []any
}

func (c *capture) Record(kind models.EventKind, _ string, payload map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, kind)
	c.reasons = append(c.reasons, payload["reason"])
}

func testPlan() *models.WorkoutPlan {
	return &models.WorkoutPlan{
		ID:           "push-a",
		MuscleGroup:  "upper",
		LastModified: "2025-01-01",
		Exercises: []models.PlanExercise{
			{ID: "bench", Name: "Bench Press", Sets: 3, Reps: 8, Load: 60, RestSeconds: 90},
			{ID: "ohp", Name: "Overhead Press", Sets: 2, Reps: 10, Load: 35, RestSeconds: 60},
		},
	}
}

type fixture struct {
	clock  *registry.ManualClock
	reg    *registry.Registry
	store  *snapshot.Store
	events *capture
	coord  *Coordinator
}

func setupCoordinator(t *testing.T) *fixture {
	t.Helper()
	clock := registry.NewManualClock(epoch)
	reg := registry.New(clock)
	store := snapshot.NewStore(kv.NewMemory())
	ev := &capture{}
	return &fixture{
		clock:  clock,
		reg:    reg,
		store:  store,
		events: ev,
		coord:  New(Options{Store: store, Registry: reg, Events: ev}),
	}
}

// seed runs a session that logs one bench set and leaves it resting.
func (f *fixture) seed(t *testing.T) string {
	t.Helper()
	s := session.New(session.Options{Registry: f.reg, Snapshots: f.store})
	require.NoError(t, s.Start(testPlan()))
	require.NoError(t, s.ConfirmSet(0, 1, 60, 8))
	// Simulate the process going away.
	f.reg.ReleaseAll()
	return s.ID()
}

func TestNoSnapshot(t *testing.T) {
	f := setupCoordinator(t)
	offer, err := f.coord.Check(testPlan())
	require.NoError(t, err)
	assert.Equal(t, None, offer.Decision)
}

func TestFreshSnapshotIsResumable(t *testing.T) {
	f := setupCoordinator(t)
	f.seed(t)
	f.clock.Advance(30 * time.Second)

	offer, err := f.coord.Check(testPlan())
	require.NoError(t, err)
	assert.Equal(t, Resumable, offer.Decision)
	assert.Equal(t, 60*time.Second, offer.RestRemaining)
	assert.True(t, f.store.Exists(), "a fresh snapshot is never discarded by Check")
}

func TestTooOld(t *testing.T) {
	f := setupCoordinator(t)
	f.seed(t)
	f.clock.Set(epoch.Add(8 * 24 * time.Hour))

	offer, err := f.coord.Check(testPlan())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStaleSnapshot))
	assert.False(t, errors.Is(err, ErrPlanMismatch))
	assert.Equal(t, Discarded, offer.Decision)
	assert.Equal(t, "too old", offer.Reason)
	assert.False(t, f.store.Exists(), "stale snapshot must be deleted")
	assert.Equal(t, []models.EventKind{models.EventSessionAbandoned}, f.events.kinds)
}

func TestPlanChanged(t *testing.T) {
	f := setupCoordinator(t)
	sessionID := f.seed(t)

	edited := testPlan()
	edited.Exercises[0].Reps = 6
	offer, err := f.coord.Check(edited)

	var stale *StaleError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, "plan changed", stale.Reason)
	assert.True(t, errors.Is(err, ErrPlanMismatch))
	assert.Equal(t, sessionID, offer.Snapshot.SessionID)
	assert.False(t, f.store.Exists())
}

func TestDiscardReasons(t *testing.T) {
	other := testPlan()
	other.ID = "pull-a"

	renamed := testPlan()
	renamed.Exercises[1].ID = "press"

	tests := []struct {
		name   string
		plan   *models.WorkoutPlan
		reason string
	}{
		{"no plan", nil, ReasonNoPlan},
		{"different plan", other, ReasonDifferentPlan},
		{"exercise renamed", renamed, ReasonPlanChanged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupCoordinator(t)
			f.seed(t)
			offer, err := f.coord.Check(tt.plan)
			require.Error(t, err)
			assert.Equal(t, tt.reason, offer.Reason)
			assert.Equal(t, Discarded, offer.Decision)
		})
	}
}

func TestExercisesChanged(t *testing.T) {
	f := setupCoordinator(t)
	f.seed(t)

	// Same fingerprint, different recorded exercise set.
	snap, err := f.store.Load()
	require.NoError(t, err)
	snap.ExerciseIDs = []string{"bench", "dips"}
	require.NoError(t, f.store.Save(snap))

	offer, err := f.coord.Check(testPlan())
	require.Error(t, err)
	assert.Equal(t, ReasonExercisesChanged, offer.Reason)
}

func TestCorruptSnapshot(t *testing.T) {
	for name, data := range map[string]string{
		"garbage":         "{nope",
		"missing version": `{"sessionId":"s","planId":"p"}`,
		"future version":  `{"version":99,"sessionId":"s","planId":"p"}`,
	} {
		t.Run(name, func(t *testing.T) {
			mem := kv.NewMemory()
			require.NoError(t, mem.Set(snapshot.Key, []byte(data)))
			coord := New(Options{Store: snapshot.NewStore(mem), Registry: registry.New(registry.NewManualClock(epoch))})

			offer, err := coord.Check(testPlan())
			require.ErrorIs(t, err, ErrStaleSnapshot)
			assert.Equal(t, ReasonCorrupt, offer.Reason)
			_, getErr := mem.Get(snapshot.Key)
			assert.ErrorIs(t, getErr, kv.ErrNotFound)
		})
	}
}

func TestResume(t *testing.T) {
	f := setupCoordinator(t)
	sessionID := f.seed(t)
	f.clock.Advance(30 * time.Second)

	offer, err := f.coord.Check(testPlan())
	require.NoError(t, err)

	s, err := f.coord.Resume(offer, testPlan())
	require.NoError(t, err)
	assert.Equal(t, sessionID, s.ID())
	assert.Equal(t, session.Resting, s.Status())
	assert.Len(t, s.Log(), 1)
	assert.Equal(t, []models.EventKind{models.EventSnapshotRecovered}, f.events.kinds)

	// The rehydrated session wrote a fresh snapshot.
	snap, err := f.store.Load()
	require.NoError(t, err)
	assert.True(t, snap.SavedAt.Equal(f.clock.Now()))

	// The restored countdown finishes the remaining 60s.
	f.clock.Advance(60 * time.Second)
	assert.Equal(t, session.Active, s.Status())
}

func TestResumeRejectsNonResumable(t *testing.T) {
	f := setupCoordinator(t)
	_, err := f.coord.Resume(Offer{Decision: None}, testPlan())
	assert.Error(t, err)
}

func TestDiscardIsIdempotent(t *testing.T) {
	f := setupCoordinator(t)
	f.seed(t)
	offer, err := f.coord.Check(testPlan())
	require.NoError(t, err)

	require.NoError(t, f.coord.Discard(offer))
	require.NoError(t, f.coord.Discard(offer))
	assert.False(t, f.store.Exists())
	assert.Equal(t, []models.EventKind{models.EventSessionAbandoned}, f.events.kinds)
	assert.Equal(t, []any{ReasonUser}, f.events.reasons)

	offer, err = f.coord.Check(testPlan())
	require.NoError(t, err)
	assert.Equal(t, None, offer.Decision)
}
