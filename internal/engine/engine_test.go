// ABOUTME: End-to-end tests of the engine facade over memory and SQLite backends.
// ABOUTME: Covers the happy path, expected result codes, crash recovery, and telemetry.
package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/lift/internal/completion"
	"github.com/harperreed/lift/internal/events"
	"github.com/harperreed/lift/internal/kv"
	"github.com/harperreed/lift/internal/models"
	"github.com/harperreed/lift/internal/plans"
	"github.com/harperreed/lift/internal/recovery"
	"github.com/harperreed/lift/internal/registry"
	"github.com/harperreed/lift/internal/session"
	"github.com/harperreed/lift/internal/storage"
)

var epoch = time.Date(2025, 4, 7, 18, 30, 0, 0, time.UTC)

func testPlan() *models.WorkoutPlan {
	return &models.WorkoutPlan{
		ID:  "legs",
		Day: 3,
		Exercises: []models.PlanExercise{
			{ID: "squat", Name: "Back Squat", Sets: 2, Reps: 5, Load: 100, RestSeconds: 180},
			{ID: "rdl", Name: "Romanian Deadlift", Sets: 2, Reps: 8, Load: 80, RestSeconds: 120},
		},
	}
}

// switchRepo fails every call with a transient error while down is set.
type switchRepo struct {
	storage.Repository
	mu   sync.Mutex
	down bool
}

func (r *switchRepo) setDown(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down = v
}

func (r *switchRepo) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return &storage.Error{Kind: storage.KindTransient, Op: "test", Err: errors.New("network unreachable")}
	}
	return nil
}

func (r *switchRepo) UpsertSummary(ctx context.Context, rec *models.CompletionRecord) error {
	if err := r.err(); err != nil {
		return err
	}
	return r.Repository.UpsertSummary(ctx, rec)
}

func (r *switchRepo) InsertSets(ctx context.Context, id string, sets []models.SetExecution) (int, error) {
	if err := r.err(); err != nil {
		return 0, err
	}
	return r.Repository.InsertSets(ctx, id, sets)
}

func (r *switchRepo) MarkDayCompleted(ctx context.Context, planID string, day int, id string, at time.Time) error {
	if err := r.err(); err != nil {
		return err
	}
	return r.Repository.MarkDayCompleted(ctx, planID, day, id, at)
}

type sinkRecorder struct {
	mu     sync.Mutex
	events []models.BufferedEvent
}

func (s *sinkRecorder) Deliver(_ context.Context, batch []models.BufferedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *sinkRecorder) kinds() []models.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.EventKind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

type harness struct {
	clock *registry.ManualClock
	store *kv.Memory
	db    *storage.SQLite
	repo  *switchRepo
	plans *plans.Static
	sink  *sinkRecorder
}

func setupTestHarness(t *testing.T) *harness {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "lift.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &harness{
		clock: registry.NewManualClock(epoch),
		store: kv.NewMemory(),
		db:    db,
		repo:  &switchRepo{Repository: db},
		plans: plans.NewStatic(testPlan()),
		sink:  &sinkRecorder{},
	}
}

// open builds an engine over the harness state, as a fresh process would.
func (h *harness) open(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Options{
		Store: h.store,
		Repo:  h.repo,
		Plans: h.plans,
		Clock: h.clock,
		Sink:  h.sink,
		Sleep: func(context.Context, time.Duration) error { return nil },
	})
	require.NoError(t, err)
	return e
}

// mustOK takes an operation's results directly: mustOK(t)(e.SkipRest()).
func mustOK(t *testing.T) func(Result, error) Result {
	return func(res Result, err error) Result {
		t.Helper()
		require.NoError(t, err)
		require.True(t, res.OK(), "unexpected %s: %s", res.Code, res.Reason)
		return res
	}
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestFullWorkout(t *testing.T) {
	h := setupTestHarness(t)
	e := h.open(t)
	ctx := context.Background()

	res := mustOK(t)(e.StartSession("legs"))
	assert.Equal(t, session.Active, res.State.Status)
	assert.Equal(t, "squat", res.State.ExerciseID)
	assert.Equal(t, 1, res.State.NextSet)

	res = mustOK(t)(e.ConfirmSet(0, 1, 100, 5))
	assert.Equal(t, session.Resting, res.State.Status)
	assert.Equal(t, 180*time.Second, res.State.RestRemaining)

	h.clock.Advance(time.Minute)
	res = mustOK(t)(e.SkipRest())
	assert.Equal(t, 2*time.Minute, res.RestSkipped)
	assert.Equal(t, session.Active, res.State.Status)

	mustOK(t)(e.ConfirmSet(0, 2, 100, 5))
	h.clock.Advance(5 * time.Minute)
	res = mustOK(t)(e.ConfirmSet(1, 1, 80, 8))
	assert.Equal(t, "rdl", res.State.ExerciseID)
	h.clock.Advance(2 * time.Minute)
	res = mustOK(t)(e.FailSet(1, 2, 80, 6))
	assert.Equal(t, session.Finalizing, res.State.Status)

	res = mustOK(t)(e.Finalize(ctx, completion.Extra{}))
	require.NotNil(t, res.Report)
	assert.True(t, res.Report.OK())
	assert.Equal(t, 4, res.Report.Record.TotalSets)
	assert.Equal(t, 1, res.Report.Record.FailedSets)
	assert.Equal(t, session.Finalized, res.State.Status)

	summaries, err := h.db.ListSummaries(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)

	res, err = e.Finalize(ctx, completion.Extra{})
	require.NoError(t, err)
	assert.Equal(t, CodeNoActiveSession, res.Code)

	require.NoError(t, e.Close())
	kinds := h.sink.kinds()
	assert.Equal(t, models.EventSessionStarted, kinds[0])
	assert.Equal(t, models.EventSessionFinished, kinds[len(kinds)-1])
	assert.Contains(t, kinds, models.EventRestSkipped)
	assert.Contains(t, kinds, models.EventSetFailed)
	assert.Empty(t, e.Registry().Active())
}

func TestExpectedConditionsAreCodes(t *testing.T) {
	h := setupTestHarness(t)
	e := h.open(t)
	defer e.Close()

	res, err := e.ConfirmSet(0, 1, 100, 5)
	require.NoError(t, err)
	assert.Equal(t, CodeNoActiveSession, res.Code)

	res, err = e.StartSession("arms")
	require.NoError(t, err)
	assert.Equal(t, CodePlanNotFound, res.Code)

	mustOK(t)(e.StartSession("legs"))
	res, err = e.StartSession("legs")
	require.NoError(t, err)
	assert.Equal(t, CodeSessionActive, res.Code)

	mustOK(t)(e.ConfirmSet(0, 1, 100, 5))
	tests := []struct {
		name string
		call func() (Result, error)
		want Code
	}{
		{"duplicate set", func() (Result, error) { return e.ConfirmSet(0, 1, 100, 5) }, CodeDuplicateSet},
		{"bad exercise", func() (Result, error) { return e.ConfirmSet(7, 1, 100, 5) }, CodeOutOfRange},
		{"skipped set", func() (Result, error) { return e.ConfirmSet(1, 2, 80, 8) }, CodeOutOfRange},
		{"bad goto", func() (Result, error) { return e.GoToExercise(-1) }, CodeOutOfRange},
		{"resume while resting", func() (Result, error) { return e.Resume() }, CodeInvalidState},
		{"retry without failure", func() (Result, error) { return e.RetryFinalize(context.Background()) }, CodeNothingToRetry},
		{"resume without offer", func() (Result, error) { return e.ResumeRecovered() }, CodeNoOffer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.call()
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Code)
			assert.NotEmpty(t, res.Reason)
		})
	}

	// None of the rejected calls changed the log.
	assert.Equal(t, 1, e.Status().State.CompletedSets)
}

func TestPauseAndResume(t *testing.T) {
	h := setupTestHarness(t)
	e := h.open(t)
	defer e.Close()

	mustOK(t)(e.StartSession("legs"))
	mustOK(t)(e.ConfirmSet(0, 1, 100, 5))
	h.clock.Advance(30 * time.Second)

	res := mustOK(t)(e.Pause())
	assert.Equal(t, session.Paused, res.State.Status)
	h.clock.Advance(10 * time.Minute)

	res = mustOK(t)(e.Resume())
	assert.Equal(t, session.Resting, res.State.Status)
	assert.Equal(t, 150*time.Second, res.State.RestRemaining)
	assert.Equal(t, 30*time.Second, res.State.Elapsed)
}

func TestCrashRecovery(t *testing.T) {
	h := setupTestHarness(t)
	ctx := context.Background()

	first := h.open(t)
	mustOK(t)(first.StartSession("legs"))
	mustOK(t)(first.ConfirmSet(0, 1, 100, 5))
	h.clock.Advance(time.Minute)
	// The process dies here: no Close, no finalize.

	second := h.open(t)
	defer second.Close()
	res := mustOK(t)(second.TryRecoverOnStartup(ctx, "legs"))
	require.NotNil(t, res.Offer)
	assert.Equal(t, recovery.Resumable, res.Offer.Decision)
	assert.Equal(t, 1, res.Offer.SetsLogged)
	assert.Equal(t, 2*time.Minute, res.Offer.RestRemaining)
	assert.Equal(t, time.Minute, res.Offer.Age)
	assert.NotNil(t, second.Status().Offer)

	res = mustOK(t)(second.ResumeRecovered())
	assert.Equal(t, session.Resting, res.State.Status)
	assert.Equal(t, 1, res.State.CompletedSets)
	assert.Equal(t, 2*time.Minute, res.State.RestRemaining)

	res, err := second.ConfirmSet(0, 1, 100, 5)
	require.NoError(t, err)
	assert.Equal(t, CodeDuplicateSet, res.Code)
	mustOK(t)(second.ConfirmSet(0, 2, 100, 5))
}

func TestRecoveryDiscardsChangedPlan(t *testing.T) {
	h := setupTestHarness(t)
	ctx := context.Background()

	first := h.open(t)
	mustOK(t)(first.StartSession("legs"))
	mustOK(t)(first.ConfirmSet(0, 1, 100, 5))

	changed := testPlan()
	changed.Exercises[0].Sets = 5
	h.plans.Put(changed)

	second := h.open(t)
	res, err := second.TryRecoverOnStartup(ctx, "legs")
	require.NoError(t, err)
	assert.Equal(t, CodePlanMismatch, res.Code)
	assert.Equal(t, recovery.Discarded, res.Offer.Decision)
	assert.Equal(t, recovery.ReasonPlanChanged, res.Offer.Reason)

	res, err = second.TryRecoverOnStartup(ctx, "legs")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, recovery.None, res.Offer.Decision)

	require.NoError(t, second.Close())
	assert.Contains(t, h.sink.kinds(), models.EventSessionAbandoned)
}

func TestDiscardRecovered(t *testing.T) {
	h := setupTestHarness(t)
	ctx := context.Background()

	first := h.open(t)
	mustOK(t)(first.StartSession("legs"))

	second := h.open(t)
	defer second.Close()
	mustOK(t)(second.TryRecoverOnStartup(ctx, "legs"))
	mustOK(t)(second.DiscardRecovered())
	mustOK(t)(second.DiscardRecovered())

	res := mustOK(t)(second.TryRecoverOnStartup(ctx, "legs"))
	assert.Equal(t, recovery.None, res.Offer.Decision)
}

func TestAttach(t *testing.T) {
	h := setupTestHarness(t)
	ctx := context.Background()

	empty := h.open(t)
	res, err := empty.Attach(ctx)
	require.NoError(t, err)
	assert.Equal(t, CodeNoActiveSession, res.Code)
	assert.Empty(t, empty.SavedPlanID())
	require.NoError(t, empty.Close())

	first := h.open(t)
	mustOK(t)(first.StartSession("legs"))
	mustOK(t)(first.ConfirmSet(0, 1, 100, 5))
	require.NoError(t, first.Close())

	h.clock.Advance(4 * time.Minute)
	second := h.open(t)
	defer second.Close()
	assert.Equal(t, "legs", second.SavedPlanID())
	res = mustOK(t)(second.Attach(ctx))
	assert.Equal(t, session.Active, res.State.Status, "rest expired while the process was gone")
	mustOK(t)(second.ConfirmSet(0, 2, 100, 5))

	// Attaching again is a no-op on a live session.
	res = mustOK(t)(second.Attach(ctx))
	assert.Equal(t, 2, res.State.CompletedSets)
}

func TestPartialFailureAndRetry(t *testing.T) {
	h := setupTestHarness(t)
	ctx := context.Background()

	e := h.open(t)
	mustOK(t)(e.StartSession("legs"))
	mustOK(t)(e.ConfirmSet(0, 1, 100, 5))

	h.repo.setDown(true)
	res, err := e.Finalize(ctx, completion.Extra{})
	require.NoError(t, err)
	assert.Equal(t, CodePartialFailure, res.Code)
	assert.Equal(t, session.Finalized, res.State.Status)
	require.NoError(t, e.Close())

	// A later start surfaces the failed finalization.
	next := h.open(t)
	defer next.Close()
	res = mustOK(t)(next.TryRecoverOnStartup(ctx, ""))
	require.NotNil(t, res.Pending)
	require.NotNil(t, res.Pending.Failed)
	assert.Equal(t, recovery.None, res.Offer.Decision)

	res, err = next.RetryFinalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, CodePartialFailure, res.Code)

	h.repo.setDown(false)
	res = mustOK(t)(next.RetryFinalize(ctx))
	assert.True(t, res.Report.OK())

	summaries, err := h.db.ListSummaries(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestAbandonKeepsSnapshot(t *testing.T) {
	h := setupTestHarness(t)
	ctx := context.Background()

	e := h.open(t)
	mustOK(t)(e.StartSession("legs"))
	mustOK(t)(e.ConfirmSet(0, 1, 100, 5))
	res := mustOK(t)(e.AbandonSession(false))
	assert.Equal(t, session.Abandoned, res.State.Status)
	require.NoError(t, e.Close())

	again := h.open(t)
	defer again.Close()
	res = mustOK(t)(again.TryRecoverOnStartup(ctx, "legs"))
	assert.Equal(t, recovery.Resumable, res.Offer.Decision)

	// Starting fresh waits for an explicit decision on the offer.
	res, err := again.StartSession("legs")
	require.NoError(t, err)
	assert.Equal(t, CodeRecoveryPending, res.Code)
	mustOK(t)(again.DiscardRecovered())
	res = mustOK(t)(again.StartSession("legs"))
	assert.Equal(t, 0, res.State.CompletedSets)
}

func TestStartKeepsUnclaimedSnapshot(t *testing.T) {
	h := setupTestHarness(t)

	first := h.open(t)
	started := mustOK(t)(first.StartSession("legs"))
	mustOK(t)(first.ConfirmSet(0, 1, 100, 5))
	h.clock.Advance(time.Minute)
	// The process dies without Close; the next host never checks for recovery.

	second := h.open(t)
	res, err := second.StartSession("legs")
	require.NoError(t, err)
	assert.Equal(t, CodeRecoveryPending, res.Code)
	assert.NotEmpty(t, res.Reason)
	require.NotNil(t, res.Offer)
	assert.Equal(t, recovery.Resumable, res.Offer.Decision)
	assert.Equal(t, started.State.SessionID, res.Offer.SessionID)
	assert.Equal(t, 1, res.Offer.SetsLogged)
	assert.Equal(t, "legs", second.SavedPlanID())

	res = mustOK(t)(second.ResumeRecovered())
	assert.Equal(t, started.State.SessionID, res.State.SessionID)
	assert.Equal(t, 1, res.State.CompletedSets)
	require.NoError(t, second.Close())
	assert.NotContains(t, h.sink.kinds(), models.EventSessionAbandoned)
}

func TestStartDiscardsStaleSnapshotWithReason(t *testing.T) {
	h := setupTestHarness(t)

	first := h.open(t)
	mustOK(t)(first.StartSession("legs"))
	mustOK(t)(first.ConfirmSet(0, 1, 100, 5))

	changed := testPlan()
	changed.Exercises[1].Reps = 10
	h.plans.Put(changed)

	second := h.open(t)
	res := mustOK(t)(second.StartSession("legs"))
	assert.Equal(t, 0, res.State.CompletedSets)
	require.NoError(t, second.Close())
	assert.Contains(t, h.sink.kinds(), models.EventSessionAbandoned)
}

func TestTelemetryOffline(t *testing.T) {
	h := setupTestHarness(t)
	var flushes []events.FlushResult
	e, err := New(Options{
		Store:        h.store,
		Plans:        h.plans,
		Clock:        h.clock,
		Sink:         h.sink,
		Connectivity: events.Offline,
		Threshold:    2,
		OnFlush:      func(r events.FlushResult) { flushes = append(flushes, r) },
	})
	require.NoError(t, err)

	mustOK(t)(e.StartSession("legs"))
	mustOK(t)(e.ConfirmSet(0, 1, 100, 5))
	h.clock.Advance(0)
	require.NotEmpty(t, flushes, "threshold flush runs on the registry")
	require.NoError(t, e.Close())

	assert.Empty(t, h.sink.kinds())
	for _, r := range flushes {
		assert.True(t, r.Offline)
		assert.False(t, r.Delivered)
	}
	logged, err := e.EventLog().Entries()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(logged), 3)
	assert.Equal(t, models.EventSessionStarted, logged[0].Kind)
}

func TestPeriodicFlush(t *testing.T) {
	h := setupTestHarness(t)
	e := h.open(t)
	defer e.Close()

	mustOK(t)(e.StartSession("legs"))
	assert.Empty(t, h.sink.kinds())
	h.clock.Advance(events.DefaultInterval)
	assert.Equal(t, []models.EventKind{models.EventSessionStarted}, h.sink.kinds())

	res := e.Flush(context.Background())
	require.NotNil(t, res.Flush)
	assert.Equal(t, 0, res.Flush.Count)
}
