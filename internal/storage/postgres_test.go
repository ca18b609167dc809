// ABOUTME: Integration tests for the Postgres repository.
// ABOUTME: Skipped unless LIFT_TEST_DATABASE_URL points at a disposable database.
package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
)

func setupTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("LIFT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("LIFT_TEST_DATABASE_URL not set")
	}
	db, err := OpenPostgres(context.Background(), dsn)
	if err != nil {
		t.Fatalf("OpenPostgres failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgresRoundTrip(t *testing.T) {
	db := setupTestPostgres(t)
	ctx := context.Background()

	rec := testRecord(uuid.NewString())
	for i := 0; i < 2; i++ {
		if err := db.UpsertSummary(ctx, rec); err != nil {
			t.Fatalf("UpsertSummary failed: %v", err)
		}
	}
	got, err := db.GetSummary(ctx, rec.SessionID)
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if got.TotalVolume != rec.TotalVolume || !got.FinishedAt.Equal(rec.FinishedAt) {
		t.Errorf("Unexpected summary: %+v", got)
	}

	n, err := db.InsertSets(ctx, rec.SessionID, testSets())
	if err != nil || n != 4 {
		t.Fatalf("InsertSets: n=%d err=%v", n, err)
	}
	n, err = db.InsertSets(ctx, rec.SessionID, testSets())
	if err != nil || n != 0 {
		t.Fatalf("InsertSets retry: n=%d err=%v", n, err)
	}

	planID := "plan-" + rec.SessionID[:8]
	if err := db.MarkDayCompleted(ctx, planID, 2, rec.SessionID, finished); err != nil {
		t.Fatalf("MarkDayCompleted failed: %v", err)
	}
	days, err := db.CompletedDays(ctx, planID)
	if err != nil || len(days) != 1 || days[0].Day != 2 {
		t.Fatalf("CompletedDays: %+v err=%v", days, err)
	}

	if _, err := db.GetSummary(ctx, uuid.NewString()); !IsNotFound(err) {
		t.Errorf("Expected not-found, got %v", err)
	}
}
