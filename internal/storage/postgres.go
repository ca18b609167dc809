// ABOUTME: PostgreSQL repository backed by a pgx connection pool.
// ABOUTME: Schema is managed by golang-migrate from migrations embedded in the binary.
package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harperreed/lift/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres wraps a pgxpool.Pool and provides repository methods.
type Postgres struct {
	Pool *pgxpool.Pool
}

// Compile-time check that Postgres implements Repository.
var _ Repository = (*Postgres)(nil)

// OpenPostgres creates a connection pool and applies pending migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if err := RunMigrations(dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Postgres{Pool: pool}, nil
}

// RunMigrations applies all pending embedded migrations.
func RunMigrations(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (db *Postgres) Close() error {
	db.Pool.Close()
	return nil
}

// UpsertSummary stores a session summary, replacing an earlier one.
func (db *Postgres) UpsertSummary(ctx context.Context, rec *models.CompletionRecord) error {
	if err := validateSummary(rec); err != nil {
		return err
	}
	var effort, fatigue, mood *int
	if r := rec.Ratings; r != nil {
		effort, fatigue, mood = r.Effort, r.Fatigue, r.Mood
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO session_summaries (session_id, plan_id, started_at, finished_at, elapsed_seconds,
			total_sets, total_reps, total_volume, distinct_exercises, failed_sets,
			effort, fatigue, mood, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (session_id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			elapsed_seconds = EXCLUDED.elapsed_seconds,
			total_sets = EXCLUDED.total_sets,
			total_reps = EXCLUDED.total_reps,
			total_volume = EXCLUDED.total_volume,
			distinct_exercises = EXCLUDED.distinct_exercises,
			failed_sets = EXCLUDED.failed_sets,
			effort = EXCLUDED.effort,
			fatigue = EXCLUDED.fatigue,
			mood = EXCLUDED.mood,
			notes = EXCLUDED.notes,
			updated_at = now()`,
		rec.SessionID, rec.PlanID, rec.StartedAt, rec.FinishedAt, rec.ElapsedSeconds,
		rec.TotalSets, rec.TotalReps, rec.TotalVolume, rec.DistinctExercises, rec.FailedSets,
		effort, fatigue, mood, rec.Notes)
	return classify("upsert summary", err)
}

// InsertSets batch-inserts set rows. Returns count inserted.
func (db *Postgres) InsertSets(ctx context.Context, sessionID string, sets []models.SetExecution) (int, error) {
	if err := validateSets(sessionID, sets); err != nil {
		return 0, err
	}
	if len(sets) == 0 {
		return 0, nil
	}

	query := `INSERT INTO session_sets (session_id, exercise_id, set_index, exercise_name,
		load, reps, failed, completed_at) VALUES `
	args := make([]any, 0, len(sets)*8)
	valueStrings := make([]string, 0, len(sets))

	for i, s := range sets {
		base := i * 8
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args, sessionID, s.ExerciseID, s.SetIndex, s.ExerciseName,
			s.Load, s.Reps, s.Failed, s.CompletedAt)
	}

	query += strings.Join(valueStrings, ",") + " ON CONFLICT DO NOTHING"

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, classify("insert sets", err)
	}
	return int(tag.RowsAffected()), nil
}

// MarkDayCompleted records the session that completed a plan day.
func (db *Postgres) MarkDayCompleted(ctx context.Context, planID string, day int, sessionID string, at time.Time) error {
	if err := validateDay(planID, day, sessionID); err != nil {
		return err
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO plan_days (plan_id, day, session_id, completed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (plan_id, day) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			completed_at = EXCLUDED.completed_at`,
		planID, day, sessionID, at)
	return classify("mark day completed", err)
}

// GetSummary retrieves a summary by session id or unique id prefix.
func (db *Postgres) GetSummary(ctx context.Context, idOrPrefix string) (*models.CompletionRecord, error) {
	if idOrPrefix == "" {
		return nil, validation("get summary", "empty id")
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT `+pgSummaryColumns+` FROM session_summaries WHERE session_id LIKE $1 || '%' LIMIT 2`,
		idOrPrefix)
	if err != nil {
		return nil, classify("get summary", err)
	}
	recs, err := collectSummaries(rows)
	if err != nil {
		return nil, classify("get summary", err)
	}
	switch len(recs) {
	case 0:
		return nil, notFound("get summary", idOrPrefix)
	case 1:
		return recs[0], nil
	}
	return nil, validation("get summary", fmt.Sprintf("ambiguous prefix %s: matches multiple sessions", idOrPrefix))
}

// ListSummaries returns summaries, most recently finished first.
func (db *Postgres) ListSummaries(ctx context.Context, planID *string, limit int) ([]*models.CompletionRecord, error) {
	query := `SELECT ` + pgSummaryColumns + ` FROM session_summaries`
	var args []any
	if planID != nil {
		args = append(args, *planID)
		query += fmt.Sprintf(` WHERE plan_id = $%d`, len(args))
	}
	query += ` ORDER BY finished_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("list summaries", err)
	}
	recs, err := collectSummaries(rows)
	return recs, classify("list summaries", err)
}

// ListSets returns a session's set rows in the order they were performed.
func (db *Postgres) ListSets(ctx context.Context, sessionID string) ([]models.SetExecution, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT exercise_id, exercise_name, set_index, load, reps, failed, completed_at
		FROM session_sets
		WHERE session_id = $1
		ORDER BY completed_at ASC, exercise_id ASC, set_index ASC`, sessionID)
	if err != nil {
		return nil, classify("list sets", err)
	}
	defer rows.Close()

	var out []models.SetExecution
	for rows.Next() {
		var s models.SetExecution
		if err := rows.Scan(&s.ExerciseID, &s.ExerciseName, &s.SetIndex, &s.Load, &s.Reps, &s.Failed, &s.CompletedAt); err != nil {
			return nil, classify("list sets", err)
		}
		out = append(out, s)
	}
	return out, classify("list sets", rows.Err())
}

// CompletedDays returns the finished days of a plan in ascending order.
func (db *Postgres) CompletedDays(ctx context.Context, planID string) ([]PlanDay, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT plan_id, day, session_id, completed_at FROM plan_days WHERE plan_id = $1 ORDER BY day`, planID)
	if err != nil {
		return nil, classify("completed days", err)
	}
	days, err := pgx.CollectRows(rows, pgx.RowToStructByPos[PlanDay])
	return days, classify("completed days", err)
}

const pgSummaryColumns = `session_id, plan_id, started_at, finished_at, elapsed_seconds,
	total_sets, total_reps, total_volume, distinct_exercises, failed_sets,
	effort, fatigue, mood, notes`

func collectSummaries(rows pgx.Rows) ([]*models.CompletionRecord, error) {
	defer rows.Close()
	var out []*models.CompletionRecord
	for rows.Next() {
		var rec models.CompletionRecord
		var effort, fatigue, mood *int16
		if err := rows.Scan(&rec.SessionID, &rec.PlanID, &rec.StartedAt, &rec.FinishedAt, &rec.ElapsedSeconds,
			&rec.TotalSets, &rec.TotalReps, &rec.TotalVolume, &rec.DistinctExercises, &rec.FailedSets,
			&effort, &fatigue, &mood, &rec.Notes); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		if effort != nil || fatigue != nil || mood != nil {
			rec.Ratings = &models.Ratings{Effort: widen(effort), Fatigue: widen(fatigue), Mood: widen(mood)}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func widen(v *int16) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
