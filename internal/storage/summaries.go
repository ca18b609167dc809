// ABOUTME: Session summary, set row, and plan-day operations for SQLite storage.
// ABOUTME: Summaries upsert on session id; set rows are insert-or-ignore on their natural key.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/lift/internal/models"
)

// timeLayout is fixed-width UTC so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// UpsertSummary stores a session summary, replacing an earlier one.
func (d *SQLite) UpsertSummary(ctx context.Context, rec *models.CompletionRecord) error {
	if err := validateSummary(rec); err != nil {
		return err
	}
	var effort, fatigue, mood sql.NullInt64
	if r := rec.Ratings; r != nil {
		effort = nullInt(r.Effort)
		fatigue = nullInt(r.Fatigue)
		mood = nullInt(r.Mood)
	}
	query := `
		INSERT INTO session_summaries (session_id, plan_id, started_at, finished_at, elapsed_seconds,
			total_sets, total_reps, total_volume, distinct_exercises, failed_sets,
			effort, fatigue, mood, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_id) DO UPDATE SET
			plan_id = excluded.plan_id,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			elapsed_seconds = excluded.elapsed_seconds,
			total_sets = excluded.total_sets,
			total_reps = excluded.total_reps,
			total_volume = excluded.total_volume,
			distinct_exercises = excluded.distinct_exercises,
			failed_sets = excluded.failed_sets,
			effort = excluded.effort,
			fatigue = excluded.fatigue,
			mood = excluded.mood,
			notes = excluded.notes,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := d.db.ExecContext(ctx, query,
		rec.SessionID,
		rec.PlanID,
		formatTime(rec.StartedAt),
		formatTime(rec.FinishedAt),
		rec.ElapsedSeconds,
		rec.TotalSets,
		rec.TotalReps,
		rec.TotalVolume,
		rec.DistinctExercises,
		rec.FailedSets,
		effort, fatigue, mood,
		rec.Notes,
	)
	return classify("upsert summary", err)
}

// InsertSets stores set rows, skipping ones already present.
func (d *SQLite) InsertSets(ctx context.Context, sessionID string, sets []models.SetExecution) (int, error) {
	if err := validateSets(sessionID, sets); err != nil {
		return 0, err
	}
	if len(sets) == 0 {
		return 0, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("insert sets", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO session_sets (session_id, exercise_id, set_index, exercise_name, load, reps, failed, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return 0, classify("insert sets", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, s := range sets {
		res, err := stmt.ExecContext(ctx, sessionID, s.ExerciseID, s.SetIndex, s.ExerciseName,
			s.Load, s.Reps, s.Failed, formatTime(s.CompletedAt))
		if err != nil {
			return 0, classify("insert sets", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, classify("insert sets", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, classify("insert sets", err)
	}
	return inserted, nil
}

// MarkDayCompleted records the session that completed a plan day.
func (d *SQLite) MarkDayCompleted(ctx context.Context, planID string, day int, sessionID string, at time.Time) error {
	if err := validateDay(planID, day, sessionID); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO plan_days (plan_id, day, session_id, completed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(plan_id, day) DO UPDATE SET
			session_id = excluded.session_id,
			completed_at = excluded.completed_at
	`, planID, day, sessionID, formatTime(at))
	return classify("mark day completed", err)
}

// GetSummary retrieves a summary by session id or id prefix.
func (d *SQLite) GetSummary(ctx context.Context, idOrPrefix string) (*models.CompletionRecord, error) {
	id, err := d.resolveSessionID(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}
	row := d.db.QueryRowContext(ctx, `SELECT `+summaryColumns+` FROM session_summaries WHERE session_id = ?`, id)
	rec, err := scanSummary(row)
	if err != nil {
		return nil, classify("get summary", err)
	}
	return rec, nil
}

// ListSummaries returns summaries, most recently finished first.
func (d *SQLite) ListSummaries(ctx context.Context, planID *string, limit int) ([]*models.CompletionRecord, error) {
	query := `SELECT ` + summaryColumns + ` FROM session_summaries`
	var args []interface{}
	if planID != nil {
		query += ` WHERE plan_id = ?`
		args = append(args, *planID)
	}
	query += ` ORDER BY finished_at DESC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list summaries", err)
	}
	defer rows.Close()

	var out []*models.CompletionRecord
	for rows.Next() {
		rec, err := scanSummary(rows)
		if err != nil {
			return nil, classify("list summaries", err)
		}
		out = append(out, rec)
	}
	return out, classify("list summaries", rows.Err())
}

// ListSets returns a session's set rows in the order they were performed.
func (d *SQLite) ListSets(ctx context.Context, sessionID string) ([]models.SetExecution, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT exercise_id, exercise_name, set_index, load, reps, failed, completed_at
		FROM session_sets
		WHERE session_id = ?
		ORDER BY completed_at ASC, exercise_id ASC, set_index ASC
	`, sessionID)
	if err != nil {
		return nil, classify("list sets", err)
	}
	defer rows.Close()

	var out []models.SetExecution
	for rows.Next() {
		var s models.SetExecution
		var completedAt string
		if err := rows.Scan(&s.ExerciseID, &s.ExerciseName, &s.SetIndex, &s.Load, &s.Reps, &s.Failed, &completedAt); err != nil {
			return nil, classify("list sets", err)
		}
		s.CompletedAt = parseTime(completedAt)
		out = append(out, s)
	}
	return out, classify("list sets", rows.Err())
}

// CompletedDays returns the finished days of a plan in ascending order.
func (d *SQLite) CompletedDays(ctx context.Context, planID string) ([]PlanDay, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT day, session_id, completed_at FROM plan_days WHERE plan_id = ? ORDER BY day
	`, planID)
	if err != nil {
		return nil, classify("completed days", err)
	}
	defer rows.Close()

	var days []PlanDay
	for rows.Next() {
		pd := PlanDay{PlanID: planID}
		var completedAt string
		if err := rows.Scan(&pd.Day, &pd.SessionID, &completedAt); err != nil {
			return nil, classify("completed days", err)
		}
		pd.CompletedAt = parseTime(completedAt)
		days = append(days, pd)
	}
	return days, classify("completed days", rows.Err())
}

const summaryColumns = `session_id, plan_id, started_at, finished_at, elapsed_seconds,
	total_sets, total_reps, total_volume, distinct_exercises, failed_sets,
	effort, fatigue, mood, notes`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSummary(row scanner) (*models.CompletionRecord, error) {
	var rec models.CompletionRecord
	var startedAt, finishedAt string
	var effort, fatigue, mood sql.NullInt64
	var notes sql.NullString

	err := row.Scan(&rec.SessionID, &rec.PlanID, &startedAt, &finishedAt, &rec.ElapsedSeconds,
		&rec.TotalSets, &rec.TotalReps, &rec.TotalVolume, &rec.DistinctExercises, &rec.FailedSets,
		&effort, &fatigue, &mood, &notes)
	if err != nil {
		return nil, err
	}

	rec.StartedAt = parseTime(startedAt)
	rec.FinishedAt = parseTime(finishedAt)
	rec.Ratings = ratingsFrom(effort, fatigue, mood)
	if notes.Valid {
		rec.Notes = &notes.String
	}
	return &rec, nil
}

// resolveSessionID finds the full session id from a prefix.
func (d *SQLite) resolveSessionID(ctx context.Context, idOrPrefix string) (string, error) {
	if len(idOrPrefix) == 36 && strings.Count(idOrPrefix, "-") == 4 {
		return idOrPrefix, nil
	}
	if idOrPrefix == "" {
		return "", validation("resolve session id", "empty id")
	}

	rows, err := d.db.QueryContext(ctx, `SELECT session_id FROM session_summaries WHERE session_id LIKE ? || '%'`, idOrPrefix)
	if err != nil {
		return "", classify("resolve session id", err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", classify("resolve session id", err)
		}
		matches = append(matches, id)
	}

	if len(matches) == 0 {
		return "", notFound("resolve session id", idOrPrefix)
	}
	if len(matches) > 1 {
		return "", validation("resolve session id", fmt.Sprintf("ambiguous prefix %s: matches multiple sessions", idOrPrefix))
	}
	return matches[0], nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func ratingsFrom(effort, fatigue, mood sql.NullInt64) *models.Ratings {
	if !effort.Valid && !fatigue.Valid && !mood.Valid {
		return nil
	}
	r := &models.Ratings{}
	if effort.Valid {
		v := int(effort.Int64)
		r.Effort = &v
	}
	if fatigue.Valid {
		v := int(fatigue.Int64)
		r.Fatigue = &v
	}
	if mood.Valid {
		v := int(mood.Int64)
		r.Mood = &v
	}
	return r
}
