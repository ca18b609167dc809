// ABOUTME: SQLite schema definition and initialization.
// ABOUTME: Defines tables for session summaries, set rows, and completed plan days.
package storage

// initSchema creates or updates the database schema.
func (d *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_summaries (
		session_id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		elapsed_seconds INTEGER NOT NULL,
		total_sets INTEGER NOT NULL,
		total_reps INTEGER NOT NULL,
		total_volume REAL NOT NULL,
		distinct_exercises INTEGER NOT NULL,
		failed_sets INTEGER NOT NULL,
		effort INTEGER,
		fatigue INTEGER,
		mood INTEGER,
		notes TEXT,
		updated_at TEXT DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS session_sets (
		session_id TEXT NOT NULL,
		exercise_id TEXT NOT NULL,
		set_index INTEGER NOT NULL CHECK (set_index >= 1),
		exercise_name TEXT NOT NULL,
		load REAL NOT NULL,
		reps INTEGER NOT NULL,
		failed INTEGER NOT NULL DEFAULT 0,
		completed_at TEXT NOT NULL,
		PRIMARY KEY (session_id, exercise_id, set_index)
	);

	CREATE TABLE IF NOT EXISTS plan_days (
		plan_id TEXT NOT NULL,
		day INTEGER NOT NULL,
		session_id TEXT NOT NULL,
		completed_at TEXT NOT NULL,
		PRIMARY KEY (plan_id, day)
	);

	CREATE INDEX IF NOT EXISTS idx_summaries_finished ON session_summaries(finished_at DESC);
	CREATE INDEX IF NOT EXISTS idx_summaries_plan ON session_summaries(plan_id, finished_at DESC);
	CREATE INDEX IF NOT EXISTS idx_sets_session ON session_sets(session_id);
	`

	_, err := d.db.Exec(schema)
	return err
}
