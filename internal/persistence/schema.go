package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		start_date TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS calendars (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		working_weekdays TEXT NOT NULL,
		hours_per_day REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS calendar_holidays (
		calendar_id TEXT NOT NULL,
		day TEXT NOT NULL,
		PRIMARY KEY (calendar_id, day),
		FOREIGN KEY (calendar_id) REFERENCES calendars(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		mode INTEGER NOT NULL,
		calendar_id TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL DEFAULT '',
		end_date TEXT NOT NULL DEFAULT '',
		duration_days INTEGER NOT NULL DEFAULT 0,
		effort_hours REAL NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_project_id ON tasks(project_id);

	CREATE TABLE IF NOT EXISTS task_dependencies (
		task_id TEXT NOT NULL,
		predecessor_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		dep_type TEXT NOT NULL,
		lag_days INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (task_id, position),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE,
		FOREIGN KEY (predecessor_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_dependencies_predecessor_id ON task_dependencies(predecessor_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
