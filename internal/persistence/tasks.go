package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aristath/planner/internal/scheduler"
)

// SaveTask saves or updates a task and its dependencies.
// Uses ON CONFLICT to make saves idempotent. Dependency order is preserved.
func (s *SQLiteStore) SaveTask(ctx context.Context, task *scheduler.Task) error {
	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, name, mode, calendar_id, start_date, end_date, duration_days, effort_hours, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			name = excluded.name,
			mode = excluded.mode,
			calendar_id = excluded.calendar_id,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			duration_days = excluded.duration_days,
			effort_hours = excluded.effort_hours,
			updated_at = CURRENT_TIMESTAMP
	`, task.ID, task.ProjectID, task.Name, task.Mode, task.CalendarID,
		formatDate(task.Start), formatDate(task.End), task.DurationDays, task.EffortHours)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	// Delete existing dependencies for this task
	_, err = tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id = ?`, task.ID)
	if err != nil {
		return fmt.Errorf("failed to delete old dependencies: %w", err)
	}

	for i, dep := range task.Dependencies {
		// Check if dependency exists (enforces foreign key)
		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, dep.PredecessorID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("foreign key constraint failed: predecessor task %s does not exist", dep.PredecessorID)
		}
		if err != nil {
			return fmt.Errorf("failed to check dependency existence: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_dependencies (task_id, predecessor_id, position, dep_type, lag_days)
			VALUES (?, ?, ?, ?, ?)
		`, task.ID, dep.PredecessorID, i, dep.Type.String(), dep.LagDays)
		if err != nil {
			return fmt.Errorf("failed to insert dependency %s -> %s: %w", dep.PredecessorID, task.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

const taskColumns = `id, project_id, name, mode, calendar_id, start_date, end_date, duration_days, effort_hours`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*scheduler.Task, error) {
	task := &scheduler.Task{}
	var start, end string
	if err := row.Scan(&task.ID, &task.ProjectID, &task.Name, &task.Mode, &task.CalendarID,
		&start, &end, &task.DurationDays, &task.EffortHours); err != nil {
		return nil, err
	}

	var err error
	if task.Start, err = parseDate(start); err != nil {
		return nil, fmt.Errorf("task %s: bad start date %q: %w", task.ID, start, err)
	}
	if task.End, err = parseDate(end); err != nil {
		return nil, fmt.Errorf("task %s: bad end date %q: %w", task.ID, end, err)
	}
	return task, nil
}

// GetTask retrieves a task by ID, including its dependencies.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*scheduler.Task, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = ?
	`, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	deps, err := s.loadDependencies(ctx, `WHERE d.task_id = ?`, taskID)
	if err != nil {
		return nil, err
	}
	task.Dependencies = deps[taskID]
	return task, nil
}

// ListTasks returns all tasks of a project with their dependencies, in
// creation order.
func (s *SQLiteStore) ListTasks(ctx context.Context, projectID string) ([]*scheduler.Task, error) {
	deps, err := s.loadDependencies(ctx, `JOIN tasks t ON t.id = d.task_id WHERE t.project_id = ?`, projectID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE project_id = ?
		ORDER BY created_at, rowid
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*scheduler.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		task.Dependencies = deps[task.ID]
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// loadDependencies returns dependency edges grouped by task id, in edge order.
func (s *SQLiteStore) loadDependencies(ctx context.Context, filter string, args ...any) (map[string][]scheduler.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.task_id, d.predecessor_id, d.dep_type, d.lag_days
		FROM task_dependencies d
		`+filter+`
		ORDER BY d.task_id, d.position
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer rows.Close()

	deps := make(map[string][]scheduler.Dependency)
	for rows.Next() {
		var taskID, depType string
		var dep scheduler.Dependency
		if err := rows.Scan(&taskID, &dep.PredecessorID, &depType, &dep.LagDays); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		if dep.Type, err = scheduler.ParseDependencyType(depType); err != nil {
			return nil, fmt.Errorf("task %s: %w", taskID, err)
		}
		deps[taskID] = append(deps[taskID], dep)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dependencies: %w", err)
	}
	return deps, nil
}

// DeleteTask removes a task. Dependency rows referencing it are removed by cascade.
func (s *SQLiteStore) DeleteTask(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return nil
}

// ApplySchedule writes the computed dates of every scheduled Automatic task
// in one transaction and returns how many rows changed. Manual rows are
// excluded by the WHERE clause even if the schedule carries them.
func (s *SQLiteStore) ApplySchedule(ctx context.Context, projectID string, schedule *scheduler.Schedule) (int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	updated := 0
	for _, task := range schedule.Computed() {
		res, err := tx.ExecContext(ctx, `
			UPDATE tasks
			SET start_date = ?, end_date = ?, duration_days = ?, effort_hours = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND project_id = ? AND mode = ?
		`, formatDate(task.Start), formatDate(task.End), task.DurationDays, task.EffortHours,
			task.ID, projectID, scheduler.Automatic)
		if err != nil {
			return 0, fmt.Errorf("failed to update task %s: %w", task.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		updated += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return updated, nil
}
