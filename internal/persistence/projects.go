package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aristath/planner/internal/scheduler"
)

// SaveProject inserts or updates a project.
func (s *SQLiteStore) SaveProject(ctx context.Context, project *scheduler.Project) error {
	if project.StartDate.IsZero() {
		return fmt.Errorf("project %s: start date is required", project.ID)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, start_date, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			start_date = excluded.start_date,
			updated_at = CURRENT_TIMESTAMP
	`, project.ID, project.Name, formatDate(project.StartDate))
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID.
func (s *SQLiteStore) GetProject(ctx context.Context, projectID string) (*scheduler.Project, error) {
	project := &scheduler.Project{}
	var start string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, start_date FROM projects WHERE id = ?
	`, projectID).Scan(&project.ID, &project.Name, &start)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query project: %w", err)
	}

	if project.StartDate, err = parseDate(start); err != nil {
		return nil, fmt.Errorf("project %s: bad start date %q: %w", projectID, start, err)
	}
	return project, nil
}

// ListProjects returns all projects ordered by ID.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*scheduler.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, start_date FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []*scheduler.Project
	for rows.Next() {
		project := &scheduler.Project{}
		var start string
		if err := rows.Scan(&project.ID, &project.Name, &start); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		if project.StartDate, err = parseDate(start); err != nil {
			return nil, fmt.Errorf("project %s: bad start date %q: %w", project.ID, start, err)
		}
		projects = append(projects, project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}
