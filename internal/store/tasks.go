package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

func (s *PostgresStore) CreateTask(ctx context.Context, planID uuid.UUID, title string) (uuid.UUID, error) {
	id := uuid.New()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, plan_id, title, done, sort_order, created_at)
		VALUES ($1, $2, $3, FALSE,
			(SELECT COUNT(1) FROM tasks WHERE plan_id = $2), NOW())
	`, id, planID, title); err != nil {
		return uuid.Nil, fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	var task Task
	err := s.db.QueryRowContext(ctx, `
		SELECT id, plan_id, title, done, sort_order, created_at
		FROM tasks WHERE id = $1
	`, id).Scan(&task.ID, &task.PlanID, &task.Title, &task.Done, &task.SortOrder, &task.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup task: %w", err)
	}
	return &task, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, planID uuid.UUID) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, plan_id, title, done, sort_order, created_at
		FROM tasks WHERE plan_id = $1
		ORDER BY sort_order ASC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]Task, 0)
	for rows.Next() {
		var task Task
		if err := rows.Scan(&task.ID, &task.PlanID, &task.Title, &task.Done, &task.SortOrder, &task.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTaskTitle(ctx context.Context, id uuid.UUID, title string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET title = $2, updated_at = NOW() WHERE id = $1
	`, id, title); err != nil {
		return fmt.Errorf("update task title: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTaskDone(ctx context.Context, id uuid.UUID, done bool) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET done = $2, updated_at = NOW() WHERE id = $1
	`, id, done); err != nil {
		return fmt.Errorf("update task done: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountTasks(ctx context.Context, planID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM tasks WHERE plan_id = $1
	`, planID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return count, nil
}

// CompactTaskOrder closes the ordinal gap the given task leaves in its plan.
func (s *PostgresStore) CompactTaskOrder(ctx context.Context, planID, taskID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET sort_order = sort_order - 1
		WHERE plan_id = $1
		AND sort_order > (SELECT sort_order FROM tasks WHERE id = $2)
	`, planID, taskID); err != nil {
		return fmt.Errorf("compact task order: %w", err)
	}
	return nil
}

// MoveTaskOrder shifts every task of the plan in one statement; the CASE arms
// mirror order.Shift.
func (s *PostgresStore) MoveTaskOrder(ctx context.Context, planID uuid.UUID, oldOrder, newOrder int) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET sort_order =
			CASE
				WHEN sort_order = $2 THEN $3
				WHEN sort_order > $2 AND sort_order <= $3 THEN sort_order - 1
				WHEN sort_order >= $3 AND sort_order < $2 THEN sort_order + 1
				ELSE sort_order
			END
		WHERE plan_id = $1
	`, planID, oldOrder, newOrder); err != nil {
		return fmt.Errorf("move task order: %w", err)
	}
	return nil
}
