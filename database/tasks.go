package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"proofcheck/types"
)

const taskColumns = `id, title, description, COALESCE(reference_image, ''), created_at, status`

// CreateTask inserts a validated task
func (s *Store) CreateTask(ctx context.Context, task types.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, reference_image, created_at, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, task.ReferenceImage, formatTime(task.CreatedAt), string(task.Status))
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: task %s", ErrDuplicateID, task.ID)
		}
		return fmt.Errorf("cannot insert task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask loads a single task
func (s *Store) GetTask(ctx context.Context, id string) (types.Task, error) {
	return getTask(ctx, s.db, id)
}

func getTask(ctx context.Context, q querier, id string) (types.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Task{}, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	if err != nil {
		return types.Task{}, fmt.Errorf("cannot load task %s: %w", id, err)
	}
	return task, nil
}

// ListTasks returns tasks newest first. An empty status returns every task.
func (s *Store) ListTasks(ctx context.Context, status types.TaskStatus) ([]types.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// UpdateTaskStatus moves a task to a new status if the transition is allowed
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, to types.TaskStatus) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		task, err := getTask(ctx, tx, id)
		if err != nil {
			return err
		}
		if !task.CanTransition(to) {
			return fmt.Errorf("%w: task %s is %s, cannot become %s", types.ErrInvalidTransition, id, task.Status, to)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, string(to), id); err != nil {
			return fmt.Errorf("cannot update task %s: %w", id, err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (types.Task, error) {
	var task types.Task
	var createdAt, status string
	if err := row.Scan(&task.ID, &task.Title, &task.Description, &task.ReferenceImage, &createdAt, &status); err != nil {
		return types.Task{}, err
	}

	var err error
	if task.CreatedAt, err = parseTime(createdAt); err != nil {
		return types.Task{}, fmt.Errorf("task %s: %w", task.ID, err)
	}
	task.Status = types.TaskStatus(status)
	if err := task.Validate(); err != nil {
		return types.Task{}, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}
	return task, nil
}
