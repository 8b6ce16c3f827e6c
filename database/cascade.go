package database

import (
	"context"
	"database/sql"
	"fmt"

	"proofcheck/logging"
	"proofcheck/types"
	"proofcheck/uploads"
)

// commitTx is replaced in tests to simulate a failed commit
var commitTx = func(tx *sql.Tx) error { return tx.Commit() }

// DeleteTaskAndChildren removes a task, its submissions and every image they
// reference. Records are deleted in one transaction; the image files are
// staged through remover before the commit and put back if the commit fails,
// so either everything goes or nothing observable changes.
func (s *Store) DeleteTaskAndChildren(ctx context.Context, taskID string, remover types.FileRemover) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	task, err := getTask(ctx, tx, taskID)
	if err != nil {
		return err
	}

	files, err := taskFiles(ctx, tx, task)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("cannot delete submissions of task %s: %w", taskID, err)
	}
	removedSubs, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, taskID); err != nil {
		return fmt.Errorf("cannot delete task %s: %w", taskID, err)
	}

	staged, err := remover.StageRemoval(files)
	if err != nil {
		return fmt.Errorf("cannot remove images of task %s: %w", taskID, err)
	}

	if err := commitTx(tx); err != nil {
		if rbErr := staged.Rollback(); rbErr != nil {
			logging.LogError("Failed to restore images of task %s: %v", taskID, rbErr)
		}
		return fmt.Errorf("failed to commit deletion of task %s: %w", taskID, err)
	}

	// records are gone; a purge failure only leaves files in the trash area
	if err := staged.Commit(); err != nil {
		logging.LogWarning("Failed to purge images of deleted task %s: %v", taskID, err)
	}

	logging.LogInfo("Deleted task %s with %d submissions and %d images", taskID, removedSubs, len(files))
	return nil
}

func taskFiles(ctx context.Context, tx *sql.Tx, task types.Task) ([]types.StoredFile, error) {
	var files []types.StoredFile
	if task.ReferenceImage != "" {
		files = append(files, types.StoredFile{Bucket: uploads.TasksBucket, Name: task.ReferenceImage})
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT si.filename FROM submission_images si
		JOIN submissions s ON s.id = si.submission_id
		WHERE s.task_id = ?
		ORDER BY s.id, si.position`, task.ID)
	if err != nil {
		return nil, fmt.Errorf("cannot list images of task %s: %w", task.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("cannot list images of task %s: %w", task.ID, err)
		}
		files = append(files, types.StoredFile{Bucket: uploads.SubmissionsBucket, Name: name})
	}
	return files, rows.Err()
}
