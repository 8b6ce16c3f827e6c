package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"proofcheck/types"
)

const submissionColumns = `id, task_id, user_name, user_email, user_phone, submitted_at, status, notes, scored_at`

// CreateSubmission inserts a submission and its proof image rows in one
// transaction. The task must exist.
func (s *Store) CreateSubmission(ctx context.Context, sub types.Submission) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getTask(ctx, tx, sub.TaskID); err != nil {
			return err
		}

		var scoredAt any
		if sub.ScoredAt != nil {
			scoredAt = formatTime(*sub.ScoredAt)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO submissions (id, task_id, user_name, user_email, user_phone, submitted_at, status, notes, scored_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sub.ID, sub.TaskID, sub.UserName, sub.UserEmail, sub.UserPhone,
			formatTime(sub.SubmittedAt), string(sub.Status), sub.Notes, scoredAt)
		if err != nil {
			if isConstraintViolation(err) {
				return fmt.Errorf("%w: submission %s", ErrDuplicateID, sub.ID)
			}
			return fmt.Errorf("cannot insert submission %s: %w", sub.ID, err)
		}

		for i, img := range sub.ProofImages {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO submission_images (submission_id, position, filename) VALUES (?, ?, ?)`,
				sub.ID, i, img)
			if err != nil {
				return fmt.Errorf("cannot insert proof image for submission %s: %w", sub.ID, err)
			}
		}
		return nil
	})
}

// GetSubmission loads a submission with its proof images
func (s *Store) GetSubmission(ctx context.Context, id string) (types.Submission, error) {
	return getSubmission(ctx, s.db, id)
}

func getSubmission(ctx context.Context, q querier, id string) (types.Submission, error) {
	row := q.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Submission{}, fmt.Errorf("%w: submission %s", ErrNotFound, id)
	}
	if err != nil {
		return types.Submission{}, fmt.Errorf("cannot load submission %s: %w", id, err)
	}

	subs := []types.Submission{sub}
	if err := attachImages(ctx, q, subs); err != nil {
		return types.Submission{}, err
	}
	return subs[0], nil
}

// ListSubmissions returns submissions newest first, for one task or for all
// tasks when taskID is empty.
func (s *Store) ListSubmissions(ctx context.Context, taskID string) ([]types.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions`
	var args []any
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY submitted_at DESC, id`
	return s.querySubmissions(ctx, query, args...)
}

// ListUnscored returns pending submissions that never went through intake,
// oldest first.
func (s *Store) ListUnscored(ctx context.Context) ([]types.Submission, error) {
	return s.querySubmissions(ctx, `SELECT `+submissionColumns+` FROM submissions
		WHERE status = 'pending' AND scored_at IS NULL
		ORDER BY submitted_at, id`)
}

func (s *Store) querySubmissions(ctx context.Context, query string, args ...any) ([]types.Submission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot list submissions: %w", err)
	}

	var subs []types.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		subs = append(subs, sub)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("cannot list submissions: %w", err)
	}

	if err := attachImages(ctx, s.db, subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// attachImages fills ProofImages and validates each submission. It runs after
// the submission rows are closed since the store uses a single connection.
func attachImages(ctx context.Context, q querier, subs []types.Submission) error {
	for i := range subs {
		rows, err := q.QueryContext(ctx,
			`SELECT filename FROM submission_images WHERE submission_id = ? ORDER BY position`, subs[i].ID)
		if err != nil {
			return fmt.Errorf("cannot load proof images for %s: %w", subs[i].ID, err)
		}
		var images []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return fmt.Errorf("cannot load proof images for %s: %w", subs[i].ID, err)
			}
			images = append(images, name)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("cannot load proof images for %s: %w", subs[i].ID, err)
		}

		subs[i].ProofImages = images
		if err := subs[i].Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedRow, err)
		}
	}
	return nil
}

// UpdateSubmissionStatus applies a status and note to a pending submission
// and returns its task id. The read, check and write happen in one
// transaction. Only pending rows may change; staying pending is allowed so an
// automated pass can record its note. An empty note keeps the existing one.
func (s *Store) UpdateSubmissionStatus(ctx context.Context, id string, status types.SubmissionStatus, note string) (string, error) {
	var taskID string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sub, err := getSubmission(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := checkPending(sub, status); err != nil {
			return err
		}
		if err := updateStatus(ctx, tx, id, status, note, nil); err != nil {
			return err
		}
		taskID = sub.TaskID
		return nil
	})
	return taskID, err
}

// RecordScore is the intake write: like UpdateSubmissionStatus but it also
// stamps scored_at and refuses a submission that was already scored.
func (s *Store) RecordScore(ctx context.Context, id string, status types.SubmissionStatus, note string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		sub, err := getSubmission(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub.ScoredAt != nil {
			return fmt.Errorf("%w: %s at %s", ErrAlreadyScored, id, sub.ScoredAt.Format(time.RFC3339))
		}
		if err := checkPending(sub, status); err != nil {
			return err
		}
		return updateStatus(ctx, tx, id, status, note, &at)
	})
}

func checkPending(sub types.Submission, to types.SubmissionStatus) error {
	if to == types.SubmissionPending && sub.Status == types.SubmissionPending {
		return nil
	}
	if !sub.CanTransition(to) {
		return fmt.Errorf("%w: submission %s is %s, cannot become %s",
			types.ErrInvalidTransition, sub.ID, sub.Status, to)
	}
	return nil
}

func updateStatus(ctx context.Context, tx *sql.Tx, id string, status types.SubmissionStatus, note string, scoredAt *time.Time) error {
	query := `UPDATE submissions SET status = ?, notes = CASE WHEN ? = '' THEN notes ELSE ? END`
	args := []any{string(status), note, note}
	if scoredAt != nil {
		query += `, scored_at = ?`
		args = append(args, formatTime(*scoredAt))
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("cannot update submission %s: %w", id, err)
	}
	return nil
}

func scanSubmission(row rowScanner) (types.Submission, error) {
	var sub types.Submission
	var submittedAt, status string
	var scoredAt sql.NullString
	err := row.Scan(&sub.ID, &sub.TaskID, &sub.UserName, &sub.UserEmail, &sub.UserPhone,
		&submittedAt, &status, &sub.Notes, &scoredAt)
	if err != nil {
		return types.Submission{}, err
	}

	if sub.SubmittedAt, err = parseTime(submittedAt); err != nil {
		return types.Submission{}, fmt.Errorf("submission %s: %w", sub.ID, err)
	}
	if scoredAt.Valid {
		t, err := parseTime(scoredAt.String)
		if err != nil {
			return types.Submission{}, fmt.Errorf("submission %s: %w", sub.ID, err)
		}
		sub.ScoredAt = &t
	}
	sub.Status = types.SubmissionStatus(status)
	return sub, nil
}
