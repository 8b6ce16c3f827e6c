// Package lifecycle drives tasks and submissions through creation, automated
// intake, manual review, completion and cascade deletion.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"proofcheck/database"
	"proofcheck/logging"
	"proofcheck/moderation"
	"proofcheck/similarity"
	"proofcheck/types"
	"proofcheck/uploads"

	"github.com/google/uuid"
)

const idAttempts = 3

// Store is the record store the manager works against
type Store interface {
	CreateTask(ctx context.Context, task types.Task) error
	GetTask(ctx context.Context, id string) (types.Task, error)
	ListTasks(ctx context.Context, status types.TaskStatus) ([]types.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, to types.TaskStatus) error
	CreateSubmission(ctx context.Context, sub types.Submission) error
	GetSubmission(ctx context.Context, id string) (types.Submission, error)
	ListSubmissions(ctx context.Context, taskID string) ([]types.Submission, error)
	ListUnscored(ctx context.Context) ([]types.Submission, error)
	UpdateSubmissionStatus(ctx context.Context, id string, status types.SubmissionStatus, note string) (string, error)
	RecordScore(ctx context.Context, id string, status types.SubmissionStatus, note string, at time.Time) error
	DeleteTaskAndChildren(ctx context.Context, taskID string, remover types.FileRemover) error
	Stats(ctx context.Context) (types.Stats, error)
}

// Files is the image storage the manager writes uploads to
type Files interface {
	types.FileRemover
	Save(bucket, prefix string, files []uploads.Upload) ([]string, error)
	Remove(bucket string, names ...string)
	Path(bucket, name string) string
}

// Scorer compares a reference image with a candidate
type Scorer interface {
	Score(ctx context.Context, referencePath, candidatePath string) (similarity.Report, error)
}

// NewTask is the input for creating a task. Image may be left empty.
type NewTask struct {
	Title       string
	Description string
	Image       uploads.Upload
}

// NewSubmission is the input for submitting proof of a task
type NewSubmission struct {
	TaskID    string
	UserName  string
	UserEmail string
	UserPhone string
	Images    []uploads.Upload
}

// Outcome is what a submitter gets back from intake
type Outcome struct {
	SubmissionID string
	TaskID       string
	Status       types.SubmissionStatus
	Score        float64
	Scored       bool
	Message      string
	Report       similarity.Report
}

// Manager coordinates the store, file storage and scoring
type Manager struct {
	store   Store
	files   Files
	scorer  Scorer
	decider *moderation.Decider
	workers int

	now   func() time.Time
	newID func() string
}

// NewManager wires a manager. workers bounds ScorePending concurrency.
func NewManager(store Store, files Files, scorer Scorer, decider *moderation.Decider, workers int) *Manager {
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		store:   store,
		files:   files,
		scorer:  scorer,
		decider: decider,
		workers: workers,
		now:     time.Now,
		newID:   func() string { return uuid.NewString()[:8] },
	}
}

// CreateTask validates the input, stores the reference image and inserts the
// task. The image is removed again if the insert fails.
func (m *Manager) CreateTask(ctx context.Context, in NewTask) (types.Task, error) {
	task := types.Task{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   m.now(),
		Status:      types.TaskActive,
	}
	hasImage := in.Image.Filename != ""
	if hasImage {
		if err := uploads.Validate([]uploads.Upload{in.Image}, 1, 1); err != nil {
			return types.Task{}, err
		}
		task.ReferenceImage = in.Image.Filename
	}

	id, err := m.freshID(func(id string) error {
		_, err := m.store.GetTask(ctx, id)
		return err
	})
	if err != nil {
		return types.Task{}, err
	}
	task.ID = id
	if err := task.Validate(); err != nil {
		return types.Task{}, err
	}

	var saved []string
	if hasImage {
		saved, err = m.files.Save(uploads.TasksBucket, task.ID, []uploads.Upload{in.Image})
		if err != nil {
			return types.Task{}, err
		}
		task.ReferenceImage = saved[0]
	}

	if err := m.store.CreateTask(ctx, task); err != nil {
		m.files.Remove(uploads.TasksBucket, saved...)
		return types.Task{}, err
	}
	logging.LogInfo("Created task %s (%s)", task.ID, task.Title)
	return task, nil
}

// freshID draws short ids until lookup reports one as unused
func (m *Manager) freshID(lookup func(id string) error) (string, error) {
	for attempt := 0; attempt < idAttempts; attempt++ {
		id := m.newID()
		err := lookup(id)
		if errors.Is(err, database.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: no free id after %d attempts", database.ErrDuplicateID, idAttempts)
}

// Submit stores proof images for a task, records a pending submission and
// runs intake on it. Uploads are validated before anything is written and
// removed again if the record cannot be inserted.
func (m *Manager) Submit(ctx context.Context, in NewSubmission) (Outcome, error) {
	if _, err := m.store.GetTask(ctx, in.TaskID); err != nil {
		return Outcome{}, err
	}
	if err := uploads.Validate(in.Images, 1, types.MaxProofImages); err != nil {
		return Outcome{}, err
	}

	id, err := m.freshID(func(id string) error {
		_, err := m.store.GetSubmission(ctx, id)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}

	sub := types.Submission{
		ID:          id,
		TaskID:      in.TaskID,
		UserName:    strings.TrimSpace(in.UserName),
		UserEmail:   strings.TrimSpace(in.UserEmail),
		UserPhone:   strings.TrimSpace(in.UserPhone),
		SubmittedAt: m.now(),
		Status:      types.SubmissionPending,
	}
	for _, img := range in.Images {
		sub.ProofImages = append(sub.ProofImages, img.Filename)
	}
	if err := sub.Validate(); err != nil {
		return Outcome{}, err
	}

	saved, err := m.files.Save(uploads.SubmissionsBucket, sub.ID, in.Images)
	if err != nil {
		return Outcome{}, err
	}
	sub.ProofImages = saved

	if err := m.store.CreateSubmission(ctx, sub); err != nil {
		m.files.Remove(uploads.SubmissionsBucket, saved...)
		return Outcome{}, err
	}
	logging.LogInfo("Stored submission %s for task %s with %d images", sub.ID, sub.TaskID, len(saved))

	outcome, err := m.Intake(ctx, sub.ID)
	if err != nil {
		// the record stays pending and unscored for ScorePending
		logging.LogError("Intake of submission %s failed: %v", sub.ID, err)
		decision := m.decider.Unscorable(err.Error())
		return Outcome{
			SubmissionID: sub.ID,
			TaskID:       sub.TaskID,
			Status:       decision.Status,
			Message:      decision.Message(),
		}, nil
	}
	return outcome, nil
}

// Intake scores the first proof image against the task reference, decides
// the status and records it. A submission goes through intake at most once.
func (m *Manager) Intake(ctx context.Context, submissionID string) (Outcome, error) {
	sub, err := m.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return Outcome{}, err
	}
	if sub.ScoredAt != nil {
		return Outcome{}, fmt.Errorf("%w: %s", database.ErrAlreadyScored, sub.ID)
	}
	if sub.Status != types.SubmissionPending {
		return Outcome{}, fmt.Errorf("%w: submission %s is already %s", types.ErrInvalidTransition, sub.ID, sub.Status)
	}

	task, err := m.store.GetTask(ctx, sub.TaskID)
	if err != nil {
		return Outcome{}, err
	}

	decision, report, err := m.decide(ctx, task, sub)
	if err != nil {
		return Outcome{}, err
	}
	report.Decision = decision.Status

	if err := m.store.RecordScore(ctx, sub.ID, decision.Status, decision.Note, m.now()); err != nil {
		return Outcome{}, err
	}
	logging.LogSubmissionScored(sub.ID, decision.Score, string(decision.Status))

	return Outcome{
		SubmissionID: sub.ID,
		TaskID:       sub.TaskID,
		Status:       decision.Status,
		Score:        decision.Score,
		Scored:       decision.Scored,
		Message:      decision.Message(),
		Report:       report,
	}, nil
}

func (m *Manager) decide(ctx context.Context, task types.Task, sub types.Submission) (moderation.Decision, similarity.Report, error) {
	if task.ReferenceImage == "" {
		return m.decider.Unscorable("task has no reference image"), similarity.Report{}, nil
	}

	reference := m.files.Path(uploads.TasksBucket, task.ReferenceImage)
	candidate := m.files.Path(uploads.SubmissionsBucket, sub.PrimaryProof())
	report, err := m.scorer.Score(ctx, reference, candidate)
	if similarity.IsUnscorable(err) {
		logging.LogWarning("Submission %s not scored: %v", sub.ID, err)
		return m.decider.Unscorable(err.Error()), similarity.Report{}, nil
	}
	if err != nil {
		return moderation.Decision{}, similarity.Report{}, fmt.Errorf("scoring submission %s: %w", sub.ID, err)
	}
	return m.decider.DecideWithDetail(report.Score, report.Summary()), report, nil
}

// Review applies a manual decision to a pending submission and returns its
// task id. Similarity is not recomputed.
func (m *Manager) Review(ctx context.Context, submissionID string, status types.SubmissionStatus, note string) (string, error) {
	if status != types.SubmissionApproved && status != types.SubmissionRejected {
		return "", fmt.Errorf("%w: review must approve or reject, got %q", types.ErrInvalidTransition, status)
	}
	taskID, err := m.store.UpdateSubmissionStatus(ctx, submissionID, status, strings.TrimSpace(note))
	if err != nil {
		return "", err
	}
	logging.LogInfo("Submission %s %s by review", submissionID, status)
	return taskID, nil
}

// CompleteTask closes a task. Its pending submissions are left as they are.
func (m *Manager) CompleteTask(ctx context.Context, taskID string) error {
	if err := m.store.UpdateTaskStatus(ctx, taskID, types.TaskCompleted); err != nil {
		return err
	}
	logging.LogInfo("Task %s completed", taskID)
	return nil
}

// DeleteTask removes a task with all of its submissions and images
func (m *Manager) DeleteTask(ctx context.Context, taskID string) error {
	return m.store.DeleteTaskAndChildren(ctx, taskID, m.files)
}

// GetTask returns one task
func (m *Manager) GetTask(ctx context.Context, taskID string) (types.Task, error) {
	return m.store.GetTask(ctx, taskID)
}

// ListTasks returns tasks, optionally filtered by status
func (m *Manager) ListTasks(ctx context.Context, status types.TaskStatus) ([]types.Task, error) {
	return m.store.ListTasks(ctx, status)
}

// ListSubmissions returns the submissions of one task, or of all tasks for ""
func (m *Manager) ListSubmissions(ctx context.Context, taskID string) ([]types.Submission, error) {
	return m.store.ListSubmissions(ctx, taskID)
}

// Stats returns the dashboard counters
func (m *Manager) Stats(ctx context.Context) (types.Stats, error) {
	return m.store.Stats(ctx)
}
