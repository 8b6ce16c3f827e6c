package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a task
type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskCompleted TaskStatus = "completed"
)

// SubmissionStatus is the moderation state of a submission
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

// MaxProofImages is the most proof images a submission may carry
const MaxProofImages = 3

var (
	// ErrInvalidTransition is returned when a status change is not allowed
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidRecord is returned when a task or submission fails validation
	ErrInvalidRecord = errors.New("invalid record")
)

// ImageFormat is the decoded format an accepted upload extension maps to
type ImageFormat string

const (
	FormatUnknown ImageFormat = "unknown"
	FormatJPEG    ImageFormat = "jpeg"
	FormatPNG     ImageFormat = "png"
	FormatGIF     ImageFormat = "gif"
	FormatWEBP    ImageFormat = "webp"
)

// imageFormats is the one list of upload extensions accepted anywhere in the system
var imageFormats = map[string]ImageFormat{
	".png":  FormatPNG,
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".gif":  FormatGIF,
	".webp": FormatWEBP,
}

// FormatOf returns the format implied by a filename's extension
func FormatOf(name string) ImageFormat {
	if format, ok := imageFormats[strings.ToLower(filepath.Ext(name))]; ok {
		return format
	}
	return FormatUnknown
}

// IsAllowedImage reports whether a filename has an accepted image extension
func IsAllowedImage(name string) bool {
	return FormatOf(name) != FormatUnknown
}

// AllowedExtensions returns the accepted extensions in sorted order
func AllowedExtensions() []string {
	exts := make([]string, 0, len(imageFormats))
	for ext := range imageFormats {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Task is a unit of requested work with a reference image
type Task struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	ReferenceImage string     `json:"reference_image"`
	CreatedAt      time.Time  `json:"created_at"`
	Status         TaskStatus `json:"status"`
}

// Validate checks that every required field is present and well formed
func (t Task) Validate() error {
	switch {
	case strings.TrimSpace(t.ID) == "":
		return fmt.Errorf("%w: task id is empty", ErrInvalidRecord)
	case strings.TrimSpace(t.Title) == "":
		return fmt.Errorf("%w: task %s has no title", ErrInvalidRecord, t.ID)
	case strings.TrimSpace(t.Description) == "":
		return fmt.Errorf("%w: task %s has no description", ErrInvalidRecord, t.ID)
	case t.ReferenceImage != "" && !IsAllowedImage(t.ReferenceImage):
		return fmt.Errorf("%w: task %s reference image %q has unsupported format", ErrInvalidRecord, t.ID, t.ReferenceImage)
	case t.CreatedAt.IsZero():
		return fmt.Errorf("%w: task %s has no creation time", ErrInvalidRecord, t.ID)
	}
	if t.Status != TaskActive && t.Status != TaskCompleted {
		return fmt.Errorf("%w: task %s has unknown status %q", ErrInvalidRecord, t.ID, t.Status)
	}
	return nil
}

// CanTransition reports whether a task may move to the given status.
// The only allowed move is active -> completed.
func (t Task) CanTransition(to TaskStatus) bool {
	return t.Status == TaskActive && to == TaskCompleted
}

// Submission is a participant's proof of completion for a task
type Submission struct {
	ID          string           `json:"id"`
	TaskID      string           `json:"task_id"`
	UserName    string           `json:"user_name"`
	UserEmail   string           `json:"user_email"`
	UserPhone   string           `json:"user_phone"`
	ProofImages []string         `json:"proof_images"`
	SubmittedAt time.Time        `json:"submitted_at"`
	Status      SubmissionStatus `json:"status"`
	Notes       string           `json:"notes"`
	ScoredAt    *time.Time       `json:"scored_at,omitempty"`
}

// Validate checks that every required field is present and well formed
func (s Submission) Validate() error {
	switch {
	case strings.TrimSpace(s.ID) == "":
		return fmt.Errorf("%w: submission id is empty", ErrInvalidRecord)
	case strings.TrimSpace(s.TaskID) == "":
		return fmt.Errorf("%w: submission %s has no task", ErrInvalidRecord, s.ID)
	case strings.TrimSpace(s.UserName) == "":
		return fmt.Errorf("%w: submission %s has no submitter name", ErrInvalidRecord, s.ID)
	case strings.TrimSpace(s.UserEmail) == "":
		return fmt.Errorf("%w: submission %s has no submitter email", ErrInvalidRecord, s.ID)
	case len(s.ProofImages) == 0 || len(s.ProofImages) > MaxProofImages:
		return fmt.Errorf("%w: submission %s has %d proof images, want 1-%d",
			ErrInvalidRecord, s.ID, len(s.ProofImages), MaxProofImages)
	case s.SubmittedAt.IsZero():
		return fmt.Errorf("%w: submission %s has no submission time", ErrInvalidRecord, s.ID)
	}

	for _, img := range s.ProofImages {
		if !IsAllowedImage(img) {
			return fmt.Errorf("%w: submission %s proof image %q has unsupported format", ErrInvalidRecord, s.ID, img)
		}
	}

	switch s.Status {
	case SubmissionPending, SubmissionApproved, SubmissionRejected:
		return nil
	default:
		return fmt.Errorf("%w: submission %s has unknown status %q", ErrInvalidRecord, s.ID, s.Status)
	}
}

// PrimaryProof returns the proof image used for similarity scoring
func (s Submission) PrimaryProof() string {
	if len(s.ProofImages) == 0 {
		return ""
	}
	return s.ProofImages[0]
}

// CanTransition reports whether a submission may move to the given status.
// Only pending submissions can change, and never back to pending.
func (s Submission) CanTransition(to SubmissionStatus) bool {
	if s.Status != SubmissionPending {
		return false
	}
	return to == SubmissionApproved || to == SubmissionRejected
}

// Stats holds the dashboard counters
type Stats struct {
	TotalTasks         int `json:"total_tasks"`
	ActiveTasks        int `json:"active_tasks"`
	CompletedTasks     int `json:"completed_tasks"`
	TotalSubmissions   int `json:"total_submissions"`
	PendingSubmissions int `json:"pending_submissions"`
}
