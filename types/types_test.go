package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSubmission() Submission {
	return Submission{
		ID:          "a1b2c3d4",
		TaskID:      "t1t2t3t4",
		UserName:    "Jo",
		UserEmail:   "jo@example.com",
		ProofImages: []string{"proof_1.jpg"},
		SubmittedAt: time.Now(),
		Status:      SubmissionPending,
	}
}

func TestSubmissionValidate(t *testing.T) {
	require.NoError(t, validSubmission().Validate())

	tooMany := validSubmission()
	tooMany.ProofImages = []string{"a.png", "b.png", "c.png", "d.png"}
	assert.ErrorIs(t, tooMany.Validate(), ErrInvalidRecord)

	none := validSubmission()
	none.ProofImages = nil
	assert.ErrorIs(t, none.Validate(), ErrInvalidRecord)

	badExt := validSubmission()
	badExt.ProofImages = []string{"proof.bmp"}
	assert.ErrorIs(t, badExt.Validate(), ErrInvalidRecord)

	badStatus := validSubmission()
	badStatus.Status = "done"
	assert.ErrorIs(t, badStatus.Validate(), ErrInvalidRecord)

	noEmail := validSubmission()
	noEmail.UserEmail = " "
	assert.ErrorIs(t, noEmail.Validate(), ErrInvalidRecord)
}

func TestSubmissionTransitions(t *testing.T) {
	s := validSubmission()
	assert.True(t, s.CanTransition(SubmissionApproved))
	assert.True(t, s.CanTransition(SubmissionRejected))
	assert.False(t, s.CanTransition(SubmissionPending))

	for _, terminal := range []SubmissionStatus{SubmissionApproved, SubmissionRejected} {
		s.Status = terminal
		assert.False(t, s.CanTransition(SubmissionPending), "%s -> pending", terminal)
		assert.False(t, s.CanTransition(SubmissionApproved), "%s -> approved", terminal)
		assert.False(t, s.CanTransition(SubmissionRejected), "%s -> rejected", terminal)
	}
}

func TestTaskValidateAndTransition(t *testing.T) {
	task := Task{
		ID:             "t1t2t3t4",
		Title:          "Plant a tree",
		Description:    "Photo of the planted tree",
		ReferenceImage: "ref.webp",
		CreatedAt:      time.Now(),
		Status:         TaskActive,
	}
	require.NoError(t, task.Validate())
	assert.True(t, task.CanTransition(TaskCompleted))

	task.Status = TaskCompleted
	assert.False(t, task.CanTransition(TaskActive))
	assert.False(t, task.CanTransition(TaskCompleted))

	task.Title = ""
	assert.ErrorIs(t, task.Validate(), ErrInvalidRecord)
}

func TestIsAllowedImage(t *testing.T) {
	for _, name := range []string{"a.png", "b.JPG", "c.jpeg", "d.gif", "e.webp"} {
		assert.True(t, IsAllowedImage(name), name)
	}
	for _, name := range []string{"a.bmp", "b.tiff", "noext", "c.cr2"} {
		assert.False(t, IsAllowedImage(name), name)
	}
	assert.Equal(t, FormatJPEG, FormatOf("x.JPEG"))
	assert.Equal(t, FormatUnknown, FormatOf("x.tiff"))
	assert.Equal(t, []string{".gif", ".jpeg", ".jpg", ".png", ".webp"}, AllowedExtensions())
}

func TestPrimaryProof(t *testing.T) {
	s := validSubmission()
	s.ProofImages = []string{"first.png", "second.png"}
	assert.Equal(t, "first.png", s.PrimaryProof())
	assert.Equal(t, "", Submission{}.PrimaryProof())
}
