package moderation

import (
	"testing"

	"proofcheck/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideThreshold(t *testing.T) {
	d, err := NewDecider(DefaultThreshold)
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, d.Threshold())

	approved := d.Decide(0.932)
	assert.Equal(t, types.SubmissionApproved, approved.Status)
	assert.Equal(t, "auto-approved: 93.2% similarity", approved.Note)

	atThreshold := d.Decide(0.50)
	assert.Equal(t, types.SubmissionApproved, atThreshold.Status)

	pending := d.Decide(0.41)
	assert.Equal(t, types.SubmissionPending, pending.Status)
	assert.Contains(t, pending.Note, "41.0% similarity")
}

func TestDecideIsMonotonic(t *testing.T) {
	for _, threshold := range []float64{0, 0.25, 0.5, 0.73, 1} {
		d, err := NewDecider(threshold)
		require.NoError(t, err)
		for i := 0; i <= 100; i++ {
			score := float64(i) / 100
			got := d.Decide(score).Status
			if score < threshold {
				assert.Equal(t, types.SubmissionPending, got, "threshold %v score %v", threshold, score)
			} else {
				assert.Equal(t, types.SubmissionApproved, got, "threshold %v score %v", threshold, score)
			}
		}
	}
}

func TestDecideWithDetail(t *testing.T) {
	d, err := NewDecider(0.6)
	require.NoError(t, err)

	got := d.DecideWithDetail(0.55, "[structural=0.500]")
	assert.Equal(t, types.SubmissionPending, got.Status)
	assert.Equal(t, "manual review: 55.0% similarity (auto-approve threshold 60.0%) [structural=0.500]", got.Note)
}

func TestUnscorableNeverApproves(t *testing.T) {
	d, err := NewDecider(0)
	require.NoError(t, err)

	got := d.Unscorable("task has no reference image")
	assert.Equal(t, types.SubmissionPending, got.Status)
	assert.False(t, got.Scored)
	assert.Contains(t, got.Note, "task has no reference image")
	assert.Equal(t, "Your proof was submitted for review.", got.Message())
}

func TestMessages(t *testing.T) {
	d, err := NewDecider(0.5)
	require.NoError(t, err)
	assert.Equal(t, "Your proof was auto-approved with 91.0% similarity.", d.Decide(0.91).Message())
	assert.Equal(t, "Your proof was submitted for review (12.5% similarity).", d.Decide(0.125).Message())
}

func TestNewDeciderRejectsOutOfRange(t *testing.T) {
	_, err := NewDecider(1.01)
	assert.Error(t, err)
	_, err = NewDecider(-0.1)
	assert.Error(t, err)
}
