// Package moderation turns a similarity score into an automated status decision.
package moderation

import (
	"fmt"
	"math"

	"proofcheck/types"
)

// DefaultThreshold is the auto-approval cutoff
const DefaultThreshold = 0.50

// Decision is the outcome of the automated pass
type Decision struct {
	Status types.SubmissionStatus
	Note   string
	Score  float64
	// Scored is false when no similarity could be measured
	Scored bool
}

// Message is the outcome text shown to the submitter
func (d Decision) Message() string {
	switch {
	case d.Status == types.SubmissionApproved:
		return fmt.Sprintf("Your proof was auto-approved with %s similarity.", percent(d.Score))
	case d.Scored:
		return fmt.Sprintf("Your proof was submitted for review (%s similarity).", percent(d.Score))
	default:
		return "Your proof was submitted for review."
	}
}

// Decider applies the auto-approval threshold
type Decider struct {
	threshold float64
}

// NewDecider returns a decider for the given threshold in [0,1]
func NewDecider(threshold float64) (*Decider, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be within [0,1], got %v", threshold)
	}
	return &Decider{threshold: threshold}, nil
}

// Threshold returns the configured cutoff
func (d *Decider) Threshold() float64 {
	return d.threshold
}

// Decide approves when score >= threshold and otherwise leaves the
// submission pending for manual review.
func (d *Decider) Decide(score float64) Decision {
	if score >= d.threshold {
		return Decision{
			Status: types.SubmissionApproved,
			Note:   fmt.Sprintf("auto-approved: %s similarity", percent(score)),
			Score:  score,
			Scored: true,
		}
	}
	return Decision{
		Status: types.SubmissionPending,
		Note: fmt.Sprintf("manual review: %s similarity (auto-approve threshold %s)",
			percent(score), percent(d.threshold)),
		Score:  score,
		Scored: true,
	}
}

// DecideWithDetail is Decide with an audit detail appended to the note
func (d *Decider) DecideWithDetail(score float64, detail string) Decision {
	decision := d.Decide(score)
	if detail != "" {
		decision.Note += " " + detail
	}
	return decision
}

// Unscorable leaves the submission pending and records why no score exists
func (d *Decider) Unscorable(reason string) Decision {
	return Decision{
		Status: types.SubmissionPending,
		Note:   "manual review: similarity not computed: " + reason,
	}
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
