// Package similarity scores how closely a proof image matches a task's
// reference image.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"proofcheck/imageprocessor"
	"proofcheck/logging"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrMissingImage is returned when the reference or candidate file does not exist
	ErrMissingImage = errors.New("image not found")
	// ErrUnsupportedImage is returned when no loader accepts a file's format
	ErrUnsupportedImage = errors.New("unsupported image format")
)

// IsUnscorable reports whether a Score error means the pair can never be
// scored, as opposed to a transient failure worth retrying.
func IsUnscorable(err error) bool {
	return errors.Is(err, ErrMissingImage) || errors.Is(err, ErrUnsupportedImage)
}

// Scorer runs preprocessing, the metric extractors and the aggregator
type Scorer struct {
	preprocessor *imageprocessor.Preprocessor
	metrics      []Metric
	aggregator   *Aggregator
	semaphore    chan struct{}
}

// NewScorer creates a scorer. maxConcurrent bounds how many scoring passes
// may run OpenCV work at once.
func NewScorer(pre *imageprocessor.Preprocessor, agg *Aggregator, metrics []Metric, maxConcurrent int) *Scorer {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if len(metrics) == 0 {
		metrics = DefaultMetrics()
	}
	return &Scorer{
		preprocessor: pre,
		metrics:      metrics,
		aggregator:   agg,
		semaphore:    make(chan struct{}, maxConcurrent),
	}
}

// Score compares candidatePath against referencePath. Unreadable images and
// failing metrics lower the score instead of failing; only a missing file, a
// format no loader accepts or a cancelled context returns an error.
func (s *Scorer) Score(ctx context.Context, referencePath, candidatePath string) (Report, error) {
	for _, p := range []string{referencePath, candidatePath} {
		if _, err := os.Stat(p); err != nil {
			return Report{}, fmt.Errorf("%w: %s: %v", ErrMissingImage, p, err)
		}
		if !imageprocessor.CanLoad(p) {
			return Report{}, fmt.Errorf("%w: %s", ErrUnsupportedImage, p)
		}
	}

	// select picks at random when a slot is free, so check cancellation first
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	select {
	case s.semaphore <- struct{}{}:
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
	defer func() { <-s.semaphore }()

	ref := s.preprocessor.Preprocess(referencePath)
	defer ref.Close()
	cand := s.preprocessor.Preprocess(candidatePath)
	defer cand.Close()

	results := make([]MetricResult, len(s.metrics))
	var g errgroup.Group
	for i, m := range s.metrics {
		g.Go(func() error {
			results[i] = runMetric(m, ref.Path, cand.Path)
			return nil
		})
	}
	g.Wait()

	report := s.aggregator.Aggregate(results)

	l := logging.Logger()
	event := l.Debug().Str("reference", referencePath).Str("candidate", candidatePath)
	for _, r := range report.Metrics {
		event = event.Float64(r.Name, r.Value)
	}
	event.Float64("score", report.Score).Msg("similarity computed")

	for _, cause := range report.Failures() {
		logging.LogWarning("Metric failed comparing %s to %s: %s", candidatePath, referencePath, cause)
	}
	return report, nil
}

// runMetric isolates one extractor so a panic inside OpenCV becomes a
// recorded failure instead of taking the process down.
func runMetric(m Metric, referencePath, candidatePath string) (result MetricResult) {
	result.Name = m.Name()
	defer func() {
		if r := recover(); r != nil {
			logging.LogError("Panic in %s metric: %v\nStack trace: %s", m.Name(), r, string(debug.Stack()))
			result.Value = 0
			result.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	result.Value, result.Err = m.Compare(referencePath, candidatePath)
	return result
}
