package similarity

import (
	"fmt"
	"math"
	"strings"

	"proofcheck/config"
	"proofcheck/types"
)

// MetricResult is one extractor's output inside a report
type MetricResult struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
	Err    error   `json:"-"`
}

// Failed reports whether the metric produced no usable value
func (r MetricResult) Failed() bool {
	return r.Err != nil
}

// Report is the audit record of one scoring pass. The scorer fills the
// metrics and score; intake records the resulting decision once.
type Report struct {
	Metrics  []MetricResult         `json:"metrics"`
	Score    float64                `json:"score"`
	Decision types.SubmissionStatus `json:"decision,omitempty"`
}

// Metric returns the result for the named metric
func (r Report) Metric(name string) (MetricResult, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return MetricResult{}, false
}

// Breakdown renders the per-metric values, e.g.
// "structural=0.982 histogram=0.951 hash=1.000 features=0.800"
func (r Report) Breakdown() string {
	parts := make([]string, 0, len(r.Metrics))
	for _, m := range r.Metrics {
		parts = append(parts, fmt.Sprintf("%s=%.3f", m.Name, m.Value))
	}
	return strings.Join(parts, " ")
}

// Failures lists the cause of every failed metric
func (r Report) Failures() []string {
	var causes []string
	for _, m := range r.Metrics {
		if m.Err != nil {
			causes = append(causes, fmt.Sprintf("%s: %v", m.Name, m.Err))
		}
	}
	return causes
}

// Summary is the breakdown plus failure causes, as stored in moderation notes
func (r Report) Summary() string {
	summary := "[" + r.Breakdown() + "]"
	if failures := r.Failures(); len(failures) > 0 {
		summary += " failed: " + strings.Join(failures, "; ")
	}
	return summary
}

// Aggregator blends metric values with fixed weights
type Aggregator struct {
	weights config.Weights
}

// NewAggregator returns an aggregator using the given weights
func NewAggregator(weights config.Weights) (*Aggregator, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{weights: weights}, nil
}

// Weight returns the configured weight for a metric name, 0 if unknown
func (a *Aggregator) Weight(name string) float64 {
	switch name {
	case MetricStructural:
		return a.weights.Structural
	case MetricHistogram:
		return a.weights.Histogram
	case MetricHash:
		return a.weights.Hash
	case MetricFeatures:
		return a.weights.Features
	}
	return 0
}

// Aggregate computes the weighted sum, clamped to [0,1]. A failed metric
// contributes 0 and the remaining weights are not renormalized.
func (a *Aggregator) Aggregate(results []MetricResult) Report {
	report := Report{Metrics: make([]MetricResult, 0, len(results))}

	var score float64
	for _, r := range results {
		r.Weight = a.Weight(r.Name)
		if r.Err == nil && (math.IsNaN(r.Value) || math.IsInf(r.Value, 0)) {
			r.Err = fmt.Errorf("metric produced non-finite value")
		}
		if r.Err != nil {
			r.Value = 0
		}
		score += r.Weight * r.Value
		report.Metrics = append(report.Metrics, r)
	}

	report.Score = clamp01(score)
	return report
}
