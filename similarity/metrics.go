package similarity

import (
	"fmt"
	"image"
	"math"

	"proofcheck/imageprocessor"

	"gocv.io/x/gocv"
)

// Metric names, also used as weight keys
const (
	MetricStructural = "structural"
	MetricHistogram  = "histogram"
	MetricHash       = "hash"
	MetricFeatures   = "features"
)

// Metric compares a candidate image against a reference image.
// Compare returns a value in [0,1] or an error; callers treat an error as 0.
type Metric interface {
	Name() string
	Compare(referencePath, candidatePath string) (float64, error)
}

// DefaultMetrics returns the four extractors used for proof verification
func DefaultMetrics() []Metric {
	return []Metric{
		&StructuralMetric{},
		&HistogramMetric{Bins: 8},
		&HashMetric{Size: 16},
		&FeatureMetric{MaxFeatures: 500, MaxDistance: 50, SaturationMatches: 20},
	}
}

func loadPair(referencePath, candidatePath string, gray bool) (gocv.Mat, gocv.Mat, error) {
	load := imageprocessor.LoadImage
	if gray {
		load = imageprocessor.LoadGrayImage
	}

	ref, err := load(referencePath)
	if err != nil {
		return gocv.Mat{}, gocv.Mat{}, fmt.Errorf("reference: %w", err)
	}
	cand, err := load(candidatePath)
	if err != nil {
		ref.Close()
		return gocv.Mat{}, gocv.Mat{}, fmt.Errorf("candidate: %w", err)
	}
	return ref, cand, nil
}

// StructuralMetric is the windowed SSIM of the grayscale images, with the
// candidate resized to the reference dimensions.
type StructuralMetric struct{}

func (m *StructuralMetric) Name() string { return MetricStructural }

func (m *StructuralMetric) Compare(referencePath, candidatePath string) (float64, error) {
	ref, cand, err := loadPair(referencePath, candidatePath, true)
	if err != nil {
		return 0, err
	}
	defer ref.Close()
	defer cand.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	if err := gocv.Resize(cand, &resized, image.Point{X: ref.Cols(), Y: ref.Rows()}, 0, 0, gocv.InterpolationArea); err != nil {
		return 0, fmt.Errorf("resize candidate: %w", err)
	}

	score, err := ComputeSSIM(ref.ToBytes(), resized.ToBytes(), ref.Cols(), ref.Rows())
	if err != nil {
		return 0, err
	}
	return clamp01(score), nil
}

// HistogramMetric is the correlation of coarse 3-D BGR color histograms
type HistogramMetric struct {
	Bins int
}

func (m *HistogramMetric) Name() string { return MetricHistogram }

func (m *HistogramMetric) Compare(referencePath, candidatePath string) (float64, error) {
	ref, cand, err := loadPair(referencePath, candidatePath, false)
	if err != nil {
		return 0, err
	}
	defer ref.Close()
	defer cand.Close()

	refHist, err := m.histogram(ref)
	if err != nil {
		return 0, fmt.Errorf("reference histogram: %w", err)
	}
	defer refHist.Close()
	candHist, err := m.histogram(cand)
	if err != nil {
		return 0, fmt.Errorf("candidate histogram: %w", err)
	}
	defer candHist.Close()

	if refHist.Empty() || candHist.Empty() {
		return 0, fmt.Errorf("histogram computation failed")
	}

	corr := float64(gocv.CompareHist(refHist, candHist, gocv.HistCmpCorrel))
	if math.IsNaN(corr) || math.IsInf(corr, 0) {
		// Both histograms constant; correlation is undefined
		return 0, nil
	}
	return clamp01(corr), nil
}

func (m *HistogramMetric) histogram(img gocv.Mat) (gocv.Mat, error) {
	hist := gocv.NewMat()
	mask := gocv.NewMat()
	defer mask.Close()

	bins := m.Bins
	if bins <= 0 {
		bins = 8
	}
	err := gocv.CalcHist([]gocv.Mat{img}, []int{0, 1, 2}, mask, &hist,
		[]int{bins, bins, bins}, []float64{0, 256, 0, 256, 0, 256}, false)
	if err != nil {
		hist.Close()
		return gocv.NewMat(), err
	}
	return hist, nil
}

// HashMetric compares average-hash fingerprints: (bits - hamming) / bits
type HashMetric struct {
	Size int
}

func (m *HashMetric) Name() string { return MetricHash }

func (m *HashMetric) Compare(referencePath, candidatePath string) (float64, error) {
	ref, cand, err := loadPair(referencePath, candidatePath, false)
	if err != nil {
		return 0, err
	}
	defer ref.Close()
	defer cand.Close()

	refHash, err := imageprocessor.ComputeAverageHash(ref, m.Size)
	if err != nil {
		return 0, fmt.Errorf("reference hash: %w", err)
	}
	candHash, err := imageprocessor.ComputeAverageHash(cand, m.Size)
	if err != nil {
		return 0, fmt.Errorf("candidate hash: %w", err)
	}

	distance, err := imageprocessor.HammingDistance(refHash, candHash)
	if err != nil {
		return 0, err
	}
	return math.Max(0, float64(refHash.Bits-distance)/float64(refHash.Bits)), nil
}

// FeatureMetric counts cross-checked ORB descriptor matches closer than
// MaxDistance and saturates at SaturationMatches.
type FeatureMetric struct {
	MaxFeatures       int
	MaxDistance       float64
	SaturationMatches int
}

func (m *FeatureMetric) Name() string { return MetricFeatures }

func (m *FeatureMetric) Compare(referencePath, candidatePath string) (float64, error) {
	if m.SaturationMatches <= 0 {
		return 0, fmt.Errorf("invalid saturation match count %d", m.SaturationMatches)
	}
	ref, cand, err := loadPair(referencePath, candidatePath, true)
	if err != nil {
		return 0, err
	}
	defer ref.Close()
	defer cand.Close()

	good := m.goodMatches(ref, cand)
	return math.Min(float64(good)/float64(m.SaturationMatches), 1.0), nil
}

func (m *FeatureMetric) goodMatches(ref, cand gocv.Mat) int {
	orb := gocv.NewORBWithParams(m.MaxFeatures, 1.2, 8, 31, 0, 2, gocv.ORBScoreTypeHarris, 31, 20)
	defer orb.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	_, refDesc := orb.DetectAndCompute(ref, mask)
	defer refDesc.Close()
	_, candDesc := orb.DetectAndCompute(cand, mask)
	defer candDesc.Close()

	// No descriptors on either side is a zero score, not a failure
	if refDesc.Empty() || candDesc.Empty() {
		return 0
	}

	matcher := gocv.NewBFMatcherWithParams(gocv.NormHamming, true)
	defer matcher.Close()

	good := 0
	for _, candidates := range matcher.KnnMatch(refDesc, candDesc, 1) {
		if len(candidates) > 0 && candidates[0].Distance < m.MaxDistance {
			good++
		}
	}
	return good
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
