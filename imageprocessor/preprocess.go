package imageprocessor

import (
	"fmt"
	"image"
	"os"
	"runtime/debug"

	"proofcheck/logging"

	"gocv.io/x/gocv"
)

// NormalizedImage is the result of preprocessing. Path is either a temporary
// normalized copy or, when preprocessing failed, the original file.
type NormalizedImage struct {
	Path     string
	Source   string
	Fallback bool
	temp     string
}

// Close removes the temporary file, if any. Safe to call more than once.
func (n *NormalizedImage) Close() {
	if n == nil || n.temp == "" {
		return
	}
	if err := os.Remove(n.temp); err != nil && !os.IsNotExist(err) {
		logging.LogWarning("Failed to remove normalized image %s: %v", n.temp, err)
	}
	n.temp = ""
}

// Preprocessor converts raw photos into a canonical comparable form
type Preprocessor struct {
	Size            int
	TempDir         string
	DenoiseDiameter int
	SigmaColor      float64
	SigmaSpace      float64
	ClipLimit       float64
	TileGrid        int
}

// NewPreprocessor returns a preprocessor producing size x size images.
// An empty tempDir means os.TempDir().
func NewPreprocessor(size int, tempDir string) *Preprocessor {
	return &Preprocessor{
		Size:            size,
		TempDir:         tempDir,
		DenoiseDiameter: 9,
		SigmaColor:      75,
		SigmaSpace:      75,
		ClipLimit:       2.0,
		TileGrid:        8,
	}
}

// Preprocess resizes, denoises and contrast-enhances the image at path and
// writes the result to a temporary PNG. It never fails: on any error the
// original path is returned and the caller compares un-normalized input.
func (p *Preprocessor) Preprocess(path string) (result *NormalizedImage) {
	fallback := &NormalizedImage{Path: path, Source: path, Fallback: true}

	defer func() {
		if r := recover(); r != nil {
			logging.LogError("Panic during preprocessing of %s: %v\nStack trace: %s", path, r, string(debug.Stack()))
			if result != nil {
				result.Close()
			}
			result = fallback
		}
	}()

	out, err := p.normalize(path)
	if err != nil {
		logging.LogWarning("Preprocessing failed for %s, using original: %v", path, err)
		return fallback
	}
	defer out.Close()

	tmp, err := os.CreateTemp(p.TempDir, "normalized-*.png")
	if err != nil {
		logging.LogWarning("Cannot create temp file for %s, using original: %v", path, err)
		return fallback
	}
	name := tmp.Name()
	tmp.Close()

	if ok := gocv.IMWrite(name, out); !ok {
		os.Remove(name)
		logging.LogWarning("Cannot write normalized image for %s, using original", path)
		return fallback
	}

	logging.DebugLog("Normalized %s -> %s (%dx%d)", path, name, p.Size, p.Size)
	return &NormalizedImage{Path: name, Source: path, temp: name}
}

// normalize runs resize -> bilateral filter -> CLAHE on the Lab lightness channel
func (p *Preprocessor) normalize(path string) (gocv.Mat, error) {
	if p.Size <= 0 {
		return gocv.NewMat(), fmt.Errorf("invalid canonical size %d", p.Size)
	}

	img, err := LoadImage(path)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer img.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	if err := gocv.Resize(img, &resized, image.Point{X: p.Size, Y: p.Size}, 0, 0, gocv.InterpolationArea); err != nil {
		return gocv.NewMat(), fmt.Errorf("resize: %w", err)
	}

	denoised := gocv.NewMat()
	defer denoised.Close()
	if err := gocv.BilateralFilter(resized, &denoised, p.DenoiseDiameter, p.SigmaColor, p.SigmaSpace); err != nil {
		return gocv.NewMat(), fmt.Errorf("bilateral filter: %w", err)
	}

	lab := gocv.NewMat()
	defer lab.Close()
	if err := gocv.CvtColor(denoised, &lab, gocv.ColorBGRToLab); err != nil {
		return gocv.NewMat(), fmt.Errorf("convert to Lab: %w", err)
	}

	channels := gocv.Split(lab)
	defer func() {
		for _, c := range channels {
			c.Close()
		}
	}()
	if len(channels) != 3 {
		return gocv.NewMat(), fmt.Errorf("expected 3 Lab channels, got %d", len(channels))
	}

	clahe := gocv.NewCLAHEWithParams(p.ClipLimit, image.Point{X: p.TileGrid, Y: p.TileGrid})
	defer clahe.Close()

	lightness := gocv.NewMat()
	if err := clahe.Apply(channels[0], &lightness); err != nil {
		lightness.Close()
		return gocv.NewMat(), fmt.Errorf("clahe: %w", err)
	}
	channels[0].Close()
	channels[0] = lightness

	merged := gocv.NewMat()
	defer merged.Close()
	if err := gocv.Merge(channels, &merged); err != nil {
		return gocv.NewMat(), fmt.Errorf("merge Lab channels: %w", err)
	}

	out := gocv.NewMat()
	if err := gocv.CvtColor(merged, &out, gocv.ColorLabToBGR); err != nil {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("convert to BGR: %w", err)
	}
	if out.Empty() {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("normalization produced an empty image")
	}
	return out, nil
}
