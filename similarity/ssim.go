package similarity

import "fmt"

const (
	ssimWindow = 7
	ssimK1     = 0.01
	ssimK2     = 0.03
	ssimRange  = 255.0
)

// ComputeSSIM returns the mean structural similarity of two 8-bit grayscale
// buffers of identical size. Each local window is a uniform 7x7 block with
// sample covariance, and only windows fully inside the image are averaged.
func ComputeSSIM(a, b []byte, width, height int) (float64, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if len(a) != width*height || len(b) != width*height {
		return 0, fmt.Errorf("buffer size mismatch: %d and %d bytes for %dx%d", len(a), len(b), width, height)
	}

	win := ssimWindow
	if width < win || height < win {
		win = min(width, height)
		if win%2 == 0 {
			win--
		}
	}
	if win < 2 {
		return 0, fmt.Errorf("image %dx%d too small for structural comparison", width, height)
	}

	sa := newIntegral(width, height)
	sb := newIntegral(width, height)
	saa := newIntegral(width, height)
	sbb := newIntegral(width, height)
	sab := newIntegral(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			va := float64(a[y*width+x])
			vb := float64(b[y*width+x])
			sa.add(x, y, va)
			sb.add(x, y, vb)
			saa.add(x, y, va*va)
			sbb.add(x, y, vb*vb)
			sab.add(x, y, va*vb)
		}
	}

	n := float64(win * win)
	covNorm := n / (n - 1)
	c1 := (ssimK1 * ssimRange) * (ssimK1 * ssimRange)
	c2 := (ssimK2 * ssimRange) * (ssimK2 * ssimRange)

	var total float64
	var windows int
	for y := 0; y+win <= height; y++ {
		for x := 0; x+win <= width; x++ {
			muA := sa.sum(x, y, win) / n
			muB := sb.sum(x, y, win) / n
			varA := covNorm * (saa.sum(x, y, win)/n - muA*muA)
			varB := covNorm * (sbb.sum(x, y, win)/n - muB*muB)
			cov := covNorm * (sab.sum(x, y, win)/n - muA*muB)

			num := (2*muA*muB + c1) * (2*cov + c2)
			den := (muA*muA + muB*muB + c1) * (varA + varB + c2)
			total += num / den
			windows++
		}
	}
	return total / float64(windows), nil
}

// integral is a summed-area table with a zero first row and column
type integral struct {
	w    int
	data []float64
}

func newIntegral(width, height int) *integral {
	return &integral{w: width + 1, data: make([]float64, (width+1)*(height+1))}
}

// add must be called in row-major order
func (s *integral) add(x, y int, v float64) {
	i := (y+1)*s.w + (x + 1)
	s.data[i] = v + s.data[i-1] + s.data[i-s.w] - s.data[i-s.w-1]
}

func (s *integral) sum(x, y, size int) float64 {
	x1, y1 := x+size, y+size
	return s.data[y1*s.w+x1] - s.data[y*s.w+x1] - s.data[y1*s.w+x] + s.data[y*s.w+x]
}
