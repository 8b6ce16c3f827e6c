package imageprocessor

import (
	"encoding/hex"
	"fmt"
	"image"
	"math/bits"

	"gocv.io/x/gocv"
)

// AverageHash is a packed bit fingerprint, most significant bit first
type AverageHash struct {
	Bits  int
	bytes []byte
}

// String returns the hash as hex
func (h AverageHash) String() string {
	return hex.EncodeToString(h.bytes)
}

// ComputeAverageHash reduces the image to size x size grayscale and sets one bit
// per pixel that is at or above the mean. A 16x16 reduction gives 256 bits.
func ComputeAverageHash(img gocv.Mat, size int) (AverageHash, error) {
	if img.Empty() {
		return AverageHash{}, fmt.Errorf("cannot compute hash for empty image")
	}
	if size <= 0 {
		return AverageHash{}, fmt.Errorf("invalid hash size %d", size)
	}

	// Convert to grayscale if not already
	gray := gocv.NewMat()
	defer gray.Close()

	if img.Channels() > 1 {
		if err := gocv.CvtColor(img, &gray, gocv.ColorBGRToGray); err != nil {
			return AverageHash{}, fmt.Errorf("grayscale conversion: %w", err)
		}
	} else {
		img.CopyTo(&gray)
	}

	resized := gocv.NewMat()
	defer resized.Close()

	if err := gocv.Resize(gray, &resized, image.Point{X: size, Y: size}, 0, 0, gocv.InterpolationArea); err != nil {
		return AverageHash{}, fmt.Errorf("reduce to %dx%d: %w", size, size, err)
	}

	pixels := resized.ToBytes()
	if len(pixels) != size*size {
		return AverageHash{}, fmt.Errorf("unexpected reduced image size %d, want %d", len(pixels), size*size)
	}

	// Calculate mean pixel value
	var sum uint64
	for _, p := range pixels {
		sum += uint64(p)
	}
	threshold := float64(sum) / float64(len(pixels))

	hashBytes := make([]byte, (len(pixels)+7)/8)
	for i, p := range pixels {
		if float64(p) >= threshold {
			hashBytes[i/8] |= 1 << (7 - uint(i%8))
		}
	}

	return AverageHash{Bits: len(pixels), bytes: hashBytes}, nil
}

// HammingDistance counts the differing bits between two hashes of equal length
func HammingDistance(a, b AverageHash) (int, error) {
	if a.Bits != b.Bits || len(a.bytes) != len(b.bytes) {
		return 0, fmt.Errorf("hash length mismatch: %d vs %d bits", a.Bits, b.Bits)
	}

	distance := 0
	for i := range a.bytes {
		distance += bits.OnesCount8(a.bytes[i] ^ b.bytes[i])
	}
	return distance, nil
}
