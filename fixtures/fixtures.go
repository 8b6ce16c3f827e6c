// Package fixtures generates deterministic images for tests.
package fixtures

import (
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

// Scene draws a photo-like image: a vertical gradient, a few solid shapes with
// hard corners, and mild per-pixel noise. The same seed always gives the same image.
func Scene(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		t := float64(y) / float64(h)
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(60 + 120*t),
				G: uint8(130 + 60*math.Sin(float64(x)/float64(w)*math.Pi)),
				B: uint8(200 - 140*t),
				A: 255,
			})
		}
	}

	for i := 0; i < 12; i++ {
		x0, y0 := rng.Intn(w*3/4), rng.Intn(h*3/4)
		rw, rh := w/10+rng.Intn(w/6), h/10+rng.Intn(h/6)
		c := color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255}
		for y := y0; y < y0+rh && y < h; y++ {
			for x := x0; x < x0+rw && x < w; x++ {
				img.SetRGBA(x, y, c)
			}
		}
	}

	for i := 0; i < 6; i++ {
		cx, cy, r := rng.Intn(w), rng.Intn(h), w/20+rng.Intn(w/10)
		c := color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255}
		for y := cy - r; y <= cy+r; y++ {
			for x := cx - r; x <= cx+r; x++ {
				if x >= 0 && y >= 0 && x < w && y < h && (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r*r {
					img.SetRGBA(x, y, c)
				}
			}
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := img.RGBAAt(x, y)
			n := rng.Intn(9) - 4
			img.SetRGBA(x, y, color.RGBA{clamp(int(p.R) + n), clamp(int(p.G) + n), clamp(int(p.B) + n), 255})
		}
	}
	return img
}

// Solid returns a single-color image
func Solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// Write encodes img into dir/name, choosing the encoder from the extension
// (.png, .jpg/.jpeg or .gif), and returns the full path.
func Write(dir, name string, img image.Image) (string, error) {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	case ".gif":
		err = gif.Encode(f, img, nil)
	default:
		err = png.Encode(f, img)
	}
	if err != nil {
		return "", err
	}
	return path, f.Close()
}

func clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
