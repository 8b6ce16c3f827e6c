// Package imageprocessor loads proof and reference images and normalizes them
// into a canonical form for comparison.
package imageprocessor

import (
	"errors"
	"fmt"

	"proofcheck/logging"

	"gocv.io/x/gocv"
)

// ErrUnreadableImage is returned when no loader can decode a file
var ErrUnreadableImage = errors.New("unreadable image")

// ImageLoader decodes one family of formats into a 3-channel BGR Mat
type ImageLoader interface {
	CanLoad(path string) bool
	LoadImage(path string) (gocv.Mat, error)
}

// OpenCVLoader handles the formats OpenCV decodes natively
type OpenCVLoader struct{}

func (l *OpenCVLoader) CanLoad(path string) bool {
	switch GetFileFormat(path) {
	case FormatJPEG, FormatPNG, FormatWEBP:
		return fileExists(path)
	}
	return false
}

func (l *OpenCVLoader) LoadImage(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return img, newImageLoadError("opencv could not decode image", path)
	}
	return img, nil
}

// GoImageLoader decodes with the Go image packages. It covers GIF, which
// OpenCV builds commonly lack, and acts as a fallback for WEBP.
type GoImageLoader struct{}

func (l *GoImageLoader) CanLoad(path string) bool {
	return IsAllowedFormat(path) && fileExists(path)
}

func (l *GoImageLoader) LoadImage(path string) (gocv.Mat, error) {
	img, err := tryGoImagePackages(path)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %s: %v", ErrUnreadableImage, path, err)
	}
	return gocvMatFromGoImage(img)
}

// ImageLoaderRegistry manages available image loaders
type ImageLoaderRegistry struct {
	loaders []ImageLoader
}

// NewImageLoaderRegistry creates a registry with default loaders
func NewImageLoaderRegistry() *ImageLoaderRegistry {
	r := &ImageLoaderRegistry{}
	r.RegisterLoader(&OpenCVLoader{})
	r.RegisterLoader(&GoImageLoader{})
	return r
}

// RegisterLoader adds a custom loader to the registry
func (r *ImageLoaderRegistry) RegisterLoader(loader ImageLoader) {
	r.loaders = append(r.loaders, loader)
}

// CanLoadFile checks if any registered loader can handle the given file
func (r *ImageLoaderRegistry) CanLoadFile(path string) bool {
	for _, loader := range r.loaders {
		if loader.CanLoad(path) {
			return true
		}
	}
	return false
}

// LoadImage tries each loader that accepts the file until one succeeds
func (r *ImageLoaderRegistry) LoadImage(path string) (gocv.Mat, error) {
	var lastErr error
	for _, loader := range r.loaders {
		if !loader.CanLoad(path) {
			continue
		}
		img, err := loader.LoadImage(path)
		if err == nil && !img.Empty() {
			return img, nil
		}
		img.Close()
		lastErr = err
		logging.DebugLog("Loader %T failed for %s: %v", loader, path, err)
	}
	if lastErr == nil {
		lastErr = newImageLoadError("no suitable loader found for image", path)
	}
	return gocv.NewMat(), fmt.Errorf("%w: %v", ErrUnreadableImage, lastErr)
}

var defaultRegistry = NewImageLoaderRegistry()

// CanLoad reports whether some loader accepts the file. It checks the
// extension and existence only; decoding can still fail.
func CanLoad(path string) bool {
	return defaultRegistry.CanLoadFile(path)
}

// LoadImage loads an image in BGR color
func LoadImage(path string) (gocv.Mat, error) {
	return defaultRegistry.LoadImage(path)
}

// LoadGrayImage loads an image and converts it to single-channel grayscale
func LoadGrayImage(path string) (gocv.Mat, error) {
	img, err := LoadImage(path)
	if err != nil {
		return img, err
	}
	defer img.Close()

	gray := gocv.NewMat()
	if err := gocv.CvtColor(img, &gray, gocv.ColorBGRToGray); err != nil {
		gray.Close()
		return gocv.NewMat(), fmt.Errorf("%w: grayscale conversion of %s: %v", ErrUnreadableImage, path, err)
	}
	if gray.Empty() {
		gray.Close()
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrUnreadableImage, newImageLoadError("grayscale conversion failed", path))
	}
	return gray, nil
}

// Helper function to create standardized image load errors
func newImageLoadError(message, path string) error {
	return fmt.Errorf("%s: %s", message, path)
}
