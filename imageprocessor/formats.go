package imageprocessor

import (
	"proofcheck/types"
)

// FormatType represents a known image format type
type FormatType = types.ImageFormat

// Known image format constants
const (
	FormatUnknown = types.FormatUnknown
	FormatJPEG    = types.FormatJPEG
	FormatPNG     = types.FormatPNG
	FormatGIF     = types.FormatGIF
	FormatWEBP    = types.FormatWEBP
)

// GetFileFormat returns the format type based on file extension
func GetFileFormat(path string) FormatType {
	return types.FormatOf(path)
}

// IsAllowedFormat checks if a file is one of the accepted upload formats
func IsAllowedFormat(path string) bool {
	return GetFileFormat(path) != FormatUnknown
}
