// Package uploads stores task reference images and submission proof images
// on the local filesystem.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"proofcheck/logging"
	"proofcheck/types"
)

// Buckets under the upload directory
const (
	TasksBucket       = "tasks"
	SubmissionsBucket = "submissions"
	trashDir          = ".trash"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrTooManyFiles      = errors.New("wrong number of images")
	ErrEmptyFile         = errors.New("empty file")
	ErrFileTooLarge      = errors.New("file too large")
)

// Upload is an incoming image before it is stored
type Upload struct {
	Filename string
	Content  io.Reader
}

// Store keeps images under baseDir/<bucket>/<name>
type Store struct {
	baseDir     string
	maxFileSize int64
}

var _ types.FileRemover = &Store{}

// NewStore creates the bucket directories under dir
func NewStore(dir string, maxFileSize int64) (*Store, error) {
	baseDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}
	for _, bucket := range []string{TasksBucket, SubmissionsBucket} {
		if err := os.MkdirAll(filepath.Join(baseDir, bucket), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create upload directory %s: %w", bucket, err)
		}
	}
	return &Store{baseDir: baseDir, maxFileSize: maxFileSize}, nil
}

// Path returns the absolute location of a stored file
func (s *Store) Path(bucket, name string) string {
	return filepath.Join(s.baseDir, bucket, filepath.Base(name))
}

// Validate checks count and formats of a batch before anything is written
func Validate(files []Upload, minCount, maxCount int) error {
	if len(files) < minCount || len(files) > maxCount {
		return fmt.Errorf("%w: got %d, want %d to %d", ErrTooManyFiles, len(files), minCount, maxCount)
	}
	for i, f := range files {
		if strings.TrimSpace(f.Filename) == "" || f.Content == nil {
			return fmt.Errorf("%w: image %d has no file", ErrEmptyFile, i+1)
		}
		if !types.IsAllowedImage(f.Filename) {
			return fmt.Errorf("%w: image %d (%s); accepted: %s",
				ErrUnsupportedFormat, i+1, f.Filename, strings.Join(types.AllowedExtensions(), " "))
		}
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SecureFilename strips path components and characters that are unsafe in filenames
func SecureFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(strings.ReplaceAll(name, " ", "_"), "")
	return strings.TrimLeft(name, "._")
}

// Save writes every upload into bucket as "<prefix>_<n>_<filename>". Either all
// files are stored or none are: on any failure everything written so far,
// including partial temp files, is removed.
func (s *Store) Save(bucket, prefix string, files []Upload) (saved []string, err error) {
	defer func() {
		if err != nil {
			s.Remove(bucket, saved...)
			saved = nil
		}
	}()

	for i, f := range files {
		// Sanitize the client name on its own so a path in it cannot eat the prefix
		name := fmt.Sprintf("%s_%d_%s", prefix, i+1, SecureFilename(f.Filename))
		if err := s.write(bucket, name, f.Content); err != nil {
			return saved, fmt.Errorf("failed to store image %d: %w", i+1, err)
		}
		saved = append(saved, name)
	}
	return saved, nil
}

// write copies data into a temp file in the bucket and renames it into place
func (s *Store) write(bucket, name string, data io.Reader) error {
	dst := s.Path(bucket, name)
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("file %s/%s already exists", bucket, name)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file %s/%s: %w", bucket, name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	limit := s.maxFileSize
	if limit <= 0 {
		limit = 1<<63 - 1
	} else {
		limit++
	}
	n, err := io.Copy(tmp, io.LimitReader(data, limit))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write file %s/%s: %w", bucket, name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyFile, name)
	}
	if s.maxFileSize > 0 && n > s.maxFileSize {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, name, s.maxFileSize)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("failed to move file into %s/%s: %w", bucket, name, err)
	}
	return nil
}

// Remove deletes stored files, ignoring ones that are already gone
func (s *Store) Remove(bucket string, names ...string) {
	for _, name := range names {
		if err := os.Remove(s.Path(bucket, name)); err != nil && !os.IsNotExist(err) {
			logging.LogWarning("Failed to remove %s/%s: %v", bucket, name, err)
		}
	}
}
