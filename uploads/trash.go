package uploads

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"proofcheck/logging"
	"proofcheck/types"

	"github.com/google/uuid"
)

type movedFile struct {
	from string
	to   string
}

// stagedRemoval holds files moved into a per-operation trash directory
type stagedRemoval struct {
	dir   string
	moved []movedFile
	done  bool
}

// StageRemoval moves files into baseDir/.trash/<id>/ so that the caller can
// either purge them after its transaction commits or put them back.
// Files that are already missing are skipped.
func (s *Store) StageRemoval(files []types.StoredFile) (types.PendingRemoval, error) {
	dir := filepath.Join(s.baseDir, trashDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trash directory: %w", err)
	}

	staged := &stagedRemoval{dir: dir}
	for i, f := range files {
		src := s.Path(f.Bucket, f.Name)
		dst := filepath.Join(dir, fmt.Sprintf("%03d_%s_%s", i, f.Bucket, filepath.Base(f.Name)))
		if err := os.Rename(src, dst); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logging.LogWarning("Stored file %s/%s already missing", f.Bucket, f.Name)
				continue
			}
			if rbErr := staged.Rollback(); rbErr != nil {
				logging.LogError("Failed to restore staged files: %v", rbErr)
			}
			return nil, fmt.Errorf("failed to stage %s/%s for removal: %w", f.Bucket, f.Name, err)
		}
		staged.moved = append(staged.moved, movedFile{from: src, to: dst})
	}
	return staged, nil
}

// Commit deletes the staged files permanently
func (r *stagedRemoval) Commit() error {
	if r.done {
		return nil
	}
	r.done = true
	if err := os.RemoveAll(r.dir); err != nil {
		return fmt.Errorf("failed to purge %s: %w", r.dir, err)
	}
	return nil
}

// Rollback moves the staged files back to where they were
func (r *stagedRemoval) Rollback() error {
	if r.done {
		return nil
	}
	r.done = true
	var errs []error
	for i := len(r.moved) - 1; i >= 0; i-- {
		m := r.moved[i]
		if err := os.Rename(m.to, m.from); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", m.from, err))
		}
	}
	if len(errs) == 0 {
		os.RemoveAll(r.dir)
	}
	return errors.Join(errs...)
}
