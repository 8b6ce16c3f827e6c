package types

// StoredFile identifies an image kept in upload storage
type StoredFile struct {
	Bucket string
	Name   string
}

// PendingRemoval is a staged file deletion that can still be undone
type PendingRemoval interface {
	Commit() error
	Rollback() error
}

// FileRemover stages the removal of stored images so that it can be rolled
// back if the record deletion it belongs to does not commit.
type FileRemover interface {
	StageRemoval(files []StoredFile) (PendingRemoval, error)
}
