package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"proofcheck/logging"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a task or submission id does not exist
	ErrNotFound = errors.New("record not found")
	// ErrMalformedRow is returned when a stored row fails validation on read
	ErrMalformedRow = errors.New("malformed row")
	// ErrDuplicateID is returned when an insert collides with an existing id
	ErrDuplicateID = errors.New("duplicate id")
	// ErrAlreadyScored is returned when a submission has already been through intake
	ErrAlreadyScored = errors.New("submission already scored")
)

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		reference_image TEXT,
		created_at TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'completed'))
	);
	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		user_name TEXT NOT NULL,
		user_email TEXT NOT NULL,
		submitted_at TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected'))
	);
	CREATE TABLE IF NOT EXISTS submission_images (
		submission_id TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		filename TEXT NOT NULL,
		PRIMARY KEY (submission_id, position)
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_task ON submissions(task_id);
	CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);`

// columns added after the first schema version
var migrations = []struct {
	table, column, definition string
}{
	{"submissions", "user_phone", "TEXT NOT NULL DEFAULT ''"},
	{"submissions", "notes", "TEXT NOT NULL DEFAULT ''"},
	{"submissions", "scored_at", "TEXT"},
}

// InitDatabase opens the sqlite file at dbPath, creating the schema if needed.
// Foreign keys are enforced and every transaction takes the write lock up front.
func InitDatabase(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// a single connection serializes writers and keeps pragmas consistent
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	for _, m := range migrations {
		if err := ensureColumn(db, m.table, m.column, m.definition); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

func ensureColumn(db *sql.DB, table, column, definition string) error {
	var hasColumn bool
	err := db.QueryRow("SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&hasColumn)
	if err != nil {
		return fmt.Errorf("error checking for %s.%s column: %w", table, column, err)
	}
	if hasColumn {
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;", table, column, definition)); err != nil {
		return fmt.Errorf("error adding %s.%s column: %w", table, column, err)
	}
	logging.DebugLog("Added '%s' column to %s table", column, table)
	return nil
}

// Store is the durable record of tasks and submissions
type Store struct {
	db *sql.DB
}

// Open initializes the database at path and wraps it in a Store
func Open(path string) (*Store, error) {
	db, err := InitDatabase(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewStore wraps an already initialized database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing only if fn succeeds
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// fixed width so that text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformedRow, value)
	}
	return t, nil
}
