// Package sqlite provides a SQLite-backed task storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/taskboard/internal/platform/id"
	sqlitemigrate "github.com/louisbranch/taskboard/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/taskboard/internal/platform/timeouts"
	"github.com/louisbranch/taskboard/internal/services/tasks/filter"
	"github.com/louisbranch/taskboard/internal/services/tasks/storage"
	"github.com/louisbranch/taskboard/internal/services/tasks/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const taskColumns = `id, title, description, completed, created_at, updated_at`

// Store persists task records in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// dsn builds a modernc connection string. Writes take the lock at BEGIN so
// that read-modify-write transactions never need a lock upgrade.
func dsn(path string) string {
	return fmt.Sprintf(
		"%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_txlock=immediate",
		path,
		timeouts.StoreBusy.Milliseconds(),
	)
}

// Open opens a SQLite task store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sqlDB, err := sql.Open("sqlite", dsn(filepath.Clean(path)))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping reports whether the database answers queries.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.sqlDB.PingContext(ctx)
}

// CreateTask inserts one task record.
func (s *Store) CreateTask(ctx context.Context, task storage.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if !id.IsValid(task.ID) {
		return storage.ErrInvalidID
	}
	createdAt := task.CreatedAt.UTC()
	updatedAt := task.UpdatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.Title,
		task.Description,
		boolToInt(task.Completed),
		toMillis(createdAt),
		toMillis(updatedAt),
	)
	if err != nil {
		if isTaskUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask returns one task by id.
func (s *Store) GetTask(ctx context.Context, taskID string) (storage.Task, error) {
	if err := ctx.Err(); err != nil {
		return storage.Task{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Task{}, fmt.Errorf("storage is not configured")
	}
	if !id.IsValid(taskID) {
		return storage.Task{}, storage.ErrInvalidID
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Task{}, storage.ErrNotFound
		}
		return storage.Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks returns matching tasks ordered by creation time, newest first.
// Tasks created in the same millisecond keep reverse insertion order.
func (s *Store) ListTasks(ctx context.Context, listFilter storage.ListFilter) ([]storage.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	var (
		clauses []string
		params  []any
	)
	if listFilter.Completed != nil {
		clauses = append(clauses, "completed = ?")
		params = append(params, boolToInt(*listFilter.Completed))
	}
	cond, err := filter.ParseTaskFilter(listFilter.Expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidFilter, err)
	}
	if !cond.Empty() {
		clauses = append(clauses, cond.Clause)
		params = append(params, cond.Params...)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.sqlDB.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]storage.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTask applies mutate to the stored task inside one transaction and
// persists the result. The id and creation time cannot be changed.
func (s *Store) UpdateTask(ctx context.Context, taskID string, mutate storage.MutateFunc) (storage.Task, error) {
	if err := ctx.Err(); err != nil {
		return storage.Task{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Task{}, fmt.Errorf("storage is not configured")
	}
	if mutate == nil {
		return storage.Task{}, fmt.Errorf("mutate function is required")
	}
	if !id.IsValid(taskID) {
		return storage.Task{}, storage.ErrInvalidID
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Task{}, fmt.Errorf("begin update task: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Task{}, storage.ErrNotFound
		}
		return storage.Task{}, fmt.Errorf("load task: %w", err)
	}

	next, err := mutate(current)
	if err != nil {
		return storage.Task{}, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	if next.UpdatedAt.Before(next.CreatedAt) {
		next.UpdatedAt = next.CreatedAt
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE tasks
		    SET title = ?, description = ?, completed = ?, updated_at = ?
		  WHERE id = ?`,
		next.Title,
		next.Description,
		boolToInt(next.Completed),
		toMillis(next.UpdatedAt),
		taskID,
	); err != nil {
		return storage.Task{}, fmt.Errorf("update task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Task{}, fmt.Errorf("commit update task: %w", err)
	}
	next.UpdatedAt = fromMillis(toMillis(next.UpdatedAt))
	return next, nil
}

// DeleteTask removes one task by id.
func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if !id.IsValid(taskID) {
		return storage.ErrInvalidID
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (storage.Task, error) {
	var (
		task      storage.Task
		completed int
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&completed,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.Task{}, err
	}
	task.Completed = completed != 0
	task.CreatedAt = fromMillis(createdAt)
	task.UpdatedAt = fromMillis(updatedAt)
	return task, nil
}

func isTaskUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "tasks.id")
}

var _ storage.TaskStore = (*Store)(nil)
