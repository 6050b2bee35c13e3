// Package storage defines persistence contracts for task records.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested task record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a task with the same id already exists.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrInvalidID indicates an identifier that can never match a record.
	ErrInvalidID = errors.New("invalid record id")
	// ErrInvalidFilter indicates a list filter expression that cannot be evaluated.
	ErrInvalidFilter = errors.New("invalid filter")
)

// Task stores one task record.
type Task struct {
	ID          string
	Title       string
	Description string
	Completed   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ListFilter narrows ListTasks. The zero value matches every record.
type ListFilter struct {
	// Completed restricts results by completion state when set.
	Completed *bool
	// Expression is an AIP-160 filter ANDed with the other conditions.
	Expression string
}

// MutateFunc derives the next state of a task from its current state. A
// returned error aborts the update and is passed through unchanged.
type MutateFunc func(current Task) (Task, error)

// TaskStore persists task records.
type TaskStore interface {
	// ListTasks returns matching tasks, newest first.
	ListTasks(ctx context.Context, filter ListFilter) ([]Task, error)
	GetTask(ctx context.Context, id string) (Task, error)
	CreateTask(ctx context.Context, task Task) error
	// UpdateTask reads, mutates and writes one task atomically.
	UpdateTask(ctx context.Context, id string, mutate MutateFunc) (Task, error)
	DeleteTask(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}
