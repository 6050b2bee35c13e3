// Package service implements the task operations behind the HTTP API.
//
// Every operation takes explicit inputs and returns either a result or an
// *errors.Error from internal/platform/errors; storage failures are
// classified here so transports never inspect storage sentinels.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/taskboard/internal/platform/errors"
	"github.com/louisbranch/taskboard/internal/platform/id"
	platformotel "github.com/louisbranch/taskboard/internal/platform/otel"
	"github.com/louisbranch/taskboard/internal/services/tasks/storage"
	"github.com/louisbranch/taskboard/internal/services/tasks/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/louisbranch/taskboard/internal/services/tasks/service"

// List status values. Anything else lists every task.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// FieldFilter names the list filter in validation errors.
const FieldFilter = "filter"

// ListOptions narrows ListTasks.
type ListOptions struct {
	Status string
	Filter string
}

// Service runs task operations against a store.
type Service struct {
	store  storage.TaskStore
	clock  func() time.Time
	newID  func() (string, error)
	tracer trace.Tracer
}

// NewService creates a task service backed by store.
func NewService(store storage.TaskStore) *Service {
	return &Service{
		store:  store,
		clock:  time.Now,
		newID:  id.NewID,
		tracer: platformotel.Tracer(tracerName),
	}
}

// ListTasks returns tasks matching opts, newest first.
func (s *Service) ListTasks(ctx context.Context, opts ListOptions) (tasks []storage.Task, err error) {
	ctx, span := s.startSpan(ctx, "tasks.List", attribute.String("tasks.status", opts.Status))
	defer func() { endSpan(span, err) }()
	if err := s.ready(); err != nil {
		return nil, err
	}

	tasks, err = s.store.ListTasks(ctx, storage.ListFilter{
		Completed:  completedFilter(opts.Status),
		Expression: opts.Filter,
	})
	if err != nil {
		return nil, classify("list tasks", err)
	}
	span.SetAttributes(attribute.Int("tasks.count", len(tasks)))
	return tasks, nil
}

// GetTask returns one task by id.
func (s *Service) GetTask(ctx context.Context, taskID string) (task storage.Task, err error) {
	ctx, span := s.startSpan(ctx, "tasks.Get", attribute.String("tasks.id", taskID))
	defer func() { endSpan(span, err) }()
	if err := s.ready(); err != nil {
		return storage.Task{}, err
	}
	if !id.IsValid(taskID) {
		return storage.Task{}, invalidID()
	}

	task, err = s.store.GetTask(ctx, taskID)
	if err != nil {
		return storage.Task{}, classify("get task", err)
	}
	return task, nil
}

// CreateTask validates payload and stores a new task.
func (s *Service) CreateTask(ctx context.Context, payload validation.Payload) (task storage.Task, err error) {
	ctx, span := s.startSpan(ctx, "tasks.Create")
	defer func() { endSpan(span, err) }()
	if err := s.ready(); err != nil {
		return storage.Task{}, err
	}

	input, fieldErrs := validation.ValidateCreate(payload)
	if len(fieldErrs) > 0 {
		return storage.Task{}, apperrors.Validation(fieldErrs...)
	}

	taskID, err := s.newID()
	if err != nil {
		return storage.Task{}, classify("create task id", err)
	}
	now := s.now()
	task = storage.Task{
		ID:          taskID,
		Title:       input.Title,
		Description: input.Description,
		Completed:   input.Completed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return storage.Task{}, classify("create task", err)
	}
	span.SetAttributes(attribute.String("tasks.id", task.ID))
	return task, nil
}

// UpdateTask applies the fields present in payload to one task. The merged
// task is validated again before it is written, and its update time always
// moves forward.
func (s *Service) UpdateTask(ctx context.Context, taskID string, payload validation.Payload) (task storage.Task, err error) {
	ctx, span := s.startSpan(ctx, "tasks.Update", attribute.String("tasks.id", taskID))
	defer func() { endSpan(span, err) }()
	if err := s.ready(); err != nil {
		return storage.Task{}, err
	}
	if !id.IsValid(taskID) {
		return storage.Task{}, invalidID()
	}

	patch, fieldErrs := validation.ValidateUpdate(payload)
	if len(fieldErrs) > 0 {
		return storage.Task{}, apperrors.Validation(fieldErrs...)
	}

	task, err = s.store.UpdateTask(ctx, taskID, func(current storage.Task) (storage.Task, error) {
		next := patch.Apply(current)
		if errs := validation.ValidateTask(next); len(errs) > 0 {
			return storage.Task{}, apperrors.Validation(errs...)
		}
		next.UpdatedAt = nextUpdatedAt(s.now(), current.UpdatedAt)
		return next, nil
	})
	if err != nil {
		return storage.Task{}, classify("update task", err)
	}
	return task, nil
}

// DeleteTask removes one task by id.
func (s *Service) DeleteTask(ctx context.Context, taskID string) (err error) {
	ctx, span := s.startSpan(ctx, "tasks.Delete", attribute.String("tasks.id", taskID))
	defer func() { endSpan(span, err) }()
	if err := s.ready(); err != nil {
		return err
	}
	if !id.IsValid(taskID) {
		return invalidID()
	}

	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return classify("delete task", err)
	}
	return nil
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.store.Ping(ctx)
}

func (s *Service) ready() error {
	if s == nil || s.store == nil {
		return apperrors.Wrap(apperrors.KindUnknown, apperrors.KeyServerError, "", errors.New("task store is not configured"))
	}
	return nil
}

func (s *Service) now() time.Time {
	now := time.Now()
	if s.clock != nil {
		now = s.clock()
	}
	return now.UTC().Truncate(time.Millisecond)
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	tracer := platformotel.Tracer(tracerName)
	if s != nil && s.tracer != nil {
		tracer = s.tracer
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("tasks.error_kind", string(apperrors.KindOf(err))))
		if apperrors.HTTPStatus(err) >= 500 {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

// nextUpdatedAt keeps update times strictly increasing per task even when
// two writes land in the same millisecond.
func nextUpdatedAt(now, previous time.Time) time.Time {
	if now.After(previous) {
		return now
	}
	return previous.Add(time.Millisecond)
}

func completedFilter(status string) *bool {
	var completed bool
	switch status {
	case StatusActive:
		completed = false
	case StatusCompleted:
		completed = true
	default:
		return nil
	}
	return &completed
}

func invalidID() error {
	return apperrors.EK(apperrors.KindInvalidID, apperrors.KeyInvalidID, "Invalid ID format")
}

// classify converts a storage failure into an application error.
func classify(op string, err error) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, storage.ErrInvalidID):
		return invalidID()
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.EK(apperrors.KindNotFound, apperrors.KeyNotFound, "Task not found")
	case errors.Is(err, storage.ErrAlreadyExists):
		return apperrors.Wrap(apperrors.KindConflict, apperrors.KeyDuplicate, "Duplicate field value entered", err)
	case errors.Is(err, storage.ErrInvalidFilter):
		return apperrors.Validation(apperrors.FieldError{
			Field:   FieldFilter,
			Key:     apperrors.KeyInvalidFilter,
			Message: "Invalid filter expression",
		})
	default:
		return apperrors.Wrap(apperrors.KindUnknown, apperrors.KeyServerError, "", fmt.Errorf("%s: %w", op, err))
	}
}
