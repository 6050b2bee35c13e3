package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/louisbranch/taskboard/internal/platform/errors"
	"github.com/louisbranch/taskboard/internal/services/tasks/storage"
	"github.com/louisbranch/taskboard/internal/services/tasks/storage/sqlite"
	"github.com/louisbranch/taskboard/internal/services/tasks/validation"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clock := &fakeClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(store)
	svc.clock = clock.Now
	return svc, clock
}

func body(t *testing.T, raw string) validation.Payload {
	t.Helper()
	var p validation.Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return p
}

func TestCreateTaskNormalizesPayload(t *testing.T) {
	t.Parallel()
	svc, clock := newTestService(t)

	task, err := svc.CreateTask(context.Background(), body(t, `{"title":"  Buy milk ","extra":1}`))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Title != "Buy milk" || task.Description != "" || task.Completed {
		t.Fatalf("task = %+v", task)
	}
	if !task.CreatedAt.Equal(clock.now) || !task.UpdatedAt.Equal(task.CreatedAt) {
		t.Fatalf("timestamps = %v / %v, want both %v", task.CreatedAt, task.UpdatedAt, clock.now)
	}

	got, err := svc.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got != task {
		t.Fatalf("round trip = %+v, want %+v", got, task)
	}
}

func TestCreateTaskValidationError(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	_, err := svc.CreateTask(context.Background(), body(t, `{}`))
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Kind != apperrors.KindValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(appErr.Fields) != 1 || appErr.Fields[0].Field != "title" {
		t.Fatalf("fields = %+v, want title", appErr.Fields)
	}

	tasks, err := svc.ListTasks(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("tasks = %d, want 0 after rejected create", len(tasks))
	}
}

func TestCreateTaskDuplicateID(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	first, err := svc.CreateTask(context.Background(), body(t, `{"title":"a"}`))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	svc.newID = func() (string, error) { return first.ID, nil }
	_, err = svc.CreateTask(context.Background(), body(t, `{"title":"b"}`))
	if got := apperrors.KindOf(err); got != apperrors.KindConflict {
		t.Fatalf("kind = %v, want %v", got, apperrors.KindConflict)
	}
}

func TestUpdateTaskPartial(t *testing.T) {
	t.Parallel()
	svc, clock := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTask(ctx, body(t, `{"title":"Buy milk","description":"2 liters"}`))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	clock.now = clock.now.Add(time.Minute)
	updated, err := svc.UpdateTask(ctx, created.ID, body(t, `{"completed":true}`))
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if !updated.Completed || updated.Title != "Buy milk" || updated.Description != "2 liters" {
		t.Fatalf("updated = %+v", updated)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("created at = %v, want %v", updated.CreatedAt, created.CreatedAt)
	}
	if !updated.UpdatedAt.Equal(clock.now) {
		t.Fatalf("updated at = %v, want %v", updated.UpdatedAt, clock.now)
	}
}

func TestUpdateTaskStrictlyIncreasesUpdatedAt(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, body(t, `{"title":"Buy milk"}`))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	previous := task.UpdatedAt
	for i := 0; i < 3; i++ {
		next, err := svc.UpdateTask(ctx, task.ID, body(t, `{}`))
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		if !next.UpdatedAt.After(previous) {
			t.Fatalf("update %d: updated at = %v, want after %v", i, next.UpdatedAt, previous)
		}
		previous = next.UpdatedAt
	}
}

func TestUpdateTaskErrors(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, body(t, `{"title":"Buy milk"}`))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	absent := strings.Repeat("a", len(task.ID))

	tests := []struct {
		name string
		id   string
		body string
		want apperrors.Kind
	}{
		{name: "malformed id", id: "not-a-valid-id", body: `{}`, want: apperrors.KindInvalidID},
		{name: "absent id", id: absent, body: `{}`, want: apperrors.KindNotFound},
		{name: "invalid field", id: task.ID, body: `{"title":""}`, want: apperrors.KindValidation},
		{name: "malformed id wins over invalid field", id: "bad", body: `{"title":""}`, want: apperrors.KindInvalidID},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.UpdateTask(ctx, tc.id, body(t, tc.body))
			if got := apperrors.KindOf(err); got != tc.want {
				t.Fatalf("kind = %v, want %v (err %v)", got, tc.want, err)
			}
		})
	}

	got, err := svc.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Title != "Buy milk" {
		t.Fatalf("title = %q, want unchanged", got.Title)
	}
}

func TestListTasksStatusFilter(t *testing.T) {
	t.Parallel()
	svc, clock := newTestService(t)
	ctx := context.Background()

	open, err := svc.CreateTask(ctx, body(t, `{"title":"open"}`))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	clock.now = clock.now.Add(time.Second)
	done, err := svc.CreateTask(ctx, body(t, `{"title":"done","completed":true}`))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	tests := []struct {
		status string
		want   []string
	}{
		{status: "", want: []string{done.ID, open.ID}},
		{status: "all", want: []string{done.ID, open.ID}},
		{status: "bogus", want: []string{done.ID, open.ID}},
		{status: StatusActive, want: []string{open.ID}},
		{status: StatusCompleted, want: []string{done.ID}},
	}
	for _, tc := range tests {
		t.Run("status="+tc.status, func(t *testing.T) {
			tasks, err := svc.ListTasks(ctx, ListOptions{Status: tc.status})
			if err != nil {
				t.Fatalf("list tasks: %v", err)
			}
			got := make([]string, 0, len(tasks))
			for _, task := range tasks {
				got = append(got, task.ID)
			}
			if strings.Join(got, ",") != strings.Join(tc.want, ",") {
				t.Fatalf("ids = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestListTasksInvalidFilter(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	_, err := svc.ListTasks(context.Background(), ListOptions{Filter: "title ="})
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Kind != apperrors.KindValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(appErr.Fields) != 1 || appErr.Fields[0].Field != FieldFilter {
		t.Fatalf("fields = %+v, want %s", appErr.Fields, FieldFilter)
	}
}

func TestDeleteTask(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, body(t, `{"title":"Buy milk"}`))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := svc.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if got := apperrors.KindOf(svc.DeleteTask(ctx, task.ID)); got != apperrors.KindNotFound {
		t.Fatalf("second delete kind = %v, want %v", got, apperrors.KindNotFound)
	}
	if _, err := svc.GetTask(ctx, task.ID); apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("get deleted err = %v, want not found", err)
	}
	if got := apperrors.KindOf(svc.DeleteTask(ctx, "nope")); got != apperrors.KindInvalidID {
		t.Fatalf("malformed delete kind = %v, want %v", got, apperrors.KindInvalidID)
	}
}

type failingStore struct {
	storage.TaskStore
	err error
}

func (s failingStore) ListTasks(context.Context, storage.ListFilter) ([]storage.Task, error) {
	return nil, s.err
}

func (s failingStore) CreateTask(context.Context, storage.Task) error {
	return s.err
}

func TestStoreFailuresAreUnknown(t *testing.T) {
	t.Parallel()
	cause := errors.New("disk on fire")
	svc := NewService(failingStore{err: cause})

	_, err := svc.ListTasks(context.Background(), ListOptions{})
	if got := apperrors.KindOf(err); got != apperrors.KindUnknown {
		t.Fatalf("kind = %v, want %v", got, apperrors.KindUnknown)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want wrapped cause", err)
	}
	if got := apperrors.HTTPStatus(err); got != 500 {
		t.Fatalf("status = %d, want 500", got)
	}

	_, err = svc.CreateTask(context.Background(), body(t, `{"title":"a"}`))
	if !errors.Is(err, cause) {
		t.Fatalf("create err = %v, want wrapped cause", err)
	}
}

func TestNilServiceIsUnknown(t *testing.T) {
	t.Parallel()
	var svc *Service

	if _, err := svc.GetTask(context.Background(), "x"); apperrors.KindOf(err) != apperrors.KindUnknown {
		t.Fatalf("err = %v, want unknown", err)
	}
}

func TestNextUpdatedAt(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		now      time.Time
		previous time.Time
		want     time.Time
	}{
		{name: "later clock", now: base.Add(time.Second), previous: base, want: base.Add(time.Second)},
		{name: "same millisecond", now: base, previous: base, want: base.Add(time.Millisecond)},
		{name: "clock behind", now: base.Add(-time.Hour), previous: base, want: base.Add(time.Millisecond)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := nextUpdatedAt(tc.now, tc.previous); !got.Equal(tc.want) {
				t.Fatalf("next = %v, want %v", got, tc.want)
			}
		})
	}
}
