package httpapi

import (
	"time"

	"github.com/louisbranch/taskboard/internal/services/tasks/storage"
)

// timestampLayout renders UTC times with millisecond precision, e.g.
// 2026-03-01T12:00:00.000Z.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

type taskView struct {
	ID          string `json:"_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

func newTaskView(task storage.Task) taskView {
	return taskView{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Completed:   task.Completed,
		CreatedAt:   formatTimestamp(task.CreatedAt),
		UpdatedAt:   formatTimestamp(task.UpdatedAt),
	}
}

func taskViews(tasks []storage.Task) []taskView {
	views := make([]taskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, newTaskView(task))
	}
	return views
}

func formatTimestamp(value time.Time) string {
	return value.UTC().Format(timestampLayout)
}

type dataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type listResponse struct {
	Success bool       `json:"success"`
	Count   int        `json:"count"`
	Data    []taskView `json:"data"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type fieldErrorView struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message,omitempty"`
	Errors  []fieldErrorView `json:"errors,omitempty"`
}
