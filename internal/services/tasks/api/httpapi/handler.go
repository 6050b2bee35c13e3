// Package httpapi exposes the task service over HTTP+JSON.
package httpapi

import (
	"context"
	"log"
	"net/http"

	"github.com/louisbranch/taskboard/internal/platform/httpx"
	"github.com/louisbranch/taskboard/internal/platform/i18n"
	"github.com/louisbranch/taskboard/internal/services/tasks/service"
	"github.com/louisbranch/taskboard/internal/services/tasks/storage"
	"github.com/louisbranch/taskboard/internal/services/tasks/validation"
)

// Route paths.
const (
	TasksPath  = "/api/tasks"
	HealthPath = "/health"
	ReadyPath  = "/ready"
)

// Query parameters accepted by the list route.
const (
	StatusParam = "status"
	FilterParam = "filter"
)

// TaskService is the task API consumed by the HTTP handlers.
type TaskService interface {
	ListTasks(ctx context.Context, opts service.ListOptions) ([]storage.Task, error)
	GetTask(ctx context.Context, taskID string) (storage.Task, error)
	CreateTask(ctx context.Context, payload validation.Payload) (storage.Task, error)
	UpdateTask(ctx context.Context, taskID string, payload validation.Payload) (storage.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	Ping(ctx context.Context) error
}

// Options configures a Handler.
type Options struct {
	// Localizer renders error messages. Defaults to the embedded catalogs.
	Localizer *i18n.Localizer
	// Logger receives unanticipated failures. Defaults to log.Default().
	Logger *log.Logger
}

// Handler routes task API requests.
type Handler struct {
	svc       TaskService
	localizer *i18n.Localizer
	logger    *log.Logger
	mux       *http.ServeMux
}

// NewHandler builds the task API handler.
func NewHandler(svc TaskService, opts Options) (*Handler, error) {
	localizer := opts.Localizer
	if localizer == nil {
		var err error
		localizer, err = i18n.NewEmbedded()
		if err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	h := &Handler{
		svc:       svc,
		localizer: localizer,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	h.mux.HandleFunc("GET "+TasksPath, h.handleList)
	h.mux.HandleFunc("POST "+TasksPath, h.handleCreate)
	h.mux.HandleFunc("GET "+TasksPath+"/{$}", h.handleList)
	h.mux.HandleFunc("POST "+TasksPath+"/{$}", h.handleCreate)
	h.mux.HandleFunc("GET "+TasksPath+"/{id}", h.handleGet)
	h.mux.HandleFunc("PUT "+TasksPath+"/{id}", h.handleUpdate)
	h.mux.HandleFunc("DELETE "+TasksPath+"/{id}", h.handleDelete)
	h.mux.HandleFunc("GET "+HealthPath, h.handleHealth)
	h.mux.HandleFunc("GET "+ReadyPath, h.handleReady)
	h.mux.HandleFunc("/", h.handleNotFound)
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// ServerError answers with the generic 500 body. It is the fallback for
// recovered panics.
func (h *Handler) ServerError() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.writeServerError(w, r)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	tasks, err := h.svc.ListTasks(r.Context(), service.ListOptions{
		Status: query.Get(StatusParam),
		Filter: query.Get(FilterParam),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, listResponse{
		Success: true,
		Count:   len(tasks),
		Data:    taskViews(tasks),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	task, err := h.svc.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, dataResponse{Success: true, Data: newTaskView(task)})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	task, err := h.svc.CreateTask(r.Context(), payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, dataResponse{Success: true, Data: newTaskView(task)})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	task, err := h.svc.UpdateTask(r.Context(), r.PathValue("id"), payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, dataResponse{Success: true, Data: newTaskView(task)})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTask(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, dataResponse{Success: true, Data: struct{}{}})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, statusResponse{Status: "ok", Message: "Server is running"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		h.logger.Printf("readiness check failed request_id=%s err=%v", httpx.RequestIDFrom(r), err)
		h.writeJSON(w, r, http.StatusServiceUnavailable, statusResponse{Status: "unavailable"})
		return
	}
	h.writeJSON(w, r, http.StatusOK, statusResponse{Status: "ready"})
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, errRouteNotFound)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if err := httpx.WriteJSON(w, status, payload); err != nil {
		h.logger.Printf("write response failed path=%s request_id=%s err=%v", r.URL.Path, httpx.RequestIDFrom(r), err)
	}
}
