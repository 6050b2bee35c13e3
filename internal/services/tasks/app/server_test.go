package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/taskboard/internal/platform/httpx"
	"github.com/louisbranch/taskboard/internal/services/tasks/api/httpapi"
	"github.com/louisbranch/taskboard/internal/services/tasks/service"
	"github.com/louisbranch/taskboard/internal/services/tasks/storage"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type panickingService struct {
	httpapi.TaskService
}

func (panickingService) ListTasks(context.Context, service.ListOptions) ([]storage.Task, error) {
	panic("boom")
}

func TestNewServerRequiresAddress(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(context.Background(), Config{HTTPAddr: " "}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := NewServer(context.Background(), Config{HTTPAddr: "127.0.0.1:0", MaxConnections: -1}); err == nil {
		t.Fatal("expected max connections error")
	}
}

func TestHandlerCORSPreflight(t *testing.T) {
	t.Parallel()
	handler, err := NewHandler(panickingService{}, Config{
		FrontendURL: "http://app.local/",
		Logger:      log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	req.Header.Set("Origin", "http://app.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	headers := map[string]string{
		"Access-Control-Allow-Origin":      "http://app.local",
		"Access-Control-Allow-Credentials": "true",
		"Access-Control-Allow-Methods":     "GET, POST, PUT, DELETE",
		"Access-Control-Allow-Headers":     "Content-Type",
	}
	for name, want := range headers {
		if got := rec.Header().Get(name); got != want {
			t.Fatalf("%s = %q, want %q", name, got, want)
		}
	}
	if rec.Header().Get(httpx.RequestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
}

func TestHandlerRecoversPanics(t *testing.T) {
	t.Parallel()
	logs := &syncBuffer{}
	handler, err := NewHandler(panickingService{}, Config{Logger: log.New(logs, "", 0)})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success || body.Message != "Server Error" {
		t.Fatalf("body = %+v, want Server Error", body)
	}
	if !strings.Contains(logs.String(), "panic recovered") {
		t.Fatalf("logs = %q, want panic entry", logs.String())
	}
}

func TestListenAndServeServesAndShutsDown(t *testing.T) {
	t.Parallel()
	logs := &syncBuffer{}
	srv, err := NewServer(context.Background(), Config{
		HTTPAddr:       "127.0.0.1:0",
		DBPath:         filepath.Join(t.TempDir(), "nested", "tasks.db"),
		MaxConnections: 4,
		Logger:         log.New(logs, "", 0),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := make(chan error, 1)
	go func() {
		result <- srv.ListenAndServe(ctx)
	}()

	base := "http://" + srv.Addr()
	resp, err := http.Post(base+"/api/tasks", "application/json", strings.NewReader(`{"title":"Buy milk"}`))
	if err != nil {
		t.Fatalf("post task: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	resp, err = http.Get(base + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cancel()
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for shutdown")
	}
	if !strings.Contains(logs.String(), "http request method=POST path=/api/tasks status=201") {
		t.Fatalf("logs = %q, want request log", logs.String())
	}
}

func TestListenAndServeRequiresServer(t *testing.T) {
	t.Parallel()
	var srv *Server

	if err := srv.ListenAndServe(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	srv.Close()
	if got := srv.Addr(); got != "" {
		t.Fatalf("addr = %q, want empty", got)
	}
}

func TestCloseReleasesResources(t *testing.T) {
	t.Parallel()
	srv, err := NewServer(context.Background(), Config{
		HTTPAddr: "127.0.0.1:0",
		DBPath:   filepath.Join(t.TempDir(), "tasks.db"),
		Logger:   log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv.Close()
	srv.Close()
}
