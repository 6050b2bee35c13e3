// Package server wires the task runtime and HTTP lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/louisbranch/taskboard/internal/platform/httpx"
	"github.com/louisbranch/taskboard/internal/platform/i18n"
	"github.com/louisbranch/taskboard/internal/platform/observability"
	"github.com/louisbranch/taskboard/internal/platform/timeouts"
	"github.com/louisbranch/taskboard/internal/services/tasks/api/httpapi"
	"github.com/louisbranch/taskboard/internal/services/tasks/service"
	taskssqlite "github.com/louisbranch/taskboard/internal/services/tasks/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/netutil"
)

const (
	// DefaultDBPath is used when Config.DBPath is empty.
	DefaultDBPath = "data/tasks.db"
	// DefaultFrontendURL is the CORS origin used when none is configured.
	DefaultFrontendURL = "http://localhost:5173"
)

// Config defines startup inputs for the task service.
type Config struct {
	HTTPAddr       string
	DBPath         string
	FrontendURL    string
	MaxConnections int
	// Logger receives request and failure logs. Defaults to log.Default().
	Logger *log.Logger
}

// Server hosts the task HTTP API and storage lifecycle.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *taskssqlite.Store
	logger     *log.Logger
}

// NewHandler builds the root handler: the task API behind panic recovery,
// request ids, CORS, tracing and request logging.
func NewHandler(svc httpapi.TaskService, cfg Config) (http.Handler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	localizer, err := i18n.NewEmbedded()
	if err != nil {
		return nil, fmt.Errorf("load message catalogs: %w", err)
	}
	api, err := httpapi.NewHandler(svc, httpapi.Options{Localizer: localizer, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("compose task handler: %w", err)
	}

	frontendURL := strings.TrimSpace(cfg.FrontendURL)
	if frontendURL == "" {
		frontendURL = DefaultFrontendURL
	}
	return httpx.Chain(api,
		httpx.RecoverPanic(logger, api.ServerError()),
		httpx.RequestID(),
		httpx.CORS(httpx.CORSOptions{
			AllowedOrigins:   []string{frontendURL},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true,
		}),
		withTracing(),
		observability.RequestLogger(logger),
	), nil
}

func withTracing() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "tasks.http")
	}
}

// NewServer opens storage, composes the handler and binds the listener.
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	httpAddr := strings.TrimSpace(cfg.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if cfg.MaxConnections < 0 {
		return nil, fmt.Errorf("max connections must be zero or positive, got %d", cfg.MaxConnections)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	cfg.Logger = logger

	store, err := openTaskStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	handler, err := NewHandler(service.NewService(store), cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	listener, err := net.Listen("tcp", httpAddr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen on %s: %w", httpAddr, err)
	}
	if cfg.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.MaxConnections)
	}

	return &Server{
		listener: listener,
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: timeouts.ReadHeader,
			IdleTimeout:       timeouts.Idle,
			ErrorLog:          logger,
		},
		store:  store,
		logger: logger,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a task server until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := NewServer(ctx, cfg)
	if err != nil {
		return err
	}
	return server.ListenAndServe(ctx)
}

// ListenAndServe serves HTTP traffic until context cancellation or server
// stop. Storage is closed on return.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil || s.httpServer == nil || s.listener == nil {
		return errors.New("task server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	defer s.closeStore()

	s.logger.Printf("task server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown task http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve task http: %w", err)
	}
}

// Close stops the HTTP server and releases storage.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.closeStore()
}

func (s *Server) closeStore() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Printf("close task store: %v", err)
	}
	s.store = nil
}

func openTaskStore(ctx context.Context, path string) (*taskssqlite.Store, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultDBPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := taskssqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open task sqlite store: %w", err)
	}
	return store, nil
}
