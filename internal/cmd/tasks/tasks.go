// Package tasks parses task service flags and launches the service.
package tasks

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/taskboard/internal/platform/cmd"
	"github.com/louisbranch/taskboard/internal/platform/config"
	server "github.com/louisbranch/taskboard/internal/services/tasks/app"
)

// Config holds task command configuration.
type Config struct {
	HTTPAddr       string `env:"TASKBOARD_HTTP_ADDR" envDefault:":5000"`
	DBPath         string `env:"TASKBOARD_DB_PATH" envDefault:"data/tasks.db"`
	FrontendURL    string `env:"TASKBOARD_FRONTEND_URL" envDefault:"http://localhost:5173"`
	MaxConnections int    `env:"TASKBOARD_MAX_CONNECTIONS" envDefault:"0"`
}

// ParseConfig parses environment and flags into Config. PORT, when set,
// replaces the port of the environment address and FRONTEND_URL replaces the
// CORS origin; flags win over both.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	addr, err := config.ApplyPortOverride(cfg.HTTPAddr)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTPAddr = addr
	cfg.FrontendURL = config.ApplyFrontendURLOverride(cfg.FrontendURL)

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.FrontendURL, "frontend-url", cfg.FrontendURL, "Origin allowed by CORS")
	fs.IntVar(&cfg.MaxConnections, "max-connections", cfg.MaxConnections, "Maximum concurrent connections (0 for unlimited)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the task HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTasks, func(ctx context.Context) error {
		return server.Run(ctx, server.Config{
			HTTPAddr:       cfg.HTTPAddr,
			DBPath:         cfg.DBPath,
			FrontendURL:    cfg.FrontendURL,
			MaxConnections: cfg.MaxConnections,
		})
	})
}
