package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Conventional hosting variables honored alongside the prefixed ones.
const (
	// PortEnv overrides the listen port.
	PortEnv = "PORT"
	// FrontendURLEnv overrides the origin allowed by CORS.
	FrontendURLEnv = "FRONTEND_URL"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ApplyPortOverride replaces the port of addr with the value of PORT when it
// is set to a valid TCP port. The host part of addr is preserved.
func ApplyPortOverride(addr string) (string, error) {
	raw := strings.TrimSpace(os.Getenv(PortEnv))
	if raw == "" {
		return addr, nil
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port < 0 || port > 65535 {
		return "", fmt.Errorf("parse env: invalid %s %q", PortEnv, raw)
	}
	host := ""
	if strings.TrimSpace(addr) != "" {
		if h, _, splitErr := net.SplitHostPort(addr); splitErr == nil {
			host = h
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// ApplyFrontendURLOverride returns the value of FRONTEND_URL when it is set,
// otherwise origin.
func ApplyFrontendURLOverride(origin string) string {
	if raw := strings.TrimSpace(os.Getenv(FrontendURLEnv)); raw != "" {
		return raw
	}
	return origin
}
