// Package timeouts defines shared timeout constants used by the HTTP host.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Idle limits how long keep-alive connections stay open between requests.
const Idle = 60 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// StoreBusy is the SQLite busy timeout applied to every connection.
const StoreBusy = 5 * time.Second
