// Package timeouts provides centralized timeout values for gateway operations.
//
// These timeouts are used with context.WithTimeout around database calls,
// upstream fetches and cache lifecycle steps. Keeping them in one place
// makes it easy to adjust them across the application.
//
// Timeouts can be configured at startup using Configure(). If not configured,
// sensible defaults are used.
//
// Guidelines for choosing a timeout:
//   - Ping: health checks and connectivity verification
//   - Fetch: one intercepted request, including upstream fetch and cache I/O
//   - Store: a single cache partition read or write
//   - Install: populating every partition of a new cache generation
//   - Activate: stale partition cleanup and client claim
package timeouts

import (
	"os"
	"sync"
	"time"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing     = 2 * time.Second
	DefaultFetch    = 15 * time.Second
	DefaultStore    = 5 * time.Second
	DefaultInstall  = 2 * time.Minute
	DefaultActivate = 30 * time.Second
)

// mu protects all timeout values from concurrent access.
var mu sync.RWMutex

var (
	ping     = DefaultPing
	fetch    = DefaultFetch
	store    = DefaultStore
	install  = DefaultInstall
	activate = DefaultActivate
)

// Ping returns the timeout for health checks.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Fetch returns the timeout for serving one intercepted request.
func Fetch() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return fetch
}

// Store returns the timeout for a single partition operation.
func Store() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return store
}

// Install returns the timeout for installing a cache generation.
func Install() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return install
}

// Activate returns the timeout for activating a cache generation.
func Activate() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return activate
}

// Config holds timeout configuration values.
// Zero values are ignored (defaults are kept).
type Config struct {
	Ping     time.Duration
	Fetch    time.Duration
	Store    time.Duration
	Install  time.Duration
	Activate time.Duration
}

// Configure sets custom timeout values. Zero values in the config are ignored,
// keeping the current (or default) values. Call it during startup before
// the cache manager is started.
//
// Example:
//
//	timeouts.Configure(timeouts.Config{
//	    Install: 5 * time.Minute, // slow CDN
//	})
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Fetch > 0 {
		fetch = cfg.Fetch
	}
	if cfg.Store > 0 {
		store = cfg.Store
	}
	if cfg.Install > 0 {
		install = cfg.Install
	}
	if cfg.Activate > 0 {
		activate = cfg.Activate
	}
}

// Reset restores all timeouts to their default values.
// Useful for testing.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping = DefaultPing
	fetch = DefaultFetch
	store = DefaultStore
	install = DefaultInstall
	activate = DefaultActivate
}

// ConfigureFromEnv reads timeout configuration from environment variables.
// Environment variables (all optional, defaults used if not set or invalid):
//   - TIMEOUT_PING: e.g., "2s", "500ms"
//   - TIMEOUT_FETCH: e.g., "15s"
//   - TIMEOUT_STORE: e.g., "5s"
//   - TIMEOUT_INSTALL: e.g., "2m"
//   - TIMEOUT_ACTIVATE: e.g., "30s"
//
// Returns the number of timeouts successfully configured from environment.
func ConfigureFromEnv() int {
	mu.Lock()
	defer mu.Unlock()
	configured := 0
	for _, v := range []struct {
		env string
		dst *time.Duration
	}{
		{"TIMEOUT_PING", &ping},
		{"TIMEOUT_FETCH", &fetch},
		{"TIMEOUT_STORE", &store},
		{"TIMEOUT_INSTALL", &install},
		{"TIMEOUT_ACTIVATE", &activate},
	} {
		raw := os.Getenv(v.env)
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			*v.dst = d
			configured++
		}
	}
	return configured
}
