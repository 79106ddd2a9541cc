// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Limiter is a fixed-window rate limiter keyed by an arbitrary string.
// Windows expire on their own. It is safe for concurrent use.
type Limiter struct {
	// TrustForwarded makes Middleware key on X-Forwarded-For / X-Real-IP.
	// Set it only when every request arrives through a proxy that
	// overwrites those headers; otherwise clients pick their own key.
	TrustForwarded bool

	mu       sync.Mutex
	windows  *gocache.Cache
	limit    int           // max requests per window
	duration time.Duration // window duration
}

// New creates a new rate limiter.
// limit: maximum requests allowed per duration
// duration: the time window for counting requests
func New(limit int, duration time.Duration) *Limiter {
	return &Limiter{
		windows:  gocache.New(duration, duration*2),
		limit:    limit,
		duration: duration,
	}
}

// Allow checks if a request from the given key should be allowed.
// Returns true if allowed, false if rate limited.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.windows.Get(key)
	if !ok {
		l.windows.Set(key, 1, l.duration)
		return true
	}
	if n.(int) >= l.limit {
		return false
	}
	// Increment keeps the window's original expiry.
	_ = l.windows.Increment(key, 1)
	return true
}

// Remaining returns how many requests are left for this key in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.windows.Get(key)
	if !ok {
		return l.limit
	}
	if remaining := l.limit - n.(int); remaining > 0 {
		return remaining
	}
	return 0
}

// Reset clears the rate limit for a specific key.
func (l *Limiter) Reset(key string) {
	l.windows.Delete(key)
}

// Middleware rejects requests over the limit with 429, keyed by client IP.
func (l *Limiter) Middleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r, l.TrustForwarded)
			if !l.Allow(ip) {
				logger.Warn("rate limited", zap.String("ip", ip), zap.String("path", r.URL.Path))
				w.Header().Set("Retry-After", strconv.Itoa(int(l.duration.Seconds())))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the client IP from an HTTP request.
// With trustForwarded it prefers X-Forwarded-For (first entry) and then
// X-Real-IP; otherwise, and when those are absent, it uses RemoteAddr.
func ClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	// Fall back to RemoteAddr (strip port)
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}
	return ip
}
