// internal/app/system/limits/limits.go
package limits

import "time"

// Request body size limits for the offline endpoints.
// These limits help prevent memory exhaustion from oversized requests.
const (
	// MaxJSONBody is the maximum size of a JSON control request
	// (messages, clicks, permission decisions, sync).
	MaxJSONBody = 4 << 10 // 4 KB

	// MaxPushPayload is the maximum size of a push payload.
	MaxPushPayload = 4 << 10 // 4 KB

	// MaxFetchBody is the maximum request body forwarded by /offline/fetch.
	MaxFetchBody = 1 << 20 // 1 MB
)

// Push endpoint rate limit, per client IP.
const (
	PushRequests = 10
	PushWindow   = time.Minute
)
