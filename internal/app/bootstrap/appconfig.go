// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - CORS settings
//   - Request body size limits
//   - Database connection timeouts
//
// AppConfig carries what is specific to the Guia Farmacêutico offline
// cache: where cached responses live, which generation to install, and
// how browsers are identified.
type AppConfig struct {
	// MongoDB connection configuration (only used if CacheStore is "mongo")
	MongoURI      string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase string // Database name within MongoDB

	// Offline cache configuration
	CacheStore    string // Registry backend: "mongo" or "memory"
	CachePrefix   string // Partition name prefix (e.g., farma)
	CacheVersion  string // Generation version (e.g., v2)
	OriginURL     string // Absolute site URL manifests resolve against
	CacheManifest string // Optional JSON manifest file; blank means the built-in site list
	SkipWaiting   bool   // Activate a new generation as soon as it is installed
	MaxEntryBytes int64  // Largest response body that is buffered and cached

	// Client session configuration
	SessionKey    string // Secret key for signing client cookies (must be strong in production)
	SessionName   string // Cookie name (default: guiafarma-client)
	SessionDomain string // Cookie domain (blank means current host)

	// Key the push rate limit on X-Forwarded-For / X-Real-IP.
	// Only safe behind a proxy that overwrites those headers.
	TrustProxyHeaders bool

	// Push simulator (disabled when the interval is 0)
	PushSimulatorInterval time.Duration
	PushSimulatorChance   float64

	// Expose /metrics
	MetricsEnabled bool
}

// Cache store backends.
const (
	CacheStoreMongo  = "mongo"
	CacheStoreMemory = "memory"
)

// usesMongo reports whether the config needs a MongoDB connection.
func (c AppConfig) usesMongo() bool {
	return c.CacheStore == CacheStoreMongo
}
