// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dalemusser/guiafarma/internal/app/system/offline"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for Guia Farmacêutico.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, cache_version, etc.
//   - Environment variables: GUIAFARMA_MONGO_URI, GUIAFARMA_CACHE_VERSION, etc.
//   - Command-line flags: --mongo_uri, --cache_version, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "guia_farma", Desc: "MongoDB database name"},

	// Offline cache
	{Name: "cache_store", Default: CacheStoreMongo, Desc: "Cache registry backend: 'mongo' or 'memory'"},
	{Name: "cache_prefix", Default: offline.DefaultPrefix, Desc: "Cache partition name prefix"},
	{Name: "cache_version", Default: offline.DefaultVersion, Desc: "Cache generation version; bump to roll out new assets"},
	{Name: "origin_url", Default: "http://localhost:3000/", Desc: "Absolute URL of the site the manifests are fetched from"},
	{Name: "cache_manifest", Default: "", Desc: "JSON file listing static, scripts and images to pre-cache (blank: built-in list)"},
	{Name: "skip_waiting", Default: true, Desc: "Activate a new cache generation as soon as it is installed"},
	{Name: "max_entry_bytes", Default: offline.DefaultMaxEntryBytes, Desc: "Largest response body cached, in bytes"},

	// Client sessions
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Client cookie signing key (must be strong in production)"},
	{Name: "session_name", Default: "guiafarma-client", Desc: "Client cookie name"},
	{Name: "session_domain", Default: "", Desc: "Client cookie domain (blank means current host)"},

	{Name: "trust_proxy_headers", Default: false, Desc: "Rate limit by X-Forwarded-For (enable only behind a proxy that sets it)"},

	// Push simulator
	{Name: "push_simulator_interval", Default: "5m", Desc: "How often the push simulator rolls (0 disables it)"},
	{Name: "push_simulator_chance", Default: "0.05", Desc: "Probability in [0,1] that a roll sends a push"},

	{Name: "metrics_enabled", Default: true, Desc: "Expose Prometheus metrics at /metrics"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, GUIAFARMA_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "GUIAFARMA", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	chance, err := strconv.ParseFloat(appValues.String("push_simulator_chance"), 64)
	if err != nil {
		return nil, AppConfig{}, fmt.Errorf("push_simulator_chance: %w", err)
	}

	appCfg := AppConfig{
		MongoURI:      appValues.String("mongo_uri"),
		MongoDatabase: appValues.String("mongo_database"),

		// Offline cache
		CacheStore:    appValues.String("cache_store"),
		CachePrefix:   appValues.String("cache_prefix"),
		CacheVersion:  appValues.String("cache_version"),
		OriginURL:     appValues.String("origin_url"),
		CacheManifest: appValues.String("cache_manifest"),
		SkipWaiting:   appValues.Bool("skip_waiting"),
		MaxEntryBytes: int64(appValues.Int("max_entry_bytes")),

		// Client sessions
		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),

		TrustProxyHeaders: appValues.Bool("trust_proxy_headers"),

		// Push simulator
		PushSimulatorInterval: appValues.Duration("push_simulator_interval", 5*time.Minute),
		PushSimulatorChance:   chance,

		MetricsEnabled: appValues.Bool("metrics_enabled"),
	}

	return coreCfg, appCfg, nil
}

// cacheConfig builds the offline cache generation from the app config.
func cacheConfig(appCfg AppConfig) (offline.Config, error) {
	cfg := offline.DefaultConfig(appCfg.OriginURL)
	cfg.Prefix = appCfg.CachePrefix
	cfg.Version = appCfg.CacheVersion
	cfg.SkipWaiting = appCfg.SkipWaiting
	if appCfg.MaxEntryBytes > 0 {
		cfg.MaxEntryBytes = appCfg.MaxEntryBytes
	}
	if appCfg.CacheManifest != "" {
		m, err := offline.LoadManifests(appCfg.CacheManifest)
		if err != nil {
			return cfg, err
		}
		cfg.Manifests = m
	}
	return cfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// The MongoDB URI is only checked when the mongo cache store is selected;
// the cache generation itself is validated the same way Install would.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	switch appCfg.CacheStore {
	case CacheStoreMongo:
		if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
			logger.Error("invalid MongoDB URI", zap.Error(err))
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
		if appCfg.MongoDatabase == "" {
			return errors.New("mongo_database is required when cache_store is 'mongo'")
		}
	case CacheStoreMemory:
	default:
		return fmt.Errorf("cache_store must be 'mongo' or 'memory', got %q", appCfg.CacheStore)
	}

	cacheCfg, err := cacheConfig(appCfg)
	if err != nil {
		logger.Error("failed to load cache manifest", zap.Error(err))
		return err
	}
	if err := cacheCfg.Validate(); err != nil {
		logger.Error("invalid offline cache config", zap.Error(err))
		return fmt.Errorf("invalid offline cache config: %w", err)
	}

	if appCfg.PushSimulatorInterval < 0 {
		return errors.New("push_simulator_interval must not be negative")
	}
	if appCfg.PushSimulatorChance < 0 || appCfg.PushSimulatorChance > 1 {
		return fmt.Errorf("push_simulator_chance must be within [0,1], got %v", appCfg.PushSimulatorChance)
	}
	return nil
}
