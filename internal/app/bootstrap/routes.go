// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	healthfeature "github.com/dalemusser/guiafarma/internal/app/features/health"
	offlinefeature "github.com/dalemusser/guiafarma/internal/app/features/offline"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/pantry/fileserver"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. At this point you have access to:
//   - coreCfg: WAFFLE core configuration (ports, env, timeouts, etc.)
//   - appCfg: app-specific configuration defined in AppConfig
//   - deps: any DB or backend clients bundled in DBDeps
//   - logger: the fully configured zap.Logger for this app
//
// Guia Farmacêutico mounts the health check, the site's static assets, the
// offline cache endpoints and, when enabled, Prometheus metrics.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	svc := deps.Services
	if svc == nil || svc.Offline == nil || svc.Sessions == nil {
		return nil, errors.New("build handler: services not started")
	}

	r := chi.NewRouter()

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, svc.Offline, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Static assets with pre-compressed file support (gzip/brotli)
	r.Handle("/static/*", fileserver.Handler("/static", "public"))

	// Offline cache: fetch routing, messages, notifications, sync, status
	offlineHandler := offlinefeature.NewHandler(svc.Offline, svc.Sessions, logger)
	offlineHandler.PushLimit.TrustForwarded = appCfg.TrustProxyHeaders
	r.Mount("/offline", offlinefeature.Routes(offlineHandler))

	if appCfg.MetricsEnabled && svc.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(svc.Metrics, promhttp.HandlerOpts{}))
	}

	return r, nil
}
