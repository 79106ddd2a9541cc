// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/guiafarma/internal/app/store/offlinecache"
	"github.com/dalemusser/guiafarma/internal/app/system/clientsession"
	"github.com/dalemusser/guiafarma/internal/app/system/notify"
	"github.com/dalemusser/guiafarma/internal/app/system/offline"
	"github.com/dalemusser/guiafarma/internal/app/system/timeouts"
	"github.com/dalemusser/guiafarma/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// installRetry is how long the cache installer waits between attempts.
const installRetry = 30 * time.Second

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built.
//
// It builds the offline cache manager on the configured registry, starts its
// dispatch loop, and hands the configured generation to the cache installer.
// The install runs in the background because the origin may be this very
// server, which is not listening yet.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Services == nil {
		return errors.New("startup: DBDeps.Services is nil; ConnectDB must allocate it")
	}
	timeouts.ConfigureFromEnv()

	svc := deps.Services
	svc.Metrics = prometheus.NewRegistry()
	svc.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var registry offline.Registry
	if deps.MongoDatabase != nil {
		registry = offlinecache.New(deps.MongoDatabase)
	} else {
		registry = offline.NewMemoryRegistry()
	}

	cacheCfg, err := cacheConfig(appCfg)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: timeouts.Fetch()}
	svc.Offline = offline.NewManager(offline.Options{
		Registry: registry,
		Fetcher:  offline.NewHTTPFetcher(client, cacheCfg.Origin, cacheCfg.MaxEntryBytes),
		Notifier: notify.New(logger.Named("notify")),
		Logger:   logger.Named("offline"),
		Metrics:  offline.NewMetrics(svc.Metrics),
		Origin:   cacheCfg.Origin,
	})
	svc.Offline.Start()

	secure := coreCfg.Env == "prod"
	sessions, err := clientsession.New(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, secure, logger)
	if err != nil {
		logger.Error("client session init failed", zap.Error(err))
		svc.Offline.Stop()
		return err
	}
	svc.Sessions = sessions

	svc.Installer = workers.NewCacheInstaller(svc.Offline, cacheCfg, logger, installRetry)
	svc.Installer.Start()

	if appCfg.PushSimulatorInterval > 0 && appCfg.PushSimulatorChance > 0 {
		svc.PushSim = workers.NewPushSimulator(svc.Offline, logger,
			appCfg.PushSimulatorInterval, appCfg.PushSimulatorChance)
		svc.PushSim.Start()
	}

	logger.Info("offline cache configured",
		zap.String("store", appCfg.CacheStore),
		zap.String("origin", cacheCfg.Origin),
		zap.Strings("partitions", cacheCfg.PartitionNames()))
	return nil
}
