// internal/app/bootstrap/services.go
package bootstrap

import (
	"github.com/dalemusser/guiafarma/internal/app/system/clientsession"
	"github.com/dalemusser/guiafarma/internal/app/system/offline"
	"github.com/dalemusser/guiafarma/internal/app/system/workers"
	"github.com/prometheus/client_golang/prometheus"
)

// Services are the long-lived app components built in Startup and used by
// BuildHandler and Shutdown.
type Services struct {
	Metrics  *prometheus.Registry
	Offline  *offline.Manager
	Sessions *clientsession.Manager

	Installer *workers.CacheInstaller
	PushSim   *workers.PushSimulator // nil when disabled
}
