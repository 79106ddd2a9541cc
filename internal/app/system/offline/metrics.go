// internal/app/system/offline/metrics.go
package offline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Response sources reported in metrics and the X-Offline-Source header.
const (
	SourceCache       = "cache"
	SourceNetwork     = "network"
	SourceSynthetic   = "synthetic"
	SourcePassthrough = "passthrough"
)

// Metrics holds the cache manager's prometheus collectors.
type Metrics struct {
	Requests          *prometheus.CounterVec
	CacheWriteErrors  *prometheus.CounterVec
	Installs          *prometheus.CounterVec
	PartitionsDeleted prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guiafarma",
			Subsystem: "offline",
			Name:      "requests_total",
			Help:      "Intercepted requests by class, strategy and response source.",
		}, []string{"class", "strategy", "source"}),
		CacheWriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guiafarma",
			Subsystem: "offline",
			Name:      "cache_write_errors_total",
			Help:      "Failed writes to a cache partition.",
		}, []string{"partition"}),
		Installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guiafarma",
			Subsystem: "offline",
			Name:      "installs_total",
			Help:      "Generation install attempts by result.",
		}, []string{"result"}),
		PartitionsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "guiafarma",
			Subsystem: "offline",
			Name:      "partitions_deleted_total",
			Help:      "Stale partitions removed during activation.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.CacheWriteErrors, m.Installs, m.PartitionsDeleted)
	}
	return m
}
