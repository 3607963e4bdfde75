// Package metrics exposes gateway counters on the default Prometheus
// registry.
package metrics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/cache"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/devicefeed"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/snapshot"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "ecogrid_"

	resultSuccess = "success"
	resultError   = "error"
)

var connectionStatuses = []telemetry.ConnectionStatus{
	telemetry.StatusConnecting,
	telemetry.StatusConnected,
	telemetry.StatusDisconnected,
	telemetry.StatusError,
}

var (
	registerOnce sync.Once

	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	reconnectsScheduled *prometheus.CounterVec
	connectionStatus    *prometheus.GaugeVec

	exportTotal *prometheus.CounterVec
)

// Init registers the metrics. Calling it more than once is harmless.
func Init() {
	registerOnce.Do(func() {
		upstreamRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "upstream_requests_total",
				Help: "Upstream API requests by route and status code (0 when no response was received)",
			},
			[]string{"route", "status"},
		)
		upstreamLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "upstream_request_duration_seconds",
				Help:    "Upstream API request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		)

		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Gateway HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "Gateway HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		)

		reconnectsScheduled = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "stream_reconnects_scheduled_total",
				Help: "Push channel reconnects scheduled by site",
			},
			[]string{"site_id"},
		)
		connectionStatus = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "stream_connection_status",
				Help: "1 for the current push channel status of a site, 0 otherwise",
			},
			[]string{"site_id", "status"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Report exports by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			upstreamRequests,
			upstreamLatency,
			httpRequests,
			httpLatency,
			reconnectsScheduled,
			connectionStatus,
			exportTotal,
		)
	})
}

// ObserveUpstream records one upstream round trip. Its signature matches
// apiclient.Observer.
func ObserveUpstream(route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unknown"
	}
	if upstreamRequests != nil {
		upstreamRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	}
	if upstreamLatency != nil {
		upstreamLatency.WithLabelValues(route).Observe(elapsed.Seconds())
	}
}

// ObserveHTTP records one handled gateway request.
func ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	if httpRequests != nil {
		httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(route).Observe(elapsed.Seconds())
	}
}

// IncReconnect counts a scheduled reconnect of siteID.
func IncReconnect(siteID string) {
	if reconnectsScheduled != nil {
		reconnectsScheduled.WithLabelValues(siteID).Inc()
	}
}

// SetConnectionStatus marks status as the current one for siteID.
func SetConnectionStatus(siteID string, status telemetry.ConnectionStatus) {
	if connectionStatus == nil {
		return
	}
	for _, s := range connectionStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		connectionStatus.WithLabelValues(siteID, string(s)).Set(v)
	}
}

// ObserveExport counts an export attempt.
func ObserveExport(format string, err error) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}

// register tolerates collectors that were registered before, so stats
// sources can be attached again after a restart of their owner.
func register(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	var errs []error
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func counterFunc(name, help string, labels prometheus.Labels, fn func() uint64) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name:        metricPrefix + name,
		Help:        help,
		ConstLabels: labels,
	}, func() float64 { return float64(fn()) })
}

func gaugeFunc(name, help string, labels prometheus.Labels, fn func() float64) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        metricPrefix + name,
		Help:        help,
		ConstLabels: labels,
	}, fn)
}

// RegisterCache exposes the counters of the response cache.
func RegisterCache(reg prometheus.Registerer, c *cache.RequestCache) error {
	return register(reg,
		counterFunc("cache_hits_total", "Response cache hits", nil, func() uint64 { return c.Stats().Hits }),
		counterFunc("cache_misses_total", "Response cache misses", nil, func() uint64 { return c.Stats().Misses }),
		counterFunc("cache_fetches_total", "Upstream fetches started by the cache", nil, func() uint64 { return c.Stats().Fetches }),
		counterFunc("cache_fetch_failures_total", "Cache fetches that failed", nil, func() uint64 { return c.Stats().Failures }),
		gaugeFunc("cache_entries", "Stored cache entries", nil, func() float64 { return float64(c.Stats().Entries) }),
	)
}

// RegisterAccumulator exposes the frame counters of one site. The returned
// func removes them again once the site's feed is released.
func RegisterAccumulator(reg prometheus.Registerer, acc *telemetry.Accumulator) (unregister func(), err error) {
	labels := prometheus.Labels{"site_id": acc.SiteID()}
	cs := []prometheus.Collector{
		counterFunc("stream_messages_applied_total", "Push frames applied to the aggregate", labels, func() uint64 { return acc.Stats().Applied }),
		counterFunc("stream_messages_ignored_total", "Push frames for another site", labels, func() uint64 { return acc.Stats().Ignored }),
		counterFunc("stream_messages_malformed_total", "Push frames that did not parse", labels, func() uint64 { return acc.Stats().Malformed }),
	}
	unregister = func() {
		for _, c := range cs {
			reg.Unregister(c)
		}
	}
	return unregister, register(reg, cs...)
}

// RegisterDeviceFeed exposes the device telemetry tracker counters.
func RegisterDeviceFeed(reg prometheus.Registerer, tr *devicefeed.Tracker) error {
	return register(reg,
		counterFunc("device_events_applied_total", "Device readings applied to an overview", nil, func() uint64 { return tr.Stats().Applied }),
		counterFunc("device_events_dropped_total", "Device readings for untracked sites or devices", nil, func() uint64 { return tr.Stats().Dropped }),
		counterFunc("device_events_malformed_total", "Device readings that did not parse", nil, func() uint64 { return tr.Stats().Malformed }),
	)
}

// RegisterPersister exposes the snapshot writer counters.
func RegisterPersister(reg prometheus.Registerer, p *snapshot.Persister) error {
	return register(reg,
		counterFunc("snapshots_saved_total", "Aggregate snapshots written", nil, func() uint64 { return p.Stats().Saved }),
		counterFunc("snapshot_failures_total", "Aggregate snapshot writes that failed", nil, func() uint64 { return p.Stats().Failed }),
		gaugeFunc("snapshots_pending", "Sites with a snapshot waiting to be written", nil, func() float64 { return float64(p.Pending()) }),
	)
}
