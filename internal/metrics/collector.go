package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/objectfs/pagestate/pkg/types"
)

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
	Labels    map[string]string `yaml:"labels"`
}

// Collector records page state events as Prometheus metrics. It implements
// types.MetricsRecorder; a disabled collector drops every event.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	storeOperations *prometheus.CounterVec
	storeDuration   *prometheus.HistogramVec
	evictions       *prometheus.CounterVec
	versionsExpired prometheus.Counter
	renderDecisions *prometheus.CounterVec
	tableBytes      prometheus.Gauge
	tablePages      prometheus.Gauge
	activeSessions  prometheus.Gauge
}

var _ types.MetricsRecorder = (*Collector)(nil)

// NewCollector creates a new metrics collector
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Namespace: "pagestate",
		}
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	c := &Collector{
		config:   config,
		registry: prometheus.NewRegistry(),
	}
	c.initMetrics()

	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}

// Enabled reports whether events are recorded.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// Registry returns the Prometheus registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the Prometheus exposition format. A disabled collector
// answers 404.
func (c *Collector) Handler() http.Handler {
	if !c.config.Enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordStoreOperation records one page store call.
func (c *Collector) RecordStoreOperation(operation string, duration time.Duration, success bool) {
	if !c.config.Enabled {
		return
	}
	result := "success"
	if !success {
		result = "error"
	}
	c.storeOperations.WithLabelValues(operation, result).Inc()
	c.storeDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEviction records pages evicted by policy.
func (c *Collector) RecordEviction(policy string, pages int) {
	if !c.config.Enabled || pages <= 0 {
		return
	}
	c.evictions.WithLabelValues(policy).Add(float64(pages))
}

// RecordVersionExpired records one expired undo version.
func (c *Collector) RecordVersionExpired() {
	if !c.config.Enabled {
		return
	}
	c.versionsExpired.Inc()
}

// RecordRenderDecision records the action chosen for one request.
func (c *Collector) RecordRenderDecision(action string) {
	if !c.config.Enabled {
		return
	}
	c.renderDecisions.WithLabelValues(action).Inc()
}

// UpdateTableSize applies a change in table contents. Gauges are summed over
// all sessions.
func (c *Collector) UpdateTableSize(deltaPages int, deltaBytes int64) {
	if !c.config.Enabled {
		return
	}
	c.tablePages.Add(float64(deltaPages))
	c.tableBytes.Add(float64(deltaBytes))
}

// UpdateActiveSessions sets the number of live sessions.
func (c *Collector) UpdateActiveSessions(count int) {
	if !c.config.Enabled {
		return
	}
	c.activeSessions.Set(float64(count))
}

func (c *Collector) initMetrics() {
	ns, sub, labels := c.config.Namespace, c.config.Subsystem, prometheus.Labels(c.config.Labels)

	c.storeOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "page_store_operations_total",
			Help:        "Total number of page store operations",
			ConstLabels: labels,
		},
		[]string{"operation", "result"},
	)

	c.storeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "page_store_operation_duration_seconds",
			Help:        "Duration of page store operations in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.0001, 2, 15), // 100µs to ~1.6s
			ConstLabels: labels,
		},
		[]string{"operation"},
	)

	c.evictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "page_evictions_total",
			Help:        "Total number of pages evicted from page tables",
			ConstLabels: labels,
		},
		[]string{"policy"},
	)

	c.versionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "versions_expired_total",
			Help:        "Total number of undo versions dropped from history",
			ConstLabels: labels,
		},
	)

	c.renderDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "render_decisions_total",
			Help:        "Total number of render decisions by action",
			ConstLabels: labels,
		},
		[]string{"action"},
	)

	c.tableBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Subsystem:   sub,
		Name:        "page_table_bytes",
		Help:        "Bytes held in page tables across all sessions",
		ConstLabels: labels,
	})

	c.tablePages = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Subsystem:   sub,
		Name:        "page_table_pages",
		Help:        "Pages held in page tables across all sessions",
		ConstLabels: labels,
	})

	c.activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Subsystem:   sub,
		Name:        "sessions_active",
		Help:        "Number of live session page stores",
		ConstLabels: labels,
	})
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.storeOperations,
		c.storeDuration,
		c.evictions,
		c.versionsExpired,
		c.renderDecisions,
		c.tableBytes,
		c.tablePages,
		c.activeSessions,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}
