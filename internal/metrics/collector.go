// Package metrics exposes engine, feed and API telemetry through a private
// Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"token_sync/internal/domain"
	"token_sync/internal/event"
	"token_sync/internal/infra"
)

// Collector provides metrics collection for the whole process.
type Collector struct {
	registry *prometheus.Registry

	// Engine metrics
	eventsProcessed *prometheus.CounterVec
	eventLatency    *prometheus.HistogramVec
	updatesDropped  *prometheus.CounterVec
	flashesRecorded prometheus.Counter
	flashesSwept    prometheus.Counter
	tokensEvicted   *prometheus.CounterVec
	tokens          *prometheus.GaugeVec
	inboxDepth      prometheus.Gauge

	// Feed metrics
	feedMessages     *prometheus.CounterVec
	feedDecodeErrors prometheus.Counter
	breakerState     *prometheus.GaugeVec

	// API metrics
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
	streamClients prometheus.Gauge
	rateLimited   prometheus.Counter

	uptime    prometheus.GaugeFunc
	startTime time.Time
}

// NewCollector creates a collector. An empty namespace selects "token_sync".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "token_sync"
	}

	c := &Collector{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}

	c.eventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "events_processed_total",
			Help:      "Events applied by the sequencer",
		},
		[]string{"type"},
	)

	c.eventLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "event_duration_seconds",
			Help:      "Time to apply one event",
			Buckets:   prometheus.ExponentialBuckets(0.000005, 2, 14), // 5us to ~40ms
		},
		[]string{"type"},
	)

	c.updatesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_dropped_total",
			Help:      "Records or events dropped without changing state",
		},
		[]string{"reason"},
	)

	c.flashesRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "highlight",
		Name:      "recorded_total",
		Help:      "Flashes recorded",
	})

	c.flashesSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "highlight",
		Name:      "swept_total",
		Help:      "Flashes removed by the sweep",
	})

	c.tokensEvicted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "evictions_total",
			Help:      "Tokens evicted to respect the category capacity",
		},
		[]string{"category"},
	)

	c.tokens = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "tokens",
			Help:      "Tokens currently held per category",
		},
		[]string{"category"},
	)

	c.inboxDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "inbox_depth",
		Help:      "Events waiting in the sequencer inbox",
	})

	c.feedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_total",
			Help:      "Messages emitted by the feed source",
		},
		[]string{"type"},
	)

	c.feedDecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "decode_errors_total",
		Help:      "Upstream messages that could not be decoded",
	})

	c.breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"name"},
	)

	c.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	c.httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	c.streamClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "stream_clients",
		Help:      "Connected change stream clients",
	})

	c.rateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter",
	})

	c.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the collector was created",
		},
		func() float64 { return time.Since(c.startTime).Seconds() },
	)

	c.registry.MustRegister(
		c.eventsProcessed,
		c.eventLatency,
		c.updatesDropped,
		c.flashesRecorded,
		c.flashesSwept,
		c.tokensEvicted,
		c.tokens,
		c.inboxDepth,
		c.feedMessages,
		c.feedDecodeErrors,
		c.breakerState,
		c.httpRequests,
		c.httpLatency,
		c.streamClients,
		c.rateLimited,
		c.uptime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Engine recorder

func (c *Collector) EventProcessed(t event.Type, d time.Duration) {
	c.eventsProcessed.WithLabelValues(t.String()).Inc()
	c.eventLatency.WithLabelValues(t.String()).Observe(d.Seconds())
}

func (c *Collector) UpdateDropped(reason string) {
	c.updatesDropped.WithLabelValues(reason).Inc()
}

func (c *Collector) FlashRecorded() { c.flashesRecorded.Inc() }

func (c *Collector) FlashesSwept(n int) {
	if n > 0 {
		c.flashesSwept.Add(float64(n))
	}
}

func (c *Collector) TokenEvicted(cat domain.Category) {
	c.tokensEvicted.WithLabelValues(string(cat)).Inc()
}

func (c *Collector) StoreSize(counts map[domain.Category]int) {
	for cat, n := range counts {
		c.tokens.WithLabelValues(string(cat)).Set(float64(n))
	}
}

func (c *Collector) InboxDepth(n int) { c.inboxDepth.Set(float64(n)) }

// Feed recorder

func (c *Collector) FeedMessage(t event.Type) {
	c.feedMessages.WithLabelValues(t.String()).Inc()
}

func (c *Collector) FeedDecodeError() { c.feedDecodeErrors.Inc() }

// BreakerStateChanged matches infra.CircuitBreakerConfig.OnStateChange.
func (c *Collector) BreakerStateChanged(name string, _, to infra.BreakerState) {
	c.breakerState.WithLabelValues(name).Set(float64(to))
}

// API recorder

func (c *Collector) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, route, httpStatus(status)).Inc()
	c.httpLatency.WithLabelValues(route).Observe(d.Seconds())
}

func (c *Collector) StreamClients(n int) { c.streamClients.Set(float64(n)) }

func (c *Collector) RateLimited() { c.rateLimited.Inc() }

func httpStatus(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
