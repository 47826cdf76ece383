package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "optisource"

// Prometheus implements [RunHooks], [CacheHooks] and [HTTPHooks] by
// recording counters and histograms. Create it with [NewPrometheus].
type Prometheus struct {
	requests    *prometheus.CounterVec
	responses   *prometheus.HistogramVec
	httpErrors  *prometheus.CounterVec
	retries     *prometheus.CounterVec
	throttled   prometheus.Counter
	pending     prometheus.Gauge
	cacheEvents *prometheus.CounterVec
	cacheBytes  *prometheus.CounterVec
	states      *prometheus.CounterVec
	endpoints   *prometheus.HistogramVec
	links       *prometheus.CounterVec
	runs        *prometheus.HistogramVec
}

// NewPrometheus creates the collectors and registers them with reg.
// It panics if registration fails, like prometheus.MustRegister.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Outgoing CMS requests by method and host.",
		}, []string{"method", "host"}),
		responses: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_duration_seconds",
			Help:      "CMS response latency by method and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "CMS requests that failed without a response.",
		}, []string{"method", "host"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_retries_total",
			Help:      "Retries scheduled after transient failures.",
		}, []string{"method", "host"}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_throttled_total",
			Help:      "Requests that waited for a free concurrency slot.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_pending_requests",
			Help:      "Pending request count observed at the last throttle event.",
		}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Cache hits, misses and writes by key type.",
		}, []string{"key_type", "event"}),
		cacheBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_written_bytes_total",
			Help:      "Bytes written to the cache by key type.",
		}, []string{"key_type"}),
		states: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_state_transitions_total",
			Help:      "Run state machine transitions by target state.",
		}, []string{"state"}),
		endpoints: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "endpoint_duration_seconds",
			Help:      "Time to fetch and expand one endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node_name", "result"}),
		links: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_expanded_total",
			Help:      "Content link resolutions by field and result.",
		}, []string{"node_name", "field", "result"}),
		runs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of complete sourcing runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}
	reg.MustRegister(
		p.requests, p.responses, p.httpErrors, p.retries, p.throttled, p.pending,
		p.cacheEvents, p.cacheBytes, p.states, p.endpoints, p.links, p.runs,
	)
	return p
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// OnRequest implements HTTPHooks.
func (p *Prometheus) OnRequest(_ context.Context, method, host, _ string) {
	p.requests.WithLabelValues(method, host).Inc()
}

// OnResponse implements HTTPHooks.
func (p *Prometheus) OnResponse(_ context.Context, method, _, _ string, statusCode int, d time.Duration) {
	p.responses.WithLabelValues(method, strconv.Itoa(statusCode)).Observe(d.Seconds())
}

// OnError implements HTTPHooks.
func (p *Prometheus) OnError(_ context.Context, method, host, _ string, _ error) {
	p.httpErrors.WithLabelValues(method, host).Inc()
}

// OnRetry implements HTTPHooks.
func (p *Prometheus) OnRetry(_ context.Context, method, host, _ string, _ int, _ error) {
	p.retries.WithLabelValues(method, host).Inc()
}

// OnThrottle implements HTTPHooks.
func (p *Prometheus) OnThrottle(_ context.Context, _ string, pending int) {
	p.throttled.Inc()
	p.pending.Set(float64(pending))
}

// OnCacheHit implements CacheHooks.
func (p *Prometheus) OnCacheHit(_ context.Context, keyType string) {
	p.cacheEvents.WithLabelValues(keyType, "hit").Inc()
}

// OnCacheMiss implements CacheHooks.
func (p *Prometheus) OnCacheMiss(_ context.Context, keyType string) {
	p.cacheEvents.WithLabelValues(keyType, "miss").Inc()
}

// OnCacheSet implements CacheHooks.
func (p *Prometheus) OnCacheSet(_ context.Context, keyType string, size int) {
	p.cacheEvents.WithLabelValues(keyType, "set").Inc()
	p.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

// OnStateChange implements RunHooks.
func (p *Prometheus) OnStateChange(_ context.Context, _, _, to string) {
	p.states.WithLabelValues(to).Inc()
}

// OnEndpointComplete implements RunHooks.
func (p *Prometheus) OnEndpointComplete(_ context.Context, nodeName, _ string, d time.Duration, err error) {
	p.endpoints.WithLabelValues(nodeName, result(err)).Observe(d.Seconds())
}

// OnLinkExpanded implements RunHooks.
func (p *Prometheus) OnLinkExpanded(_ context.Context, nodeName, field string, err error) {
	p.links.WithLabelValues(nodeName, field, result(err)).Inc()
}

// OnRunComplete implements RunHooks.
func (p *Prometheus) OnRunComplete(_ context.Context, _ string, _, failed int, d time.Duration) {
	label := "ok"
	if failed > 0 {
		label = "partial"
	}
	p.runs.WithLabelValues(label).Observe(d.Seconds())
}

var (
	_ RunHooks   = (*Prometheus)(nil)
	_ CacheHooks = (*Prometheus)(nil)
	_ HTTPHooks  = (*Prometheus)(nil)
)
