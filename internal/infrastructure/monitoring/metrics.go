package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Record methods are safe on a nil
// receiver so components can run without monitoring.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Idle metrics
	IdleTransitions *prometheus.CounterVec
	IdleDuration    prometheus.Histogram
	SessionsIdle    prometheus.Gauge

	// Session metrics
	SessionsActive prometheus.Gauge

	// Renderer metrics
	RendererTransitions *prometheus.CounterVec
	FramesRendered      prometheus.Counter
	ContextLosses       prometheus.Counter

	// Revalidation metrics
	RevalidationDecisions *prometheus.CounterVec
	RetryDelay            prometheus.Histogram
	FocusThrottled        prometheus.Counter

	// Producer metrics
	ProducerOutcomes *prometheus.CounterVec
	ProducerDuration prometheus.Histogram

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON health endpoint
type Snapshot struct {
	TotalRequests   int64 `json:"total_requests"`
	TotalErrors     int64 `json:"total_errors"`
	IdleStarts      int64 `json:"idle_starts"`
	IdleEnds        int64 `json:"idle_ends"`
	Suppressed      int64 `json:"suppressed"`
	Retried         int64 `json:"retried"`
	Surfaced        int64 `json:"surfaced"`
	ProducerTimeout int64 `json:"producer_timeouts"`
}

// NewMetrics creates a metrics collector on its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coordinator_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		IdleTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_idle_transitions_total",
				Help: "Idle lifecycle broadcasts by kind and reason",
			},
			[]string{"kind", "reason"},
		),
		IdleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "coordinator_idle_duration_seconds",
				Help:    "Length of completed idle periods",
				Buckets: []float64{5, 30, 60, 300, 900, 1800, 3600, 14400},
			},
		),
		SessionsIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coordinator_sessions_idle",
				Help: "Number of sessions currently idle",
			},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coordinator_sessions_active",
				Help: "Number of started sessions",
			},
		),

		RendererTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_renderer_transitions_total",
				Help: "Renderer surface state transitions",
			},
			[]string{"from", "to"},
		),
		FramesRendered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "coordinator_renderer_frames_total",
				Help: "Total frames rendered",
			},
		),
		ContextLosses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "coordinator_renderer_context_losses_total",
				Help: "Graphics context losses observed",
			},
		),

		RevalidationDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_revalidation_decisions_total",
				Help: "Revalidation failure decisions by verdict and error source",
			},
			[]string{"verdict", "source"},
		),
		RetryDelay: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "coordinator_revalidation_retry_delay_seconds",
				Help:    "Backoff delay applied before a revalidation retry",
				Buckets: []float64{1, 2, 4, 8, 16, 30},
			},
		),
		FocusThrottled: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "coordinator_revalidation_focus_throttled_total",
				Help: "Focus revalidations dropped by the throttle",
			},
		),

		ProducerOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_producer_outcomes_total",
				Help: "Bounded producer outcomes",
			},
			[]string{"outcome"},
		),
		ProducerDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "coordinator_producer_duration_seconds",
				Help:    "Bounded producer run time",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coordinator_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "coordinator_uptime_seconds",
			Help: "Coordinator uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)
	reg.MustRegister(collectors.NewGoCollector())

	return m
}

// Handler returns the Prometheus exposition handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordIdleStart records a transition into idle
func (m *Metrics) RecordIdleStart(reason string) {
	if m == nil {
		return
	}
	m.IdleTransitions.WithLabelValues("idle-start", reason).Inc()
	m.SessionsIdle.Inc()

	m.mu.Lock()
	m.snapshot.IdleStarts++
	m.mu.Unlock()
}

// RecordIdleEnd records a transition out of idle
func (m *Metrics) RecordIdleEnd(reason string, idleFor time.Duration) {
	if m == nil {
		return
	}
	m.IdleTransitions.WithLabelValues("idle-end", reason).Inc()
	m.IdleDuration.Observe(idleFor.Seconds())
	m.SessionsIdle.Dec()

	m.mu.Lock()
	m.snapshot.IdleEnds++
	m.mu.Unlock()
}

// DropIdle releases an idle session from the gauge without a transition,
// used when a session is torn down while idle
func (m *Metrics) DropIdle() {
	if m == nil {
		return
	}
	m.SessionsIdle.Dec()
}

// RecordRendererTransition records a surface state change
func (m *Metrics) RecordRendererTransition(from, to string) {
	if m == nil {
		return
	}
	m.RendererTransitions.WithLabelValues(from, to).Inc()
	if to == "context_lost" {
		m.ContextLosses.Inc()
	}
}

// IncFrames counts a rendered frame
func (m *Metrics) IncFrames() {
	if m == nil {
		return
	}
	m.FramesRendered.Inc()
}

// RecordRevalidationDecision records a policy verdict
func (m *Metrics) RecordRevalidationDecision(verdict, source string, delay time.Duration) {
	if m == nil {
		return
	}
	m.RevalidationDecisions.WithLabelValues(verdict, source).Inc()

	m.mu.Lock()
	switch verdict {
	case "suppress":
		m.snapshot.Suppressed++
	case "retry":
		m.snapshot.Retried++
		m.RetryDelay.Observe(delay.Seconds())
	case "surface":
		m.snapshot.Surfaced++
	}
	m.mu.Unlock()
}

// IncFocusThrottled counts a dropped focus revalidation
func (m *Metrics) IncFocusThrottled() {
	if m == nil {
		return
	}
	m.FocusThrottled.Inc()
}

// RecordProducer records how a bounded producer settled
func (m *Metrics) RecordProducer(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ProducerOutcomes.WithLabelValues(outcome).Inc()
	m.ProducerDuration.Observe(duration.Seconds())

	if outcome == "timeout" {
		m.mu.Lock()
		m.snapshot.ProducerTimeout++
		m.mu.Unlock()
	}
}

// SetSessionsActive sets the number of started sessions
func (m *Metrics) SetSessionsActive(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// GetSnapshot returns a copy of the current values
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Uptime returns time since the collector was created
func (m *Metrics) Uptime() time.Duration {
	if m == nil {
		return 0
	}
	return time.Since(m.startTime)
}
