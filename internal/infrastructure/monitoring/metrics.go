package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Lane metrics
	EventsProcessed *prometheus.CounterVec
	EventFaults     *prometheus.CounterVec
	EventDuration   *prometheus.HistogramVec
	QueueDepth      prometheus.Gauge

	// Restriction metrics
	LevelTransitions *prometheus.CounterVec
	DeferredActions  *prometheus.CounterVec
	ActiveKeys       prometheus.Gauge
	Escalations      prometheus.Counter
	ListenerFailures prometheus.Counter

	// Collaborator metrics
	CollaboratorCalls  *prometheus.CounterVec
	CollaboratorErrors *prometheus.CounterVec

	// Audit metrics
	AuditDropped prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
}

// NewMetrics creates a metrics collector on its own registry.
// Recording methods are no-ops on a nil *Metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bgrestrict_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bgrestrict_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),

		EventsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bgrestrict_events_processed_total",
				Help: "Events drained from the serialization lane",
			},
			[]string{"kind"},
		),
		EventFaults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bgrestrict_event_faults_total",
				Help: "Events whose handler failed or panicked",
			},
			[]string{"kind"},
		),
		EventDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bgrestrict_event_duration_seconds",
				Help:    "Time spent handling one event",
				Buckets: []float64{.00005, .0001, .0005, .001, .005, .01, .05, .1},
			},
			[]string{"kind"},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bgrestrict_queue_depth",
				Help: "Events waiting on the serialization lane",
			},
		),

		LevelTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bgrestrict_level_transitions_total",
				Help: "Realized restriction level changes",
			},
			[]string{"from", "to"},
		),
		DeferredActions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bgrestrict_deferred_actions_total",
				Help: "Restrictive actions deferred while a key was active, by outcome",
			},
			[]string{"outcome"},
		),
		ActiveKeys: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bgrestrict_active_keys",
				Help: "Keys currently tracked as foreground-active",
			},
		),
		Escalations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bgrestrict_escalation_requests_total",
				Help: "Requests forwarded to the consent surface",
			},
		),
		ListenerFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bgrestrict_listener_failures_total",
				Help: "Listener callbacks that panicked",
			},
		),

		CollaboratorCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bgrestrict_collaborator_calls_total",
				Help: "Outbound calls to external collaborators",
			},
			[]string{"collaborator", "method"},
		),
		CollaboratorErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bgrestrict_collaborator_errors_total",
				Help: "Failed outbound calls to external collaborators",
			},
			[]string{"collaborator", "method"},
		),

		AuditDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bgrestrict_audit_dropped_total",
				Help: "Transitions dropped because the audit buffer was full",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bgrestrict_ws_connections",
				Help: "Number of active level stream connections",
			},
		),
	}
}

// Registry exposes the underlying registry for gathering in tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordEvent records one drained event
func (m *Metrics) RecordEvent(kind string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.EventsProcessed.WithLabelValues(kind).Inc()
	m.EventDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if failed {
		m.EventFaults.WithLabelValues(kind).Inc()
	}
}

// SetQueueDepth sets the number of pending events
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// RecordTransition records a realized level change
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.LevelTransitions.WithLabelValues(from, to).Inc()
}

// RecordDeferred records a deferred action outcome: armed, run or cleared
func (m *Metrics) RecordDeferred(outcome string) {
	if m == nil {
		return
	}
	m.DeferredActions.WithLabelValues(outcome).Inc()
}

// SetActiveKeys sets the number of active keys
func (m *Metrics) SetActiveKeys(n int) {
	if m == nil {
		return
	}
	m.ActiveKeys.Set(float64(n))
}

// IncEscalations increments the escalation counter
func (m *Metrics) IncEscalations() {
	if m == nil {
		return
	}
	m.Escalations.Inc()
}

// IncListenerFailures increments the listener failure counter
func (m *Metrics) IncListenerFailures() {
	if m == nil {
		return
	}
	m.ListenerFailures.Inc()
}

// RecordCollaboratorCall records an outbound call and whether it failed
func (m *Metrics) RecordCollaboratorCall(collaborator, method string, err error) {
	if m == nil {
		return
	}
	m.CollaboratorCalls.WithLabelValues(collaborator, method).Inc()
	if err != nil {
		m.CollaboratorErrors.WithLabelValues(collaborator, method).Inc()
	}
}

// IncAuditDropped increments the dropped audit counter
func (m *Metrics) IncAuditDropped() {
	if m == nil {
		return
	}
	m.AuditDropped.Inc()
}

// IncWSConnections increments level stream connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements level stream connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
