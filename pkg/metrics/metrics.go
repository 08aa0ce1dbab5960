package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. All Record* methods are
// safe to call on a nil *Metrics.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka / outbox metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec
	OutboxPending        prometheus.Gauge

	// MongoDB metrics
	MongoDBOperations        *prometheus.CounterVec
	MongoDBOperationDuration *prometheus.HistogramVec

	// Temporal metrics
	WorkflowsStarted   *prometheus.CounterVec
	WorkflowsCompleted *prometheus.CounterVec

	// Production metrics
	BoxesRegistered      *prometheus.CounterVec
	BoxLifecycle         *prometheus.CounterVec
	ActivityTransitions  *prometheus.CounterVec
	WIROutcomes          *prometheus.CounterVec
	ChecklistEvaluations *prometheus.CounterVec
	AuthorizationDenials *prometheus.CounterVec
	BoxLockWait          prometheus.Histogram

	// Idempotency metrics
	IdempotentRequests *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "production",
	}
}

// New creates a new Metrics instance with its own registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	ns := config.Namespace
	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"service", "method", "path", "status"})

	m.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"service", "method", "path"})

	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "http_requests_in_flight",
		Help:        "Number of HTTP requests currently being processed",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.KafkaEventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "kafka_events_published_total",
		Help:      "Total number of Kafka events published",
	}, []string{"service", "topic", "event_type", "status"})

	m.KafkaPublishDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "kafka_publish_duration_seconds",
		Help:      "Kafka publish duration in seconds",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"service", "topic"})

	m.OutboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "outbox_pending_events",
		Help:        "Unpublished events seen in the last outbox poll",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.MongoDBOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "mongodb_operations_total",
		Help:      "Total number of MongoDB operations",
	}, []string{"service", "collection", "operation", "status"})

	m.MongoDBOperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "mongodb_operation_duration_seconds",
		Help:      "MongoDB operation duration in seconds",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"service", "collection", "operation"})

	m.WorkflowsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "workflows_started_total",
		Help:      "Total number of Temporal workflows started",
	}, []string{"service", "workflow_type"})

	m.WorkflowsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "workflows_completed_total",
		Help:      "Total number of Temporal workflows completed",
	}, []string{"service", "workflow_type", "status"})

	m.BoxesRegistered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "boxes_registered_total",
		Help:      "Boxes entering production, by box type",
	}, []string{"service", "box_type"})

	m.BoxLifecycle = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "box_lifecycle_changes_total",
		Help:      "Box holds, releases and dispatches",
	}, []string{"service", "status"})

	m.ActivityTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "activity_transitions_total",
		Help:      "Activity status transitions",
	}, []string{"service", "stage", "status"})

	m.WIROutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "wir_outcomes_total",
		Help:      "Work inspection request lifecycle events, by WIR code and outcome",
	}, []string{"service", "wir_code", "outcome"})

	m.ChecklistEvaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "checklist_evaluations_total",
		Help:      "Checklist completeness evaluations",
	}, []string{"service", "checklist", "result"})

	m.AuthorizationDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "authorization_denials_total",
		Help:      "Requests rejected by the authorization check",
	}, []string{"service", "operation"})

	m.IdempotentRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "idempotent_requests_total",
		Help:      "Requests carrying an Idempotency-Key, by outcome",
	}, []string{"service", "method", "outcome"})

	m.BoxLockWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   ns,
		Name:        "box_lock_wait_seconds",
		Help:        "Time spent waiting for a per-box lock",
		Buckets:     []float64{.0001, .001, .005, .01, .05, .1, .5, 1},
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"service", "name"})

	m.CircuitBreakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "circuit_breaker_trips_total",
		Help:      "Total number of circuit breaker trips",
	}, []string{"service", "name"})

	registry.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPRequestsInFlight,
		m.KafkaEventsPublished, m.KafkaPublishDuration, m.OutboxPending,
		m.MongoDBOperations, m.MongoDBOperationDuration,
		m.WorkflowsStarted, m.WorkflowsCompleted,
		m.BoxesRegistered, m.BoxLifecycle, m.ActivityTransitions, m.WIROutcomes,
		m.ChecklistEvaluations, m.AuthorizationDenials, m.BoxLockWait,
		m.IdempotentRequests,
		m.CircuitBreakerState, m.CircuitBreakerTrips,
	)

	return m
}

// Handler returns the HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m != nil {
		m.HTTPRequestsInFlight.Inc()
	}
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m != nil {
		m.HTTPRequestsInFlight.Dec()
	}
}

// RecordKafkaPublish records a Kafka publish
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, status(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// SetOutboxPending records the size of the last outbox batch
func (m *Metrics) SetOutboxPending(n int) {
	if m != nil {
		m.OutboxPending.Set(float64(n))
	}
}

// RecordMongoDBOperation records a MongoDB operation
func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.MongoDBOperations.WithLabelValues(m.serviceName, collection, operation, status(success)).Inc()
	m.MongoDBOperationDuration.WithLabelValues(m.serviceName, collection, operation).Observe(duration.Seconds())
}

// RecordWorkflowStarted records a workflow start
func (m *Metrics) RecordWorkflowStarted(workflowType string) {
	if m != nil {
		m.WorkflowsStarted.WithLabelValues(m.serviceName, workflowType).Inc()
	}
}

// RecordWorkflowCompleted records a workflow completion
func (m *Metrics) RecordWorkflowCompleted(workflowType string, success bool) {
	if m != nil {
		m.WorkflowsCompleted.WithLabelValues(m.serviceName, workflowType, status(success)).Inc()
	}
}

// RecordBoxRegistered records a box entering production
func (m *Metrics) RecordBoxRegistered(boxType string) {
	if m != nil {
		m.BoxesRegistered.WithLabelValues(m.serviceName, boxType).Inc()
	}
}

// RecordBoxLifecycle records a box entering a lifecycle status
func (m *Metrics) RecordBoxLifecycle(status string) {
	if m != nil {
		m.BoxLifecycle.WithLabelValues(m.serviceName, status).Inc()
	}
}

// RecordActivityTransition records an activity status change
func (m *Metrics) RecordActivityTransition(stage int, status string) {
	if m != nil {
		m.ActivityTransitions.WithLabelValues(m.serviceName, strconv.Itoa(stage), status).Inc()
	}
}

// RecordWIROutcome records a WIR lifecycle step (raised, submitted, approved, rejected, overdue)
func (m *Metrics) RecordWIROutcome(wirCode, outcome string) {
	if m != nil {
		m.WIROutcomes.WithLabelValues(m.serviceName, wirCode, outcome).Inc()
	}
}

// RecordChecklistEvaluation records the verdict of a completeness check
func (m *Metrics) RecordChecklistEvaluation(checklist string, complete bool) {
	if m == nil {
		return
	}
	result := "complete"
	if !complete {
		result = "incomplete"
	}
	m.ChecklistEvaluations.WithLabelValues(m.serviceName, checklist, result).Inc()
}

// RecordAuthorizationDenied records a rejected authorization check
func (m *Metrics) RecordAuthorizationDenied(operation string) {
	if m != nil {
		m.AuthorizationDenials.WithLabelValues(m.serviceName, operation).Inc()
	}
}

// RecordIdempotentRequest records how a keyed request was handled (miss, replay, conflict, mismatch, error)
func (m *Metrics) RecordIdempotentRequest(method, outcome string) {
	if m != nil {
		m.IdempotentRequests.WithLabelValues(m.serviceName, method, outcome).Inc()
	}
}

// ObserveBoxLockWait records how long a caller waited for a box lock
func (m *Metrics) ObserveBoxLockWait(d time.Duration) {
	if m != nil {
		m.BoxLockWait.Observe(d.Seconds())
	}
}

// SetCircuitBreakerState sets circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
	}
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	if m != nil {
		m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
	}
}
