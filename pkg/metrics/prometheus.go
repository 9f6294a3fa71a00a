// Package metrics provides Prometheus metrics for the jump training service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the training engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Training progress
	commands           *prometheus.CounterVec
	commandsDuplicate  prometheus.Counter
	signals            *prometheus.CounterVec
	procedures         *prometheus.CounterVec
	timelinesCompleted *prometheus.CounterVec
	overrides          *prometheus.CounterVec
	sessions           *prometheus.CounterVec
	eventsEmitted      *prometheus.CounterVec

	// Skip and route
	skips          *prometheus.CounterVec
	sceneReloads   prometheus.Counter
	routeDesyncs   prometheus.Counter
	actorMilestone prometheus.Gauge
	actorHeld      prometheus.Gauge

	// Engine loop
	tickDuration prometheus.Histogram
	enginePanics prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Persistence
	evaluationsPersisted *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemory     prometheus.Gauge
	systemGoroutines prometheus.Gauge
	systemGCPause    prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "jumptrain",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.commands = m.counterVec("commands_total", "Inbound instructor commands by kind and result", "kind", "result")
	m.commandsDuplicate = m.counter("commands_duplicate_total", "Inbound commands dropped because their id was already seen")
	m.signals = m.counterVec("signals_total", "External callbacks by kind and result", "kind", "result")
	m.procedures = m.counterVec("procedures_completed_total", "Completed procedures by outcome", "outcome")
	m.timelinesCompleted = m.counterVec("timelines_completed_total", "Completed timelines by success", "success")
	m.overrides = m.counterVec("overrides_total", "Privileged overrides by kind and result", "kind", "result")
	m.sessions = m.counterVec("sessions_total", "Session transitions by phase", "phase")
	m.eventsEmitted = m.counterVec("events_emitted_total", "Outbound events by kind", "kind")

	m.skips = m.counterVec("skips_total", "Skip executions by phase (started, parked, resumed, settled, retargeted)", "phase")
	m.sceneReloads = m.counter("scene_reloads_total", "World reloads triggered")
	m.routeDesyncs = m.counter("route_desyncs_total", "Actor milestone desyncs corrected by a re-force")
	m.actorMilestone = m.gauge("actor_milestone", "Last synchronized actor milestone")
	m.actorHeld = m.gauge("actor_held", "1 while the actor is held at its milestone")

	m.tickDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tick_duration_milliseconds",
		Help:      "Engine tick processing time in milliseconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
	})
	m.enginePanics = m.counter("panics_total", "Recovered panics in the engine loop")

	m.queueSize = m.gauge("queue_size", "Current size of the input queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum input queue capacity")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Total number of inputs enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Total number of inputs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")

	m.evaluationsPersisted = m.counterVec("evaluations_persisted_total", "Evaluation sets handed to the store by result", "result")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component",
		"component", "error_type")

	m.systemMemory = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutines = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPause = m.gauge("system_gc_pause_milliseconds", "Average GC pause in milliseconds")
}

// RecordCommand counts an inbound command and how it was handled.
func RecordCommand(kind, result string) {
	globalManager.commands.WithLabelValues(kind, result).Inc()
}

// RecordCommandDuplicate counts a command dropped by id deduplication.
func RecordCommandDuplicate() {
	globalManager.commandsDuplicate.Inc()
}

// RecordSignal counts an external callback and how it was handled.
func RecordSignal(kind, result string) {
	globalManager.signals.WithLabelValues(kind, result).Inc()
}

// RecordProcedure counts a completed procedure.
func RecordProcedure(outcome string) {
	globalManager.procedures.WithLabelValues(outcome).Inc()
}

// RecordTimelineComplete counts a completed timeline.
func RecordTimelineComplete(success bool) {
	globalManager.timelinesCompleted.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// RecordOverride counts a privileged override attempt.
func RecordOverride(kind, result string) {
	globalManager.overrides.WithLabelValues(kind, result).Inc()
}

// RecordSession counts a session transition (ready, started, ended).
func RecordSession(phase string) {
	globalManager.sessions.WithLabelValues(phase).Inc()
}

// RecordEventEmitted counts an outbound event.
func RecordEventEmitted(kind string) {
	globalManager.eventsEmitted.WithLabelValues(kind).Inc()
}

// RecordSkip counts a skip phase transition.
func RecordSkip(phase string) {
	globalManager.skips.WithLabelValues(phase).Inc()
}

// RecordSceneReload counts a triggered world reload.
func RecordSceneReload() {
	globalManager.sceneReloads.Inc()
}

// RecordRouteDesync counts a corrected actor desync.
func RecordRouteDesync() {
	globalManager.routeDesyncs.Inc()
}

// UpdateActorMilestone sets the synchronized actor milestone.
func UpdateActorMilestone(index int) {
	globalManager.actorMilestone.Set(float64(index))
}

// UpdateActorHeld records whether the actor is held.
func UpdateActorHeld(held bool) {
	v := 0.0
	if held {
		v = 1
	}
	globalManager.actorHeld.Set(v)
}

// RecordTickDuration records how long one engine step took.
func RecordTickDuration(d time.Duration) {
	globalManager.tickDuration.Observe(float64(d.Microseconds()) / 1000)
}

// RecordEnginePanic counts a recovered engine panic.
func RecordEnginePanic() {
	globalManager.enginePanics.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordEvaluationsPersisted counts a hand-off to the evaluation store.
func RecordEvaluationsPersisted(result string) {
	globalManager.evaluationsPersisted.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// UpdateSystemMemoryUsage sets the allocated heap gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemory.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(n int) {
	globalManager.systemGoroutines.Set(float64(n))
}

// RecordSystemGCPauseTime sets the average GC pause gauge.
func RecordSystemGCPauseTime(ms float64) {
	globalManager.systemGCPause.Set(ms)
}
