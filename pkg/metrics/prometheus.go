package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the orchestrator.
type Manager struct {
	namespace        string
	subsystem        string
	requestBuckets []float64
	passBuckets    []float64
	constLabels    prometheus.Labels
	registry       prometheus.Registerer

	// Job lifecycle
	jobTransitions *prometheus.CounterVec
	jobsByState    *prometheus.GaugeVec
	jobRetries     prometheus.Counter
	jobTimeouts    prometheus.Counter

	// Scheduler
	schedulerCalls         *prometheus.CounterVec
	schedulerStatusLatency prometheus.Histogram

	// Passes
	passDuration *prometheus.HistogramVec
	passRuns     *prometheus.CounterVec

	// Evaluation
	evaluationLatency  prometheus.Histogram
	evaluationFailures prometheus.Counter

	// Publishing and leaderboard
	publishes              *prometheus.CounterVec
	leaderboardRebuilds    prometheus.Counter
	leaderboardRebuildTime prometheus.Histogram
	leaderboardEntries     *prometheus.GaugeVec
	submissionsAccepted    prometheus.Counter
	submissionsRejected    *prometheus.CounterVec
	submissionsDuplicate   prometheus.Counter

	// Queue and workers
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueEnqueued     prometheus.Counter
	queueRejected     prometheus.Counter
	workerActiveCount prometheus.Gauge
	workerLatency     prometheus.Histogram
	workerErrors      prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps default Go collectors out of /metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Init swaps the global manager for one built with opts on a fresh registry.
// Series recorded before the swap are dropped; call it once at startup.
func Init(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(registry))...)
	customRegistry = registry
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "foldboard",
		subsystem:      "orchestrator",
		requestBuckets: DefaultRequestBuckets,
		passBuckets:    DefaultPassBuckets,
		registry:       prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels, Buckets: buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.jobTransitions = m.counterVec("job_transitions_total", "Job state transitions", "from", "to")
	m.jobsByState = m.gaugeVec("jobs", "Jobs by current state", "state")
	m.jobRetries = m.counter("job_retries_total", "Jobs sent back for another prediction attempt")
	m.jobTimeouts = m.counter("job_timeouts_total", "Jobs failed for exceeding the maximum age")

	m.schedulerCalls = m.counterVec("scheduler_calls_total", "Batch scheduler calls by operation and outcome", "op", "outcome")
	m.schedulerStatusLatency = m.histogram("scheduler_status_seconds", "Latency of scheduler status queries", m.requestBuckets)

	m.passDuration = m.histogramVec("pass_duration_seconds", "Duration of orchestration passes", m.passBuckets, "pass")
	m.passRuns = m.counterVec("pass_runs_total", "Orchestration pass runs by outcome", "pass", "outcome")

	m.evaluationLatency = m.histogram("evaluation_seconds", "Structure evaluation latency", m.passBuckets)
	m.evaluationFailures = m.counter("evaluation_failures_total", "Jobs failed with evaluation_error")

	m.publishes = m.counterVec("publishes_total", "Result artifacts published by outcome", "outcome")
	m.leaderboardRebuilds = m.counter("leaderboard_rebuilds_total", "Full leaderboard rebuilds")
	m.leaderboardRebuildTime = m.histogram("leaderboard_rebuild_seconds", "Leaderboard rebuild latency", m.passBuckets)
	m.leaderboardEntries = m.gaugeVec("leaderboard_entries", "Ranked participants per session", "session")
	m.submissionsAccepted = m.counter("submissions_accepted_total", "Submissions accepted at intake")
	m.submissionsRejected = m.counterVec("submissions_rejected_total", "Submissions rejected at intake", "reason")
	m.submissionsDuplicate = m.counter("submissions_duplicate_total", "Intake events replayed with a known submission id")

	m.queueSize = m.gauge("queue_size", "Jobs waiting in the submit queue")
	m.queueCapacity = m.gauge("queue_capacity", "Submit queue capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Jobs enqueued for submission")
	m.queueRejected = m.counter("queue_rejected_total", "Enqueue attempts rejected by a full queue")
	m.workerActiveCount = m.gauge("worker_active", "Evaluation workers currently running")
	m.workerLatency = m.histogram("worker_task_seconds", "Evaluation worker task latency", m.passBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Evaluation worker task errors")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_seconds", "HTTP request duration", m.requestBuckets, "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint, method and type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

// RecordJobTransition counts a committed state transition.
func RecordJobTransition(from, to string) {
	globalManager.jobTransitions.WithLabelValues(from, to).Inc()
}

// UpdateJobsByState replaces the per-state job gauge.
func UpdateJobsByState(counts map[string]int) {
	for state, n := range counts {
		globalManager.jobsByState.WithLabelValues(state).Set(float64(n))
	}
}

// RecordJobRetry counts a job reset for another attempt.
func RecordJobRetry() { globalManager.jobRetries.Inc() }

// RecordJobTimeout counts a job failed for age.
func RecordJobTimeout() { globalManager.jobTimeouts.Inc() }

// RecordSchedulerCall counts a scheduler call.
func RecordSchedulerCall(op, outcome string) {
	globalManager.schedulerCalls.WithLabelValues(op, outcome).Inc()
}

// RecordSchedulerStatusLatency records a status query latency in seconds.
func RecordSchedulerStatusLatency(seconds float64) {
	globalManager.schedulerStatusLatency.Observe(seconds)
}

// RecordPass records one pass run.
func RecordPass(pass, outcome string, seconds float64) {
	globalManager.passRuns.WithLabelValues(pass, outcome).Inc()
	globalManager.passDuration.WithLabelValues(pass).Observe(seconds)
}

// RecordEvaluation records an evaluation latency in seconds.
func RecordEvaluation(seconds float64) { globalManager.evaluationLatency.Observe(seconds) }

// RecordEvaluationFailure counts an evaluation_error failure.
func RecordEvaluationFailure() { globalManager.evaluationFailures.Inc() }

// RecordPublish counts a published artifact ("results" or "failure").
func RecordPublish(outcome string) { globalManager.publishes.WithLabelValues(outcome).Inc() }

// RecordLeaderboardRebuild records a full rebuild.
func RecordLeaderboardRebuild(session string, entries int, seconds float64) {
	globalManager.leaderboardRebuilds.Inc()
	globalManager.leaderboardRebuildTime.Observe(seconds)
	globalManager.leaderboardEntries.WithLabelValues(session).Set(float64(entries))
}

// RecordSubmissionAccepted counts an accepted intake event.
func RecordSubmissionAccepted() { globalManager.submissionsAccepted.Inc() }

// RecordSubmissionRejected counts a rejected intake event.
func RecordSubmissionRejected(reason string) {
	globalManager.submissionsRejected.WithLabelValues(reason).Inc()
}

// RecordSubmissionDuplicate counts a replayed intake event.
func RecordSubmissionDuplicate() { globalManager.submissionsDuplicate.Inc() }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueRejected counts an enqueue refused for capacity.
func RecordQueueRejected() { globalManager.queueRejected.Inc() }

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// RecordWorkerLatency records a worker task latency in seconds.
func RecordWorkerLatency(seconds float64) { globalManager.workerLatency.Observe(seconds) }

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordHTTPRequest records an HTTP request and its duration in seconds.
func RecordHTTPRequest(endpoint, method, statusCode string, seconds float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(seconds)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an HTTP error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the registry the global manager writes to.
func GetRegistry() *prometheus.Registry { return customRegistry }
