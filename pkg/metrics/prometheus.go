// Package metrics provides Prometheus metrics for the ideabox service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Workflow
	ideasCreated      prometheus.Counter
	ideasEdited       prometheus.Counter
	statusTransitions *prometheus.CounterVec
	assignments       *prometheus.CounterVec
	votesToggled      *prometheus.CounterVec
	comments          *prometheus.CounterVec
	rewardsIssued     prometheus.Counter
	rewardCoins       prometheus.Counter
	invitesCreated    prometheus.Counter
	invitesRedeemed   prometheus.Counter

	// Listing
	listQueries         *prometheus.CounterVec
	autoExpandPages     prometheus.Histogram
	activeSubscriptions prometheus.Gauge
	snapshotsDelivered  prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository
	repositoryQueryLatency *prometheus.HistogramVec
	totalIdeas             prometheus.Gauge

	// Change queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Dispatcher
	dispatcherActive    prometheus.Gauge
	changesDispatched   prometheus.Counter
	changesDuplicate    prometheus.Counter
	dispatchLatency     prometheus.Histogram
	bridgeMessages      *prometheus.CounterVec
	sessionCacheLookups *prometheus.CounterVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // custom registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ideabox",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix != "" {
		return m.metricPrefix + "_" + n
	}
	return n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: buckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.ideasCreated = m.counter("ideas_created_total", "Ideas submitted")
	m.ideasEdited = m.counter("ideas_edited_total", "Ideas edited by their author")
	m.statusTransitions = m.counterVec("status_transitions_total", "Status changes by target status", "to")
	m.assignments = m.counterVec("assignments_total", "Manager assignment changes", "action")
	m.votesToggled = m.counterVec("votes_toggled_total", "Vote toggles by direction", "direction")
	m.comments = m.counterVec("comments_total", "Comment writes by action", "action")
	m.rewardsIssued = m.counter("rewards_issued_total", "Rewards created")
	m.rewardCoins = m.counter("reward_coins_total", "Coins awarded across all rewards")
	m.invitesCreated = m.counter("invites_created_total", "Invites created")
	m.invitesRedeemed = m.counter("invites_redeemed_total", "Invites redeemed")

	m.listQueries = m.counterVec("list_queries_total", "List page queries by mode", "mode")
	m.autoExpandPages = m.histogram("search_autoexpand_pages", "Pages fetched by one search auto-expansion run",
		[]float64{0, 1, 2, 4, 8, 16, 32, 50})
	m.activeSubscriptions = m.gauge("active_subscriptions", "Live list subscriptions currently open")
	m.snapshotsDelivered = m.counter("snapshots_delivered_total", "Snapshots pushed to live subscriptions")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")

	m.repositoryQueryLatency = m.histogramVec("repository_query_latency_milliseconds", "Store operation latency in milliseconds", "op")
	m.totalIdeas = m.gauge("total_ideas", "Ideas currently stored")

	m.queueSize = m.gauge("queue_size", "Changes waiting for dispatch")
	m.queueCapacity = m.gauge("queue_capacity", "Change queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Change queue utilization (size / capacity)")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Changes enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Changes dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Changes dropped on enqueue")

	m.dispatcherActive = m.gauge("dispatcher_active_count", "Dispatcher goroutines running")
	m.changesDispatched = m.counter("changes_dispatched_total", "Changes fanned out to subscriptions")
	m.changesDuplicate = m.counter("changes_duplicate_total", "Changes dropped as duplicates")
	m.dispatchLatency = m.histogram("dispatch_latency_milliseconds", "Time to fan one change out", m.histogramBuckets)
	m.bridgeMessages = m.counterVec("bridge_messages_total", "Pub/sub bridge traffic by direction", "direction")
	m.sessionCacheLookups = m.counterVec("session_cache_lookups_total", "Session cache lookups by result", "result")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of failed operations", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Allocated heap bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Goroutine count")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause in milliseconds", m.histogramBuckets)
}

func enabled() bool { return globalManager != nil && globalManager.enabled }

// Configure applies opts to the process-wide manager. Collectors are already
// registered at this point, so only WithMetricsEnabled has an effect.
func Configure(opts ...Option) {
	for _, opt := range opts {
		opt(globalManager)
	}
}

// Enabled reports whether the process-wide manager records.
func Enabled() bool { return enabled() }

// Workflow

func RecordIdeaCreated() {
	if enabled() {
		globalManager.ideasCreated.Inc()
	}
}

func RecordIdeaEdited() {
	if enabled() {
		globalManager.ideasEdited.Inc()
	}
}

func RecordStatusTransition(to string) {
	if enabled() {
		globalManager.statusTransitions.WithLabelValues(to).Inc()
	}
}

// RecordAssignment takes "assign" or "unassign".
func RecordAssignment(action string) {
	if enabled() {
		globalManager.assignments.WithLabelValues(action).Inc()
	}
}

func RecordVoteToggled(voted bool) {
	if !enabled() {
		return
	}
	direction := "down"
	if voted {
		direction = "up"
	}
	globalManager.votesToggled.WithLabelValues(direction).Inc()
}

func RecordComment(action string) {
	if enabled() {
		globalManager.comments.WithLabelValues(action).Inc()
	}
}

func RecordRewardIssued(amount int) {
	if enabled() {
		globalManager.rewardsIssued.Inc()
		globalManager.rewardCoins.Add(float64(amount))
	}
}

func RecordInviteCreated() {
	if enabled() {
		globalManager.invitesCreated.Inc()
	}
}

func RecordInviteRedeemed() {
	if enabled() {
		globalManager.invitesRedeemed.Inc()
	}
}

// Listing

func RecordListQuery(mode string) {
	if enabled() {
		globalManager.listQueries.WithLabelValues(mode).Inc()
	}
}

func RecordAutoExpandPages(pages int) {
	if enabled() {
		globalManager.autoExpandPages.Observe(float64(pages))
	}
}

func IncActiveSubscriptions() {
	if enabled() {
		globalManager.activeSubscriptions.Inc()
	}
}

func DecActiveSubscriptions() {
	if enabled() {
		globalManager.activeSubscriptions.Dec()
	}
}

func RecordSnapshotDelivered() {
	if enabled() {
		globalManager.snapshotsDelivered.Inc()
	}
}

// HTTP

func RecordHTTPRequest(endpoint, method, statusCode string) {
	if enabled() {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	if enabled() {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

// Repository

func RecordRepositoryQueryLatency(op string, latencyMs float64) {
	if enabled() {
		globalManager.repositoryQueryLatency.WithLabelValues(op).Observe(latencyMs)
	}
}

func UpdateTotalIdeas(count int) {
	if enabled() {
		globalManager.totalIdeas.Set(float64(count))
	}
}

// Change queue

func UpdateQueueSize(size int) {
	if enabled() {
		globalManager.queueSize.Set(float64(size))
	}
}

func UpdateQueueCapacity(capacity int) {
	if enabled() {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

func UpdateQueueUtilization(utilization float64) {
	if enabled() {
		globalManager.queueUtilization.Set(utilization)
	}
}

func RecordQueueEnqueue() {
	if enabled() {
		globalManager.queueEnqueued.Inc()
	}
}

func RecordQueueDequeue() {
	if enabled() {
		globalManager.queueDequeued.Inc()
	}
}

func RecordQueueEnqueueError() {
	if enabled() {
		globalManager.queueEnqueueErrors.Inc()
	}
}

// Dispatcher

func UpdateDispatcherActiveCount(count int) {
	if enabled() {
		globalManager.dispatcherActive.Set(float64(count))
	}
}

func RecordChangeDispatched(latencyMs float64) {
	if enabled() {
		globalManager.changesDispatched.Inc()
		globalManager.dispatchLatency.Observe(latencyMs)
	}
}

func RecordChangeDuplicate() {
	if enabled() {
		globalManager.changesDuplicate.Inc()
	}
}

// RecordBridgeMessage takes "out" for published and "in" for received messages.
func RecordBridgeMessage(direction string) {
	if enabled() {
		globalManager.bridgeMessages.WithLabelValues(direction).Inc()
	}
}

// RecordSessionCacheLookup takes "hit", "miss" or "revoked".
func RecordSessionCacheLookup(result string) {
	if enabled() {
		globalManager.sessionCacheLookups.WithLabelValues(result).Inc()
	}
}

// Errors

func RecordErrorByComponent(component, errorType string) {
	if enabled() {
		globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

func RecordErrorByType(errorType, severity string) {
	if enabled() {
		globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
	}
}

func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if enabled() {
		globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

func RecordErrorLatency(component, errorType string, latencyMs float64) {
	if enabled() {
		globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
	}
}

// System

func UpdateSystemMemoryUsage(bytes uint64) {
	if enabled() {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

func UpdateSystemGoroutineCount(count int) {
	if enabled() {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

func RecordSystemGCPauseTime(pauseMs float64) {
	if enabled() {
		globalManager.systemGCPauseTime.Observe(pauseMs)
	}
}

// GetRegistry returns the custom registry served on /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
