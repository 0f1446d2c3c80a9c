package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	IngestRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_ingest_requests_total",
			Help: "Total number of inbound lead webhooks by outcome (count)",
		},
		[]string{"status"},
	)

	IngestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadflow_ingest_duration_ms",
			Help:    "Time to normalize, store and schedule an inbound lead in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"status"},
	)

	TasksProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_tasks_processed_total",
			Help: "Total number of delivery tasks by final outcome of the attempt (count)",
		},
		[]string{"outcome"},
	)

	TaskProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadflow_task_processing_duration_ms",
			Help:    "Delivery task processing duration in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"outcome"},
	)

	TaskDelaySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leadflow_task_delay_seconds",
			Help:    "Elapsed time between scheduling and first claim of a delivery task",
			Buckets: []float64{1, 10, 60, 120, 300, 600, 900, 1200},
		},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "leadflow_queue_depth",
			Help: "Delivery tasks per queue state (count)",
		},
		[]string{"state"},
	)

	DeadLettersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_dead_letters_total",
			Help: "Total number of delivery tasks moved to the dead-letter set (count)",
		},
		[]string{"reason"},
	)

	ReconciledLeadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_reconciled_leads_total",
			Help: "Raw lead records found without an enriched record by the reconcile sweep, by result (count)",
		},
		[]string{"result"},
	)

	OwnerLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_owner_lookups_total",
			Help: "Total number of owner lookups by source and result (count)",
		},
		[]string{"source", "result"},
	)

	OwnerLookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadflow_owner_lookup_duration_ms",
			Help:    "Owner lookup duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"source"},
	)

	EnrichmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_enrichments_total",
			Help: "Total number of enriched leads by enrichment status (count)",
		},
		[]string{"status"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_notifications_total",
			Help: "Total number of notification attempts by channel and status (count)",
		},
		[]string{"channel", "status"},
	)

	StorageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_storage_operations_total",
			Help: "Total number of object storage operations (count)",
		},
		[]string{"operation", "status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of broker messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	BrokerMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_read_total",
			Help: "Total number of messages read from the broker (count)",
		},
		[]string{"service", "topic"},
	)

	BrokerMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_written_total",
			Help: "Total number of messages written to the broker (count)",
		},
		[]string{"service", "topic"},
	)

	BrokerWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_write_duration_ms",
			Help:    "Duration of writing messages to the broker in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	EmailsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_emails_sent_total",
			Help: "Total number of SMTP deliveries by status (count)",
		},
		[]string{"status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)
)

var sharedOnce sync.Once

// registerShared registers collectors used by more than one service.
func registerShared() {
	sharedOnce.Do(func() {
		prometheus.MustRegister(StorageOperationsTotal)
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
	})
}

func RegisterIngestMetrics() {
	registerShared()
	prometheus.MustRegister(IngestRequestsTotal)
	prometheus.MustRegister(IngestDuration)
}

func RegisterProcessorMetrics() {
	registerShared()
	prometheus.MustRegister(TasksProcessedTotal)
	prometheus.MustRegister(TaskProcessingDuration)
	prometheus.MustRegister(TaskDelaySeconds)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(DeadLettersTotal)
	prometheus.MustRegister(ReconciledLeadsTotal)
	prometheus.MustRegister(OwnerLookupsTotal)
	prometheus.MustRegister(OwnerLookupDuration)
	prometheus.MustRegister(EnrichmentsTotal)
	prometheus.MustRegister(NotificationsTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(BrokerMessagesReadTotal)
	prometheus.MustRegister(BrokerMessagesWrittenTotal)
	prometheus.MustRegister(BrokerWriteDuration)
}

func RegisterMailerMetrics() {
	registerShared()
	prometheus.MustRegister(EmailsSentTotal)
}

func RegisterAdminMetrics() {
	registerShared()
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(QueueDepth)
}

func ObserveIngest(duration time.Duration, status string) {
	IngestRequestsTotal.WithLabelValues(status).Inc()
	IngestDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveTask(duration time.Duration, outcome string) {
	TasksProcessedTotal.WithLabelValues(outcome).Inc()
	TaskProcessingDuration.WithLabelValues(outcome).Observe(float64(duration.Milliseconds()))
}

func ObserveTaskDelay(delay time.Duration) {
	TaskDelaySeconds.Observe(delay.Seconds())
}

func SetQueueDepth(state string, size int64) {
	QueueDepth.WithLabelValues(state).Set(float64(size))
}

func IncDeadLetter(reason string) {
	DeadLettersTotal.WithLabelValues(reason).Inc()
}

func IncReconciled(result string) {
	ReconciledLeadsTotal.WithLabelValues(result).Inc()
}

func ObserveOwnerLookup(source, result string, duration time.Duration) {
	OwnerLookupsTotal.WithLabelValues(source, result).Inc()
	OwnerLookupDuration.WithLabelValues(source).Observe(float64(duration.Milliseconds()))
}

func IncEnrichment(status string) {
	EnrichmentsTotal.WithLabelValues(status).Inc()
}

func IncNotification(channel, status string) {
	NotificationsTotal.WithLabelValues(channel, status).Inc()
}

func IncStorageOperation(operation, status string) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
}

func IncBrokerMessagesRead(service, topic string) {
	BrokerMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncBrokerMessagesWritten(service, topic string) {
	BrokerMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveBrokerWriteDuration(service, topic string, duration time.Duration) {
	BrokerWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncEmailSent(status string) {
	EmailsSentTotal.WithLabelValues(status).Inc()
}
