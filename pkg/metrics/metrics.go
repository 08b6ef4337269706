package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	PaymentsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crank_payments_executed_total",
		Help: "The total number of executed scheduled payments",
	}, []string{"kind", "status"})

	PaymentProcessingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crank_payment_processing_seconds",
		Help:    "Time taken to execute scheduled payments",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // Start at 1ms with 12 buckets doubling in size
	}, []string{"kind"})

	GasUsed = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crank_gas_used",
		Help:    "Metered gas of executed payments",
		Buckets: prometheus.LinearBuckets(100000, 5000, 10),
	})

	ActivePayments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crank_active_payments",
		Help: "The number of scheduled payments in the ledger",
	})

	DuePayments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crank_due_payments",
		Help: "The number of payments due at the last poll",
	})

	DeferredPayments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crank_payments_deferred_total",
		Help: "Due payments left for a later poll, by reason",
	}, []string{"reason"})

	FeesCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crank_fees_collected_total",
		Help: "Fees collected in token units, by token and fee type",
	}, []string{"token", "fee_type"})

	ExecutionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crank_errors_total",
		Help: "Total number of execution errors by type",
	}, []string{"error_type"})

	PermanentErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crank_permanent_errors_total",
		Help: "Total number of permanent errors that won't be retried",
	}, []string{"error_type"})

	// Retry related metrics
	MaxRetriesReached = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crank_max_retries_reached_total",
		Help: "Number of payments that reached maximum retry attempts",
	}, []string{"error_type"})

	RetryQueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crank_retry_queue_size",
		Help: "Current size of the retry queue",
	})

	RetriesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crank_retries_executed_total",
		Help: "Number of retries that were executed",
	}, []string{"error_type"})

	DroppedRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crank_retries_dropped_total",
		Help: "Number of retries that were dropped due to queue capacity",
	})

	RateCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crank_rate_cache_lookups_total",
		Help: "Exchange rate cache lookups by result",
	}, []string{"result"})

	CircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crank_circuit_breaker_open",
		Help: "1 when the execution circuit breaker is open",
	})

	GasPrice = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crank_gas_price_gwei",
		Help: "Current network gas price in gwei",
	})

	AvatarBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crank_avatar_balance",
		Help: "Avatar balance in whole tokens",
	}, []string{"token"})
)
