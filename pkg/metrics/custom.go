package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "chainvend"

var (
	RateLimitBlockTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_block_total",
			Help:      "Total number of rate limit blocks.",
		},
		[]string{"service", "method", "reason"},
	)

	CBRejectTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuitbreaker_reject_total",
			Help:      "Total number of circuit breaker rejections.",
		},
		[]string{"service", "method", "reason"},
	)

	CBState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuitbreaker_state",
			Help:      "Circuit breaker state (0/1).",
		},
		[]string{"service", "method", "state"}, // closed/open/half_open
	)

	PurchaseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchase_total",
			Help:      "Purchases by product, chain and terminal outcome.",
		},
		[]string{"product", "chain", "outcome"},
	)

	ChainValidationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_validation_total",
			Help:      "On-chain payment validations by result.",
		},
		[]string{"chain", "result"},
	)

	ChainRPCAttemptTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_rpc_attempt_total",
			Help:      "RPC attempts per endpoint.",
		},
		[]string{"chain", "endpoint", "result"},
	)

	RefundRecordedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refund_recorded_total",
			Help:      "Refund intents written, by result.",
		},
		[]string{"product", "result"},
	)

	PriceSourceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_source_total",
			Help:      "Where an exchange rate came from: oracle, cache, stale, static.",
		},
		[]string{"chain", "source"},
	)

	ProviderCallTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_call_total",
			Help:      "Fulfillment provider calls by endpoint and taxonomy category.",
		},
		[]string{"endpoint", "category"},
	)

	MonitorCheckTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_check_total",
			Help:      "Merchant payment checks by outcome.",
		},
		[]string{"chain", "outcome"},
	)

	JobRunTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_run_total",
			Help:      "Background job runs by result.",
		},
		[]string{"job", "result"},
	)

	MonitorWatched = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "monitor_watched",
		Help:      "Merchant payments currently watched.",
	})
)

func MustRegister() {
	prometheus.MustRegister(
		RateLimitBlockTotal, CBRejectTotal, CBState,
		PurchaseTotal, ChainValidationTotal, ChainRPCAttemptTotal,
		RefundRecordedTotal, PriceSourceTotal, ProviderCallTotal, MonitorCheckTotal, MonitorWatched, JobRunTotal,
	)
}
