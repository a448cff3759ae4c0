package occ

import "github.com/prometheus/client_golang/prometheus"

var (
	txnCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinyocc",
			Subsystem: "txn",
			Name:      "total",
			Help:      "Counter of transaction events.",
		}, []string{"type"})

	activeTxnGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tinyocc",
			Subsystem: "txn",
			Name:      "active",
			Help:      "Number of active transactions.",
		})

	historySizeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tinyocc",
			Subsystem: "txn",
			Name:      "history_size",
			Help:      "Number of transactions kept in the commit history.",
		})

	txnLogTruncatedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tinyocc",
			Subsystem: "txnlog",
			Name:      "truncated_records_total",
			Help:      "Counter of txn log records truncated while serving.",
		})

	validateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tinyocc",
			Subsystem: "txn",
			Name:      "validate_duration_seconds",
			Help:      "Bucketed histogram of processing time (s) of validations.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
		})
)

func init() {
	prometheus.MustRegister(txnCounter)
	prometheus.MustRegister(activeTxnGauge)
	prometheus.MustRegister(historySizeGauge)
	prometheus.MustRegister(validateDuration)
	prometheus.MustRegister(txnLogTruncatedCounter)
}
