package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "cashdesk_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	sessionEvents   *prometheus.CounterVec
	movementsTotal  *prometheus.CounterVec
	movementAmount  *prometheus.CounterVec
	auditsTotal     *prometheus.CounterVec
	salesTotal      *prometheus.CounterVec
	reportLatency   *prometheus.HistogramVec
	reportCacheHits *prometheus.CounterVec
)

// Init registers the cash desk collectors with the default registry. Calls
// after the first are no-ops; the Observe/Inc helpers do nothing until Init
// has run.
func Init() {
	registerOnce.Do(func() {
		sessionEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "session_events_total",
				Help: "Cash session lifecycle events by event and result",
			},
			[]string{"event", "result"},
		)
		movementsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "movements_total",
				Help: "Cash movements recorded by type and result",
			},
			[]string{"type", "result"},
		)
		movementAmount = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "movement_amount_total",
				Help: "Sum of recorded cash movement amounts by type",
			},
			[]string{"type"},
		)
		auditsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "audits_total",
				Help: "Cash audits by type and outcome",
			},
			[]string{"type", "outcome"},
		)
		salesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sales_total",
				Help: "Sales recorded or voided by result",
			},
			[]string{"action", "result"},
		)
		reportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_build_latency_seconds",
				Help:    "Session report build latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		reportCacheHits = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_cache_total",
				Help: "Session report cache lookups by outcome",
			},
			[]string{"outcome"},
		)

		prometheus.MustRegister(
			sessionEvents,
			movementsTotal,
			movementAmount,
			auditsTotal,
			salesTotal,
			reportLatency,
			reportCacheHits,
		)
	})
}

func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// IncSessionEvent counts open, close and force_close attempts.
func IncSessionEvent(event string, result string) {
	if sessionEvents != nil {
		sessionEvents.WithLabelValues(event, result).Inc()
	}
}

func ObserveMovement(movementType string, result string, amount float64) {
	if movementsTotal != nil {
		movementsTotal.WithLabelValues(movementType, result).Inc()
	}
	if movementAmount != nil && result == ResultSuccess && amount > 0 {
		movementAmount.WithLabelValues(movementType).Add(amount)
	}
}

// IncAudit counts audits by type; outcome is "balanced", "unbalanced" or
// "error".
func IncAudit(auditType string, outcome string) {
	if auditsTotal != nil {
		auditsTotal.WithLabelValues(auditType, outcome).Inc()
	}
}

func IncSale(action string, result string) {
	if salesTotal != nil {
		salesTotal.WithLabelValues(action, result).Inc()
	}
}

func ObserveReportBuild(result string, duration time.Duration) {
	if reportLatency != nil {
		reportLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

func IncReportCache(outcome string) {
	if reportCacheHits != nil {
		reportCacheHits.WithLabelValues(outcome).Inc()
	}
}
