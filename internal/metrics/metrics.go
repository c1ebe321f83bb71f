package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "points_ledger"

type Metrics struct {
	withdrawalsTotal      *prometheus.CounterVec
	depositsTotal         *prometheus.CounterVec
	notificationsTotal    *prometheus.CounterVec
	compensationsTotal    prometheus.Counter
	compensationFailures  prometheus.Counter
	gatewayRequestSeconds *prometheus.HistogramVec
	cleanupDeletedTotal   prometheus.Counter
	cleanupLastRunUnix    prometheus.Gauge
	httpRequestSeconds    *prometheus.HistogramVec
}

// New registers the collectors on reg. Tests pass a fresh prometheus.NewRegistry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		withdrawalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "withdrawal",
				Name:      "requests_total",
				Help:      "Withdrawal requests partitioned by synchronous outcome.",
			},
			[]string{"result"},
		),
		depositsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "deposit",
				Name:      "credits_total",
				Help:      "Deposit credit attempts partitioned by result.",
			},
			[]string{"result"},
		),
		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notification",
				Name:      "received_total",
				Help:      "Gateway notifications partitioned by kind and result.",
			},
			[]string{"kind", "result"},
		),
		compensationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "withdrawal",
				Name:      "compensations_total",
				Help:      "Withdrawals whose reserved points were returned to the balance.",
			},
		),
		compensationFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "withdrawal",
				Name:      "compensation_failures_total",
				Help:      "Compensations that could not be written and need manual reconciliation.",
			},
		),
		gatewayRequestSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency of calls to the payment gateway.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation", "result"},
		),
		cleanupDeletedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "idempotency",
				Name:      "cleanup_deleted_total",
				Help:      "Expired idempotency keys deleted.",
			},
		),
		cleanupLastRunUnix: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "idempotency",
				Name:      "cleanup_last_run_unix",
				Help:      "Unix time of the most recent cleanup run.",
			},
		),
		httpRequestSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by route pattern and status code.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
}

// All recorders accept a nil receiver so callers can run without metrics.

func (m *Metrics) ObserveWithdrawal(result string) {
	if m == nil {
		return
	}
	m.withdrawalsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDeposit(result string) {
	if m == nil {
		return
	}
	m.depositsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveNotification(kind, result string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveCompensation() {
	if m == nil {
		return
	}
	m.compensationsTotal.Inc()
}

func (m *Metrics) ObserveCompensationFailure() {
	if m == nil {
		return
	}
	m.compensationFailures.Inc()
}

func (m *Metrics) ObserveGatewayRequest(operation, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequestSeconds.WithLabelValues(operation, result).Observe(d.Seconds())
}

func (m *Metrics) ObserveIdempotencyCleanup(deleted int64, at time.Time) {
	if m == nil {
		return
	}
	m.cleanupDeletedTotal.Add(float64(deleted))
	m.cleanupLastRunUnix.Set(float64(at.Unix()))
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestSeconds.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
