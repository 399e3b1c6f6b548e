package observability

import (
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	stakePoolOnce     sync.Once
	stakePoolRegistry *StakePoolMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity per module and route.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakepool",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module, route and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakepool",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, route and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stakepool",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakepool",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// StakePoolMetrics tracks ledger operations and the headline pool gauges.
type StakePoolMetrics struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	totalStaked prometheus.Gauge
	rewardRate  prometheus.Gauge
	periodEnd   prometheus.Gauge
	rollbacks   prometheus.Counter
}

// StakePool returns the lazily-initialised stake pool metrics registry.
func StakePool() *StakePoolMetrics {
	stakePoolOnce.Do(func() {
		stakePoolRegistry = &StakePoolMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakepool",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stakepool",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakepool",
				Subsystem: "ledger",
				Name:      "total_staked",
				Help:      "Aggregate principal currently earning rewards.",
			}),
			rewardRate: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakepool",
				Subsystem: "ledger",
				Name:      "reward_rate",
				Help:      "Reward units released per second in the active period.",
			}),
			periodEnd: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakepool",
				Subsystem: "ledger",
				Name:      "period_finish_timestamp_seconds",
				Help:      "Unix time at which the active reward period ends.",
			}),
			rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakepool",
				Subsystem: "ledger",
				Name:      "transfer_rollbacks_total",
				Help:      "Operations reverted because the asset transfer failed.",
			}),
		}
		prometheus.MustRegister(
			stakePoolRegistry.operations,
			stakePoolRegistry.latency,
			stakePoolRegistry.totalStaked,
			stakePoolRegistry.rewardRate,
			stakePoolRegistry.periodEnd,
			stakePoolRegistry.rollbacks,
		)
	})
	return stakePoolRegistry
}

// RecordOperation records one ledger call. outcome is "success" or the
// error category reported to the caller.
func (m *StakePoolMetrics) RecordOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "success"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
	if outcome == "transfer" {
		m.rollbacks.Inc()
	}
}

// SetPoolState updates the pool gauges.
func (m *StakePoolMetrics) SetPoolState(totalStaked, rewardRate *uint256.Int, periodFinish uint64) {
	if m == nil {
		return
	}
	m.totalStaked.Set(toFloat(totalStaked))
	m.rewardRate.Set(toFloat(rewardRate))
	m.periodEnd.Set(float64(periodFinish))
}

func toFloat(value *uint256.Int) float64 {
	if value == nil {
		return 0
	}
	if value.IsUint64() {
		return float64(value.Uint64())
	}
	f, _ := new(big.Float).SetInt(value.ToBig()).Float64()
	if math.IsInf(f, 0) {
		return math.MaxFloat64
	}
	return f
}
