package observability

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "viewledger"

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	paywallMetricsOnce sync.Once
	paywallRegistry    *PaywallMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = newModuleMetrics(prometheus.DefaultRegisterer)
	})
	return moduleRegistry
}

func newModuleMetrics(reg prometheus.Registerer) *moduleMetrics {
	m := &moduleMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "requests_total",
			Help:      "Total JSON-RPC module requests segmented by module and method.",
		}, []string{"module", "method", "outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "errors_total",
			Help:      "Total JSON-RPC module errors segmented by module, method, and error code.",
		}, []string{"module", "method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for JSON-RPC module handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"module", "method"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "throttles_total",
			Help:      "Count of module requests rejected due to throttling policies.",
		}, []string{"module", "reason"}),
	}
	reg.MustRegister(m.requests, m.errors, m.latency, m.throttles)
	return m
}

// Observe records the outcome of a module request. code is the JSON-RPC error
// code, zero on success.
func (m *moduleMetrics) Observe(module, method string, code int, duration time.Duration) {
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
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
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

// PaywallMetrics tracks ledger transitions and the value they move.
type PaywallMetrics struct {
	transitions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	fees        prometheus.Counter
	earnings    prometheus.Counter
	withdrawals prometheus.Counter
	height      prometheus.Gauge
}

// Paywall returns the process-wide paywall metrics registered with the default
// prometheus registerer.
func Paywall() *PaywallMetrics {
	paywallMetricsOnce.Do(func() {
		paywallRegistry = NewPaywallMetrics(prometheus.DefaultRegisterer)
	})
	return paywallRegistry
}

// NewPaywallMetrics builds and registers paywall metrics on reg.
func NewPaywallMetrics(reg prometheus.Registerer) *PaywallMetrics {
	m := &PaywallMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paywall",
			Name:      "transitions_total",
			Help:      "Ledger transitions segmented by operation and outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "paywall",
			Name:      "transition_duration_seconds",
			Help:      "Time spent applying a transition, commit included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		fees: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paywall",
			Name:      "platform_fees_collected_total",
			Help:      "Platform fees credited by unlocks, in base units.",
		}),
		earnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paywall",
			Name:      "creator_earnings_paid_total",
			Help:      "Creator earnings paid out by unlocks, in base units.",
		}),
		withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paywall",
			Name:      "platform_fees_withdrawn_total",
			Help:      "Platform fees withdrawn by the owner, in base units.",
		}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "height",
			Help:      "Number of committed transitions.",
		}),
	}
	reg.MustRegister(m.transitions, m.latency, m.fees, m.earnings, m.withdrawals, m.height)
	return m
}

func (m *PaywallMetrics) ObserveTransition(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *PaywallMetrics) ObserveUnlock(platformFee, creatorEarning *big.Int) {
	if m == nil {
		return
	}
	m.fees.Add(toFloat(platformFee))
	m.earnings.Add(toFloat(creatorEarning))
}

func (m *PaywallMetrics) ObserveWithdrawal(amount *big.Int) {
	if m == nil {
		return
	}
	m.withdrawals.Add(toFloat(amount))
}

func (m *PaywallMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}

func toFloat(v *big.Int) float64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
