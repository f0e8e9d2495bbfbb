package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records the outcome of payment initiations and callbacks.
type PaymentMetrics struct {
	initiated  *prometheus.CounterVec
	reconciled *prometheus.CounterVec
	mismatched prometheus.Counter
	verifyTime *prometheus.HistogramVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	initiated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_initiated_total",
		Help: "Payment transactions created against the provider.",
	}, []string{"currency"})
	reconciled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconciled_total",
		Help: "Payment callbacks reconciled by final status.",
	}, []string{"status"})
	mismatched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_verification_mismatch_total",
		Help: "Callbacks whose verified amount or currency did not match the recorded transaction.",
	})
	verifyTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_provider_verify_seconds",
		Help:    "Duration of provider verification calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	reg.MustRegister(initiated, reconciled, mismatched, verifyTime)
	return &PaymentMetrics{
		initiated:  initiated,
		reconciled: reconciled,
		mismatched: mismatched,
		verifyTime: verifyTime,
	}
}

// IncInitiated increments the initiation counter for the given currency.
func (p *PaymentMetrics) IncInitiated(currency string) {
	if p == nil || p.initiated == nil {
		return
	}
	p.initiated.WithLabelValues(normalizeLabel(currency)).Inc()
}

// IncReconciled increments the reconciliation counter for the final status.
func (p *PaymentMetrics) IncReconciled(status string) {
	if p == nil || p.reconciled == nil {
		return
	}
	p.reconciled.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncMismatched increments the verification mismatch counter.
func (p *PaymentMetrics) IncMismatched() {
	if p == nil || p.mismatched == nil {
		return
	}
	p.mismatched.Inc()
}

// ObserveVerify records the duration of one provider verification call.
func (p *PaymentMetrics) ObserveVerify(outcome string, duration time.Duration) {
	if p == nil || p.verifyTime == nil {
		return
	}
	p.verifyTime.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
