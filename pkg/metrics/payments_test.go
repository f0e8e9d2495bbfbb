package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPaymentMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPaymentMetrics(reg)
	metrics.IncInitiated("USD")
	metrics.IncReconciled("completed")
	metrics.IncMismatched()
	metrics.ObserveVerify("success", 250*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "payment_initiated_total", "currency", "USD"); err != nil {
		t.Fatalf("fetch initiated: %v", err)
	} else if got != 1 {
		t.Fatalf("expected initiated=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "payment_reconciled_total", "status", "completed"); err != nil {
		t.Fatalf("fetch reconciled: %v", err)
	} else if got != 1 {
		t.Fatalf("expected reconciled=1, got %f", got)
	}

	mf := findMetricFamily(mfs, "payment_verification_mismatch_total")
	if mf == nil || len(mf.GetMetric()) == 0 {
		t.Fatal("mismatch counter not exported")
	}
	if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected mismatch=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "payment_provider_verify_seconds", "outcome", "success"); err != nil {
		t.Fatalf("fetch verify duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestPaymentMetricsNilRegisterer(t *testing.T) {
	metrics := NewPaymentMetrics(nil)
	metrics.IncInitiated("USD")
	metrics.IncReconciled("failed")
	metrics.IncMismatched()
	metrics.ObserveVerify("error", time.Second)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
