package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("ledger:integrity").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("ledger:integrity").End(boom), boom)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Equal(t, 1.0, counterValue(t, families, "stockledger_jobs_total", map[string]string{"job": "ledger:integrity", "status": "success"}))
	require.Equal(t, 1.0, counterValue(t, families, "stockledger_jobs_total", map[string]string{"job": "ledger:integrity", "status": "failure"}))
	require.Equal(t, 1.0, counterValue(t, families, "stockledger_jobs_failures_total", map[string]string{"job": "ledger:integrity"}))
}

func TestAddViolationsIgnoresEmpty(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.AddViolations("trial_balance", 7, 0)
	m.AddViolations("trial_balance", 7, 2)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Equal(t, 2.0, counterValue(t, families, "stockledger_integrity_violations_total", map[string]string{"check": "trial_balance", "tenant": "7"}))

	var nilMetrics *Metrics
	nilMetrics.AddViolations("trial_balance", 7, 1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}

func counterValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, pair := range metric.GetLabel() {
		if want, ok := labels[pair.GetName()]; ok {
			if pair.GetValue() != want {
				return false
			}
			found++
		}
	}
	return found == len(labels)
}
