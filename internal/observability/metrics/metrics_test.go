package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matches(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matches(metric *dto.Metric, labels map[string]string) bool {
	for _, pair := range metric.GetLabel() {
		if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
			return false
		}
	}
	return true
}

func TestOutreachMetricsObserve(t *testing.T) {
	m := NewOutreachMetrics(nil)
	m.ObserveGeneration("chat", nil, 0.2)
	m.ObserveEmails(1, 0)
	m.ObserveCallStatus("ringing")
	m.ObserveMemoryWrite(nil)
}

func TestOutreachMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutreachMetrics(reg)

	m.ObserveEmails(3, 2)
	m.ObserveEmails(1, 0)
	m.ObserveGeneration("email", errors.New("boom"), 1.5)
	m.ObserveMemoryWrite(errors.New("down"))
	m.ObserveMemoryWrite(nil)
	m.ObserveCallStatus("completed")

	if got := counterValue(t, reg, "outreach_email_recipients_total", map[string]string{"result": "sent"}); got != 4 {
		t.Fatalf("expected 4 sent, got %v", got)
	}
	if got := counterValue(t, reg, "outreach_email_recipients_total", map[string]string{"result": "failed"}); got != 2 {
		t.Fatalf("expected 2 failed, got %v", got)
	}
	if got := counterValue(t, reg, "outreach_generation_requests_total", map[string]string{"purpose": "email", "outcome": "error"}); got != 1 {
		t.Fatalf("expected 1 failed generation, got %v", got)
	}
	if got := counterValue(t, reg, "outreach_memory_writes_total", map[string]string{"outcome": "ok"}); got != 1 {
		t.Fatalf("expected 1 memory write, got %v", got)
	}
	if got := counterValue(t, reg, "outreach_calls_status_total", map[string]string{"status": "completed"}); got != 1 {
		t.Fatalf("expected 1 completed call, got %v", got)
	}
}

func TestOutreachMetricsNilSafe(t *testing.T) {
	var m *OutreachMetrics
	m.ObserveGeneration("chat", nil, 0.1)
	m.ObserveEmails(1, 1)
	m.ObserveCallStatus("failed")
	m.ObserveMemoryWrite(nil)
}
