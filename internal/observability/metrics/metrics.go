package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutreachMetrics exposes counters/histograms for the outreach workflow.
type OutreachMetrics struct {
	generationsTotal *prometheus.CounterVec
	generationTime   *prometheus.HistogramVec
	emailsTotal      *prometheus.CounterVec
	callsTotal       *prometheus.CounterVec
	memoryWrites     *prometheus.CounterVec
}

// NewOutreachMetrics registers the outreach collectors on reg, or on the
// default registerer when reg is nil.
func NewOutreachMetrics(reg prometheus.Registerer) *OutreachMetrics {
	m := &OutreachMetrics{
		generationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "generation",
			Name:      "requests_total",
			Help:      "Total generation requests by purpose and outcome",
		}, []string{"purpose", "outcome"}),
		generationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "outreach",
			Subsystem: "generation",
			Name:      "latency_seconds",
			Help:      "Latency of generation requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"purpose"}),
		emailsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "email",
			Name:      "recipients_total",
			Help:      "Total bulk email recipients by result",
		}, []string{"result"}),
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "calls",
			Name:      "status_total",
			Help:      "Call lifecycle transitions by status",
		}, []string{"status"}),
		memoryWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "memory",
			Name:      "writes_total",
			Help:      "Memory store writes by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.generationsTotal, m.generationTime, m.emailsTotal, m.callsTotal, m.memoryWrites)
	return m
}

// ObserveGeneration records one generation request.
func (m *OutreachMetrics) ObserveGeneration(purpose string, err error, seconds float64) {
	if m == nil {
		return
	}
	m.generationsTotal.WithLabelValues(purpose, outcome(err)).Inc()
	m.generationTime.WithLabelValues(purpose).Observe(seconds)
}

// ObserveEmails adds the sent and failed counts of one dispatch.
func (m *OutreachMetrics) ObserveEmails(sent, failed int) {
	if m == nil {
		return
	}
	m.emailsTotal.WithLabelValues("sent").Add(float64(sent))
	m.emailsTotal.WithLabelValues("failed").Add(float64(failed))
}

func (m *OutreachMetrics) ObserveCallStatus(status string) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(status).Inc()
}

func (m *OutreachMetrics) ObserveMemoryWrite(err error) {
	if m == nil {
		return
	}
	m.memoryWrites.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
