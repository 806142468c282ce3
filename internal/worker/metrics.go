package worker

import (
	"net/http"

	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry            *prometheus.Registry
	invocationsTotal    *prometheus.CounterVec
	invocationDuration  *prometheus.HistogramVec
	activeInvocations   prometheus.Gauge
	variantsTotal       *prometheus.CounterVec
	sourceBytesTotal    prometheus.Counter
	variantBytesTotal   prometheus.Counter
	reportFailuresTotal prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		invocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "variantflow_worker_invocations_total",
			Help: "Total invocations by classification and terminal status.",
		}, []string{"classification", "status"}),
		invocationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "variantflow_worker_invocation_duration_seconds",
			Help:    "Duration of each invocation from trigger to terminal report.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		activeInvocations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "variantflow_worker_active_invocations",
			Help: "Current number of invocations running in the worker.",
		}),
		variantsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "variantflow_worker_variants_total",
			Help: "Total variants attempted, by outcome.",
		}, []string{"outcome"}),
		sourceBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "variantflow_worker_source_bytes_total",
			Help: "Total bytes fetched from source objects.",
		}),
		variantBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "variantflow_worker_variant_bytes_total",
			Help: "Total bytes written as variants.",
		}),
		reportFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "variantflow_worker_report_delivery_failures_total",
			Help: "Report sink deliveries that failed.",
		}),
	}

	registry.MustRegister(
		m.invocationsTotal,
		m.invocationDuration,
		m.activeInvocations,
		m.variantsTotal,
		m.sourceBytesTotal,
		m.variantBytesTotal,
		m.reportFailuresTotal,
	)
	return m
}

func (m *metrics) observe(report domain.Report) {
	classification := report.Classification
	if classification == "" {
		classification = "none"
	}
	m.invocationsTotal.WithLabelValues(classification, report.Status).Inc()
	m.invocationDuration.WithLabelValues(report.Status).Observe(report.Duration().Seconds())
	m.sourceBytesTotal.Add(float64(report.SourceBytes))

	for _, v := range report.Variants {
		if v.Succeeded() {
			m.variantsTotal.WithLabelValues("stored").Inc()
			m.variantBytesTotal.Add(float64(v.Bytes))
			continue
		}
		m.variantsTotal.WithLabelValues("failed").Inc()
	}
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
