package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReturnsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "returns_created_total",
		Help: "Total number of return records created",
	}, []string{"source"})

	ReturnsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "returns_rejected_total",
		Help: "Total number of submissions rejected before storage",
	}, []string{"reason"})

	ReturnsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "returns_failed_total",
		Help: "Total number of submissions that failed in storage",
	})

	IdempotentReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "returns_idempotent_replays_total",
		Help: "Total number of submissions answered from the idempotency cache",
	})

	ExtractionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extraction_failures_total",
		Help: "Total number of failed text extractions",
	}, []string{"kind"})

	ExtractionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "extraction_latency_seconds",
		Help:    "Latency of text extraction calls",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	ReportsGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reports_generated_total",
		Help: "Total number of report files written",
	})

	ReportsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reports_failed_total",
		Help: "Total number of failed report generations",
	}, []string{"reason"})

	ReportGenerationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "report_generation_latency_seconds",
		Help:    "Latency of report generation",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
