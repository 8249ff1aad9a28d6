package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// WebhooksReceived counts inbound order webhooks by verification result
	WebhooksReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "order_webhooks_total", Help: "Inbound order webhooks by result."},
		[]string{"result"},
	)
	// PipelineStages counts pipeline stage outcomes
	PipelineStages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pipeline_stage_total", Help: "Pipeline stage outcomes."},
		[]string{"stage", "outcome"},
	)
	// CodeGenAttempts tracks insert attempts needed per issued code
	CodeGenAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "code_generation_attempts", Help: "Store insert attempts per issued code.", Buckets: []float64{1, 2, 3, 4, 5}},
	)
	// PartnerLatency tracks partner API call latencies in milliseconds
	PartnerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "partner_request_latency_ms", Help: "Partner API latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"status"},
	)
	// AnnotationJobs counts reconciliation worker outcomes
	AnnotationJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "annotation_jobs_total", Help: "Annotation reconciliation job outcomes."},
		[]string{"status"},
	)
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(WebhooksReceived)
		Registry.MustRegister(PipelineStages)
		Registry.MustRegister(CodeGenAttempts)
		Registry.MustRegister(PartnerLatency)
		Registry.MustRegister(AnnotationJobs)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
