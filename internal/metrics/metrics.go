package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guide_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guide_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "guide_http_requests_in_flight",
			Help: "Requests currently being served.",
		},
	)

	// PipelineAnswersTotal counts ask turns by outcome: ok, invalid_input,
	// embedding_error, retrieval_error, generation_error.
	PipelineAnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guide_pipeline_answers_total",
			Help: "Total number of conversation turns by outcome.",
		},
		[]string{"outcome"},
	)

	ProviderCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guide_provider_call_duration_seconds",
			Help:    "Latency of outbound provider calls in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "op"},
	)

	RetrievalDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "guide_retrieval_degraded_total",
			Help: "Turns answered without retrieved context because retrieval failed.",
		},
	)

	MemoryAppendFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "guide_memory_append_failures_total",
			Help: "Answers that could not be recorded in session memory.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPRequestsInFlight,
		PipelineAnswersTotal,
		ProviderCallDuration,
		RetrievalDegradedTotal,
		MemoryAppendFailuresTotal,
	)
}
