package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llmrc_http_requests_total",
		Help: "Total number of HTTP requests handled, by method, path and status category",
	}, []string{"method", "path", "category"})

	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "llmrc_http_request_duration_seconds",
		Help:    "Duration of HTTP request handling",
		Buckets: prometheus.DefBuckets,
	})

	ConnectionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llmrc_connection_errors_total",
		Help: "Total number of per-connection read/write failures",
	}, []string{"kind"})

	EngineTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "llmrc_engine_ticks_total",
		Help: "Total number of supervisory loop ticks",
	})

	EngineUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "llmrc_engine_up",
		Help: "Whether the engine supervisory loop is running (1) or not (0)",
	})

	MetadataBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "llmrc_metadata_payload_bytes",
		Help:    "Size of emitted metadata payloads in bytes",
		Buckets: []float64{64, 128, 256, 512, 1024, 2048},
	})

	MetadataLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "llmrc_metadata_transmission_seconds",
		Help:    "Synthetic latency of metadata transmission cycles",
		Buckets: prometheus.DefBuckets,
	})

	ChatCompletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llmrc_chat_completions_total",
		Help: "Total number of chat completion requests, by outcome",
	}, []string{"outcome"})
)

func RecordRequest(method, path, category string, duration time.Duration) {
	RequestsTotal.WithLabelValues(method, path, category).Inc()
	RequestDuration.Observe(duration.Seconds())
}

func RecordConnectionError(kind string) {
	ConnectionErrors.WithLabelValues(kind).Inc()
}

func RecordTick() {
	EngineTicksTotal.Inc()
}

func RecordEngineUp(up bool) {
	if up {
		EngineUp.Set(1)
	} else {
		EngineUp.Set(0)
	}
}

func RecordMetadata(bytes int, latency time.Duration) {
	MetadataBytes.Observe(float64(bytes))
	MetadataLatency.Observe(latency.Seconds())
}

func RecordChatCompletion(outcome string) {
	ChatCompletionsTotal.WithLabelValues(outcome).Inc()
}
