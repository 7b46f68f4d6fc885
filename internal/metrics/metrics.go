package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records stream pipeline counters. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	streamsTotal      *prometheus.CounterVec
	chunksTotal       *prometheus.CounterVec
	droppedToolCalls  *prometheus.CounterVec
	imagePlaceholders *prometheus.CounterVec
	streamLatencyMs   *prometheus.HistogramVec
}

func New() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		streamsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "converse_streams_total",
			Help: "Total number of model turns started, by provider and outcome.",
		}, []string{"provider", "status"}),
		chunksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "converse_chunks_total",
			Help: "Canonical chunks emitted, by provider and chunk type.",
		}, []string{"provider", "type"}),
		droppedToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "converse_dropped_tool_calls_total",
			Help: "Tool-use blocks dropped because their input was not valid JSON.",
		}, []string{"provider"}),
		imagePlaceholders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "converse_image_placeholders_total",
			Help: "Images replaced by placeholder text, by reason.",
		}, []string{"reason"}),
		streamLatencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "converse_stream_latency_ms",
			Help:    "Wall time from send to the terminal chunk in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		}, []string{"provider", "status"}),
	}
	r.MustRegister(m.streamsTotal, m.chunksTotal, m.droppedToolCalls, m.imagePlaceholders, m.streamLatencyMs)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStream records one finished turn. status is "ok" or "error".
func (m *Metrics) ObserveStream(provider, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.streamsTotal.WithLabelValues(provider, status).Inc()
	m.streamLatencyMs.WithLabelValues(provider, status).Observe(float64(dur.Milliseconds()))
}

func (m *Metrics) ObserveChunk(provider, chunkType string) {
	if m == nil {
		return
	}
	m.chunksTotal.WithLabelValues(provider, chunkType).Inc()
}

func (m *Metrics) DroppedToolCall(provider string) {
	if m == nil {
		return
	}
	m.droppedToolCalls.WithLabelValues(provider).Inc()
}

// ImagePlaceholder counts an image substituted by text; reason is
// "unsupported" or "failed".
func (m *Metrics) ImagePlaceholder(reason string) {
	if m == nil {
		return
	}
	m.imagePlaceholders.WithLabelValues(reason).Inc()
}
