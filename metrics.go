package voicelink

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus instruments shared by all sessions started
// from one Config.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	AudioBytes        *prometheus.CounterVec
	Interruptions     prometheus.Counter
	ToolCalls         *prometheus.CounterVec
	ToolResults       *prometheus.CounterVec
	FirstAudioLatency prometheus.Histogram
}

// NewMetrics registers the instruments on reg. A nil reg registers on a
// private registry, which effectively discards the measurements; use
// prometheus.DefaultRegisterer to expose them process-wide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "voicelink",
			Name:      "active_sessions",
			Help:      "Number of open realtime voice sessions.",
		}),
		SessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicelink",
			Name:      "session_events_total",
			Help:      "Transport events by direction and type.",
		}, []string{"direction", "type"}),
		AudioBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicelink",
			Name:      "audio_bytes_total",
			Help:      "PCM bytes moved by direction.",
		}, []string{"direction"}),
		Interruptions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "voicelink",
			Name:      "interruptions_total",
			Help:      "Barge-in interruptions of assistant playback.",
		}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicelink",
			Name:      "tool_calls_total",
			Help:      "Tool calls dispatched by name.",
		}, []string{"name"}),
		ToolResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicelink",
			Name:      "tool_results_total",
			Help:      "Tool results emitted by name and outcome.",
		}, []string{"name", "outcome"}),
		FirstAudioLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voicelink",
			Name:      "first_audio_latency_ms",
			Help:      "Latency from response request to first audio chunk in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000},
		}),
	}
}

// ObserveFirstAudioLatency records the time from response request to first
// assistant audio chunk.
func (m *Metrics) ObserveFirstAudioLatency(d time.Duration) {
	m.FirstAudioLatency.Observe(float64(d.Milliseconds()))
}

// MetricsHandler exposes the default registry for embedding processes.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
