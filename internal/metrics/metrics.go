package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

var (
	ChatRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companion_chat_requests_total",
			Help: "Total number of chat completion requests by outcome",
		},
		[]string{"outcome"},
	)

	ChatLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "companion_chat_latency_seconds",
			Help:    "Time to generate and buffer a full chat reply",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 30},
		},
	)

	SynthRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companion_synth_requests_total",
			Help: "Total number of speech synthesis requests by outcome",
		},
		[]string{"outcome"},
	)

	SynthBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "companion_synth_audio_bytes_total",
			Help: "Total bytes of synthesized audio returned",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "companion_active_sessions",
			Help: "Number of open companion WebSocket sessions",
		},
	)
)

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
