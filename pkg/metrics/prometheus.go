package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage label values of the latency histogram.
const (
	StageFirstText     = "first_text"
	StageFirstAudio    = "first_audio"
	StagePlaybackStart = "playback_start"
	StageTotal         = "total"
)

// promMetrics mirrors completed turns into Prometheus.
type promMetrics struct {
	turns     prometheus.Counter
	abandoned prometheus.Counter
	latency   *prometheus.HistogramVec
	deltas    *prometheus.CounterVec
}

func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	f := promauto.With(reg)
	return &promMetrics{
		turns: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_turns_total",
			Help: "Total number of completed assistant turns",
		}),
		abandoned: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_turns_abandoned_total",
			Help: "Turns dropped before response.done, e.g. by a disconnect",
		}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicelink_turn_latency_seconds",
			Help:    "Latency from commit to each response stage",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"stage"}),
		deltas: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_response_deltas_total",
			Help: "Response deltas received inside a turn",
		}, []string{"kind"}),
	}
}

func (p *promMetrics) record(t Turn) {
	p.turns.Inc()
	observe := func(stage string, d float64) {
		if d > 0 {
			p.latency.WithLabelValues(stage).Observe(d)
		}
	}
	observe(StageFirstText, t.FirstText.Seconds())
	observe(StageFirstAudio, t.FirstAudio.Seconds())
	observe(StagePlaybackStart, t.PlaybackStart.Seconds())
	observe(StageTotal, t.Total.Seconds())
	p.deltas.WithLabelValues("text").Add(float64(t.TextDeltas))
	p.deltas.WithLabelValues("audio").Add(float64(t.AudioDeltas))
}
