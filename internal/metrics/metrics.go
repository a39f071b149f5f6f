package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_sessions_active",
		Help: "Currently connected device sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_sessions_total",
		Help: "Total device sessions accepted",
	})

	AudioChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_audio_chunks_total",
		Help: "Audio chunks received across all sessions",
	})

	TurnsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_turns_detected_total",
		Help: "Speech turns detected by the segmenter",
	})

	TurnsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_turns_dropped_total",
		Help: "Turns discarded by the noise-gate policy before recognition",
	})

	BargeIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_barge_ins_total",
		Help: "Replies cancelled because the user started speaking",
	})

	ProtocolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_protocol_errors_total",
		Help: "Protocol violations by reason",
	}, []string{"reason"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_reply_stage_duration_seconds",
		Help:    "Per-stage reply pipeline latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	}, []string{"stage"})

	ReplyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_reply_duration_seconds",
		Help:    "Turn-end to reply-complete latency",
		Buckets: []float64{0.1, 0.2, 0.5, 0.8, 1.0, 1.5, 2.0, 3.0, 5.0},
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})
)
