package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus instruments for the capture pipeline.
// A nil *Metrics records nothing.
type Metrics struct {
	// Capture metrics
	SessionsStarted   prometheus.Counter
	SegmentsFinalized *prometheus.CounterVec
	SegmentsDiscarded prometheus.Counter
	CaptureErrors     *prometheus.CounterVec
	SegmentDuration   prometheus.Histogram

	// Provider metrics
	Transcriptions   *prometheus.CounterVec
	AIResponses      *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "talkback_sessions_started_total",
			Help: "Total number of capture sessions started",
		}),
		SegmentsFinalized: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talkback_segments_finalized_total",
			Help: "Total number of audio segments finalized, by ended reason",
		}, []string{"reason"}),
		SegmentsDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "talkback_segments_discarded_total",
			Help: "Total number of sessions discarded without audio",
		}),
		CaptureErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talkback_capture_errors_total",
			Help: "Total number of failures surfaced by the capture controller",
		}, []string{"code"}),
		SegmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "talkback_segment_duration_seconds",
			Help:    "Duration of finalized audio segments",
			Buckets: prometheus.LinearBuckets(0, 5, 13), // 0s to 60s
		}),
		Transcriptions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talkback_transcriptions_total",
			Help: "Total number of transcription requests, by outcome",
		}, []string{"outcome"}),
		AIResponses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talkback_ai_responses_total",
			Help: "Total number of AI response requests, by outcome",
		}, []string{"outcome"}),
		ProviderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "talkback_provider_duration_seconds",
			Help:    "Duration of provider calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}, []string{"stage"}),
	}
}

// RecordSessionStarted counts a new capture session
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

// RecordSegmentFinalized counts a finalized segment and its duration
func (m *Metrics) RecordSegmentFinalized(reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SegmentsFinalized.WithLabelValues(reason).Inc()
	m.SegmentDuration.Observe(durationSeconds)
}

// RecordSegmentDiscarded counts an empty capture
func (m *Metrics) RecordSegmentDiscarded() {
	if m == nil {
		return
	}
	m.SegmentsDiscarded.Inc()
}

// RecordCaptureError counts a surfaced failure
func (m *Metrics) RecordCaptureError(code string) {
	if m == nil {
		return
	}
	m.CaptureErrors.WithLabelValues(code).Inc()
}

// RecordTranscription records a transcription call outcome
func (m *Metrics) RecordTranscription(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Transcriptions.WithLabelValues(outcome).Inc()
	m.ProviderDuration.WithLabelValues("transcription").Observe(elapsed.Seconds())
}

// RecordAIResponse records an AI call outcome
func (m *Metrics) RecordAIResponse(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AIResponses.WithLabelValues(outcome).Inc()
	m.ProviderDuration.WithLabelValues("ai").Observe(elapsed.Seconds())
}
