package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/codebuildervaibhav/voice-annotation/internal/types"
)

// unknownEvent labels every event name the server does not handle
const unknownEvent = "unknown"

// Metrics contains all Prometheus metrics for the annotation service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Realtime metrics
	RealtimeEvents   *prometheus.CounterVec
	RealtimeErrors   *prometheus.CounterVec
	RealtimeSessions prometheus.Gauge

	// Upstream API metrics
	TranscriptionRequests *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram
	LLMRequests           *prometheus.CounterVec

	// Annotation metrics
	AnnotationsSaved prometheus.Counter
	ExportJobs       *prometheus.CounterVec
}

// New creates all metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RealtimeEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_realtime_events_total",
			Help: "Total number of realtime events received",
		}, []string{"event"}),
		RealtimeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_realtime_errors_total",
			Help: "Total number of realtime events that ended in an error event",
		}, []string{"event"}),
		RealtimeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voice_realtime_sessions",
			Help: "Number of open realtime connections",
		}),

		TranscriptionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_transcription_requests_total",
			Help: "Total number of speech-to-text requests by outcome",
		}, []string{"status"}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_transcription_duration_seconds",
			Help:    "Duration of speech-to-text requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1.5 minutes
		}),
		LLMRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_llm_requests_total",
			Help: "Total number of answer generation requests by outcome",
		}, []string{"status"}),

		AnnotationsSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_annotations_saved_total",
			Help: "Total number of annotations saved",
		}),
		ExportJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_export_jobs_total",
			Help: "Total number of annotation export jobs by outcome",
		}, []string{"status"}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// eventLabel keeps the event label set fixed regardless of client input
func eventLabel(event string) string {
	switch event {
	case types.EventAudioBlob, types.EventAnnotationAudioBlob, types.EventDisconnect:
		return event
	}
	return unknownEvent
}

// RecordEvent counts an inbound realtime event
func (m *Metrics) RecordEvent(event string) {
	if m == nil {
		return
	}
	m.RealtimeEvents.WithLabelValues(eventLabel(event)).Inc()
}

// RecordEventError counts a realtime event that ended in an error event
func (m *Metrics) RecordEventError(event string) {
	if m == nil {
		return
	}
	m.RealtimeErrors.WithLabelValues(eventLabel(event)).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.RealtimeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.RealtimeSessions.Dec()
}

// RecordTranscription records the outcome and latency of one STT request
func (m *Metrics) RecordTranscription(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.TranscriptionRequests.WithLabelValues(status(err)).Inc()
	m.TranscriptionDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordLLM(err error) {
	if m == nil {
		return
	}
	m.LLMRequests.WithLabelValues(status(err)).Inc()
}

func (m *Metrics) RecordAnnotationSaved() {
	if m == nil {
		return
	}
	m.AnnotationsSaved.Inc()
}

func (m *Metrics) RecordExport(err error) {
	if m == nil {
		return
	}
	m.ExportJobs.WithLabelValues(status(err)).Inc()
}
