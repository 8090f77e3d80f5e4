// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_survey"

// Callback outcomes.
const (
	OutcomeWelcome   = "welcome"
	OutcomeQuestion  = "question"
	OutcomeComplete  = "complete"
	OutcomeMalformed = "malformed"
	OutcomeError     = "error"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Call-flow metrics
	CallbacksTotal   *prometheus.CounterVec
	CallbackDuration prometheus.Histogram

	// Participant metrics
	ParticipantsCreated prometheus.Counter
	DuplicateCreates    prometheus.Counter
	AnswersRecorded     prometheus.Counter
	AnswersDeduplicated prometheus.Counter
	SurveysCompleted    prometheus.Counter

	// Store metrics
	StoreLatency *prometheus.HistogramVec
	StoreErrors  *prometheus.CounterVec

	// Recording proxy metrics
	RecordingStreamsActive prometheus.Gauge
	RecordingBytes         prometheus.Counter
	RecordingErrors        *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics on reg. Tests pass a fresh registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Total number of call-flow callbacks by outcome",
		}, []string{"outcome"}),
		CallbackDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "callback_duration_seconds",
			Help:      "Time to advance the call flow for one callback",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),

		ParticipantsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "participants_created_total",
			Help:      "Total number of participants created",
		}),
		DuplicateCreates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "participant_duplicate_creates_total",
			Help:      "Total number of participant creates that lost a race",
		}),
		AnswersRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_recorded_total",
			Help:      "Total number of answers persisted",
		}),
		AnswersDeduplicated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_deduplicated_total",
			Help:      "Total number of replayed answers ignored",
		}),
		SurveysCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "surveys_completed_total",
			Help:      "Total number of participants who answered every question",
		}),

		StoreLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_latency_seconds",
			Help:      "Participant store operation latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"op"}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Total number of participant store errors",
		}, []string{"op"}),

		RecordingStreamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recording_streams_active",
			Help:      "Number of recordings currently being proxied",
		}),
		RecordingBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_bytes_total",
			Help:      "Total recording bytes streamed to clients",
		}),
		RecordingErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_errors_total",
			Help:      "Total number of failed recording fetches",
		}, []string{"reason"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		KafkaPublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordCallback records a handled callback.
func (m *Metrics) RecordCallback(outcome string, durationSeconds float64) {
	m.CallbacksTotal.WithLabelValues(outcome).Inc()
	m.CallbackDuration.Observe(durationSeconds)
}

// RecordParticipantCreated records a new participant.
func (m *Metrics) RecordParticipantCreated() {
	m.ParticipantsCreated.Inc()
}

// RecordDuplicateCreate records a create that raced another request.
func (m *Metrics) RecordDuplicateCreate() {
	m.DuplicateCreates.Inc()
}

// RecordAnswer records an append attempt; appended is false for replays.
func (m *Metrics) RecordAnswer(appended bool) {
	if appended {
		m.AnswersRecorded.Inc()
	} else {
		m.AnswersDeduplicated.Inc()
	}
}

// RecordSurveyCompleted records a participant reaching the last answer.
func (m *Metrics) RecordSurveyCompleted() {
	m.SurveysCompleted.Inc()
}

// RecordStoreOp records a store operation.
func (m *Metrics) RecordStoreOp(op string, err error, latencySeconds float64) {
	m.StoreLatency.WithLabelValues(op).Observe(latencySeconds)
	if err != nil {
		m.StoreErrors.WithLabelValues(op).Inc()
	}
}

// RecordRecordingStart records a proxied recording stream starting.
func (m *Metrics) RecordRecordingStart() {
	m.RecordingStreamsActive.Inc()
}

// RecordRecordingEnd records a proxied recording stream ending.
func (m *Metrics) RecordRecordingEnd(bytes int64, failureReason string) {
	m.RecordingStreamsActive.Dec()
	m.RecordingBytes.Add(float64(bytes))
	if failureReason != "" {
		m.RecordingErrors.WithLabelValues(failureReason).Inc()
	}
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(route, code string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(route, code).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
