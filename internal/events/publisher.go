// Package events publishes survey progress events.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"voice-survey-service/internal/models"
	"voice-survey-service/internal/observability/metrics"
)

// Publisher publishes answer and completion events to separate Kafka topics.
type Publisher struct {
	writerAnswers    *kafka.Writer
	writerCompletion *kafka.Writer
	principal        string
	topicAnswers     string
	topicCompletion  string
	enabled          bool
	metrics          *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	TopicAnswers    string
	TopicCompletion string
	Principal       string
	Enabled         bool
}

// New creates a Kafka event publisher. Without brokers, or when disabled,
// events are only logged.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:       cfg.Principal,
			topicAnswers:    cfg.TopicAnswers,
			topicCompletion: cfg.TopicCompletion,
			enabled:         false,
			metrics:         m,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicAnswers", cfg.TopicAnswers).
		Str("topicCompletion", cfg.TopicCompletion).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerAnswers:    newWriter(cfg.TopicAnswers),
		writerCompletion: newWriter(cfg.TopicCompletion),
		principal:        cfg.Principal,
		topicAnswers:     cfg.TopicAnswers,
		topicCompletion:  cfg.TopicCompletion,
		enabled:          true,
		metrics:          m,
	}
}

// PublishAnswer publishes an answer event keyed by call ID, so every event
// of one caller lands on the same partition in order.
func (p *Publisher) PublishAnswer(ctx context.Context, ev models.AnswerRecorded) error {
	return p.publish(ctx, p.writerAnswers, p.topicAnswers, ev.EventType, ev.CallID, ev)
}

// PublishCompletion publishes a survey completion event keyed by call ID.
func (p *Publisher) PublishCompletion(ctx context.Context, ev models.SurveyCompleted) error {
	return p.publish(ctx, p.writerCompletion, p.topicCompletion, ev.EventType, ev.CallID, ev)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerAnswers != nil {
		if e := p.writerAnswers.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing answers writer")
			err = e
		}
	}
	if p.writerCompletion != nil {
		if e := p.writerCompletion.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing completion writer")
			err = e
		}
	}
	return err
}
