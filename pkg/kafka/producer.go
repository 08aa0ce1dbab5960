package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dubox-platform/production-service/pkg/cloudevents"
	"github.com/dubox-platform/production-service/pkg/logging"
	"github.com/dubox-platform/production-service/pkg/metrics"
)

// MessageWriter is the subset of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes CloudEvents to Kafka topics
type Producer struct {
	mu        sync.Mutex
	writers   map[string]MessageWriter
	newWriter func(topic string) MessageWriter
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewProducer creates a new Kafka producer
func NewProducer(config *Config, logger *logging.Logger, m *metrics.Metrics) *Producer {
	return NewProducerWithWriterFactory(func(topic string) MessageWriter {
		return &kafka.Writer{
			Addr:         kafka.TCP(config.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    config.BatchSize,
			BatchTimeout: config.BatchTimeout,
			RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
			WriteTimeout: config.WriteTimeout,
			Transport:    &kafka.Transport{ClientID: config.ClientID},
		}
	}, logger, m)
}

// NewProducerWithWriterFactory creates a producer with custom writers. Used in tests.
func NewProducerWithWriterFactory(factory func(topic string) MessageWriter, logger *logging.Logger, m *metrics.Metrics) *Producer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Producer{
		writers:   make(map[string]MessageWriter),
		newWriter: factory,
		logger:    logger,
		metrics:   m,
	}
}

func (p *Producer) writer(topic string) MessageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := p.newWriter(topic)
	p.writers[topic] = w
	return w
}

// NewMessage builds the Kafka message for an event. The box ID is the key so
// every event of a box lands on the same partition in order.
func NewMessage(event *cloudevents.ProductionCloudEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.BoxID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "ce-specversion", Value: []byte(event.SpecVersion)},
			{Key: "ce-type", Value: []byte(event.Type)},
			{Key: "ce-source", Value: []byte(event.Source)},
			{Key: "ce-id", Value: []byte(event.ID)},
			{Key: "ce-time", Value: []byte(event.Time.Format(time.RFC3339))},
			{Key: "content-type", Value: []byte(event.DataContentType)},
		},
		Time: event.Time,
	}

	optional := []struct{ key, value string }{
		{"ce-prodcorrelationid", event.CorrelationID},
		{"ce-prodcatalogversion", event.CatalogVersion},
		{"ce-traceparent", event.TraceParent},
	}
	for _, h := range optional {
		if h.value != "" {
			msg.Headers = append(msg.Headers, kafka.Header{Key: h.key, Value: []byte(h.value)})
		}
	}

	return msg, nil
}

// PublishEvent publishes a CloudEvent to the specified topic
func (p *Producer) PublishEvent(ctx context.Context, topic string, event *cloudevents.ProductionCloudEvent) error {
	start := time.Now()

	msg, err := NewMessage(event)
	if err == nil {
		err = p.writer(topic).WriteMessages(ctx, msg)
		if err != nil {
			err = fmt.Errorf("failed to publish event to topic %s: %w", topic, err)
		}
	}

	duration := time.Since(start)
	p.metrics.RecordKafkaPublish(topic, event.Type, err == nil, duration)
	p.logger.KafkaPublish(ctx, topic, event.Type, err, duration)
	return err
}

// Close closes all writers
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close writer for %s: %w", topic, err)
		}
	}
	return firstErr
}
