package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/moss/internal/tracing"
	"github.com/segmentio/kafka-go"
)

// Producer publishes document-sync events so downstream read-side caches can
// invalidate without polling the index.
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// DocumentEvent describes one document upserted by a synchronization run.
type DocumentEvent struct {
	Index      string    `json:"index"`
	DocumentID string    `json:"document_id"`
	RunNumber  int       `json:"run_number"`
	Timestamp  time.Time `json:"timestamp"`
}

// PublishDocumentEvents publishes one event per upserted document in a batch.
func (p *Producer) PublishDocumentEvents(ctx context.Context, events []DocumentEvent) error {
	ctx, span := tracing.StartSpan(ctx, "events.Producer.PublishDocumentEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		messages[i] = kafka.Message{
			Topic: p.topic,
			Key:   []byte(event.DocumentID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "index", Value: []byte(event.Index)},
			},
		}
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish document events")
		return err
	}

	p.logger.WithContext(ctx).WithField("count", len(events)).Debug("Published document events")

	return nil
}
