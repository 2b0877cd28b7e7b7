package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/segmentio/kafka-go"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the Kafka status publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	// BatchTimeout caps how long a write waits to fill a batch. Status
	// updates are written one at a time, so this is the per-write latency.
	BatchTimeout time.Duration
}

const defaultBatchTimeout = 10 * time.Millisecond

// KafkaPublisher writes every status update as JSON, keyed by job id so
// updates for a job stay ordered within a partition.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
	logger hclog.Logger
}

// NewKafkaPublisher creates a publisher backed by a kafka.Writer.
func NewKafkaPublisher(config KafkaConfig, logger hclog.Logger) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(newKafkaWriter(config), config.Topic, logger)
}

func newKafkaWriter(config KafkaConfig) *kafka.Writer {
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = defaultBatchTimeout
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: config.BatchTimeout,
	}
}

// NewKafkaPublisherWithWriter wraps an existing writer.
func NewKafkaPublisherWithWriter(writer MessageWriter, topic string, logger hclog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		logger: logger.Named("kafka-publisher"),
	}
}

// Publish implements session.StatusSink
func (p *KafkaPublisher) Publish(ctx context.Context, update types.StatusUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(update.JobID),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}

	p.logger.Trace("status published", "topic", p.topic, "job_id", update.JobID, "state", update.State)
	return nil
}

// Close implements session.StatusSink
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
