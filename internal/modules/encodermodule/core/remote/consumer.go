// Package remote accepts control envelopes from a Kafka topic so
// controllers without an HTTP connection can stop jobs.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/segmentio/kafka-go"
	encerr "github.com/syborg2290/video-encoder/internal/modules/encodermodule/errors"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Deliverer routes an inbound envelope to a job.
type Deliverer interface {
	Deliver(jobID string, env types.Envelope) (bool, error)
}

// Config configures the control consumer.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// ControlMessage is the wire form on the control topic.
type ControlMessage struct {
	JobID string            `json:"job_id"`
	Type  types.MessageType `json:"type"`
}

// Consumer reads control messages and delivers them to jobs.
type Consumer struct {
	reader MessageReader
	target Deliverer
	logger hclog.Logger
}

// NewConsumer creates a consumer backed by a kafka.Reader.
func NewConsumer(config Config, target Deliverer, logger hclog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  config.Brokers,
		Topic:    config.Topic,
		GroupID:  config.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewConsumerWithReader(reader, target, logger)
}

// NewConsumerWithReader wraps an existing reader.
func NewConsumerWithReader(reader MessageReader, target Deliverer, logger hclog.Logger) *Consumer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Consumer{
		reader: reader,
		target: target,
		logger: logger.Named("control-consumer"),
	}
}

// Run consumes until ctx ends or the reader fails. A malformed message or
// an unknown job is logged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("control consumer started")
	defer c.logger.Info("control consumer stopped")

	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read control message: %w", err)
		}

		if err := c.handle(m.Value); err != nil {
			c.logger.Warn("control message ignored", "offset", m.Offset, "error", err)
		}
	}
}

func (c *Consumer) handle(value []byte) error {
	var msg ControlMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("invalid control message: %w", err)
	}
	if msg.JobID == "" {
		return errors.New("control message has no job_id")
	}

	accepted, err := c.target.Deliver(msg.JobID, types.Envelope{Type: msg.Type})
	if err != nil {
		if errors.Is(err, encerr.ErrJobNotFound) {
			// Addressed to a job owned by another worker
			c.logger.Debug("control message for unknown job", "job_id", msg.JobID)
			return nil
		}
		return err
	}

	c.logger.Info("control message delivered", "job_id", msg.JobID, "type", msg.Type, "accepted", accepted)
	return nil
}

// Close releases the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
