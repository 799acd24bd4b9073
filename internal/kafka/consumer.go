package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"video-contest-ads/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader     MessageReader
	logger     *logrus.Logger
	retryDelay time.Duration
}

func NewKafkaReader(brokerURL, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{brokerURL},
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})
}

func NewConsumer(reader MessageReader, logger *logrus.Logger) *Consumer {
	return &Consumer{
		reader:     reader,
		logger:     logger,
		retryDelay: time.Second,
	}
}

func (c *Consumer) ReadEvent(ctx context.Context) (models.AdEvent, error) {
	message, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return models.AdEvent{}, fmt.Errorf("failed to read message: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"key":       string(message.Key),
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
	}).Debug("Successfully read message from Kafka")

	return DecodeEvent(message)
}

// Malformed messages are not worth waiting for.
func isDecodeError(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}

// Run hands every decoded event to handle until ctx is cancelled or the reader
// is closed. Malformed messages are logged and skipped.
func (c *Consumer) Run(ctx context.Context, handle func(context.Context, models.AdEvent) error) {
	for {
		event, err := c.ReadEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				return
			}
			c.logger.WithError(err).Error("Failed to consume ad event")
			if isDecodeError(err) {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
			continue
		}
		if err := handle(ctx, event); err != nil {
			c.logger.WithError(err).WithField("ad_id", event.AdID).Error("Failed to persist consumed ad event")
		}
	}
}

func (c *Consumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
