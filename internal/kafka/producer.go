package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"video-contest-ads/internal/beacon"
	"video-contest-ads/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(brokerURL, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokerURL),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}
}

// Publisher writes ad events as JSON keyed by ad id, so one ad's events stay
// on one partition.
type Publisher struct {
	writer MessageWriter
	logger *logrus.Logger
}

func NewPublisher(writer MessageWriter, logger *logrus.Logger) *Publisher {
	return &Publisher{writer: writer, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, event models.AdEvent) error {
	msg, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	p.logger.WithFields(logrus.Fields{
		"ad_id": event.AdID,
		"kind":  event.Kind,
	}).Debug("Published ad event")
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func EncodeEvent(event models.AdEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal ad event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.AdID),
		Value: value,
		Time:  event.Timestamp,
	}, nil
}

// DecodeError reports a message that is not a valid ad event.
type DecodeError struct {
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid ad event at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func DecodeEvent(msg kafka.Message) (models.AdEvent, error) {
	var event models.AdEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return models.AdEvent{}, &DecodeError{Offset: msg.Offset, Err: err}
	}
	if event.AdID == "" {
		return models.AdEvent{}, &DecodeError{Offset: msg.Offset, Err: errors.New("missing ad id")}
	}
	if _, err := beacon.ParseKind(string(event.Kind)); err != nil {
		return models.AdEvent{}, &DecodeError{Offset: msg.Offset, Err: err}
	}
	// ids are assigned by the store
	event.ID = 0
	return event, nil
}
