package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/internal/config"
	"github.com/qlozet/stylefeed/pkg/models"
)

const (
	DefaultFeedEventsTopic = "feed-events"
	DefaultConsumerGroup   = "profile-refreshers"

	dlqSuffix  = "-dlq"
	maxRetries = 3
)

// EventEnvelope is the wire format of a behavioural event on the bus.
type EventEnvelope struct {
	Event       models.Event `json:"event"`
	PublishedAt time.Time    `json:"published_at"`
	RetryCount  int          `json:"retry_count"`
}

// EventHandler processes one decoded event. A returned error triggers retries
// and, after the last one, a copy to the dead-letter topic.
type EventHandler func(ctx context.Context, event *models.Event) error

// EventBus publishes feed events keyed by user id and consumes them in a
// consumer group. Messages for one user land on one partition, in order.
type EventBus struct {
	writer    *kafka.Writer
	reader    *kafka.Reader
	dlqWriter *kafka.Writer
	topic     string
	logger    *logrus.Logger

	retryDelay time.Duration
}

func NewEventBus(cfg config.KafkaConfig, logger *logrus.Logger) (*EventBus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}

	topic := cfg.Topics.FeedEvents
	if topic == "" {
		topic = DefaultFeedEventsTopic
	}
	group := cfg.ConsumerGroup
	if group == "" {
		group = DefaultConsumerGroup
	}

	return &EventBus{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			Topic:          topic,
			GroupID:        group,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0,
			StartOffset:    kafka.LastOffset,
		}),
		dlqWriter: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic + dlqSuffix,
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		topic:      topic,
		logger:     logger,
		retryDelay: time.Second,
	}, nil
}

// EncodeEvent builds the Kafka message for an event.
func EncodeEvent(event *models.Event, now time.Time) (kafka.Message, error) {
	envelope := EventEnvelope{Event: *event, PublishedAt: now}
	value, err := json.Marshal(envelope)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(event.UserID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "published_at", Value: []byte(now.Format(time.RFC3339))},
		},
	}, nil
}

func DecodeEvent(msg kafka.Message) (*EventEnvelope, error) {
	var envelope EventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if envelope.Event.UserID == "" {
		return nil, fmt.Errorf("event without user id")
	}
	return &envelope, nil
}

func (b *EventBus) PublishEvent(ctx context.Context, event *models.Event) error {
	msg, err := EncodeEvent(event, time.Now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event to Kafka: %w", err)
	}

	b.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.EventType,
		"topic":      b.topic,
	}).Debug("Event published to Kafka")

	return nil
}

// Consume reads events until ctx is cancelled. Offsets are committed after
// the handler returns, whether it succeeded or the event was dead-lettered.
func (b *EventBus) Consume(ctx context.Context, handle func(context.Context, *models.Event) error) error {
	for {
		msg, err := b.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			b.logger.WithError(err).Error("Failed to fetch message from Kafka")
			continue
		}

		envelope, err := DecodeEvent(msg)
		if err != nil {
			b.logger.WithError(err).WithField("offset", msg.Offset).Warn("Skipping undecodable event")
		} else if err := b.processWithRetry(ctx, envelope, handle); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if dlqErr := b.sendToDLQ(ctx, envelope, err); dlqErr != nil {
				b.logger.WithError(dlqErr).Error("Failed to send event to DLQ")
			}
		}

		if err := b.reader.CommitMessages(ctx, msg); err != nil {
			b.logger.WithError(err).WithField("offset", msg.Offset).Warn("Failed to commit offset")
		}
	}
}

func (b *EventBus) processWithRetry(ctx context.Context, envelope *EventEnvelope, handle func(context.Context, *models.Event) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := b.retryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		envelope.RetryCount = attempt
		if lastErr = handle(ctx, &envelope.Event); lastErr == nil {
			return nil
		}

		b.logger.WithError(lastErr).WithFields(logrus.Fields{
			"event_id": envelope.Event.ID,
			"user_id":  envelope.Event.UserID,
			"attempt":  attempt,
		}).Warn("Event processing failed")
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (b *EventBus) sendToDLQ(ctx context.Context, envelope *EventEnvelope, cause error) error {
	value, err := json.Marshal(map[string]interface{}{
		"original":      envelope,
		"error":         cause.Error(),
		"dlq_timestamp": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(envelope.Event.UserID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(envelope.Event.ID)},
			{Key: "original_topic", Value: []byte(b.topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	}

	if err := b.dlqWriter.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to DLQ: %w", err)
	}

	b.logger.WithFields(logrus.Fields{
		"event_id": envelope.Event.ID,
		"error":    cause.Error(),
	}).Warn("Event sent to DLQ")

	return nil
}

func (b *EventBus) Close() error {
	var errs []error

	if err := b.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
	}
	if err := b.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close consumer: %w", err))
	}
	if err := b.dlqWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close DLQ writer: %w", err))
	}

	return errors.Join(errs...)
}

// Lag is the number of messages the profile refresher has yet to read.
// It is -1 until the reader has fetched at least once.
func (b *EventBus) Lag() int64 {
	return b.reader.Lag()
}
