package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/internal/config"
	"github.com/recanthology/engine/pkg/models"
)

const publishTimeout = 10 * time.Second

// RatingEvent is emitted after every successful rating upsert. Downstream
// consumers (analytics, similarity warmers) treat it as append-only.
type RatingEvent struct {
	UserID    uuid.UUID       `json:"user_id"`
	Kind      models.ItemKind `json:"kind"`
	ItemID    uuid.UUID       `json:"item_id"`
	Value     int             `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
}

// IngestionMessage carries one catalog item of a bulk ingestion job.
// Exactly one of Book or Media is set, matching Kind.
type IngestionMessage struct {
	JobID      uuid.UUID                  `json:"job_id"`
	Kind       models.ItemKind            `json:"kind"`
	Book       *models.BookCreateRequest  `json:"book,omitempty"`
	Media      *models.MediaCreateRequest `json:"media,omitempty"`
	Timestamp  time.Time                  `json:"timestamp"`
	RetryCount int                        `json:"retry_count"`
}

type MessageBus struct {
	brokers         []string
	ratingWriter    *kafka.Writer
	ingestionWriter *kafka.Writer
	ingestionReader *kafka.Reader
	dlqWriter       *kafka.Writer
	dlqTopic        string
	logger          *logrus.Logger
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) (*MessageBus, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	ratingWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topics.RatingEvents,
		Balancer:     &kafka.Hash{}, // Key by user for per-user ordering
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	ingestionWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topics.CatalogIngestion,
		Balancer:     &kafka.Hash{}, // Key by item kind for load balancing
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	ingestionReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.Topics.CatalogIngestion,
		GroupID:        cfg.Kafka.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	dlqTopic := cfg.Kafka.Topics.CatalogIngestion + "-dlq"
	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        dlqTopic,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &MessageBus{
		brokers:         cfg.Kafka.Brokers,
		ratingWriter:    ratingWriter,
		ingestionWriter: ingestionWriter,
		ingestionReader: ingestionReader,
		dlqWriter:       dlqWriter,
		dlqTopic:        dlqTopic,
		logger:          logger,
	}, nil
}

// Ping verifies broker reachability. Used by the health service; the bus
// itself stays usable while brokers are down, publishes just fail.
func (mb *MessageBus) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", mb.brokers[0])
	if err != nil {
		return fmt.Errorf("kafka dial: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		return fmt.Errorf("kafka brokers: %w", err)
	}
	return nil
}

// PublishRatingEvent emits a rating upsert. Callers treat failures as
// non-fatal; the rating is already durable in PostgreSQL.
func (mb *MessageBus) PublishRatingEvent(ctx context.Context, event RatingEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal rating event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.UserID.String()), // Key by user for per-user ordering
		Value: eventBytes,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(event.Kind)},
			{Key: "item_id", Value: []byte(event.ItemID.String())},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := mb.ratingWriter.WriteMessages(ctx, message); err != nil {
		mb.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": event.UserID,
			"item_id": event.ItemID,
		}).Error("Failed to publish rating event")
		return fmt.Errorf("failed to write rating event: %w", err)
	}
	return nil
}

// PublishIngestion queues one catalog item for asynchronous insertion.
func (mb *MessageBus) PublishIngestion(ctx context.Context, msg IngestionMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal ingestion message: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(msg.Kind), // Key by item kind for load balancing
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "job_id", Value: []byte(msg.JobID.String())},
			{Key: "kind", Value: []byte(msg.Kind)},
			{Key: "timestamp", Value: []byte(msg.Timestamp.Format(time.RFC3339))},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := mb.ingestionWriter.WriteMessages(ctx, message); err != nil {
		mb.logger.WithError(err).WithField("job_id", msg.JobID).Error("Failed to publish ingestion message")
		return fmt.Errorf("failed to write ingestion message: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"job_id": msg.JobID,
		"kind":   msg.Kind,
	}).Info("Ingestion message published")
	return nil
}

// ConsumeIngestion reads the ingestion topic until ctx is cancelled.
// Failed messages are retried with exponential backoff, then parked on the
// dead letter topic.
func (mb *MessageBus) ConsumeIngestion(ctx context.Context, handler func(IngestionMessage) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := mb.ingestionReader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				mb.logger.WithError(err).Error("Failed to read ingestion message")
				continue
			}

			var msg IngestionMessage
			if err := json.Unmarshal(message.Value, &msg); err != nil {
				mb.logger.WithError(err).Error("Failed to unmarshal ingestion message")
				continue
			}

			if err := mb.processWithRetry(ctx, msg, handler); err != nil {
				mb.logger.WithError(err).WithField("job_id", msg.JobID).Error("Failed to process ingestion message after retries")

				if dlqErr := mb.sendToDLQ(ctx, msg, err); dlqErr != nil {
					mb.logger.WithError(dlqErr).Error("Failed to send ingestion message to DLQ")
				}
			}
		}
	}
}

func (mb *MessageBus) processWithRetry(ctx context.Context, msg IngestionMessage, handler func(IngestionMessage) error) error {
	maxRetries := 3
	baseDelay := time.Second

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			mb.logger.WithFields(logrus.Fields{
				"job_id":  msg.JobID,
				"attempt": attempt,
				"delay":   delay,
			}).Info("Retrying ingestion message")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		msg.RetryCount = attempt
		if err := handler(msg); err != nil {
			mb.logger.WithError(err).WithFields(logrus.Fields{
				"job_id":  msg.JobID,
				"attempt": attempt,
			}).Warn("Ingestion message processing failed")

			if attempt == maxRetries {
				return fmt.Errorf("max retries exceeded: %w", err)
			}
			continue
		}
		return nil
	}

	return fmt.Errorf("unexpected retry loop exit")
}

func (mb *MessageBus) sendToDLQ(ctx context.Context, msg IngestionMessage, originalError error) error {
	dlqMessage := map[string]interface{}{
		"original_message": msg,
		"error":            originalError.Error(),
		"dlq_timestamp":    time.Now(),
	}

	dlqBytes, err := json.Marshal(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(msg.JobID.String()),
		Value: dlqBytes,
		Headers: []kafka.Header{
			{Key: "job_id", Value: []byte(msg.JobID.String())},
			{Key: "original_topic", Value: []byte(mb.ingestionReader.Config().Topic)},
			{Key: "error", Value: []byte(originalError.Error())},
		},
	}

	if err := mb.dlqWriter.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to DLQ: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"job_id": msg.JobID,
		"error":  originalError.Error(),
	}).Warn("Ingestion message sent to DLQ")
	return nil
}

func (mb *MessageBus) Close() error {
	var errors []error

	if err := mb.ratingWriter.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close rating writer: %w", err))
	}

	if err := mb.ingestionWriter.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close ingestion writer: %w", err))
	}

	if err := mb.ingestionReader.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close ingestion reader: %w", err))
	}

	if err := mb.dlqWriter.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close DLQ writer: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("errors closing message bus: %v", errors)
	}
	return nil
}
