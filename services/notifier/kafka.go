package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-apartment-rentals/shared/models"
)

// messageReader is the subset of *kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Notifier delivers a decoded rental event
type Notifier interface {
	Notify(ctx context.Context, event models.RentalEventMessage) error
}

// KafkaConsumer reads rental events and hands them to the notifier
type KafkaConsumer struct {
	reader      messageReader
	maxAttempts int
	retryDelay  time.Duration
	log         logrus.FieldLogger
}

// NewKafkaConsumer creates a new Kafka consumer in the notifier group
func NewKafkaConsumer(broker, topic string, log logrus.FieldLogger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{broker},
		Topic:    topic,
		GroupID:  "owner-notifier",
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	return newKafkaConsumer(reader, log)
}

func newKafkaConsumer(reader messageReader, log logrus.FieldLogger) *KafkaConsumer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &KafkaConsumer{
		reader:      reader,
		maxAttempts: 3,
		retryDelay:  time.Second,
		log:         log,
	}
}

// ConsumeRentalEvents consumes rental events until ctx is cancelled
func (kc *KafkaConsumer) ConsumeRentalEvents(ctx context.Context, notifier Notifier) {
	kc.log.Info("Starting rental events consumer...")

	for {
		msg, err := kc.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				kc.log.Info("Rental events consumer stopped")
				return
			}
			kc.log.WithError(err).Error("Error reading rental event")
			time.Sleep(time.Second)
			continue
		}

		kc.handleMessage(ctx, notifier, msg)

		if err := kc.reader.CommitMessages(ctx, msg); err != nil {
			kc.log.WithError(err).Error("Failed to commit rental event offset")
		}
	}
}

// handleMessage decodes and delivers one message. Delivery is retried a few
// times; after that the event is logged and skipped.
func (kc *KafkaConsumer) handleMessage(ctx context.Context, notifier Notifier, msg kafka.Message) {
	event, err := decodeEvent(msg)
	if err != nil {
		kc.log.WithError(err).WithField("offset", msg.Offset).Error("Skipping malformed rental event")
		return
	}

	log := kc.log.WithFields(logrus.Fields{"event_id": event.ID, "event_type": event.EventType})
	for attempt := 1; attempt <= kc.maxAttempts; attempt++ {
		err = notifier.Notify(ctx, event)
		if err == nil {
			return
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Owner notification failed")

		if attempt < kc.maxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(kc.retryDelay * time.Duration(attempt)):
			}
		}
	}
	log.WithError(err).Error("Giving up on owner notification")
}

func decodeEvent(msg kafka.Message) (models.RentalEventMessage, error) {
	var event models.RentalEventMessage
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal rental event: %w", err)
	}
	if event.ID == "" || event.EventType == "" {
		return event, errors.New("rental event missing id or type")
	}
	return event, nil
}

// Close closes the Kafka consumer
func (kc *KafkaConsumer) Close() error {
	if err := kc.reader.Close(); err != nil {
		return fmt.Errorf("failed to close rental events reader: %w", err)
	}
	return nil
}
