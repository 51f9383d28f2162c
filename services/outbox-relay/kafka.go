package main

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pavitra93/go-apartment-rentals/shared/models"
)

// KafkaPublisher writes rental events to the rental events topic
type KafkaPublisher struct {
	writer       *kafka.Writer
	writeTimeout time.Duration
}

// NewKafkaPublisher creates a new Kafka publisher
func NewKafkaPublisher(broker, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}

	return &KafkaPublisher{writer: writer, writeTimeout: 5 * time.Second}
}

// Publish writes one event keyed by apartment so per-apartment order holds
// within a partition.
func (kp *KafkaPublisher) Publish(ctx context.Context, event *models.RentalEvent) error {
	msg, err := eventMessage(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, kp.writeTimeout)
	defer cancel()

	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write rental event to Kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the Kafka writer
func (kp *KafkaPublisher) Close() error {
	if err := kp.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	return nil
}

func eventMessage(event *models.RentalEvent) (kafka.Message, error) {
	payload, err := event.Payload()
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal rental event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(event.ApartmentID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID.String())},
			{Key: "owner_id", Value: []byte(event.OwnerID)},
		},
	}, nil
}
