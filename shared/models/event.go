package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RentalEventType names a ledger change published to downstream consumers
type RentalEventType string

const (
	RentalEventCreated   RentalEventType = "rental_created"
	RentalEventExtended  RentalEventType = "rental_extended"
	RentalEventCancelled RentalEventType = "rental_cancelled"
)

// OutboxStatus represents the delivery state of a RentalEvent
type OutboxStatus string

const (
	OutboxStatusPending           OutboxStatus = "pending"
	OutboxStatusPublished         OutboxStatus = "published"
	OutboxStatusPermanentlyFailed OutboxStatus = "permanently_failed"
)

// RentalEvent is an outbox row written in the same transaction as the ledger
// change it describes. The outbox relay publishes it to Kafka.
type RentalEvent struct {
	ID           uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	EventType    RentalEventType `json:"event_type" gorm:"type:varchar(32);not null"`
	RentalID     uuid.UUID       `json:"rental_id" gorm:"type:uuid;not null;index"`
	ApartmentID  uuid.UUID       `json:"apartment_id" gorm:"type:uuid;not null;index"`
	OwnerID      string          `json:"owner_id" gorm:"type:varchar(255);not null"`
	UserID       string          `json:"user_id" gorm:"type:varchar(255);not null"`
	Rooms        int             `json:"rooms" gorm:"not null"`
	OccurredAt   time.Time       `json:"occurred_at" gorm:"not null"`
	Status       OutboxStatus    `json:"status" gorm:"type:varchar(32);not null;default:'pending';index:idx_rental_events_status_next,priority:1"`
	RetryCount   int             `json:"retry_count" gorm:"not null;default:0"`
	NextRetryAt  time.Time       `json:"next_retry_at" gorm:"not null;index:idx_rental_events_status_next,priority:2"`
	ErrorMessage string          `json:"error_message,omitempty" gorm:"type:text"`
	PublishedAt  *time.Time      `json:"published_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TableName returns the table name for the RentalEvent model
func (RentalEvent) TableName() string {
	return "rental_events"
}

// BeforeCreate assigns the event id when the caller did not
func (e *RentalEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// RentalEventMessage is the wire payload published to the rental events topic
type RentalEventMessage struct {
	ID          string          `json:"id"`
	EventType   RentalEventType `json:"event_type"`
	RentalID    string          `json:"rental_id"`
	ApartmentID string          `json:"apartment_id"`
	OwnerID     string          `json:"owner_id"`
	UserID      string          `json:"user_id"`
	Rooms       int             `json:"rooms"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Message converts the outbox row to its wire payload
func (e *RentalEvent) Message() RentalEventMessage {
	return RentalEventMessage{
		ID:          e.ID.String(),
		EventType:   e.EventType,
		RentalID:    e.RentalID.String(),
		ApartmentID: e.ApartmentID.String(),
		OwnerID:     e.OwnerID,
		UserID:      e.UserID,
		Rooms:       e.Rooms,
		OccurredAt:  e.OccurredAt,
	}
}

// Payload serializes the wire payload
func (e *RentalEvent) Payload() ([]byte, error) {
	return json.Marshal(e.Message())
}
