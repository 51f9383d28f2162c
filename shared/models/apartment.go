package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RentalMode controls how an apartment's capacity is claimed
type RentalMode string

const (
	// RentalModeByRoom lets independent renters each claim a subset of rooms
	RentalModeByRoom RentalMode = "by_room"
	// RentalModeWholeUnit lets exactly one renter hold the entire apartment
	RentalModeWholeUnit RentalMode = "whole_unit"
)

// Apartment is the inventory record of a listing
type Apartment struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID        string     `json:"owner_id" gorm:"type:varchar(255);not null;index"`
	Title          string     `json:"title" gorm:"type:varchar(100);not null"`
	SubTitle       string     `json:"sub_title" gorm:"type:varchar(500)"`
	Location       string     `json:"location" gorm:"type:varchar(150);not null"`
	Price          *float64   `json:"price,omitempty"`
	RentalMode     RentalMode `json:"rental_mode" gorm:"type:varchar(20);not null;default:'by_room'"`
	TotalRooms     *int       `json:"total_rooms,omitempty"`
	RoomsAvailable int        `json:"rooms_available" gorm:"not null;default:0"`
	IsDeleted      bool       `json:"is_deleted" gorm:"not null;default:false;index"`
	DeletionTime   *time.Time `json:"deletion_time,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Relationships
	Images []ApartmentImage `json:"images,omitempty" gorm:"foreignKey:ApartmentID"`
}

// ApartmentImage is an opaque reference (URL or object key) to a listing photo
type ApartmentImage struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ApartmentID uuid.UUID `json:"apartment_id" gorm:"type:uuid;not null;index"`
	Reference   string    `json:"reference" gorm:"type:varchar(1024);not null"`
	Position    int       `json:"position" gorm:"not null;default:0"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the table name for the Apartment model
func (Apartment) TableName() string {
	return "apartments"
}

// TableName returns the table name for the ApartmentImage model
func (ApartmentImage) TableName() string {
	return "apartment_images"
}

// BeforeCreate assigns the apartment id when the caller did not
func (a *Apartment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// BeforeCreate assigns the image id when the caller did not
func (i *ApartmentImage) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// NotDeleted is the tombstone filter every apartment read path goes through.
func NotDeleted(db *gorm.DB) *gorm.DB {
	return db.Where("apartments.is_deleted = ?", false)
}

// Capacity returns the number of rooms a whole-unit claim takes.
// An apartment without a room count is treated as a single unit.
func (a *Apartment) Capacity() int {
	if a.TotalRooms == nil || *a.TotalRooms <= 0 {
		return 1
	}
	return *a.TotalRooms
}

// TotalRoomsOrZero returns the declared room count, or 0 when unset
func (a *Apartment) TotalRoomsOrZero() int {
	if a.TotalRooms == nil {
		return 0
	}
	return *a.TotalRooms
}

// MarkDeleted sets the soft-delete tombstone
func (a *Apartment) MarkDeleted(now time.Time) {
	a.IsDeleted = true
	a.DeletionTime = &now
}
