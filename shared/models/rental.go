package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Rental is a ledger entry tying a user to an apartment.
// Rows are never deleted; cancellation flips IsActive.
type Rental struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID      string     `json:"user_id" gorm:"type:varchar(255);not null;index:idx_rentals_user_apartment,priority:1"`
	ApartmentID uuid.UUID  `json:"apartment_id" gorm:"type:uuid;not null;index:idx_rentals_user_apartment,priority:2;index:idx_rentals_apartment_active,priority:1"`
	RoomsRented int        `json:"rooms_rented" gorm:"not null;default:1"`
	RentalDate  time.Time  `json:"rental_date" gorm:"not null;index"`
	IsActive    bool       `json:"is_active" gorm:"not null;default:true;index:idx_rentals_apartment_active,priority:2"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relationships
	Apartment *Apartment `json:"apartment,omitempty" gorm:"foreignKey:ApartmentID"`
}

// TableName returns the table name for the Rental model
func (Rental) TableName() string {
	return "rentals"
}

// BeforeCreate assigns the rental id when the caller did not
func (r *Rental) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Cancel marks the rental inactive
func (r *Rental) Cancel(now time.Time) {
	r.IsActive = false
	r.CancelledAt = &now
}

// ActiveRentalIndex is the partial unique index that backs the one-active-row
// per (user, apartment) rule at the storage level.
const ActiveRentalIndex = "uidx_rentals_active_user_apartment"

// CreateActiveRentalIndex creates the partial unique index. Both postgres and
// sqlite support partial indexes with this syntax.
func CreateActiveRentalIndex(db *gorm.DB) error {
	return db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS " + ActiveRentalIndex +
		" ON rentals (user_id, apartment_id) WHERE is_active").Error
}
