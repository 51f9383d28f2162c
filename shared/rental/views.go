package rental

import (
	"time"

	"github.com/google/uuid"

	"github.com/pavitra93/go-apartment-rentals/shared/allocation"
	"github.com/pavitra93/go-apartment-rentals/shared/models"
)

// RentResult is returned by an accepted rent request
type RentResult struct {
	RentalID       uuid.UUID `json:"rental_id"`
	ApartmentID    uuid.UUID `json:"apartment_id"`
	RoomsRented    int       `json:"rooms_rented"`
	TotalHeld      int       `json:"total_rooms_held"`
	RoomsAvailable int       `json:"rooms_available"`
	Extended       bool      `json:"extended"`
}

// CancelResult is returned by an accepted cancellation
type CancelResult struct {
	RentalID       uuid.UUID `json:"rental_id"`
	ApartmentID    uuid.UUID `json:"apartment_id"`
	RoomsReturned  int       `json:"rooms_returned"`
	RoomsAvailable int       `json:"rooms_available"`
}

// RenterView is one line of an owner's renter roster
type RenterView struct {
	UserID      string    `json:"user_id"`
	RoomsRented int       `json:"rooms_rented"`
	RentalDate  time.Time `json:"rental_date"`
}

// RentalRequestsView is the owner's view of who rents an apartment
type RentalRequestsView struct {
	ApartmentID    uuid.UUID    `json:"apartment_id"`
	ApartmentTitle string       `json:"apartment_title"`
	TotalRooms     int          `json:"total_rooms"`
	AvailableRooms int          `json:"available_rooms"`
	Renters        []RenterView `json:"renters"`
}

// CustomerView identifies a renter of an apartment
type CustomerView struct {
	CustomerID string `json:"customer_id"`
}

// ApartmentView is the summary shape of an apartment in list read-models
type ApartmentView struct {
	ID             uuid.UUID         `json:"id"`
	OwnerID        string            `json:"owner_id"`
	Title          string            `json:"title"`
	SubTitle       string            `json:"sub_title,omitempty"`
	Location       string            `json:"location"`
	TotalRooms     *int              `json:"total_rooms,omitempty"`
	RoomsAvailable int               `json:"rooms_available"`
	Price          *float64          `json:"price,omitempty"`
	RentalMode     models.RentalMode `json:"rental_mode"`
	IsAvailable    bool              `json:"is_available"`
}

// NewApartmentView builds the summary view; anyActive feeds the derived
// whole-unit availability.
func NewApartmentView(apt *models.Apartment, anyActive bool) ApartmentView {
	return ApartmentView{
		ID:             apt.ID,
		OwnerID:        apt.OwnerID,
		Title:          apt.Title,
		SubTitle:       apt.SubTitle,
		Location:       apt.Location,
		TotalRooms:     apt.TotalRooms,
		RoomsAvailable: apt.RoomsAvailable,
		Price:          apt.Price,
		RentalMode:     apt.RentalMode,
		IsAvailable:    allocation.Available(apt, anyActive),
	}
}
