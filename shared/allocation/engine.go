// Package allocation decides whether a rental request or cancellation is
// accepted and what it does to the ledger and the inventory counter.
//
// Nothing here touches storage. Callers load a consistent snapshot of the
// apartment and its active rentals, ask for a decision, and persist the
// resulting mutations themselves.
package allocation

import (
	"github.com/pavitra93/go-apartment-rentals/shared/models"
)

// Reason identifies why a request was rejected
type Reason string

const (
	ReasonInvalidRequest          Reason = "invalid_request"
	ReasonInsufficientInventory   Reason = "insufficient_inventory"
	ReasonAlreadyRentedByOther    Reason = "already_rented_by_other"
	ReasonDuplicateRentalByHolder Reason = "duplicate_rental_by_holder"
	ReasonNoActiveRental          Reason = "no_active_rental"
)

// LedgerAction is what an accepted outcome does to the ledger
type LedgerAction string

const (
	LedgerCreate LedgerAction = "create"
	LedgerExtend LedgerAction = "extend"
	LedgerCancel LedgerAction = "cancel"
)

// LedgerMutation describes the ledger row after the decision is applied
type LedgerMutation struct {
	Action LedgerAction
	// RoomsRented is the row's room count after the mutation
	RoomsRented int
}

// InventoryMutation describes the inventory counter after the decision is applied
type InventoryMutation struct {
	RoomsAvailable int
}

// Outcome is either a rejection (Reason set) or an acceptance carrying the
// rooms granted or returned and the resulting mutations.
type Outcome struct {
	Reason    Reason
	Rooms     int
	Ledger    LedgerMutation
	Inventory InventoryMutation
}

// Accepted reports whether the outcome is an acceptance
func (o Outcome) Accepted() bool {
	return o.Reason == ""
}

// Rejected builds a rejection outcome
func Rejected(reason Reason) Outcome {
	return Outcome{Reason: reason}
}

// ValidateRequest checks the request shape independent of apartment state
func ValidateRequest(roomsRequested int) Reason {
	if roomsRequested <= 0 {
		return ReasonInvalidRequest
	}
	return ""
}

// DecideRental evaluates a rent request against the apartment's current state.
//
// existing is the caller's active rental on this apartment, if any.
// anyActive reports whether any user holds an active rental on it.
// The apartment is assumed to exist and not be soft-deleted.
func DecideRental(apt *models.Apartment, existing *models.Rental, anyActive bool, roomsRequested int) Outcome {
	if reason := ValidateRequest(roomsRequested); reason != "" {
		return Rejected(reason)
	}

	switch apt.RentalMode {
	case models.RentalModeWholeUnit:
		return decideWholeUnit(apt, existing, anyActive)
	default:
		return decideByRoom(apt, existing, roomsRequested)
	}
}

func decideByRoom(apt *models.Apartment, existing *models.Rental, roomsRequested int) Outcome {
	if roomsRequested > apt.RoomsAvailable {
		return Rejected(ReasonInsufficientInventory)
	}

	remaining := apt.RoomsAvailable - roomsRequested
	if existing != nil {
		return Outcome{
			Rooms:     roomsRequested,
			Ledger:    LedgerMutation{Action: LedgerExtend, RoomsRented: existing.RoomsRented + roomsRequested},
			Inventory: InventoryMutation{RoomsAvailable: remaining},
		}
	}

	return Outcome{
		Rooms:     roomsRequested,
		Ledger:    LedgerMutation{Action: LedgerCreate, RoomsRented: roomsRequested},
		Inventory: InventoryMutation{RoomsAvailable: remaining},
	}
}

func decideWholeUnit(apt *models.Apartment, existing *models.Rental, anyActive bool) Outcome {
	if existing != nil {
		return Rejected(ReasonDuplicateRentalByHolder)
	}
	if anyActive {
		return Rejected(ReasonAlreadyRentedByOther)
	}

	rooms := apt.Capacity()
	return Outcome{
		Rooms:     rooms,
		Ledger:    LedgerMutation{Action: LedgerCreate, RoomsRented: rooms},
		Inventory: InventoryMutation{RoomsAvailable: 0},
	}
}

// DecideCancellation returns the caller's rooms to the apartment.
// The returned rooms are added back regardless of rental mode: a whole-unit
// rental zeroed the counter and holds the full capacity.
func DecideCancellation(active *models.Rental, apt *models.Apartment) Outcome {
	if active == nil || !active.IsActive {
		return Rejected(ReasonNoActiveRental)
	}

	return Outcome{
		Rooms:     active.RoomsRented,
		Ledger:    LedgerMutation{Action: LedgerCancel, RoomsRented: active.RoomsRented},
		Inventory: InventoryMutation{RoomsAvailable: apt.RoomsAvailable + active.RoomsRented},
	}
}

// Available reports whether the apartment can take a new rental.
// By-room apartments read the stored counter; whole-unit apartments are
// available exactly when nobody holds an active rental.
func Available(apt *models.Apartment, anyActive bool) bool {
	if apt.RentalMode == models.RentalModeWholeUnit {
		return !anyActive
	}
	return apt.RoomsAvailable > 0
}
