package rental

import (
	"errors"

	"github.com/pavitra93/go-apartment-rentals/shared/allocation"
)

// Validation errors
var (
	ErrInvalidRequest   = errors.New("rooms requested must be at least 1")
	ErrInvalidApartment = errors.New("invalid apartment data")
)

// Not-found errors
var (
	ErrNotFound = errors.New("apartment not found")
)

// Business-rule rejections
var (
	ErrInsufficientInventory   = errors.New("not enough rooms available to fulfill the request")
	ErrAlreadyRentedByOther    = errors.New("apartment is already rented by another customer")
	ErrDuplicateRentalByHolder = errors.New("you already rent this whole apartment")
	ErrNoActiveRental          = errors.New("no active rental for this apartment")
	ErrNotFoundOrNotOwner      = errors.New("apartment not found or caller is not the owner")
	ErrRentalModeLocked        = errors.New("rental mode cannot change while the apartment has active rentals")
	ErrCapacityInUse           = errors.New("room count cannot go below the rooms currently rented")
)

// ReasonError maps an allocation rejection to its sentinel error
func ReasonError(reason allocation.Reason) error {
	switch reason {
	case allocation.ReasonInvalidRequest:
		return ErrInvalidRequest
	case allocation.ReasonInsufficientInventory:
		return ErrInsufficientInventory
	case allocation.ReasonAlreadyRentedByOther:
		return ErrAlreadyRentedByOther
	case allocation.ReasonDuplicateRentalByHolder:
		return ErrDuplicateRentalByHolder
	case allocation.ReasonNoActiveRental:
		return ErrNoActiveRental
	case "":
		return nil
	}
	return errors.New("rental rejected: " + string(reason))
}

// IsValidation reports whether err is a bad-input error
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrInvalidApartment)
}

// IsNotFound reports whether err should render as a 404
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotFoundOrNotOwner)
}

// IsRejection reports whether err is an expected business-rule rejection
func IsRejection(err error) bool {
	return errors.Is(err, ErrInsufficientInventory) ||
		errors.Is(err, ErrAlreadyRentedByOther) ||
		errors.Is(err, ErrDuplicateRentalByHolder) ||
		errors.Is(err, ErrNoActiveRental) ||
		errors.Is(err, ErrRentalModeLocked) ||
		errors.Is(err, ErrCapacityInUse)
}

// ReasonCode returns a stable machine-readable code for err, or "" for
// infrastructure failures.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return string(allocation.ReasonInvalidRequest)
	case errors.Is(err, ErrInvalidApartment):
		return "invalid_apartment"
	case errors.Is(err, ErrNotFoundOrNotOwner):
		return "not_found_or_not_owner"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientInventory):
		return string(allocation.ReasonInsufficientInventory)
	case errors.Is(err, ErrAlreadyRentedByOther):
		return string(allocation.ReasonAlreadyRentedByOther)
	case errors.Is(err, ErrDuplicateRentalByHolder):
		return string(allocation.ReasonDuplicateRentalByHolder)
	case errors.Is(err, ErrNoActiveRental):
		return string(allocation.ReasonNoActiveRental)
	case errors.Is(err, ErrRentalModeLocked):
		return "rental_mode_locked"
	case errors.Is(err, ErrCapacityInUse):
		return "capacity_in_use"
	}
	return ""
}
