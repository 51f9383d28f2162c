package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pavitra93/go-apartment-rentals/shared/models"
)

func intPtr(v int) *int { return &v }

func byRoom(total, available int) *models.Apartment {
	return &models.Apartment{
		RentalMode:     models.RentalModeByRoom,
		TotalRooms:     intPtr(total),
		RoomsAvailable: available,
	}
}

func wholeUnit(total *int, available int) *models.Apartment {
	return &models.Apartment{
		RentalMode:     models.RentalModeWholeUnit,
		TotalRooms:     total,
		RoomsAvailable: available,
	}
}

func activeRental(user string, rooms int) *models.Rental {
	return &models.Rental{UserID: user, RoomsRented: rooms, IsActive: true}
}

func TestDecideRental(t *testing.T) {
	tests := []struct {
		name      string
		apt       *models.Apartment
		existing  *models.Rental
		anyActive bool
		rooms     int
		want      Outcome
	}{
		{
			name:  "zero rooms is invalid",
			apt:   byRoom(5, 5),
			rooms: 0,
			want:  Rejected(ReasonInvalidRequest),
		},
		{
			name:  "negative rooms is invalid even for whole unit",
			apt:   wholeUnit(intPtr(3), 3),
			rooms: -2,
			want:  Rejected(ReasonInvalidRequest),
		},
		{
			name:  "by room new rental",
			apt:   byRoom(5, 5),
			rooms: 3,
			want: Outcome{
				Rooms:     3,
				Ledger:    LedgerMutation{Action: LedgerCreate, RoomsRented: 3},
				Inventory: InventoryMutation{RoomsAvailable: 2},
			},
		},
		{
			name:      "by room insufficient inventory",
			apt:       byRoom(5, 2),
			anyActive: true,
			rooms:     3,
			want:      Rejected(ReasonInsufficientInventory),
		},
		{
			name:      "by room extends existing rental",
			apt:       byRoom(5, 2),
			existing:  activeRental("alice", 3),
			anyActive: true,
			rooms:     2,
			want: Outcome{
				Rooms:     2,
				Ledger:    LedgerMutation{Action: LedgerExtend, RoomsRented: 5},
				Inventory: InventoryMutation{RoomsAvailable: 0},
			},
		},
		{
			name:      "by room insufficient check runs before extend",
			apt:       byRoom(5, 0),
			existing:  activeRental("alice", 5),
			anyActive: true,
			rooms:     1,
			want:      Rejected(ReasonInsufficientInventory),
		},
		{
			name:  "whole unit claims full capacity",
			apt:   wholeUnit(intPtr(4), 4),
			rooms: 1,
			want: Outcome{
				Rooms:     4,
				Ledger:    LedgerMutation{Action: LedgerCreate, RoomsRented: 4},
				Inventory: InventoryMutation{RoomsAvailable: 0},
			},
		},
		{
			name:  "whole unit without room count rents one",
			apt:   wholeUnit(nil, 1),
			rooms: 7,
			want: Outcome{
				Rooms:     1,
				Ledger:    LedgerMutation{Action: LedgerCreate, RoomsRented: 1},
				Inventory: InventoryMutation{RoomsAvailable: 0},
			},
		},
		{
			name:      "whole unit rented by someone else",
			apt:       wholeUnit(intPtr(4), 0),
			anyActive: true,
			rooms:     1,
			want:      Rejected(ReasonAlreadyRentedByOther),
		},
		{
			name:      "whole unit already held by caller",
			apt:       wholeUnit(intPtr(4), 0),
			existing:  activeRental("alice", 4),
			anyActive: true,
			rooms:     1,
			want:      Rejected(ReasonDuplicateRentalByHolder),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecideRental(tt.apt, tt.existing, tt.anyActive, tt.rooms)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Reason == "", got.Accepted())
		})
	}
}

func TestDecideRentalDoesNotMutateInputs(t *testing.T) {
	apt := byRoom(5, 2)
	existing := activeRental("alice", 3)

	DecideRental(apt, existing, true, 2)

	assert.Equal(t, 2, apt.RoomsAvailable)
	assert.Equal(t, 3, existing.RoomsRented)
}

func TestDecideCancellation(t *testing.T) {
	t.Run("no active rental", func(t *testing.T) {
		got := DecideCancellation(nil, byRoom(5, 5))
		assert.Equal(t, Rejected(ReasonNoActiveRental), got)
	})

	t.Run("inactive rental is not cancellable", func(t *testing.T) {
		r := activeRental("alice", 2)
		r.IsActive = false
		got := DecideCancellation(r, byRoom(5, 5))
		assert.False(t, got.Accepted())
		assert.Equal(t, ReasonNoActiveRental, got.Reason)
	})

	t.Run("by room returns rooms", func(t *testing.T) {
		got := DecideCancellation(activeRental("alice", 3), byRoom(5, 2))
		assert.True(t, got.Accepted())
		assert.Equal(t, 3, got.Rooms)
		assert.Equal(t, LedgerCancel, got.Ledger.Action)
		assert.Equal(t, 5, got.Inventory.RoomsAvailable)
	})

	t.Run("whole unit restores full capacity", func(t *testing.T) {
		got := DecideCancellation(activeRental("alice", 4), wholeUnit(intPtr(4), 0))
		assert.True(t, got.Accepted())
		assert.Equal(t, 4, got.Inventory.RoomsAvailable)
	})
}

func TestRentThenCancelRoundTrip(t *testing.T) {
	apt := byRoom(6, 4)

	rent := DecideRental(apt, nil, true, 3)
	assert.True(t, rent.Accepted())

	after := *apt
	after.RoomsAvailable = rent.Inventory.RoomsAvailable
	rental := activeRental("bob", rent.Ledger.RoomsRented)

	cancel := DecideCancellation(rental, &after)
	assert.True(t, cancel.Accepted())
	assert.Equal(t, 4, cancel.Inventory.RoomsAvailable)
}

func TestAvailable(t *testing.T) {
	assert.True(t, Available(byRoom(3, 1), true))
	assert.False(t, Available(byRoom(3, 0), false))
	assert.True(t, Available(wholeUnit(intPtr(3), 0), false))
	assert.False(t, Available(wholeUnit(intPtr(3), 3), true))
}
