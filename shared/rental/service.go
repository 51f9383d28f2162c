package rental

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-apartment-rentals/shared/allocation"
	"github.com/pavitra93/go-apartment-rentals/shared/models"
)

// Service runs rent and cancel as per-apartment serialized units of work and
// derives the rental read-models.
type Service struct {
	store  Store
	locker Locker
	cache  AvailabilityCache
	log    logrus.FieldLogger
	now    func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithCache sets the availability read-model cache
func WithCache(cache AvailabilityCache) Option {
	return func(s *Service) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithLogger sets the service logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new rental service
func NewService(store Store, locker Locker, opts ...Option) *Service {
	s := &Service{
		store:  store,
		locker: locker,
		cache:  noopCache{},
		log:    logrus.StandardLogger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rent claims rooms in an apartment for userID. Rejections come back as the
// sentinel errors in this package and leave all state untouched.
func (s *Service) Rent(ctx context.Context, userID string, apartmentID uuid.UUID, roomsRequested int) (*RentResult, error) {
	log := s.log.WithFields(logrus.Fields{
		"user_id":         userID,
		"apartment_id":    apartmentID,
		"rooms_requested": roomsRequested,
	})

	if reason := allocation.ValidateRequest(roomsRequested); reason != "" || userID == "" {
		log.Warn("Attempted to rent invalid number of rooms")
		return nil, ErrInvalidRequest
	}

	unlock, err := s.locker.Lock(ctx, apartmentID)
	if err != nil {
		log.WithError(err).Error("Failed to acquire apartment lock")
		return nil, err
	}
	defer unlock()

	var result *RentResult
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		apt, err := tx.LockApartment(ctx, apartmentID)
		if err != nil {
			return err
		}

		existing, err := tx.ActiveRental(ctx, userID, apartmentID)
		if err != nil {
			return err
		}

		anyActive := existing != nil
		if !anyActive {
			if anyActive, err = tx.HasActiveRental(ctx, apartmentID); err != nil {
				return err
			}
		}

		outcome := allocation.DecideRental(apt, existing, anyActive, roomsRequested)
		if !outcome.Accepted() {
			log.WithFields(logrus.Fields{
				"reason":          outcome.Reason,
				"rooms_available": apt.RoomsAvailable,
			}).Warn("Rental request rejected")
			return ReasonError(outcome.Reason)
		}

		now := s.now()
		cs := Changeset{Apartment: apt}
		eventType := models.RentalEventCreated

		switch outcome.Ledger.Action {
		case allocation.LedgerExtend:
			existing.RoomsRented = outcome.Ledger.RoomsRented
			cs.Rental = existing
			eventType = models.RentalEventExtended
		default:
			cs.Rental = &models.Rental{
				UserID:      userID,
				ApartmentID: apartmentID,
				RoomsRented: outcome.Ledger.RoomsRented,
				RentalDate:  now,
				IsActive:    true,
			}
			cs.NewRental = true
		}
		apt.RoomsAvailable = outcome.Inventory.RoomsAvailable
		cs.Event = newEvent(eventType, apt, userID, outcome.Rooms, now)

		if err := tx.Apply(ctx, cs); err != nil {
			return err
		}

		result = &RentResult{
			RentalID:       cs.Rental.ID,
			ApartmentID:    apartmentID,
			RoomsRented:    outcome.Rooms,
			TotalHeld:      cs.Rental.RoomsRented,
			RoomsAvailable: apt.RoomsAvailable,
			Extended:       !cs.NewRental,
		}
		return nil
	})
	if err != nil {
		if !IsRejection(err) && !IsNotFound(err) {
			log.WithError(err).Error("Failed to rent apartment")
		}
		return nil, err
	}

	s.cache.Invalidate(ctx, apartmentID)
	log.WithFields(logrus.Fields{
		"rooms_rented":    result.RoomsRented,
		"rooms_available": result.RoomsAvailable,
		"extended":        result.Extended,
	}).Info("Rental accepted")
	return result, nil
}

// Cancel ends userID's active rental on an apartment and returns its rooms
func (s *Service) Cancel(ctx context.Context, userID string, apartmentID uuid.UUID) (*CancelResult, error) {
	log := s.log.WithFields(logrus.Fields{
		"user_id":      userID,
		"apartment_id": apartmentID,
	})
	log.Info("Attempting to cancel rental")

	unlock, err := s.locker.Lock(ctx, apartmentID)
	if err != nil {
		log.WithError(err).Error("Failed to acquire apartment lock")
		return nil, err
	}
	defer unlock()

	var result *CancelResult
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		apt, err := tx.LockApartment(ctx, apartmentID)
		if err != nil {
			return err
		}

		active, err := tx.ActiveRental(ctx, userID, apartmentID)
		if err != nil {
			return err
		}

		outcome := allocation.DecideCancellation(active, apt)
		if !outcome.Accepted() {
			log.WithField("reason", outcome.Reason).Warn("No active rental found")
			return ReasonError(outcome.Reason)
		}

		now := s.now()
		active.Cancel(now)
		apt.RoomsAvailable = outcome.Inventory.RoomsAvailable

		cs := Changeset{
			Apartment: apt,
			Rental:    active,
			Event:     newEvent(models.RentalEventCancelled, apt, userID, outcome.Rooms, now),
		}
		if err := tx.Apply(ctx, cs); err != nil {
			return err
		}

		result = &CancelResult{
			RentalID:       active.ID,
			ApartmentID:    apartmentID,
			RoomsReturned:  outcome.Rooms,
			RoomsAvailable: apt.RoomsAvailable,
		}
		return nil
	})
	if err != nil {
		if !IsRejection(err) && !IsNotFound(err) {
			log.WithError(err).Error("Failed to cancel rental")
		}
		return nil, err
	}

	s.cache.Invalidate(ctx, apartmentID)
	log.WithField("rooms_returned", result.RoomsReturned).Info("Rental cancelled")
	return result, nil
}

// RentalRequestsForOwner lists the active renters of an apartment, most
// recent first. Missing, deleted, and foreign apartments are indistinguishable.
func (s *Service) RentalRequestsForOwner(ctx context.Context, ownerID string, apartmentID uuid.UUID) (*RentalRequestsView, error) {
	log := s.log.WithFields(logrus.Fields{
		"owner_id":     ownerID,
		"apartment_id": apartmentID,
	})

	apt, err := s.store.Apartment(ctx, apartmentID)
	if err != nil {
		if IsNotFound(err) {
			log.Warn("Apartment not found or caller is not the owner")
			return nil, ErrNotFoundOrNotOwner
		}
		return nil, err
	}
	if apt.OwnerID != ownerID {
		log.Warn("Apartment not found or caller is not the owner")
		return nil, ErrNotFoundOrNotOwner
	}

	rentals, err := s.store.RentalsByApartment(ctx, apartmentID, IncludeActive)
	if err != nil {
		return nil, err
	}

	view := &RentalRequestsView{
		ApartmentID:    apt.ID,
		ApartmentTitle: apt.Title,
		TotalRooms:     apt.TotalRoomsOrZero(),
		AvailableRooms: apt.RoomsAvailable,
		Renters:        make([]RenterView, 0, len(rentals)),
	}
	for _, r := range rentals {
		view.Renters = append(view.Renters, RenterView{
			UserID:      r.UserID,
			RoomsRented: r.RoomsRented,
			RentalDate:  r.RentalDate,
		})
	}

	log.WithField("renters", len(view.Renters)).Info("Retrieved rental requests")
	return view, nil
}

// RentalsForCustomer lists the non-deleted apartments a customer rents.
// policy decides whether cancelled rentals count.
func (s *Service) RentalsForCustomer(ctx context.Context, customerID string, policy InclusionPolicy) ([]ApartmentView, error) {
	apartments, err := s.store.ApartmentsRentedBy(ctx, customerID, policy)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, apartments)
}

// ApartmentsByOwner lists the non-deleted apartments owned by ownerID
func (s *Service) ApartmentsByOwner(ctx context.Context, ownerID string) ([]ApartmentView, error) {
	apartments, err := s.store.ApartmentsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, apartments)
}

// CustomersByApartment lists the distinct renters of an apartment, most
// recent rental first.
func (s *Service) CustomersByApartment(ctx context.Context, apartmentID uuid.UUID, policy InclusionPolicy) ([]CustomerView, error) {
	if _, err := s.store.Apartment(ctx, apartmentID); err != nil {
		return nil, err
	}

	rentals, err := s.store.RentalsByApartment(ctx, apartmentID, policy)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rentals))
	customers := make([]CustomerView, 0, len(rentals))
	for _, r := range rentals {
		if seen[r.UserID] {
			continue
		}
		seen[r.UserID] = true
		customers = append(customers, CustomerView{CustomerID: r.UserID})
	}
	return customers, nil
}

// Availability reports whether an apartment can take a new rental. The
// answer may come from the cache and be slightly stale.
func (s *Service) Availability(ctx context.Context, apartmentID uuid.UUID) (bool, error) {
	if available, ok := s.cache.Get(ctx, apartmentID); ok {
		return available, nil
	}
	generation := s.cache.Generation(ctx, apartmentID)

	apt, err := s.store.Apartment(ctx, apartmentID)
	if err != nil {
		return false, err
	}

	available, err := s.AvailabilityOf(ctx, apt)
	if err != nil {
		return false, err
	}

	s.cache.Set(ctx, apartmentID, available, generation)
	return available, nil
}

// AvailabilityOf computes availability for an already loaded apartment.
// Only whole-unit apartments need the ledger lookup.
func (s *Service) AvailabilityOf(ctx context.Context, apt *models.Apartment) (bool, error) {
	anyActive := false
	if apt.RentalMode == models.RentalModeWholeUnit {
		var err error
		if anyActive, err = s.store.HasActiveRental(ctx, apt.ID); err != nil {
			return false, err
		}
	}
	return allocation.Available(apt, anyActive), nil
}

func (s *Service) views(ctx context.Context, apartments []models.Apartment) ([]ApartmentView, error) {
	ids := make([]uuid.UUID, 0, len(apartments))
	for _, apt := range apartments {
		if apt.RentalMode == models.RentalModeWholeUnit {
			ids = append(ids, apt.ID)
		}
	}

	active, err := s.store.ActiveApartmentIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]ApartmentView, 0, len(apartments))
	for i := range apartments {
		views = append(views, NewApartmentView(&apartments[i], active[apartments[i].ID]))
	}
	return views, nil
}

func newEvent(eventType models.RentalEventType, apt *models.Apartment, userID string, rooms int, now time.Time) *models.RentalEvent {
	return &models.RentalEvent{
		EventType:   eventType,
		ApartmentID: apt.ID,
		OwnerID:     apt.OwnerID,
		UserID:      userID,
		Rooms:       rooms,
		OccurredAt:  now,
		Status:      models.OutboxStatusPending,
		NextRetryAt: now,
	}
}
