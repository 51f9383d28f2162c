// Package listing manages apartment records: creation, partial updates,
// soft deletion, and the detail and title read-models.
//
// Writes that touch inventory go through the same per-apartment lock and row
// lock as rent and cancel, so a room-count change can never interleave with
// an allocation decision.
package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pavitra93/go-apartment-rentals/shared/allocation"
	"github.com/pavitra93/go-apartment-rentals/shared/models"
	"github.com/pavitra93/go-apartment-rentals/shared/rental"
)

// Field limits, mirrored by the binding tags below
const (
	MaxTitleLength    = 100
	MaxSubTitleLength = 500
	MaxLocationLength = 150
	MinRooms          = 1
	MaxRooms          = 100
)

// CreateApartmentRequest is the input of Create. RoomsAvailable is not
// accepted; a new apartment starts with its full capacity free.
type CreateApartmentRequest struct {
	Title      string            `json:"title" binding:"required,max=100"`
	SubTitle   string            `json:"sub_title" binding:"max=500"`
	Location   string            `json:"location" binding:"required,max=150"`
	Price      *float64          `json:"price" binding:"omitempty,gt=0"`
	RentalMode models.RentalMode `json:"rental_mode" binding:"omitempty,oneof=by_room whole_unit"`
	TotalRooms *int              `json:"total_rooms" binding:"omitempty,min=1,max=100"`
	Images     []string          `json:"images" binding:"required,min=1,dive,required"`
}

// UpdateApartmentRequest is a partial update; nil fields are left unchanged
type UpdateApartmentRequest struct {
	Title      *string            `json:"title" binding:"omitempty,min=1,max=100"`
	SubTitle   *string            `json:"sub_title" binding:"omitempty,max=500"`
	Location   *string            `json:"location" binding:"omitempty,min=1,max=150"`
	Price      *float64           `json:"price" binding:"omitempty,gt=0"`
	RentalMode *models.RentalMode `json:"rental_mode" binding:"omitempty,oneof=by_room whole_unit"`
	TotalRooms *int               `json:"total_rooms" binding:"omitempty,min=1,max=100"`
	Images     []string           `json:"images" binding:"omitempty,min=1,dive,required"`
}

// ApartmentDetails is the full read-model of a single apartment
type ApartmentDetails struct {
	rental.ApartmentView
	Images    []string  `json:"images"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApartmentName is one entry of the title list
type ApartmentName struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

// Service handles apartment management
type Service struct {
	db     *gorm.DB
	store  rental.Store
	locker rental.Locker
	cache  rental.AvailabilityCache
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewService creates a new listing service. cache may be nil.
func NewService(db *gorm.DB, locker rental.Locker, cache rental.AvailabilityCache, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		db:     db,
		store:  rental.NewGormStore(db),
		locker: locker,
		cache:  cache,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and stores a new apartment owned by ownerID
func (s *Service) Create(ctx context.Context, ownerID string, req CreateApartmentRequest) (*models.Apartment, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", rental.ErrInvalidApartment)
	}
	if req.RentalMode == "" {
		req.RentalMode = models.RentalModeByRoom
	}
	req.normalize()
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	apt := &models.Apartment{
		OwnerID:    ownerID,
		Title:      strings.TrimSpace(req.Title),
		SubTitle:   strings.TrimSpace(req.SubTitle),
		Location:   strings.TrimSpace(req.Location),
		Price:      req.Price,
		RentalMode: req.RentalMode,
		TotalRooms: req.TotalRooms,
		Images:     imageRows(req.Images),
	}
	apt.RoomsAvailable = apt.Capacity()

	if err := s.db.WithContext(ctx).Create(apt).Error; err != nil {
		s.log.WithError(err).WithField("owner_id", ownerID).Error("Failed to create apartment")
		return nil, fmt.Errorf("failed to create apartment: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"apartment_id": apt.ID,
		"owner_id":     ownerID,
		"rental_mode":  apt.RentalMode,
		"total_rooms":  apt.TotalRoomsOrZero(),
	}).Info("Apartment created")
	return apt, nil
}

// Update applies a partial update on behalf of caller
func (s *Service) Update(ctx context.Context, caller *models.UserInfo, id uuid.UUID, req UpdateApartmentRequest) (*models.Apartment, error) {
	req.normalize()
	if err := validateUpdate(req); err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{"apartment_id": id, "user_id": caller.UserID})

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to acquire apartment lock")
		return nil, err
	}
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		apt, err := rental.LoadApartmentForUpdate(tx, id)
		if err != nil {
			return ownerScoped(err)
		}
		if !caller.CanManageApartment(apt.OwnerID) {
			return rental.ErrNotFoundOrNotOwner
		}

		occupied, anyActive, err := occupancy(tx, id)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if req.Title != nil {
			updates["title"] = strings.TrimSpace(*req.Title)
		}
		if req.SubTitle != nil {
			updates["sub_title"] = strings.TrimSpace(*req.SubTitle)
		}
		if req.Location != nil {
			updates["location"] = strings.TrimSpace(*req.Location)
		}
		if req.Price != nil {
			updates["price"] = *req.Price
		}

		if err := applyInventoryChange(apt, req, occupied, anyActive, updates); err != nil {
			return err
		}

		if len(updates) > 0 {
			if err := tx.Model(&models.Apartment{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update apartment %s: %w", id, err)
			}
		}

		if req.Images != nil {
			if err := tx.Where("apartment_id = ?", id).Delete(&models.ApartmentImage{}).Error; err != nil {
				return fmt.Errorf("failed to replace images of apartment %s: %w", id, err)
			}
			rows := imageRows(req.Images)
			for i := range rows {
				rows[i].ApartmentID = id
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to replace images of apartment %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		if rental.IsRejection(err) || rental.IsNotFound(err) {
			log.WithError(err).Warn("Apartment update rejected")
		} else {
			log.WithError(err).Error("Failed to update apartment")
		}
		return nil, err
	}

	s.invalidate(ctx, id)
	log.Info("Apartment updated")
	return s.store.Apartment(ctx, id)
}

// applyInventoryChange folds mode and room-count changes into updates while
// keeping roomsAvailable = capacity - rooms held by active rentals.
func applyInventoryChange(apt *models.Apartment, req UpdateApartmentRequest, occupied int, anyActive bool, updates map[string]interface{}) error {
	modeChanged := req.RentalMode != nil && *req.RentalMode != apt.RentalMode
	roomsChanged := req.TotalRooms != nil && *req.TotalRooms != apt.TotalRoomsOrZero()
	if !modeChanged && !roomsChanged {
		return nil
	}

	if modeChanged {
		if anyActive {
			return rental.ErrRentalModeLocked
		}
		apt.RentalMode = *req.RentalMode
		updates["rental_mode"] = string(apt.RentalMode)
	}

	if roomsChanged {
		if *req.TotalRooms < occupied {
			return rental.ErrCapacityInUse
		}
		if apt.RentalMode == models.RentalModeWholeUnit && anyActive {
			return rental.ErrCapacityInUse
		}
		apt.TotalRooms = req.TotalRooms
		updates["total_rooms"] = *req.TotalRooms
	}

	if apt.RentalMode == models.RentalModeByRoom && apt.TotalRooms == nil {
		return fmt.Errorf("%w: total_rooms is required for by-room apartments", rental.ErrInvalidApartment)
	}

	switch {
	case apt.RentalMode == models.RentalModeWholeUnit && anyActive:
		updates["rooms_available"] = 0
	case apt.RentalMode == models.RentalModeWholeUnit:
		updates["rooms_available"] = apt.Capacity()
	default:
		updates["rooms_available"] = apt.Capacity() - occupied
	}
	return nil
}

// Delete soft-deletes an apartment on behalf of caller. Ledger rows are kept.
func (s *Service) Delete(ctx context.Context, caller *models.UserInfo, id uuid.UUID) error {
	log := s.log.WithFields(logrus.Fields{"apartment_id": id, "user_id": caller.UserID})

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to acquire apartment lock")
		return err
	}
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		apt, err := rental.LoadApartmentForUpdate(tx, id)
		if err != nil {
			return ownerScoped(err)
		}
		if !caller.CanManageApartment(apt.OwnerID) {
			return rental.ErrNotFoundOrNotOwner
		}

		apt.MarkDeleted(s.now())
		return tx.Model(&models.Apartment{}).Where("id = ?", id).Updates(map[string]interface{}{
			"is_deleted":    true,
			"deletion_time": apt.DeletionTime,
		}).Error
	})
	if err != nil {
		if rental.IsNotFound(err) {
			log.Warn("Apartment not found or caller is not the owner")
		} else {
			log.WithError(err).Error("Failed to delete apartment")
		}
		return err
	}

	s.invalidate(ctx, id)
	log.Info("Apartment deleted")
	return nil
}

// Details returns a non-deleted apartment with its derived availability
func (s *Service) Details(ctx context.Context, id uuid.UUID) (*ApartmentDetails, error) {
	generation := rental.NoGeneration
	if s.cache != nil {
		generation = s.cache.Generation(ctx, id)
	}

	apt, err := s.store.Apartment(ctx, id)
	if err != nil {
		return nil, err
	}

	anyActive := false
	if apt.RentalMode == models.RentalModeWholeUnit {
		if anyActive, err = s.store.HasActiveRental(ctx, id); err != nil {
			return nil, err
		}
	}

	details := &ApartmentDetails{
		ApartmentView: rental.NewApartmentView(apt, anyActive),
		Images:        make([]string, 0, len(apt.Images)),
		CreatedAt:     apt.CreatedAt,
		UpdatedAt:     apt.UpdatedAt,
	}
	for _, img := range apt.Images {
		details.Images = append(details.Images, img.Reference)
	}

	if s.cache != nil {
		s.cache.Set(ctx, id, allocation.Available(apt, anyActive), generation)
	}
	return details, nil
}

// Names lists the ids and titles of all non-deleted apartments
func (s *Service) Names(ctx context.Context) ([]ApartmentName, error) {
	var names []ApartmentName
	err := s.db.WithContext(ctx).
		Model(&models.Apartment{}).
		Scopes(models.NotDeleted).
		Select("id", "title").
		Order("title ASC").
		Scan(&names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list apartment names: %w", err)
	}
	return names, nil
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
}

// occupancy returns the rooms held by active rentals and whether any exist
func occupancy(tx *gorm.DB, apartmentID uuid.UUID) (int, bool, error) {
	var row struct {
		Rooms int
		Count int64
	}
	err := tx.Model(&models.Rental{}).
		Select("COALESCE(SUM(rooms_rented), 0) AS rooms, COUNT(*) AS count").
		Where("apartment_id = ? AND is_active = ?", apartmentID, true).
		Scan(&row).Error
	if err != nil {
		return 0, false, fmt.Errorf("failed to load occupancy of apartment %s: %w", apartmentID, err)
	}
	return row.Rooms, row.Count > 0, nil
}

// ownerScoped hides whether a missing apartment exists at all
func ownerScoped(err error) error {
	if errors.Is(err, rental.ErrNotFound) {
		return rental.ErrNotFoundOrNotOwner
	}
	return err
}

func imageRows(refs []string) []models.ApartmentImage {
	rows := make([]models.ApartmentImage, 0, len(refs))
	for i, ref := range refs {
		rows = append(rows, models.ApartmentImage{Reference: strings.TrimSpace(ref), Position: i})
	}
	return rows
}
