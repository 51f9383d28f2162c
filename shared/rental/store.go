package rental

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pavitra93/go-apartment-rentals/shared/models"
)

// Store is the persistence boundary of the rental core
type Store interface {
	// WithinTx runs fn inside a single database transaction. Returning an
	// error from fn rolls back everything fn wrote.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	Apartment(ctx context.Context, id uuid.UUID) (*models.Apartment, error)
	HasActiveRental(ctx context.Context, apartmentID uuid.UUID) (bool, error)
	ActiveApartmentIDs(ctx context.Context, apartmentIDs []uuid.UUID) (map[uuid.UUID]bool, error)
	RentalsByApartment(ctx context.Context, apartmentID uuid.UUID, policy InclusionPolicy) ([]models.Rental, error)
	ApartmentsRentedBy(ctx context.Context, customerID string, policy InclusionPolicy) ([]models.Apartment, error)
	ApartmentsByOwner(ctx context.Context, ownerID string) ([]models.Apartment, error)
}

// Tx is the transactional view used for read-decide-write sequences
type Tx interface {
	LockApartment(ctx context.Context, id uuid.UUID) (*models.Apartment, error)
	ActiveRental(ctx context.Context, userID string, apartmentID uuid.UUID) (*models.Rental, error)
	HasActiveRental(ctx context.Context, apartmentID uuid.UUID) (bool, error)
	Apply(ctx context.Context, cs Changeset) error
}

// Changeset is the set of rows one accepted decision writes
type Changeset struct {
	Apartment *models.Apartment
	Rental    *models.Rental
	NewRental bool
	Event     *models.RentalEvent
}

// InclusionPolicy selects which ledger rows a read-model considers
type InclusionPolicy string

const (
	IncludeActive InclusionPolicy = "active"
	IncludeAll    InclusionPolicy = "all"
)

// ParseInclusionPolicy parses a policy name, falling back to def when empty
func ParseInclusionPolicy(value string, def InclusionPolicy) (InclusionPolicy, error) {
	switch InclusionPolicy(value) {
	case "":
		return def, nil
	case IncludeActive, IncludeAll:
		return InclusionPolicy(value), nil
	}
	return "", fmt.Errorf("%w: unknown rental inclusion policy %q", ErrInvalidRequest, value)
}

// GormStore implements Store on top of gorm
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new gorm-backed store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (s *GormStore) Apartment(ctx context.Context, id uuid.UUID) (*models.Apartment, error) {
	var apt models.Apartment
	err := s.db.WithContext(ctx).
		Scopes(models.NotDeleted).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("apartments.id = ?", id).
		First(&apt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load apartment %s: %w", id, err)
	}
	return &apt, nil
}

func (s *GormStore) HasActiveRental(ctx context.Context, apartmentID uuid.UUID) (bool, error) {
	return hasActiveRental(s.db.WithContext(ctx), apartmentID)
}

func (s *GormStore) ActiveApartmentIDs(ctx context.Context, apartmentIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	active := make(map[uuid.UUID]bool)
	if len(apartmentIDs) == 0 {
		return active, nil
	}

	var ids []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&models.Rental{}).
		Distinct("apartment_id").
		Where("apartment_id IN ? AND is_active = ?", apartmentIDs, true).
		Pluck("apartment_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active apartments: %w", err)
	}

	for _, id := range ids {
		active[id] = true
	}
	return active, nil
}

func (s *GormStore) RentalsByApartment(ctx context.Context, apartmentID uuid.UUID, policy InclusionPolicy) ([]models.Rental, error) {
	q := s.db.WithContext(ctx).Where("apartment_id = ?", apartmentID)
	if policy != IncludeAll {
		q = q.Where("is_active = ?", true)
	}

	var rentals []models.Rental
	if err := q.Order("rental_date DESC").Find(&rentals).Error; err != nil {
		return nil, fmt.Errorf("failed to load rentals for apartment %s: %w", apartmentID, err)
	}
	return rentals, nil
}

func (s *GormStore) ApartmentsRentedBy(ctx context.Context, customerID string, policy InclusionPolicy) ([]models.Apartment, error) {
	rented := s.db.Model(&models.Rental{}).Select("apartment_id").Where("user_id = ?", customerID)
	if policy != IncludeAll {
		rented = rented.Where("is_active = ?", true)
	}

	var apartments []models.Apartment
	err := s.db.WithContext(ctx).
		Scopes(models.NotDeleted).
		Where("apartments.id IN (?)", rented).
		Order("apartments.created_at DESC").
		Find(&apartments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load apartments rented by %s: %w", customerID, err)
	}
	return apartments, nil
}

func (s *GormStore) ApartmentsByOwner(ctx context.Context, ownerID string) ([]models.Apartment, error) {
	var apartments []models.Apartment
	err := s.db.WithContext(ctx).
		Scopes(models.NotDeleted).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&apartments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load apartments for owner %s: %w", ownerID, err)
	}
	return apartments, nil
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) LockApartment(ctx context.Context, id uuid.UUID) (*models.Apartment, error) {
	return LoadApartmentForUpdate(t.db.WithContext(ctx), id)
}

func (t *gormTx) ActiveRental(ctx context.Context, userID string, apartmentID uuid.UUID) (*models.Rental, error) {
	var r models.Rental
	err := t.db.WithContext(ctx).
		Where("user_id = ? AND apartment_id = ? AND is_active = ?", userID, apartmentID, true).
		First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load active rental: %w", err)
	}
	return &r, nil
}

func (t *gormTx) HasActiveRental(ctx context.Context, apartmentID uuid.UUID) (bool, error) {
	return hasActiveRental(t.db.WithContext(ctx), apartmentID)
}

func (t *gormTx) Apply(ctx context.Context, cs Changeset) error {
	db := t.db.WithContext(ctx)

	if cs.Apartment != nil {
		res := db.Model(&models.Apartment{}).
			Where("id = ?", cs.Apartment.ID).
			Update("rooms_available", cs.Apartment.RoomsAvailable)
		if res.Error != nil {
			return fmt.Errorf("failed to update inventory for apartment %s: %w", cs.Apartment.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
	}

	if cs.Rental != nil {
		if cs.NewRental {
			if err := db.Create(cs.Rental).Error; err != nil {
				return fmt.Errorf("failed to create rental: %w", err)
			}
		} else {
			err := db.Model(&models.Rental{}).
				Where("id = ?", cs.Rental.ID).
				Updates(map[string]interface{}{
					"rooms_rented": cs.Rental.RoomsRented,
					"is_active":    cs.Rental.IsActive,
					"cancelled_at": cs.Rental.CancelledAt,
				}).Error
			if err != nil {
				return fmt.Errorf("failed to update rental %s: %w", cs.Rental.ID, err)
			}
		}
	}

	if cs.Event != nil {
		if cs.Rental != nil {
			cs.Event.RentalID = cs.Rental.ID
		}
		if err := db.Create(cs.Event).Error; err != nil {
			return fmt.Errorf("failed to append rental event: %w", err)
		}
	}

	return nil
}

// LoadApartmentForUpdate loads a non-deleted apartment inside tx. On postgres
// the row is locked FOR UPDATE until the transaction ends.
func LoadApartmentForUpdate(tx *gorm.DB, id uuid.UUID) (*models.Apartment, error) {
	q := tx.Scopes(models.NotDeleted)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var apt models.Apartment
	if err := q.Where("apartments.id = ?", id).First(&apt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock apartment %s: %w", id, err)
	}
	return &apt, nil
}

func hasActiveRental(db *gorm.DB, apartmentID uuid.UUID) (bool, error) {
	var count int64
	err := db.Model(&models.Rental{}).
		Where("apartment_id = ? AND is_active = ?", apartmentID, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count active rentals for apartment %s: %w", apartmentID, err)
	}
	return count > 0, nil
}
