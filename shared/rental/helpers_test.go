package rental

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pavitra93/go-apartment-rentals/shared/config"
	"github.com/pavitra93/go-apartment-rentals/shared/models"
)

// newTestDB opens a migrated file-backed sqlite database. A single
// connection keeps every query on the same database and serializes writers.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "rentals.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, config.Migrate(db))
	return db
}

// stepClock returns strictly increasing timestamps
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(t *testing.T, db *gorm.DB, opts ...Option) *Service {
	t.Helper()
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	base := []Option{WithLogger(log), WithClock(newStepClock().Now)}
	return NewService(NewGormStore(db), NewLocalLocker(time.Second), append(base, opts...)...)
}

func intPtr(v int) *int { return &v }

func seedApartment(t *testing.T, db *gorm.DB, ownerID string, mode models.RentalMode, totalRooms *int) *models.Apartment {
	t.Helper()

	apt := &models.Apartment{
		OwnerID:    ownerID,
		Title:      "Sunny loft",
		Location:   "Berlin",
		RentalMode: mode,
		TotalRooms: totalRooms,
		Images:     []models.ApartmentImage{{Reference: "img/loft-1.jpg"}},
	}
	apt.RoomsAvailable = apt.Capacity()
	require.NoError(t, db.Create(apt).Error)
	return apt
}

func reloadApartment(t *testing.T, db *gorm.DB, apt *models.Apartment) *models.Apartment {
	t.Helper()
	var fresh models.Apartment
	require.NoError(t, db.First(&fresh, "id = ?", apt.ID).Error)
	return &fresh
}

func activeRentals(t *testing.T, db *gorm.DB, apt *models.Apartment) []models.Rental {
	t.Helper()
	var rentals []models.Rental
	require.NoError(t, db.Where("apartment_id = ? AND is_active = ?", apt.ID, true).Find(&rentals).Error)
	return rentals
}

func events(t *testing.T, db *gorm.DB, apt *models.Apartment) []models.RentalEvent {
	t.Helper()
	var evts []models.RentalEvent
	require.NoError(t, db.Where("apartment_id = ?", apt.ID).Order("occurred_at ASC").Find(&evts).Error)
	return evts
}
