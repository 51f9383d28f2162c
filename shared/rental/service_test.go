package rental

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/go-apartment-rentals/shared/models"
)

func TestRentByRoomAcceptsExtendsAndRejects(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := newTestService(t, db)
	apt := seedApartment(t, db, "owner-1", models.RentalModeByRoom, intPtr(5))

	res, err := svc.Rent(ctx, "alice", apt.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, res.RoomsRented)
	assert.Equal(t, 2, res.RoomsAvailable)
	assert.False(t, res.Extended)

	_, err = svc.Rent(ctx, "bob", apt.ID, 3)
	assert.ErrorIs(t, err, ErrInsufficientInventory)
	assert.Equal(t, 2, reloadApartment(t, db, apt).RoomsAvailable)

	res, err = svc.Rent(ctx, "alice", apt.ID, 2)
	require.NoError(t, err)
	assert.True(t, res.Extended)
	assert.Equal(t, 5, res.TotalHeld)
	assert.Equal(t, 0, res.RoomsAvailable)

	rentals := activeRentals(t, db, apt)
	require.Len(t, rentals, 1)
	assert.Equal(t, "alice", rentals[0].UserID)
	assert.Equal(t, 5, rentals[0].RoomsRented)
	assert.Equal(t, 0, reloadApartment(t, db, apt).RoomsAvailable)

	evts := events(t, db, apt)
	require.Len(t, evts, 2)
	assert.Equal(t, models.RentalEventCreated, evts[0].EventType)
	assert.Equal(t, models.RentalEventExtended, evts[1].EventType)
	assert.Equal(t, 2, evts[1].Rooms)
	assert.Equal(t, rentals[0].ID, evts[1].RentalID)
	assert.Equal(t, "owner-1", evts[1].OwnerID)
	assert.Equal(t, models.OutboxStatusPending, evts[1].Status)
}

func TestRentWholeUnit(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := newTestService(t, db)
	apt := seedApartment(t, db, "owner-1", models.RentalModeWholeUnit, intPtr(3))

	res, err := svc.Rent(ctx, "alice", apt.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, res.RoomsRented)
	assert.Equal(t, 0, res.RoomsAvailable)

	_, err = svc.Rent(ctx, "bob", apt.ID, 1)
	assert.ErrorIs(t, err, ErrAlreadyRentedByOther)

	_, err = svc.Rent(ctx, "alice", apt.ID, 1)
	assert.ErrorIs(t, err, ErrDuplicateRentalByHolder)

	assert.Len(t, activeRentals(t, db, apt), 1)
	assert.Len(t, events(t, db, apt), 1)
}

func TestCancelRestoresInventory(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := newTestService(t, db)
	apt := seedApartment(t, db, "owner-1", models.RentalModeWholeUnit, intPtr(3))

	_, err := svc.Rent(ctx, "alice", apt.ID, 1)
	require.NoError(t, err)

	res, err := svc.Cancel(ctx, "alice", apt.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.RoomsReturned)
	assert.Equal(t, 3, res.RoomsAvailable)
	assert.Equal(t, 3, reloadApartment(t, db, apt).RoomsAvailable)

	var cancelled models.Rental
	require.NoError(t, db.First(&cancelled, "id = ?", res.RentalID).Error)
	assert.False(t, cancelled.IsActive)
	assert.NotNil(t, cancelled.CancelledAt)

	_, err = svc.Rent(ctx, "bob", apt.ID, 1)
	require.NoError(t, err)

	evts := events(t, db, apt)
	require.Len(t, evts, 3)
	assert.Equal(t, models.RentalEventCancelled, evts[1].EventType)
	assert.Equal(t, 3, evts[1].Rooms)
}

func TestCancelTwiceRejectsSecondCall(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := newTestService(t, db)
	apt := seedApartment(t, db, "owner-1", models.RentalModeByRoom, intPtr(4))

	_, err := svc.Rent(ctx, "alice", apt.ID, 2)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, "alice", apt.ID)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, "alice", apt.ID)
	assert.ErrorIs(t, err, ErrNoActiveRental)
	assert.Equal(t, 4, reloadApartment(t, db, apt).RoomsAvailable)
}

func TestCancelWithoutRental(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	apt := seedApartment(t, db, "owner-1", models.RentalModeByRoom, intPtr(4))

	_, err := svc.Cancel(context.Background(), "nobody", apt.ID)
	assert.ErrorIs(t, err, ErrNoActiveRental)
	assert.Empty(t, events(t, db, apt))
}

func TestRentAfterCancelCreatesNewLedgerRow(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := newTestService(t, db)
	apt := seedApartment(t, db, "owner-1", models.RentalModeByRoom, intPtr(4))

	first, err := svc.Rent(ctx, "alice", apt.ID, 2)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, "alice", apt.ID)
	require.NoError(t, err)

	second, err := svc.Rent(ctx, "alice", apt.ID, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first.RentalID, second.RentalID)
	assert.False(t, second.Extended)

	var count int64
	require.NoError(t, db.Model(&models.Rental{}).Where("apartment_id = ? AND user_id = ?", apt.ID, "alice").Count(&count).Error)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 3, reloadApartment(t, db, apt).RoomsAvailable)
}

func TestRentRejectsInvalidRequestRegardlessOfState(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := newTestService(t, db)
	apt := seedApartment(t, db, "owner-1", models.RentalModeByRoom, intPtr(4))

	for _, rooms := range []int{0, -1} {
		_, err := svc.Rent(ctx, "alice", apt.ID, rooms)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}

	_, err := svc.Rent(ctx, "alice", uuid.New(), 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Rent(ctx, "", apt.ID, 1)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Empty(t, events(t, db, apt))
}

func TestRentMissingOrDeletedApartment(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.Rent(ctx, "alice", uuid.New(), 1)
	assert.ErrorIs(t, err, ErrNotFound)

	apt := seedApartment(t, db, "owner-1", models.RentalModeByRoom, intPtr(4))
	require.NoError(t, db.Model(apt).Update("is_deleted", true).Error)

	_, err = svc.Rent(ctx, "alice", apt.ID, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Cancel(ctx, "alice", apt.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRentalRequestsForOwner(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := newTestService(t, db)
	apt := seedApartment(t, db, "owner-1", models.RentalModeByRoom, intPtr(6))

	_, err := svc.Rent(ctx, "alice", apt.ID, 1)
	require.NoError(t, err)
	_, err = svc.Rent(ctx, "bob", apt.ID, 2)
	require.NoError(t, err)
	_, err = svc.Rent(ctx, "carol", apt.ID, 1)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, "carol", apt.ID)
	require.NoError(t, err)

	view, err := svc.RentalRequestsForOwner(ctx, "owner-1", apt.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sunny loft", view.ApartmentTitle)
	assert.Equal(t, 6, view.TotalRooms)
	assert.Equal(t, 3, view.AvailableRooms)
	require.Len(t, view.Renters, 2)
	assert.Equal(t, "bob", view.Renters[0].UserID)
	assert.Equal(t, 2, view.Renters[0].RoomsRented)
	assert.Equal(t, "alice", view.Renters[1].UserID)
}

func TestRentalRequestsForOwnerHidesForeignAndDeleted(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := newTestService(t, db)
	apt := seedApartment(t, db, "owner-1", models.RentalModeByRoom, intPtr(2))

	_, err := svc.RentalRequestsForOwner(ctx, "owner-2", apt.ID)
	assert.ErrorIs(t, err, ErrNotFoundOrNotOwner)

	_, err = svc.RentalRequestsForOwner(ctx, "owner-1", uuid.New())
	assert.ErrorIs(t, err, ErrNotFoundOrNotOwner)

	require.NoError(t, db.Model(apt).Update("is_deleted", true).Error)
	_, err = svc.RentalRequestsForOwner(ctx, "owner-1", apt.ID)
	assert.ErrorIs(t, err, ErrNotFoundOrNotOwner)
}

func TestRentalsForCustomerPolicy(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := newTestService(t, db)
	kept := seedApartment(t, db, "owner-1", models.RentalModeByRoom, intPtr(3))
	cancelled := seedApartment(t, db, "owner-1", models.RentalModeWholeUnit, intPtr(2))
	deleted := seedApartment(t, db, "owner-2", models.RentalModeByRoom, intPtr(2))

	_, err := svc.Rent(ctx, "alice", kept.ID, 1)
	require.NoError(t, err)
	_, err = svc.Rent(ctx, "alice", cancelled.ID, 1)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, "alice", cancelled.ID)
	require.NoError(t, err)
	_, err = svc.Rent(ctx, "alice", deleted.ID, 1)
	require.NoError(t, err)
	require.NoError(t, db.Model(deleted).Update("is_deleted", true).Error)

	active, err := svc.RentalsForCustomer(ctx, "alice", IncludeActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, kept.ID, active[0].ID)
	assert.True(t, active[0].IsAvailable)

	all, err := svc.RentalsForCustomer(ctx, "alice", IncludeAll)
	require.NoError(t, err)
	ids := []uuid.UUID{}
	for _, v := range all {
		ids = append(ids, v.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{kept.ID, cancelled.ID}, ids)

	none, err := svc.RentalsForCustomer(ctx, "nobody", IncludeAll)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestApartmentsByOwnerDerivesWholeUnitAvailability(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := newTestService(t, db)
	whole := seedApartment(t, db, "owner-1", models.RentalModeWholeUnit, nil)
	rooms := seedApartment(t, db, "owner-1", models.RentalModeByRoom, intPtr(2))
	seedApartment(t, db, "owner-2", models.RentalModeByRoom, intPtr(2))

	_, err := svc.Rent(ctx, "alice", whole.ID, 1)
	require.NoError(t, err)

	views, err := svc.ApartmentsByOwner(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, views, 2)

	byID := map[uuid.UUID]ApartmentView{}
	for _, v := range views {
		byID[v.ID] = v
	}
	assert.False(t, byID[whole.ID].IsAvailable)
	assert.True(t, byID[rooms.ID].IsAvailable)
}

func TestCustomersByApartment(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := newTestService(t, db)
	apt := seedApartment(t, db, "owner-1", models.RentalModeByRoom, intPtr(5))

	_, err := svc.Rent(ctx, "alice", apt.ID, 1)
	require.NoError(t, err)
	_, err = svc.Rent(ctx, "bob", apt.ID, 1)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, "alice", apt.ID)
	require.NoError(t, err)
	_, err = svc.Rent(ctx, "alice", apt.ID, 1)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, "bob", apt.ID)
	require.NoError(t, err)

	active, err := svc.CustomersByApartment(ctx, apt.ID, IncludeActive)
	require.NoError(t, err)
	assert.Equal(t, []CustomerView{{CustomerID: "alice"}}, active)

	all, err := svc.CustomersByApartment(ctx, apt.ID, IncludeAll)
	require.NoError(t, err)
	assert.Equal(t, []CustomerView{{CustomerID: "alice"}, {CustomerID: "bob"}}, all)

	_, err = svc.CustomersByApartment(ctx, uuid.New(), IncludeAll)
	assert.ErrorIs(t, err, ErrNotFound)
}

type recordingCache struct {
	mu          sync.Mutex
	values      map[uuid.UUID]bool
	generations map[uuid.UUID]int64
	invalidated []uuid.UUID
}

func newRecordingCache() *recordingCache {
	return &recordingCache{values: map[uuid.UUID]bool{}, generations: map[uuid.UUID]int64{}}
}

func (c *recordingCache) Get(_ context.Context, id uuid.UUID) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[id]
	return v, ok
}

func (c *recordingCache) Generation(_ context.Context, id uuid.UUID) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[id]
}

func (c *recordingCache) Set(_ context.Context, id uuid.UUID, available bool, generation int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation == c.generations[id] {
		c.values[id] = available
	}
}

func (c *recordingCache) Invalidate(_ context.Context, id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, id)
	c.generations[id]++
	c.invalidated = append(c.invalidated, id)
}

// racingStore runs during once, right after the first apartment read
type racingStore struct {
	Store
	once   sync.Once
	during func()
}

func (s *racingStore) Apartment(ctx context.Context, id uuid.UUID) (*models.Apartment, error) {
	apt, err := s.Store.Apartment(ctx, id)
	s.once.Do(s.during)
	return apt, err
}

func TestAvailabilityUsesCacheAndInvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	cache := newRecordingCache()
	svc := newTestService(t, db, WithCache(cache))
	apt := seedApartment(t, db, "owner-1", models.RentalModeWholeUnit, intPtr(2))

	available, err := svc.Availability(ctx, apt.ID)
	require.NoError(t, err)
	assert.True(t, available)

	cached, ok := cache.Get(ctx, apt.ID)
	require.True(t, ok)
	assert.True(t, cached)

	_, err = svc.Rent(ctx, "alice", apt.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{apt.ID}, cache.invalidated)

	available, err = svc.Availability(ctx, apt.ID)
	require.NoError(t, err)
	assert.False(t, available)

	_, err = svc.Rent(ctx, "bob", apt.ID, 1)
	require.ErrorIs(t, err, ErrAlreadyRentedByOther)
	assert.Len(t, cache.invalidated, 1)

	_, err = svc.Availability(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAvailabilityDoesNotCacheReadThatRacedAWrite(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	cache := newRecordingCache()
	writer := newTestService(t, db, WithCache(cache))
	apt := seedApartment(t, db, "owner-1", models.RentalModeByRoom, intPtr(1))

	store := &racingStore{Store: NewGormStore(db), during: func() {
		_, err := writer.Rent(ctx, "alice", apt.ID, 1)
		require.NoError(t, err)
	}}
	reader := NewService(store, NewLocalLocker(time.Second), WithCache(cache))

	// The read saw the room free; the rent landed before it could cache that
	available, err := reader.Availability(ctx, apt.ID)
	require.NoError(t, err)
	assert.True(t, available)
	_, ok := cache.Get(ctx, apt.ID)
	assert.False(t, ok)

	available, err = reader.Availability(ctx, apt.ID)
	require.NoError(t, err)
	assert.False(t, available)
	cached, ok := cache.Get(ctx, apt.ID)
	require.True(t, ok)
	assert.False(t, cached)
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, uuid.UUID) (func(), error) {
	return nil, ErrLockTimeout
}

func TestRentSurfacesLockTimeout(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewGormStore(db), failingLocker{})
	apt := seedApartment(t, db, "owner-1", models.RentalModeByRoom, intPtr(2))

	_, err := svc.Rent(context.Background(), "alice", apt.ID, 1)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Equal(t, 2, reloadApartment(t, db, apt).RoomsAvailable)
}
