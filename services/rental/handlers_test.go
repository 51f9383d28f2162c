package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pavitra93/go-apartment-rentals/shared/config"
	"github.com/pavitra93/go-apartment-rentals/shared/middleware"
	"github.com/pavitra93/go-apartment-rentals/shared/models"
	"github.com/pavitra93/go-apartment-rentals/shared/rental"
	"github.com/pavitra93/go-apartment-rentals/shared/utils"
)

const secret = "handler-secret"

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "rental.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db))

	auth, err := middleware.NewAuthMiddleware(secret, nil)
	require.NoError(t, err)

	log, _ := test.NewNullLogger()
	svc := rental.NewService(rental.NewGormStore(db), rental.NewLocalLocker(time.Second), rental.WithLogger(log))

	router := gin.New()
	registerRoutes(router, auth, svc, rental.IncludeActive)
	return &testServer{router: router, db: db}
}

func (s *testServer) seed(t *testing.T, ownerID string, mode models.RentalMode, rooms int) *models.Apartment {
	t.Helper()
	apt := &models.Apartment{
		OwnerID:    ownerID,
		Title:      "Harbour studio",
		Location:   "Hamburg",
		RentalMode: mode,
		TotalRooms: &rooms,
		Images:     []models.ApartmentImage{{Reference: "img/harbour.jpg"}},
	}
	apt.RoomsAvailable = apt.Capacity()
	require.NoError(t, s.db.Create(apt).Error)
	return apt
}

func token(t *testing.T, userID string, role models.UserRole) string {
	t.Helper()
	tok, err := middleware.SignToken(secret, models.UserInfo{UserID: userID, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, tok string, body interface{}) (*httptest.ResponseRecorder, utils.APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestRentAndCancelEndpoints(t *testing.T) {
	s := newTestServer(t)
	apt := s.seed(t, "owner-1", models.RentalModeByRoom, 5)
	alice := token(t, "alice", models.RoleCustomer)
	bob := token(t, "bob", models.RoleCustomer)
	rentPath := "/rentals/apartments/" + apt.ID.String() + "/rent"

	w, resp := s.do(t, http.MethodPost, rentPath, alice, RentRequest{RoomsToRent: 3})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, resp.Success)

	w, resp = s.do(t, http.MethodPost, rentPath, bob, RentRequest{RoomsToRent: 3})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "insufficient_inventory", resp.Reason)

	w, _ = s.do(t, http.MethodPost, rentPath, alice, RentRequest{RoomsToRent: 2})
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = s.do(t, http.MethodPost, rentPath, alice, RentRequest{RoomsToRent: 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", resp.Reason)

	w, _ = s.do(t, http.MethodPost, rentPath, alice, RentRequest{RoomsToRent: 101})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	cancelPath := "/rentals/apartments/" + apt.ID.String() + "/cancel"
	w, _ = s.do(t, http.MethodPost, cancelPath, alice, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = s.do(t, http.MethodPost, cancelPath, alice, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "no_active_rental", resp.Reason)
}

func TestRentEndpointErrors(t *testing.T) {
	s := newTestServer(t)
	apt := s.seed(t, "owner-1", models.RentalModeWholeUnit, 2)
	alice := token(t, "alice", models.RoleCustomer)

	w, _ := s.do(t, http.MethodPost, "/rentals/apartments/not-a-uuid/rent", alice, RentRequest{RoomsToRent: 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp := s.do(t, http.MethodPost, "/rentals/apartments/"+apt.ID.String()+"/rent", "", RentRequest{RoomsToRent: 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, resp.Success)

	owner := token(t, "owner-1", models.RoleOwner)
	w, _ = s.do(t, http.MethodPost, "/rentals/apartments/"+apt.ID.String()+"/rent", owner, RentRequest{RoomsToRent: 1})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, resp = s.do(t, http.MethodPost, "/rentals/apartments/00000000-0000-0000-0000-000000000001/rent", alice, RentRequest{RoomsToRent: 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", resp.Reason)
}

func TestOwnerRentersEndpoint(t *testing.T) {
	s := newTestServer(t)
	apt := s.seed(t, "owner-1", models.RentalModeByRoom, 4)

	w, _ := s.do(t, http.MethodPost, "/rentals/apartments/"+apt.ID.String()+"/rent", token(t, "alice", models.RoleCustomer), RentRequest{RoomsToRent: 2})
	require.Equal(t, http.StatusCreated, w.Code)

	path := "/rentals/owner/apartments/" + apt.ID.String() + "/renters"
	w, resp := s.do(t, http.MethodGet, path, token(t, "owner-1", models.RoleOwner), nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["available_rooms"])
	assert.Len(t, data["renters"], 1)

	w, resp = s.do(t, http.MethodGet, path, token(t, "owner-2", models.RoleOwner), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found_or_not_owner", resp.Reason)
}

func TestCustomerRentalsEndpoint(t *testing.T) {
	s := newTestServer(t)
	apt := s.seed(t, "owner-1", models.RentalModeByRoom, 4)
	alice := token(t, "alice", models.RoleCustomer)

	base := "/rentals/apartments/" + apt.ID.String()
	s.do(t, http.MethodPost, base+"/rent", alice, RentRequest{RoomsToRent: 1})
	s.do(t, http.MethodPost, base+"/cancel", alice, nil)

	w, resp := s.do(t, http.MethodGet, "/rentals/customer/alice", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, resp.Data)

	w, resp = s.do(t, http.MethodGet, "/rentals/customer/alice?include=all", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)

	w, _ = s.do(t, http.MethodGet, "/rentals/customer/alice?include=sometimes", alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, "/rentals/customer/alice", token(t, "bob", models.RoleCustomer), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodGet, "/rentals/customer/alice", token(t, "root", models.RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCustomersAndAvailabilityEndpoints(t *testing.T) {
	s := newTestServer(t)
	apt := s.seed(t, "owner-1", models.RentalModeWholeUnit, 3)
	alice := token(t, "alice", models.RoleCustomer)
	base := "/rentals/apartments/" + apt.ID.String()

	w, resp := s.do(t, http.MethodGet, base+"/availability", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp.Data.(map[string]interface{})["is_available"])

	s.do(t, http.MethodPost, base+"/rent", alice, RentRequest{RoomsToRent: 1})

	w, resp = s.do(t, http.MethodGet, base+"/availability", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, resp.Data.(map[string]interface{})["is_available"])

	w, resp = s.do(t, http.MethodGet, base+"/customers", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	customers := resp.Data.([]interface{})
	require.Len(t, customers, 1)
	assert.Equal(t, "alice", customers[0].(map[string]interface{})["customer_id"])
}
