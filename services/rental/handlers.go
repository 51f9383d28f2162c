package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pavitra93/go-apartment-rentals/shared/middleware"
	"github.com/pavitra93/go-apartment-rentals/shared/models"
	"github.com/pavitra93/go-apartment-rentals/shared/rental"
	"github.com/pavitra93/go-apartment-rentals/shared/utils"
)

// RentRequest represents the rent request
type RentRequest struct {
	RoomsToRent int `json:"rooms_to_rent" binding:"min=1,max=100"`
}

// AvailabilityResponse is the body of the availability endpoint
type AvailabilityResponse struct {
	ApartmentID uuid.UUID `json:"apartment_id"`
	IsAvailable bool      `json:"is_available"`
}

// handleRent handles renting rooms of an apartment
func handleRent(svc *rental.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.GetUserInfoFromContext(c)
		if err != nil {
			utils.UnauthorizedResponse(c, "User not found in context")
			return
		}

		apartmentID, ok := apartmentIDParam(c)
		if !ok {
			return
		}

		var req RentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.DomainErrorResponse(c, fmt.Errorf("%w: rooms_to_rent must be between 1 and 100", rental.ErrInvalidRequest), "Invalid request format")
			return
		}

		result, err := svc.Rent(c.Request.Context(), user.UserID, apartmentID, req.RoomsToRent)
		if err != nil {
			utils.DomainErrorResponse(c, err, "Failed to rent apartment")
			return
		}

		if result.Extended {
			utils.OKResponse(c, "Rental extended successfully", result)
			return
		}
		utils.CreatedResponse(c, "Apartment rented successfully", result)
	}
}

// handleCancel handles cancelling the caller's rental of an apartment
func handleCancel(svc *rental.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.GetUserInfoFromContext(c)
		if err != nil {
			utils.UnauthorizedResponse(c, "User not found in context")
			return
		}

		apartmentID, ok := apartmentIDParam(c)
		if !ok {
			return
		}

		result, err := svc.Cancel(c.Request.Context(), user.UserID, apartmentID)
		if err != nil {
			utils.DomainErrorResponse(c, err, "Failed to cancel rental")
			return
		}

		utils.OKResponse(c, "Rental cancelled successfully", result)
	}
}

// handleOwnerRenters lists the active renters of one of the caller's apartments
func handleOwnerRenters(svc *rental.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.GetUserInfoFromContext(c)
		if err != nil {
			utils.UnauthorizedResponse(c, "User not found in context")
			return
		}

		apartmentID, ok := apartmentIDParam(c)
		if !ok {
			return
		}

		view, err := svc.RentalRequestsForOwner(c.Request.Context(), user.UserID, apartmentID)
		if err != nil {
			utils.DomainErrorResponse(c, err, "Failed to fetch rental requests")
			return
		}

		utils.OKResponse(c, "Rental requests retrieved successfully", view)
	}
}

// handleCustomerRentals lists the apartments a customer rents. Customers
// may only read their own list.
func handleCustomerRentals(svc *rental.Service, defaultPolicy rental.InclusionPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.GetUserInfoFromContext(c)
		if err != nil {
			utils.UnauthorizedResponse(c, "User not found in context")
			return
		}

		customerID := c.Param("customerId")
		if customerID != user.UserID && !user.IsAdminUser() {
			utils.ForbiddenResponse(c, "Customers can only view their own rentals")
			return
		}

		policy, err := rental.ParseInclusionPolicy(c.Query("include"), defaultPolicy)
		if err != nil {
			utils.BadRequestResponse(c, "include must be 'active' or 'all'")
			return
		}

		apartments, err := svc.RentalsForCustomer(c.Request.Context(), customerID, policy)
		if err != nil {
			utils.DomainErrorResponse(c, err, "Failed to fetch customer rentals")
			return
		}

		utils.OKResponse(c, "Customer rentals retrieved successfully", apartments)
	}
}

// handleApartmentCustomers lists the renters of an apartment
func handleApartmentCustomers(svc *rental.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		apartmentID, ok := apartmentIDParam(c)
		if !ok {
			return
		}

		policy, err := rental.ParseInclusionPolicy(c.Query("include"), rental.IncludeAll)
		if err != nil {
			utils.BadRequestResponse(c, "include must be 'active' or 'all'")
			return
		}

		customers, err := svc.CustomersByApartment(c.Request.Context(), apartmentID, policy)
		if err != nil {
			utils.DomainErrorResponse(c, err, "Failed to fetch customers")
			return
		}

		utils.OKResponse(c, "Customers retrieved successfully", customers)
	}
}

// handleAvailability reports whether an apartment can take a new rental
func handleAvailability(svc *rental.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		apartmentID, ok := apartmentIDParam(c)
		if !ok {
			return
		}

		available, err := svc.Availability(c.Request.Context(), apartmentID)
		if err != nil {
			utils.DomainErrorResponse(c, err, "Failed to fetch availability")
			return
		}

		utils.OKResponse(c, "Availability retrieved successfully", AvailabilityResponse{
			ApartmentID: apartmentID,
			IsAvailable: available,
		})
	}
}

func apartmentIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid apartment ID")
		return uuid.Nil, false
	}
	return id, true
}

// registerRoutes mounts the rental routes behind auth
func registerRoutes(router *gin.Engine, auth *middleware.AuthMiddleware, svc *rental.Service, defaultPolicy rental.InclusionPolicy) {
	rentals := router.Group("/rentals")
	rentals.Use(auth.RequireAuth())
	{
		rentals.POST("/apartments/:id/rent", auth.RequireRole(models.RoleCustomer), handleRent(svc))
		rentals.POST("/apartments/:id/cancel", auth.RequireRole(models.RoleCustomer), handleCancel(svc))
		rentals.GET("/apartments/:id/customers", handleApartmentCustomers(svc))
		rentals.GET("/apartments/:id/availability", handleAvailability(svc))

		rentals.GET("/owner/apartments/:id/renters", auth.RequireRole(models.RoleOwner), handleOwnerRenters(svc))
		rentals.GET("/customer/:customerId", handleCustomerRentals(svc, defaultPolicy))
	}
}
