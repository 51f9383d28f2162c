package main

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pavitra93/go-apartment-rentals/shared/listing"
	"github.com/pavitra93/go-apartment-rentals/shared/middleware"
	"github.com/pavitra93/go-apartment-rentals/shared/models"
	"github.com/pavitra93/go-apartment-rentals/shared/rental"
	"github.com/pavitra93/go-apartment-rentals/shared/utils"
)

// handleCreateApartment handles apartment creation (owners only)
func handleCreateApartment(svc *listing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.GetUserInfoFromContext(c)
		if err != nil {
			utils.UnauthorizedResponse(c, "User not found in context")
			return
		}

		var req listing.CreateApartmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.DomainErrorResponse(c, listing.RequestError(err), "Invalid request format")
			return
		}

		apt, err := svc.Create(c.Request.Context(), user.UserID, req)
		if err != nil {
			utils.DomainErrorResponse(c, err, "Failed to create apartment")
			return
		}

		utils.CreatedResponse(c, "Apartment created successfully", apt)
	}
}

// handleUpdateApartment handles a partial apartment update
func handleUpdateApartment(svc *listing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.GetUserInfoFromContext(c)
		if err != nil {
			utils.UnauthorizedResponse(c, "User not found in context")
			return
		}

		id, ok := apartmentIDParam(c)
		if !ok {
			return
		}

		var req listing.UpdateApartmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.DomainErrorResponse(c, listing.RequestError(err), "Invalid request format")
			return
		}

		apt, err := svc.Update(c.Request.Context(), user, id, req)
		if err != nil {
			utils.DomainErrorResponse(c, err, "Failed to update apartment")
			return
		}

		utils.OKResponse(c, "Apartment updated successfully", apt)
	}
}

// handleDeleteApartment handles soft-deleting an apartment
func handleDeleteApartment(svc *listing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.GetUserInfoFromContext(c)
		if err != nil {
			utils.UnauthorizedResponse(c, "User not found in context")
			return
		}

		id, ok := apartmentIDParam(c)
		if !ok {
			return
		}

		if err := svc.Delete(c.Request.Context(), user, id); err != nil {
			utils.DomainErrorResponse(c, err, "Failed to delete apartment")
			return
		}

		utils.OKResponse(c, "Apartment deleted successfully", nil)
	}
}

// handleGetApartment handles fetching apartment details
func handleGetApartment(svc *listing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apartmentIDParam(c)
		if !ok {
			return
		}

		details, err := svc.Details(c.Request.Context(), id)
		if err != nil {
			utils.DomainErrorResponse(c, err, "Failed to fetch apartment")
			return
		}

		utils.OKResponse(c, "Apartment retrieved successfully", details)
	}
}

// handleGetApartmentNames handles listing apartment titles
func handleGetApartmentNames(svc *listing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		names, err := svc.Names(c.Request.Context())
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to fetch apartment names")
			return
		}

		utils.OKResponse(c, "Apartment names retrieved successfully", names)
	}
}

// handleGetOwnerApartments handles listing an owner's apartments
func handleGetOwnerApartments(rentals *rental.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		apartments, err := rentals.ApartmentsByOwner(c.Request.Context(), c.Param("ownerId"))
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to fetch owner apartments")
			return
		}

		utils.OKResponse(c, "Owner apartments retrieved successfully", apartments)
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

// registerRoutes mounts the apartment routes behind auth
func registerRoutes(router *gin.Engine, auth *middleware.AuthMiddleware, svc *listing.Service, rentals *rental.Service) {
	apartments := router.Group("/apartments")
	apartments.Use(auth.RequireAuth())
	{
		// Owner-only management routes
		apartments.POST("", auth.RequireRole(models.RoleOwner), handleCreateApartment(svc))
		apartments.PUT("/:id", auth.RequireRole(models.RoleOwner), handleUpdateApartment(svc))
		apartments.DELETE("/:id", auth.RequireRole(models.RoleOwner), handleDeleteApartment(svc))

		// Read routes
		apartments.GET("/names", handleGetApartmentNames(svc))
		apartments.GET("/owner/:ownerId", handleGetOwnerApartments(rentals))
		apartments.GET("/:id", handleGetApartment(svc))
	}
}
