package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-apartment-rentals/shared/config"
	"github.com/pavitra93/go-apartment-rentals/shared/middleware"
	"github.com/pavitra93/go-apartment-rentals/shared/models"
	"github.com/pavitra93/go-apartment-rentals/shared/utils"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	cfg := config.GetRentalConfig()

	// Redis caches validated claims; the gateway works without it
	redisClient, err := utils.ConnectRedis(context.Background(), cfg.RedisAddr(), cfg.RedisPassword)
	if err != nil {
		logrus.Warnf("Failed to connect to Redis, claim caching disabled: %v", err)
		redisClient = nil
	}

	authMiddleware, err := middleware.NewAuthMiddleware(cfg.JWTSecret, redisClient)
	if err != nil {
		log.Fatal("Failed to initialize auth middleware:", err)
	}

	serviceClients := &ServiceClients{
		ListingService: NewServiceClient("listing_service", os.Getenv("LISTING_SERVICE_URL")),
		RentalService:  NewServiceClient("rental_service", os.Getenv("RENTAL_SERVICE_URL")),
		OutboxRelay:    NewServiceClient("outbox_relay", os.Getenv("OUTBOX_RELAY_URL")),
		Notifier:       NewServiceClient("notifier", os.Getenv("NOTIFIER_URL")),
	}

	router := newRouter(authMiddleware, serviceClients)

	// Start server
	port := os.Getenv("API_GATEWAY_PORT")
	if port == "" {
		port = "8080"
	}

	logrus.Infof("API Gateway starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start API Gateway:", err)
	}
}

func newRouter(authMiddleware *middleware.AuthMiddleware, serviceClients *ServiceClients) *gin.Engine {
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "API Gateway is healthy", nil)
	})

	// Downstream status (admin only)
	router.GET("/status", authMiddleware.RequireAuth(), authMiddleware.RequireRole(models.RoleAdmin), func(c *gin.Context) {
		utils.OKResponse(c, "Service status retrieved", serviceClients.GetServiceStatus(c.Request.Context()))
	})

	listing := serviceClients.ListingService
	rental := serviceClients.RentalService

	// Apartment routes
	apartments := router.Group("/apartments")
	apartments.Use(authMiddleware.RequireAuth())
	{
		apartments.POST("", authMiddleware.RequireRole(models.RoleOwner), listing.ProxyRequest)
		apartments.PUT("/:id", authMiddleware.RequireRole(models.RoleOwner), listing.ProxyRequest)
		apartments.DELETE("/:id", authMiddleware.RequireRole(models.RoleOwner), listing.ProxyRequest)
		apartments.GET("/names", listing.ProxyRequest)
		apartments.GET("/owner/:ownerId", listing.ProxyRequest)
		apartments.GET("/:id", listing.ProxyRequest)
	}

	// Rental routes
	rentals := router.Group("/rentals")
	rentals.Use(authMiddleware.RequireAuth())
	{
		rentals.POST("/apartments/:id/rent", authMiddleware.RequireRole(models.RoleCustomer), rental.ProxyRequest)
		rentals.POST("/apartments/:id/cancel", authMiddleware.RequireRole(models.RoleCustomer), rental.ProxyRequest)
		rentals.GET("/apartments/:id/customers", rental.ProxyRequest)
		rentals.GET("/apartments/:id/availability", rental.ProxyRequest)
		rentals.GET("/owner/apartments/:id/renters", authMiddleware.RequireRole(models.RoleOwner), rental.ProxyRequest)
		rentals.GET("/customer/:customerId", rental.ProxyRequest)
	}

	// Outbox observability routes (admin only)
	outbox := router.Group("/outbox")
	outbox.Use(authMiddleware.RequireAuth(), authMiddleware.RequireRole(models.RoleAdmin))
	{
		outbox.GET("/stats", func(c *gin.Context) {
			c.Request.URL.Path = "/stats"
			serviceClients.OutboxRelay.ProxyRequest(c)
		})
	}

	return router
}
