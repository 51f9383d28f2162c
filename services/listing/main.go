package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-apartment-rentals/shared/config"
	"github.com/pavitra93/go-apartment-rentals/shared/listing"
	"github.com/pavitra93/go-apartment-rentals/shared/middleware"
	"github.com/pavitra93/go-apartment-rentals/shared/rental"
	"github.com/pavitra93/go-apartment-rentals/shared/utils"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	cfg := config.GetRentalConfig()

	redisClient, err := utils.ConnectRedis(context.Background(), cfg.RedisAddr(), cfg.RedisPassword)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	// Initialize database
	db, err := config.ConnectDatabase()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := config.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	authMiddleware, err := middleware.NewAuthMiddleware(cfg.JWTSecret, redisClient)
	if err != nil {
		log.Fatal("Failed to initialize auth middleware:", err)
	}

	// Updates and deletes share the apartment lock with the rental service
	locker, err := rental.NewLocker(cfg.LockBackend, redisClient, cfg.LockTTL, cfg.LockWait)
	if err != nil {
		log.Fatal("Failed to initialize apartment locker:", err)
	}

	logger := logrus.WithField("service", "listing")
	cache := rental.NewRedisAvailabilityCache(redisClient, cfg.AvailabilityCacheTTL, logger)
	listingService := listing.NewService(db, locker, cache, logger)
	rentalService := rental.NewService(rental.NewGormStore(db), locker, rental.WithCache(cache), rental.WithLogger(logger))

	// Initialize Gin router
	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Listing service is healthy", nil)
	})

	registerRoutes(router, authMiddleware, listingService, rentalService)

	// Start server
	port := os.Getenv("LISTING_SERVICE_PORT")
	if port == "" {
		port = "8002"
	}

	logrus.Infof("Listing service starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start listing service:", err)
	}
}
