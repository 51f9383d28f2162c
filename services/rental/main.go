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
	"github.com/pavitra93/go-apartment-rentals/shared/rental"
	"github.com/pavitra93/go-apartment-rentals/shared/utils"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	cfg := config.GetRentalConfig()

	// Redis backs the apartment lock, the availability cache and the claim cache
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

	locker, err := rental.NewLocker(cfg.LockBackend, redisClient, cfg.LockTTL, cfg.LockWait)
	if err != nil {
		log.Fatal("Failed to initialize apartment locker:", err)
	}

	defaultPolicy, err := rental.ParseInclusionPolicy(cfg.CustomerRentalsPolicy, rental.IncludeActive)
	if err != nil {
		log.Fatal("Invalid CUSTOMER_RENTALS_POLICY:", err)
	}

	logger := logrus.WithField("service", "rental")
	svc := rental.NewService(
		rental.NewGormStore(db),
		locker,
		rental.WithCache(rental.NewRedisAvailabilityCache(redisClient, cfg.AvailabilityCacheTTL, logger)),
		rental.WithLogger(logger),
	)

	// Initialize Gin router
	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Rental service is healthy", nil)
	})

	registerRoutes(router, authMiddleware, svc, defaultPolicy)

	// Start server
	port := os.Getenv("RENTAL_SERVICE_PORT")
	if port == "" {
		port = "8003"
	}

	logrus.Infof("Rental service starting on port %s (lock backend: %s)", port, cfg.LockBackend)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start rental service:", err)
	}
}
