package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-apartment-rentals/shared/config"
	"github.com/pavitra93/go-apartment-rentals/shared/utils"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	cfg := config.GetRentalConfig()

	// Initialize database
	db, err := config.ConnectDatabase()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := config.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	publisher := NewKafkaPublisher(cfg.KafkaBroker, cfg.RentalEventsTopic)
	defer publisher.Close()

	breaker := utils.NewCircuitBreaker("kafka-rental-events", 5, 30*time.Second)
	relay := NewRelay(db, publisher, breaker, cfg.OutboxMaxRetries, cfg.OutboxBatchSize, cfg.OutboxPollInterval,
		logrus.WithField("service", "outbox-relay"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start relay in background
	go relay.Run(ctx)

	// Initialize Gin router
	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Outbox relay is healthy", breaker.Stats())
	})

	// Outbox statistics endpoint
	router.GET("/stats", func(c *gin.Context) {
		stats, err := relay.Stats(c.Request.Context())
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to fetch outbox stats")
			return
		}
		utils.OKResponse(c, "Outbox stats retrieved successfully", gin.H{
			"outbox":  stats,
			"circuit": breaker.Stats(),
			"config": gin.H{
				"max_retries":   cfg.OutboxMaxRetries,
				"batch_size":    cfg.OutboxBatchSize,
				"poll_interval": cfg.OutboxPollInterval.String(),
				"topic":         cfg.RentalEventsTopic,
			},
		})
	})

	// Start HTTP server
	port := os.Getenv("OUTBOX_RELAY_PORT")
	if port == "" {
		port = "8085"
	}

	logrus.Infof("Outbox relay starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start outbox relay:", err)
	}
}
