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
	logger := logrus.WithField("service", "notifier")

	kafkaConsumer := NewKafkaConsumer(cfg.KafkaBroker, cfg.RentalEventsTopic, logger)
	defer kafkaConsumer.Close()

	breaker := utils.NewCircuitBreaker("owner-webhook", 5, time.Minute)
	notifier := NewOwnerNotifier(cfg.OwnerWebhookURL, breaker, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go kafkaConsumer.ConsumeRentalEvents(ctx, notifier)

	// Initialize Gin router
	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Notifier is healthy", notifier.GetStatus())
	})

	// Start server
	port := os.Getenv("NOTIFIER_PORT")
	if port == "" {
		port = "8004"
	}

	logrus.Infof("Notifier starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start notifier:", err)
	}
}
