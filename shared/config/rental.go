package config

import (
	"os"
	"strconv"
	"time"
)

// Lock backends
const (
	LockBackendRedis = "redis"
	LockBackendLocal = "local"
)

// RentalConfig holds the settings shared by the rental services
type RentalConfig struct {
	LockBackend           string
	LockTTL               time.Duration
	LockWait              time.Duration
	AvailabilityCacheTTL  time.Duration
	CustomerRentalsPolicy string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	KafkaBroker       string
	RentalEventsTopic string
	JWTSecret         string

	OutboxBatchSize    int
	OutboxMaxRetries   int
	OutboxPollInterval time.Duration
	OwnerWebhookURL    string
}

// GetRentalConfig returns rental configuration from environment variables
func GetRentalConfig() *RentalConfig {
	return &RentalConfig{
		LockBackend:           getEnv("LOCK_BACKEND", LockBackendRedis),
		LockTTL:               getEnvDuration("LOCK_TTL", 10*time.Second),
		LockWait:              getEnvDuration("LOCK_WAIT", 5*time.Second),
		AvailabilityCacheTTL:  getEnvDuration("AVAILABILITY_CACHE_TTL", 30*time.Second),
		CustomerRentalsPolicy: getEnv("CUSTOMER_RENTALS_POLICY", "active"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		KafkaBroker:       getEnv("KAFKA_BROKER", "localhost:9092"),
		RentalEventsTopic: getEnv("RENTAL_EVENTS_TOPIC", "rental-events"),
		JWTSecret:         os.Getenv("JWT_SECRET"),

		OutboxBatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:   getEnvInt("OUTBOX_MAX_RETRIES", 5),
		OutboxPollInterval: getEnvDuration("OUTBOX_POLL_INTERVAL", 5*time.Second),
		OwnerWebhookURL:    os.Getenv("OWNER_WEBHOOK_URL"),
	}
}

// RedisAddr returns the host:port of the Redis server
func (c *RentalConfig) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("500ms", "2m") or plain seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}
