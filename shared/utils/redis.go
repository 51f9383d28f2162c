package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-apartment-rentals/shared/models"
)

// ErrClaimsNotCached is returned when a token has no cached claims
var ErrClaimsNotCached = errors.New("claims not cached")

// ConnectRedis creates a Redis client and verifies the connection
func ConnectRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logrus.Infof("Connected to Redis at %s", addr)
	return client, nil
}

// tokenHash creates a SHA256 hash of the bearer token for use as a Redis key
func tokenHash(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func claimsKey(token string) string {
	return fmt.Sprintf("auth:claims:%s", tokenHash(token))
}

// CacheClaims stores the verified caller for token. The token itself is never stored.
func CacheClaims(ctx context.Context, client *redis.Client, token string, user *models.UserInfo, ttl time.Duration) error {
	if client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal claims: %w", err)
	}
	if err := client.Set(ctx, claimsKey(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache claims: %w", err)
	}
	return nil
}

// CachedClaims returns the caller cached for token
func CachedClaims(ctx context.Context, client *redis.Client, token string) (*models.UserInfo, error) {
	if client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	data, err := client.Get(ctx, claimsKey(token)).Bytes()
	if err == redis.Nil {
		return nil, ErrClaimsNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached claims: %w", err)
	}

	var user models.UserInfo
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached claims: %w", err)
	}
	return &user, nil
}
