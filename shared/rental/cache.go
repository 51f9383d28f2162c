package rental

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AvailabilityCache holds a possibly stale availability flag per apartment.
// It serves display reads only; rent and cancel never consult it.
//
// A reader takes a Generation before loading from the database and hands it
// to Set. Invalidate moves the generation on, so a value computed before an
// invalidation is dropped instead of cached.
type AvailabilityCache interface {
	Get(ctx context.Context, apartmentID uuid.UUID) (available bool, ok bool)
	Generation(ctx context.Context, apartmentID uuid.UUID) int64
	Set(ctx context.Context, apartmentID uuid.UUID, available bool, generation int64)
	Invalidate(ctx context.Context, apartmentID uuid.UUID)
}

// NoGeneration makes Set a no-op
const NoGeneration int64 = -1

type noopCache struct{}

func (noopCache) Get(context.Context, uuid.UUID) (bool, bool) { return false, false }
func (noopCache) Generation(context.Context, uuid.UUID) int64 { return NoGeneration }
func (noopCache) Set(context.Context, uuid.UUID, bool, int64) {}
func (noopCache) Invalidate(context.Context, uuid.UUID)       {}

// generationTTL outlives any read-model computation by a wide margin
const generationTTL = 24 * time.Hour

// setIfGenerationScript writes the flag only while the generation key still
// holds the value the reader saw.
var setIfGenerationScript = redis.NewScript(`
local current = redis.call("get", KEYS[2]) or "0"
if current ~= ARGV[2] then
	return 0
end
redis.call("set", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

// RedisAvailabilityCache stores availability flags in Redis with a TTL.
// Cache failures are logged and otherwise ignored.
type RedisAvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
	log    logrus.FieldLogger
}

// NewRedisAvailabilityCache creates a new Redis-backed availability cache
func NewRedisAvailabilityCache(client *redis.Client, ttl time.Duration, log logrus.FieldLogger) *RedisAvailabilityCache {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisAvailabilityCache{client: client, ttl: ttl, log: log}
}

func availabilityKey(apartmentID uuid.UUID) string {
	return fmt.Sprintf("rental:availability:%s", apartmentID.String())
}

func generationKey(apartmentID uuid.UUID) string {
	return fmt.Sprintf("rental:availability:%s:gen", apartmentID.String())
}

func (c *RedisAvailabilityCache) Get(ctx context.Context, apartmentID uuid.UUID) (bool, bool) {
	val, err := c.client.Get(ctx, availabilityKey(apartmentID)).Result()
	if err == redis.Nil {
		return false, false
	}
	if err != nil {
		c.log.WithError(err).WithField("apartment_id", apartmentID).Debug("availability cache read failed")
		return false, false
	}
	return val == "1", true
}

func (c *RedisAvailabilityCache) Generation(ctx context.Context, apartmentID uuid.UUID) int64 {
	gen, err := c.client.Get(ctx, generationKey(apartmentID)).Int64()
	if err == redis.Nil {
		return 0
	}
	if err != nil {
		c.log.WithError(err).WithField("apartment_id", apartmentID).Debug("availability generation read failed")
		return NoGeneration
	}
	return gen
}

func (c *RedisAvailabilityCache) Set(ctx context.Context, apartmentID uuid.UUID, available bool, generation int64) {
	if generation == NoGeneration {
		return
	}
	val := "0"
	if available {
		val = "1"
	}
	keys := []string{availabilityKey(apartmentID), generationKey(apartmentID)}
	err := setIfGenerationScript.Run(ctx, c.client, keys, val, generation, c.ttl.Milliseconds()).Err()
	if err != nil {
		c.log.WithError(err).WithField("apartment_id", apartmentID).Debug("availability cache write failed")
	}
}

func (c *RedisAvailabilityCache) Invalidate(ctx context.Context, apartmentID uuid.UUID) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(apartmentID))
		pipe.Expire(ctx, generationKey(apartmentID), generationTTL)
		pipe.Del(ctx, availabilityKey(apartmentID))
		return nil
	})
	if err != nil {
		c.log.WithError(err).WithField("apartment_id", apartmentID).Warn("availability cache invalidation failed")
	}
}
