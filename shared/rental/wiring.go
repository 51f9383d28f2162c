package rental

import (
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// NewLocker builds the locker for backend ("redis" or "local"). The local
// backend is only correct when a single process serves every write.
func NewLocker(backend string, client *redis.Client, ttl, wait time.Duration) (Locker, error) {
	switch backend {
	case "local":
		return NewLocalLocker(wait), nil
	case "redis", "":
		if client == nil {
			return nil, fmt.Errorf("lock backend %q requires a Redis client", backend)
		}
		return NewRedisLocker(client, ttl, wait), nil
	}
	return nil, fmt.Errorf("unknown lock backend %q", backend)
}
