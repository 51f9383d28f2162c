package rental

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockTimeout is returned when the apartment lock could not be acquired in time
var ErrLockTimeout = errors.New("timed out waiting for apartment lock")

// Locker serializes read-decide-write sequences per apartment. Locks on
// different apartments never contend with each other.
type Locker interface {
	Lock(ctx context.Context, apartmentID uuid.UUID) (unlock func(), err error)
}

// LocalLocker is an in-process per-apartment lock for single-instance deployments
type LocalLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*localLock
	wait  time.Duration
}

type localLock struct {
	sem  chan struct{}
	refs int
}

// NewLocalLocker creates a new in-process locker. Callers give up after wait;
// a zero wait bounds them by their context only.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{locks: make(map[uuid.UUID]*localLock), wait: wait}
}

func (l *LocalLocker) Lock(ctx context.Context, apartmentID uuid.UUID) (func(), error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	l.mu.Lock()
	entry, ok := l.locks[apartmentID]
	if !ok {
		entry = &localLock{sem: make(chan struct{}, 1)}
		l.locks[apartmentID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(apartmentID, entry)
		return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.release(apartmentID, entry)
		})
	}, nil
}

func (l *LocalLocker) release(apartmentID uuid.UUID, entry *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, apartmentID)
	}
}

// releaseScript deletes the lock key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is a per-apartment lock shared by every service instance.
//
// The lock has a TTL so a crashed holder cannot wedge an apartment. On
// postgres the FOR UPDATE row lock taken inside the transaction still
// serializes writers if the TTL lapses mid-transaction.
type RedisLocker struct {
	client       *redis.Client
	ttl          time.Duration
	wait         time.Duration
	retryBackoff time.Duration
}

// NewRedisLocker creates a new Redis-backed locker
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		client:       client,
		ttl:          ttl,
		wait:         wait,
		retryBackoff: 10 * time.Millisecond,
	}
}

func lockKey(apartmentID uuid.UUID) string {
	return fmt.Sprintf("rental:lock:apartment:%s", apartmentID.String())
}

func (l *RedisLocker) Lock(ctx context.Context, apartmentID uuid.UUID) (func(), error) {
	key := lockKey(apartmentID)
	token := uuid.New().String()

	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
			}
			return nil, fmt.Errorf("failed to acquire lock for apartment %s: %w", apartmentID, err)
		}
		if ok {
			break
		}

		select {
		case <-time.After(l.retryBackoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: apartment %s", ErrLockTimeout, apartmentID)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
		})
	}, nil
}
