package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-registration/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const keyPrefix = "event_lock:"

// Deletes the key only while it still carries our token, so an expired lock
// taken over by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by SET NX with a TTL and an owner token.
type Redis struct {
	Client *redis.Client
	Logger *logger.Logger

	// TTL bounds how long a crashed holder can block the event.
	TTL time.Duration
	// Wait is the longest Lock keeps retrying before giving up.
	Wait time.Duration
	// Poll is the delay between attempts.
	Poll time.Duration
}

func NewRedis(client *redis.Client, log *logger.Logger, ttl, wait time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Redis{
		Client: client,
		Logger: log,
		TTL:    ttl,
		Wait:   wait,
		Poll:   25 * time.Millisecond,
	}
}

func (r *Redis) Lock(ctx context.Context, eventID string) (Release, error) {
	key := keyPrefix + eventID
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, r.Wait)
	defer cancel()

	for {
		ok, err := r.Client.SetNX(ctx, key, token, r.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrNotAcquired
			}
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			return r.release(key, token), nil
		}
		select {
		case <-ctx.Done():
			r.Logger.Warn("LOCK", fmt.Sprintf("Timed out waiting for %s", key))
			return nil, ErrNotAcquired
		case <-time.After(r.Poll):
		}
	}
}

func (r *Redis) release(key, token string) Release {
	var once sync.Once
	return func() { once.Do(func() { r.unlock(key, token) }) }
}

func (r *Redis) unlock(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, r.Client, []string{key}, token).Err(); err != nil && err != redis.Nil {
		r.Logger.Error("LOCK", fmt.Sprintf("Failed to release %s: %v", key, err))
	}
}

// Holder returns the token currently holding the event lock, or "" when the
// event is unlocked.
func (r *Redis) Holder(ctx context.Context, eventID string) (string, error) {
	val, err := r.Client.Get(ctx, keyPrefix+eventID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}
