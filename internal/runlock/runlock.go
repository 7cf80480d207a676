// Package runlock keeps two monitoring runs from sharing a portal
// session or racing on the dedup store.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned by Acquire when another run holds the lock.
var ErrLocked = errors.New("another monitoring run holds the lock")

// Release gives the lock back.
type Release func(ctx context.Context) error

// Locker hands out the run lock.
type Locker interface {
	Acquire(ctx context.Context) (Release, error)
	Close() error
}

// Noop always succeeds. It is used when no lock backend is configured
// and the schedule itself guarantees runs never overlap.
type Noop struct{}

func (Noop) Acquire(context.Context) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

func (Noop) Close() error { return nil }

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// releaseScript deletes the key only while it still holds our token, so
// a run that outlived its TTL cannot free a lock taken by its successor.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Redis is a single-instance Redis lock with a TTL.
type Redis struct {
	client redisClient
	key    string
	ttl    time.Duration
}

// NewRedis connects to redisURL and checks the connection.
func NewRedis(ctx context.Context, redisURL, key string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return newRedis(client, key, ttl), nil
}

func newRedis(client redisClient, key string, ttl time.Duration) *Redis {
	return &Redis{client: client, key: key, ttl: ttl}
}

// Acquire takes the lock or returns ErrLocked.
func (r *Redis) Acquire(ctx context.Context) (Release, error) {
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", r.key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return func(ctx context.Context) error {
		if err := r.client.Eval(ctx, releaseScript, []string{r.key}, token).Err(); err != nil {
			return fmt.Errorf("releasing lock %s: %w", r.key, err)
		}
		return nil
	}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
