package runlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements just enough of SET NX and the release script.
type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	err    error
	closed bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedis_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	lock := newRedis(fake, "lms-monitor:run", time.Minute)

	release, err := lock.Acquire(ctx)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, release(ctx))

	release, err = lock.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestRedis_StaleReleaseKeepsNewOwner(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	lock := newRedis(fake, "k", time.Minute)

	stale, err := lock.Acquire(ctx)
	require.NoError(t, err)

	// Simulate TTL expiry and a new owner.
	delete(fake.values, "k")
	_, err = lock.Acquire(ctx)
	require.NoError(t, err)

	require.NoError(t, stale(ctx))
	assert.Contains(t, fake.values, "k")
}

func TestRedis_BackendError(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	lock := newRedis(fake, "k", time.Minute)

	_, err := lock.Acquire(context.Background())
	assert.ErrorContains(t, err, "connection refused")
	assert.NotErrorIs(t, err, ErrLocked)

	require.NoError(t, lock.Close())
	assert.True(t, fake.closed)
}

func TestNoop(t *testing.T) {
	release, err := Noop{}.Acquire(context.Background())
	require.NoError(t, err)
	assert.NoError(t, release(context.Background()))
	assert.NoError(t, Noop{}.Close())
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not a url", "k", time.Minute)
	assert.ErrorContains(t, err, "parsing redis url")
}
