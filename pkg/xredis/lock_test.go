package xredis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisLockMaster_SingleLeader(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	const key = "chainvend:monitor:leader"

	a := NewRedisLockMaster(rdb)
	b := NewRedisLockMaster(rdb)
	require.NotEqual(t, a.ID(), b.ID())

	assert.True(t, a.TryAcquireMaster(ctx, key, 5*time.Second))
	assert.False(t, b.TryAcquireMaster(ctx, key, 5*time.Second))
	// leader keeps it on renew
	assert.True(t, a.TryAcquireMaster(ctx, key, 5*time.Second))

	mr.FastForward(6 * time.Second)
	assert.True(t, b.TryAcquireMaster(ctx, key, 5*time.Second), "expired key is up for grabs")
	assert.False(t, a.TryAcquireMaster(ctx, key, 5*time.Second))
}

func TestRedisLockMaster_ReleaseOnlyOwn(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	const key = "lock"

	a := NewRedisLockMaster(rdb)
	b := NewRedisLockMaster(rdb)
	require.True(t, a.TryAcquireMaster(ctx, key, time.Minute))

	require.NoError(t, b.Release(ctx, key))
	assert.True(t, mr.Exists(key), "non-owner release must not delete")

	require.NoError(t, a.Release(ctx, key))
	assert.False(t, mr.Exists(key))
}
