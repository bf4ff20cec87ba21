package xredis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chainvend.com/pkg/logger"
)

// renew only when the key still holds our id
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLockMaster elects one leader among replicas through a SETNX key with a TTL.
// The leader renews the key on every call; a crashed leader loses it when the TTL expires.
type RedisLockMaster struct {
	rdb *redis.Client
	id  string
}

func NewRedisLockMaster(rdb *redis.Client) *RedisLockMaster {
	return &RedisLockMaster{
		rdb: rdb,
		id:  fmt.Sprintf("%s-%d", uuid.NewString(), time.Now().UnixNano()),
	}
}

func (r *RedisLockMaster) ID() string { return r.id }

// TryAcquireMaster reports whether this node holds the leader key after the call.
func (r *RedisLockMaster) TryAcquireMaster(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := r.rdb.SetNX(ctx, key, r.id, ttl).Result()
	if err != nil {
		logger.Warn(ctx, "leader lock setnx failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if ok {
		return true
	}

	renewed, err := renewScript.Run(ctx, r.rdb, []string{key}, r.id, ttl.Milliseconds()).Int()
	if err != nil {
		logger.Warn(ctx, "leader lock renew failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return renewed == 1
}

// Release drops the key if this node still owns it.
func (r *RedisLockMaster) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, r.rdb, []string{key}, r.id).Err()
}
