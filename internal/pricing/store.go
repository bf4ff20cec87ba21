package pricing

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/encoding/json"
)

// RateStore keeps the last good rates where every replica can read them.
type RateStore interface {
	Load(ctx context.Context) (Rates, time.Time, bool, error)
	Save(ctx context.Context, rates Rates, fetchedAt time.Time) error
}

const rateKey = "chainvend:rates:" + vsCurrency

type snapshot struct {
	Rates     Rates     `json:"rates"`
	FetchedAt time.Time `json:"fetched_at"`
}

type redisRateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRateStore keeps snapshots for ttl, which should be far longer than the
// in-process cache ttl: the snapshot is a fallback, not the primary cache.
func NewRedisRateStore(c *redis.Client, ttl time.Duration) RateStore {
	return &redisRateStore{client: c, ttl: ttl}
}

func (r *redisRateStore) Load(ctx context.Context) (Rates, time.Time, bool, error) {
	b, err := r.client.Get(ctx, rateKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}

	var s snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		// corrupt entry, drop it so it stops being served
		_ = r.client.Del(ctx, rateKey).Err()
		return nil, time.Time{}, false, err
	}
	return s.Rates, s.FetchedAt, len(s.Rates) > 0, nil
}

func (r *redisRateStore) Save(ctx context.Context, rates Rates, fetchedAt time.Time) error {
	b, err := json.Marshal(snapshot{Rates: rates, FetchedAt: fetchedAt})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, rateKey, b, withJitter(r.ttl, time.Second)).Err()
}

// withJitter spreads expiries so replicas do not miss together.
func withJitter(ttl, jitter time.Duration) time.Duration {
	if ttl <= 0 || jitter <= 0 {
		return ttl
	}
	return ttl + time.Duration(rand.Int63n(int64(jitter)))
}
