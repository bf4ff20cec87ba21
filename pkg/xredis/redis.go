package xredis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"chainvend.com/pkg/metrics"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

func NewRedis(c *Config) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     100,
		MinIdleConns: 10,
	})

	Instrument(rdb)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		panic("failed to connect redis: " + err.Error())
	}

	return rdb
}

// ReportPoolStats feeds the redis pool gauges until ctx is done.
func ReportPoolStats(ctx context.Context, rdb *redis.Client, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := rdb.PoolStats()
			metrics.RedisPoolOpen.Set(float64(st.TotalConns))
			metrics.RedisPoolIdle.Set(float64(st.IdleConns))
			metrics.RedisPoolInuse.Set(float64(st.TotalConns - st.IdleConns))
			metrics.RedisPoolWaitCount.Set(float64(st.Timeouts))
		}
	}
}
