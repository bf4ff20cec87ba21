package xredis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"chainvend.com/pkg/metrics"
)

// cmdHook times every command into RedisCmdDuration. redis.Nil is a miss, not an error.
type cmdHook struct{}

func (cmdHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (cmdHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		metrics.RedisCmdDuration.WithLabelValues(cmd.Name(), status(err)).Observe(time.Since(start).Seconds())
		return err
	}
}

func (cmdHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		metrics.RedisCmdDuration.WithLabelValues("pipeline", status(err)).Observe(time.Since(start).Seconds())
		return err
	}
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, redis.Nil):
		return "miss"
	default:
		return "error"
	}
}

// Instrument attaches the latency hook.
func Instrument(rdb *redis.Client) {
	rdb.AddHook(cmdHook{})
}
