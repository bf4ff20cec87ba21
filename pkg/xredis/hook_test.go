package xredis

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainvend.com/pkg/metrics"
)

func TestInstrument_CountsMissSeparately(t *testing.T) {
	_, rdb := newTestRedis(t)
	Instrument(rdb)
	ctx := context.Background()

	before := testutil.CollectAndCount(metrics.RedisCmdDuration)
	require.NoError(t, rdb.Set(ctx, "rates", "x", 0).Err())
	assert.ErrorIs(t, rdb.Get(ctx, "missing").Err(), redis.Nil)

	assert.GreaterOrEqual(t, testutil.CollectAndCount(metrics.RedisCmdDuration), before+2)
	assert.Equal(t, "miss", status(redis.Nil))
	assert.Equal(t, "ok", status(nil))
}
