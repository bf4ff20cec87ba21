package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainvend.com/pkg/ratelimit"
)

func TestPool_FallsBackInOrder(t *testing.T) {
	p := NewPool(Ethereum, []string{"https://a", "https://b", "https://c"}, PoolOptions{})
	var seen []string
	err := p.Do(context.Background(), "0x1", func(_ context.Context, ep string) error {
		seen = append(seen, ep)
		if ep == "https://b" {
			return nil
		}
		return errors.New("503")
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a", "https://b"}, seen, "stops at first success, c untouched")
}

func TestPool_AllFail(t *testing.T) {
	p := NewPool(Bitcoin, []string{"https://a", "https://b"}, PoolOptions{})
	boom := errors.New("connection refused")
	err := p.Do(context.Background(), "tx", func(context.Context, string) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsNotFound(err))
}

func TestPool_NotFoundWinsOverTransportErrors(t *testing.T) {
	p := NewPool(Solana, []string{"https://a", "https://b"}, PoolOptions{})
	calls := 0
	err := p.Do(context.Background(), "sig", func(_ context.Context, ep string) error {
		calls++
		if ep == "https://a" {
			return NotFound("sig")
		}
		return errors.New("timeout")
	})
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 2, calls, "not found on one node still asks the next")
}

func TestPool_AttemptTimeout(t *testing.T) {
	p := NewPool(Stellar, []string{"https://slow", "https://fast"}, PoolOptions{AttemptTimeout: 20 * time.Millisecond})
	err := p.Do(context.Background(), "h", func(ctx context.Context, ep string) error {
		if ep == "https://slow" {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestPool_OpenBreakerSkipsEndpoint(t *testing.T) {
	breakers := ratelimit.NewManager("test", ratelimit.Rule{TripConsecutiveFailures: 1, Timeout: time.Minute}, nil)
	p := NewPool(Polkadot, []string{"https://a", "https://b"}, PoolOptions{Breakers: breakers})

	_ = p.Do(context.Background(), "h", func(_ context.Context, ep string) error {
		if ep == "https://a" {
			return errors.New("500")
		}
		return nil
	})

	var seen []string
	require.NoError(t, p.Do(context.Background(), "h", func(_ context.Context, ep string) error {
		seen = append(seen, ep)
		return nil
	}))
	assert.Equal(t, []string{"https://b"}, seen)
}

func TestPool_NoEndpoints(t *testing.T) {
	err := NewPool(Starknet, nil, PoolOptions{}).Do(context.Background(), "h", nil)
	assert.ErrorIs(t, err, ErrNoEndpoints)
}
