package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
)

type notFound struct{}

func (notFound) Error() string  { return "not found" }
func (notFound) Expected() bool { return true }

func TestManager_TripsOnConsecutiveFailures(t *testing.T) {
	m := NewManager("test", Rule{TripConsecutiveFailures: 2, Timeout: time.Minute}, nil)
	down := errors.New("502 bad gateway")

	assert.ErrorIs(t, m.Execute("rpc-a", func() error { return down }), down)
	assert.ErrorIs(t, m.Execute("rpc-a", func() error { return down }), down)

	called := false
	err := m.Execute("rpc-a", func() error { called = true; return nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.True(t, IsRejected(err))
	assert.False(t, called)

	// other keys are independent
	assert.NoError(t, m.Execute("rpc-b", func() error { return nil }))
}

func TestManager_ExpectedErrorsDoNotTrip(t *testing.T) {
	m := NewManager("test", Rule{TripConsecutiveFailures: 1, Timeout: time.Minute}, nil)

	for i := 0; i < 3; i++ {
		err := m.Execute("rpc", func() error { return notFound{} })
		assert.EqualError(t, err, "not found")
	}
	assert.NoError(t, m.Execute("rpc", func() error { return nil }))
	assert.Equal(t, gobreaker.StateClosed, m.Get("rpc").State())
}

func TestIsSuccessfulForBreaker(t *testing.T) {
	assert.True(t, isSuccessfulForBreaker(nil))
	assert.True(t, isSuccessfulForBreaker(context.Canceled))
	assert.True(t, isSuccessfulForBreaker(notFound{}))
	assert.False(t, isSuccessfulForBreaker(context.DeadlineExceeded))
}
