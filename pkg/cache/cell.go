// Package cache holds process-wide values that expire: one value, the time it was
// fetched, and how long it stays fresh.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// State says where a value returned by Cell.Get came from.
type State int

const (
	Fresh  State = iota // cached and within ttl
	Loaded              // just fetched
	Stale               // fetch failed, last good value served
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "cache"
	case Loaded:
		return "loaded"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

type entry[T any] struct {
	value     T
	fetchedAt time.Time
	ttl       time.Duration
}

func (e *entry[T]) fresh(now time.Time) bool {
	return e != nil && now.Sub(e.fetchedAt) < e.ttl
}

// Cell caches one value. Concurrent misses share a single load; a failed load falls back
// to the last good value when there is one.
type Cell[T any] struct {
	ttl time.Duration
	now func() time.Time

	mu sync.RWMutex
	e  *entry[T]

	sf singleflight.Group
}

func NewCell[T any](ttl time.Duration) *Cell[T] {
	return &Cell[T]{ttl: ttl, now: time.Now}
}

// Get returns the cached value, loading it when missing or expired.
func (c *Cell[T]) Get(ctx context.Context, load func(ctx context.Context) (T, error)) (T, State, error) {
	c.mu.RLock()
	e := c.e
	c.mu.RUnlock()
	if e.fresh(c.now()) {
		return e.value, Fresh, nil
	}

	v, err := c.load(ctx, load)
	if err == nil {
		return v, Loaded, nil
	}
	if e != nil {
		return e.value, Stale, err
	}
	var zero T
	return zero, Stale, err
}

// Refresh loads unconditionally. The cached value is kept when the load fails.
func (c *Cell[T]) Refresh(ctx context.Context, load func(ctx context.Context) (T, error)) (T, error) {
	return c.load(ctx, load)
}

// Peek returns the last good value without loading.
func (c *Cell[T]) Peek() (T, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.e == nil {
		var zero T
		return zero, time.Time{}, false
	}
	return c.e.value, c.e.fetchedAt, true
}

// Set seeds the cell, e.g. from a shared store after a restart.
func (c *Cell[T]) Set(v T, fetchedAt time.Time) {
	c.mu.Lock()
	c.e = &entry[T]{value: v, fetchedAt: fetchedAt, ttl: c.ttl}
	c.mu.Unlock()
}

func (c *Cell[T]) load(ctx context.Context, load func(ctx context.Context) (T, error)) (T, error) {
	// the shared load must not die with whichever caller happened to start it
	lctx := context.WithoutCancel(ctx)
	v, err, _ := c.sf.Do("load", func() (interface{}, error) {
		v, err := load(lctx)
		if err != nil {
			return nil, err
		}
		c.Set(v, c.now())
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
