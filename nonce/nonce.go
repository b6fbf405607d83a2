// Copyright (c) 2026 BVK Chaitanya

// Package nonce implements a strictly increasing counter derived from the
// wall clock in milliseconds.
package nonce

import (
	"context"
	"sync"
	"time"

	"github.com/bvk/sigbot/ctxutil"
)

// Source is the interface used by exchange clients to obtain request nonces.
type Source interface {
	Next(ctx context.Context) (int64, error)
}

type Counter struct {
	mu sync.Mutex

	last int64

	now func() time.Time
}

var _ Source = &Counter{}

// New returns a counter that uses the wall clock. A nil now function defaults
// to time.Now.
func New(now func() time.Time) *Counter {
	if now == nil {
		now = time.Now
	}
	return &Counter{now: now}
}

// Next returns a value strictly larger than all previously returned values.
// When the clock hasn't advanced since the last value, it waits for a
// millisecond and retries.
func (c *Counter) Next(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		v := c.now().UnixMilli()
		if v > c.last {
			c.last = v
			return v, nil
		}
		if err := context.Cause(ctx); err != nil {
			return 0, err
		}
		ctxutil.Sleep(ctx, time.Millisecond)
	}
}
