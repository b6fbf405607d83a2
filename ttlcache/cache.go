// Copyright (c) 2026 BVK Chaitanya

// Package ttlcache implements a keyed value cache where every value is
// refreshed lazily from a caller supplied fetch function once its
// time-to-live has elapsed.
//
// A value is refreshed if and only if `now >= lastRefresh + ttl`. Failed
// fetches are never cached; the previous value, if any, stays in place and is
// returned along with the fetch error.
//
// Concurrent refreshes of the same key are collapsed so that only one fetch is
// in flight per key. Other callers wait for its result.
package ttlcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type FetchFunc[V any] func(ctx context.Context) (V, error)

type Options struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

func (v *Options) setDefaults() {
	if v.Now == nil {
		v.Now = time.Now
	}
}

type entry[V any] struct {
	value     V
	refreshed time.Time
}

type Cache[K comparable, V any] struct {
	opts Options

	group singleflight.Group

	mu sync.Mutex

	entryMap map[K]*entry[V]
}

func New[K comparable, V any](opts *Options) *Cache[K, V] {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	return &Cache[K, V]{
		opts:     *opts,
		entryMap: make(map[K]*entry[V]),
	}
}

// lookup returns the cached value if it is younger than the ttl.
func (c *Cache[K, V]) lookup(key K, ttl time.Duration) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.entryMap[key]; ok && c.opts.Now().Before(last.refreshed.Add(ttl)) {
		return last.value, true
	}
	var zero V
	return zero, false
}

// Get returns the cached value for the key if it is younger than the ttl.
// Otherwise, value is refreshed using the fetch function.
//
// The fetch runs detached from the caller's cancellation because other
// callers may be waiting on it. A caller whose context is done returns
// early with the context's cause.
func (c *Cache[K, V]) Get(ctx context.Context, key K, ttl time.Duration, fetch FetchFunc[V]) (V, error) {
	if v, ok := c.lookup(key, ttl); ok {
		return v, nil
	}

	fctx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(fmt.Sprintf("%#v", key), func() (any, error) {
		// Another flight may have refreshed the value in between.
		if v, ok := c.lookup(key, ttl); ok {
			return v, nil
		}

		value, err := fetch(fctx)

		c.mu.Lock()
		defer c.mu.Unlock()

		if err == nil {
			c.entryMap[key] = &entry[V]{value: value, refreshed: c.opts.Now()}
		} else if last, ok := c.entryMap[key]; ok {
			value = last.value
		}
		return value, err
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, context.Cause(ctx)
	case r := <-ch:
		v, _ := r.Val.(V)
		return v, r.Err
	}
}

// Peek returns the cached value and its refresh time without refreshing it.
func (c *Cache[K, V]) Peek(key K) (value V, refreshed time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entryMap[key]; ok {
		return e.value, e.refreshed, true
	}
	return value, refreshed, false
}

// Invalidate drops the cached value so that next Get refreshes it.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entryMap, key)
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entryMap)
}
