// Copyright (c) 2026 BVK Chaitanya

package ttlcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGetWithinTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cache := New[string, int](&Options{Now: clock.Now})

	var nfetches int
	fetch := func(context.Context) (int, error) {
		nfetches++
		return nfetches, nil
	}

	v1, err := cache.Get(ctx, "a", 10*time.Second, fetch)
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(9 * time.Second)
	v2, err := cache.Get(ctx, "a", 10*time.Second, fetch)
	if err != nil {
		t.Fatal(err)
	}
	if nfetches != 1 {
		t.Fatalf("want 1 fetch within ttl, got %d", nfetches)
	}
	if v1 != v2 {
		t.Fatalf("want identical values within ttl, got %d and %d", v1, v2)
	}

	// Refresh happens exactly when ttl has elapsed.
	clock.Advance(time.Second)
	v3, err := cache.Get(ctx, "a", 10*time.Second, fetch)
	if err != nil {
		t.Fatal(err)
	}
	if nfetches != 2 || v3 != 2 {
		t.Fatalf("want a refresh at ttl boundary, got fetches=%d value=%d", nfetches, v3)
	}
}

func TestZeroTTLAlwaysRefreshes(t *testing.T) {
	ctx := context.Background()
	cache := New[string, int](nil)

	var nfetches int
	fetch := func(context.Context) (int, error) {
		nfetches++
		return nfetches, nil
	}
	for i := 0; i < 3; i++ {
		if _, err := cache.Get(ctx, "a", 0, fetch); err != nil {
			t.Fatal(err)
		}
	}
	if nfetches != 3 {
		t.Fatalf("want 3 fetches, got %d", nfetches)
	}
}

func TestFetchFailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cache := New[string, int](&Options{Now: clock.Now})

	errFetch := errors.New("fetch failed")
	if _, err := cache.Get(ctx, "a", time.Minute, func(context.Context) (int, error) { return 0, errFetch }); !errors.Is(err, errFetch) {
		t.Fatalf("want fetch error, got %v", err)
	}
	if _, _, ok := cache.Peek("a"); ok {
		t.Fatalf("failed fetch must not create an entry")
	}

	if _, err := cache.Get(ctx, "a", time.Minute, func(context.Context) (int, error) { return 42, nil }); err != nil {
		t.Fatal(err)
	}

	// A failed refresh keeps the last good value.
	clock.Advance(time.Minute)
	v, err := cache.Get(ctx, "a", time.Minute, func(context.Context) (int, error) { return 0, errFetch })
	if !errors.Is(err, errFetch) {
		t.Fatalf("want fetch error, got %v", err)
	}
	if v != 42 {
		t.Fatalf("want stale value 42 with the error, got %d", v)
	}
	if last, _, ok := cache.Peek("a"); !ok || last != 42 {
		t.Fatalf("want last good value to remain cached, got %d (%v)", last, ok)
	}
}

func TestConcurrentRefreshIsCollapsed(t *testing.T) {
	ctx := context.Background()
	cache := New[string, int](nil)

	var nfetches atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (int, error) {
		nfetches.Add(1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 5)
	started := make(chan struct{}, len(results))
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			v, err := cache.Get(ctx, "a", time.Minute, fetch)
			if err != nil {
				t.Error(err)
			}
			results[i] = v
		}()
	}
	for range results {
		<-started
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := nfetches.Load(); n != 1 {
		t.Fatalf("want exactly one fetch, got %d", n)
	}
	for i, v := range results {
		if v != 7 {
			t.Fatalf("result %d: want 7, got %d", i, v)
		}
	}
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	cache := New[int, string](nil)

	var nfetches int
	fetch := func(context.Context) (string, error) {
		nfetches++
		return "x", nil
	}
	cache.Get(ctx, 1, time.Hour, fetch)
	cache.Invalidate(1)
	cache.Get(ctx, 1, time.Hour, fetch)
	if nfetches != 2 {
		t.Fatalf("want a refetch after invalidate, got %d fetches", nfetches)
	}
}

func TestCancelledCallerDoesNotFailWaiters(t *testing.T) {
	cache := New[string, int](nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		close(entered)
		select {
		case <-ctx.Done():
			return 0, context.Cause(ctx)
		case <-release:
			return 9, nil
		}
	}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Get(first, "a", time.Minute, fetch)
		firstErr <- err
	}()
	<-entered

	type result struct {
		v   int
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := cache.Get(context.Background(), "a", time.Minute, fetch)
		second <- result{v, err}
	}()
	time.Sleep(10 * time.Millisecond)

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: want context.Canceled, got %v", err)
	}

	close(release)
	r := <-second
	if r.err != nil {
		t.Fatalf("waiter with live context: want no error, got %v", r.err)
	}
	if r.v != 9 {
		t.Fatalf("waiter with live context: want 9, got %d", r.v)
	}
	if v, _, ok := cache.Peek("a"); !ok || v != 9 {
		t.Fatalf("want fetched value to be cached, got %d (%v)", v, ok)
	}
}
