// Copyright (c) 2026 BVK Chaitanya

package scheduler

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bvk/sigbot/event"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition is not met in %s", timeout)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSchedule(t *testing.T) {
	s := New()
	defer s.Close()

	var count atomic.Int32
	if err := s.Schedule("count", 5*time.Millisecond, func(ctx context.Context) { count.Add(1) }); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return count.Load() >= 3 })

	if err := s.Schedule("count", time.Second, func(ctx context.Context) {}); !errors.Is(err, os.ErrExist) {
		t.Fatalf("want ErrExist for duplicate task, got %v", err)
	}
	if err := s.Schedule("zero", 0, func(ctx context.Context) {}); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want ErrInvalid for zero interval, got %v", err)
	}
}

func TestReschedule(t *testing.T) {
	s := New()
	defer s.Close()

	var count atomic.Int32
	if err := s.Schedule("task", time.Hour, func(ctx context.Context) { count.Add(1) }); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if n := count.Load(); n != 0 {
		t.Fatalf("want no runs before the first interval, got %d", n)
	}

	if err := s.Reschedule("task", 5*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return count.Load() >= 2 })

	if d, err := s.Interval("task"); err != nil || d != 5*time.Millisecond {
		t.Fatalf("want new interval, got %s, %v", d, err)
	}
	if err := s.Reschedule("missing", time.Second); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want ErrNotExist, got %v", err)
	}
}

func TestRescheduleWaitsForRunningTask(t *testing.T) {
	s := New()
	defer s.Close()

	started := make(chan struct{}, 1)
	var running, overlap atomic.Int32
	body := func(ctx context.Context) {
		if running.Add(1) > 1 {
			overlap.Add(1)
		}
		select {
		case started <- struct{}{}:
		default:
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
	}
	if err := s.Schedule("slow", time.Millisecond, body); err != nil {
		t.Fatal(err)
	}
	<-started
	if err := s.Reschedule("slow", 2*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if n := running.Load(); n != 0 {
		t.Fatalf("want running task to complete before reschedule returns")
	}
	time.Sleep(50 * time.Millisecond)
	if n := overlap.Load(); n != 0 {
		t.Fatalf("task bodies must not overlap, got %d overlaps", n)
	}
}

func TestCancel(t *testing.T) {
	s := New()
	defer s.Close()

	var count atomic.Int32
	if err := s.Schedule("task", time.Millisecond, func(ctx context.Context) { count.Add(1) }); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return count.Load() >= 1 })
	if err := s.Cancel("task"); err != nil {
		t.Fatal(err)
	}
	n := count.Load()
	time.Sleep(20 * time.Millisecond)
	if m := count.Load(); m != n {
		t.Fatalf("canceled task ran %d more times", m-n)
	}
	if names := s.Tasks(); len(names) != 0 {
		t.Fatalf("want no tasks, got %v", names)
	}
}

func TestHandleEvent(t *testing.T) {
	s := New()
	defer s.Close()

	if err := s.Schedule("stoploss-poll", time.Hour, func(ctx context.Context) {}); err != nil {
		t.Fatal(err)
	}
	s.Bind("stoploss-poll-interval", "stoploss-poll")

	s.HandleEvent(event.ExpirationChanged{Name: "ticker-ttl", Value: time.Minute})
	if d, _ := s.Interval("stoploss-poll"); d != time.Hour {
		t.Fatalf("unbound settings must not reschedule, got %s", d)
	}
	s.HandleEvent(event.ExpirationChanged{Name: "stoploss-poll-interval", Value: time.Minute})
	if d, _ := s.Interval("stoploss-poll"); d != time.Minute {
		t.Fatalf("want one minute interval, got %s", d)
	}
}

func TestClose(t *testing.T) {
	s := New()

	var canceled atomic.Bool
	started := make(chan struct{})
	var once atomic.Bool
	body := func(ctx context.Context) {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		<-ctx.Done()
		canceled.Store(true)
	}
	if err := s.Schedule("task", time.Millisecond, body); err != nil {
		t.Fatal(err)
	}
	<-started
	s.Close()
	if !canceled.Load() {
		t.Fatalf("close must cancel and wait for the running task")
	}
	if err := s.Schedule("other", time.Second, body); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("want ErrClosed after close, got %v", err)
	}
}
