// Copyright (c) 2026 BVK Chaitanya

// Package scheduler runs named periodic tasks whose intervals can be changed
// at runtime.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/bvk/sigbot/ctxutil"
	"github.com/bvk/sigbot/event"
)

// Func is the body of a periodic task. Context is canceled only when the
// scheduler is closed; rescheduling doesn't interrupt a running task.
type Func func(ctx context.Context)

type task struct {
	name     string
	interval time.Duration
	fn       Func

	stop context.CancelCauseFunc
	done chan struct{}
}

// Scheduler runs every task on its own goroutine. Task bodies must not call
// the scheduler methods.
type Scheduler struct {
	mu sync.Mutex

	cg ctxutil.CloseGroup

	taskMap map[string]*task

	// settingMap maps a setting name to the task whose interval is
	// controlled by the setting.
	settingMap map[string]string
}

func New() *Scheduler {
	return &Scheduler{
		taskMap:    make(map[string]*task),
		settingMap: make(map[string]string),
	}
}

// Close stops all tasks and waits for the running task bodies to finish.
func (s *Scheduler) Close() {
	s.cg.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.taskMap)
}

// Schedule starts a new periodic task. First run happens after one interval.
func (s *Scheduler) Schedule(name string, interval time.Duration, fn Func) error {
	if interval <= 0 {
		return fmt.Errorf("task %q interval %s must be positive: %w", name, interval, os.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if context.Cause(s.cg.Context()) != nil {
		return os.ErrClosed
	}
	if _, ok := s.taskMap[name]; ok {
		return fmt.Errorf("task %q: %w", name, os.ErrExist)
	}
	t := &task{name: name, interval: interval, fn: fn}
	s.start(t)
	s.taskMap[name] = t
	slog.Info("scheduled periodic task", "task", name, "interval", interval)
	return nil
}

func (s *Scheduler) start(t *task) {
	ctx, cancel := context.WithCancelCause(s.cg.Context())
	t.stop = cancel
	t.done = make(chan struct{})

	interval, fn, done := t.interval, t.fn, t.done
	s.cg.Go(func(gctx context.Context) {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if ctx.Err() != nil {
				return
			}
			fn(gctx)
		}
	})
}

// Reschedule changes the interval of a task. A running task body completes
// before the new interval takes effect.
func (s *Scheduler) Reschedule(name string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("task %q interval %s must be positive: %w", name, interval, os.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.taskMap[name]
	if !ok {
		return fmt.Errorf("task %q: %w", name, os.ErrNotExist)
	}
	if t.interval == interval {
		return nil
	}
	t.stop(os.ErrClosed)
	<-t.done

	t.interval = interval
	s.start(t)
	slog.Info("rescheduled periodic task", "task", name, "interval", interval)
	return nil
}

// Cancel stops a task. Running task body is not interrupted.
func (s *Scheduler) Cancel(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.taskMap[name]
	if !ok {
		return fmt.Errorf("task %q: %w", name, os.ErrNotExist)
	}
	t.stop(os.ErrClosed)
	<-t.done
	delete(s.taskMap, name)
	slog.Info("canceled periodic task", "task", name)
	return nil
}

// Interval returns the current interval of a task.
func (s *Scheduler) Interval(name string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.taskMap[name]
	if !ok {
		return 0, fmt.Errorf("task %q: %w", name, os.ErrNotExist)
	}
	return t.interval, nil
}

// Tasks returns the sorted names of all scheduled tasks.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for name := range s.taskMap {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Bind ties the interval of a task to a duration setting. Interval is
// updated when an ExpirationChanged event is received for the setting.
func (s *Scheduler) Bind(setting, taskName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settingMap[setting] = taskName
}

// HandleEvent reschedules the tasks bound to the changed setting.
func (s *Scheduler) HandleEvent(e event.Event) {
	v, ok := e.(event.ExpirationChanged)
	if !ok {
		return
	}

	s.mu.Lock()
	name, ok := s.settingMap[v.Name]
	s.mu.Unlock()

	if !ok {
		return
	}
	if err := s.Reschedule(name, v.Value); err != nil {
		slog.Warn("could not reschedule task on setting change", "task", name, "setting", v.Name, "err", err)
	}
}
