package infra

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs named periodic tasks, each on its own goroutine.
// Tasks are cancellable one by one; Stop cancels all of them and waits.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	tasks map[string]*task
	wg    sync.WaitGroup
}

type task struct {
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler whose tasks end when ctx is cancelled.
func NewScheduler(ctx context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*task),
	}
}

// Every runs fn on a fixed interval. Scheduling a task under an existing
// name replaces the previous one.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) (cancel func()) {
	return s.spawn(name, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	})
}

// Jittered runs fn repeatedly, waiting next() before each run. It suits
// feeds whose cadence is drawn from a random range.
func (s *Scheduler) Jittered(name string, next func() time.Duration, fn func()) (cancel func()) {
	return s.spawn(name, func(ctx context.Context) {
		timer := time.NewTimer(next())
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				fn()
				timer.Reset(next())
			}
		}
	})
}

func (s *Scheduler) spawn(name string, loop func(ctx context.Context)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.tasks[name]; ok {
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{cancel: cancel}
	s.tasks[name] = t

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		slog.Debug("Scheduler task started", slog.String("task", name))
		loop(ctx)
		slog.Debug("Scheduler task stopped", slog.String("task", name))
	}()

	return func() {
		cancel()
		s.mu.Lock()
		// The slot may already belong to a replacement task.
		if s.tasks[name] == t {
			delete(s.tasks, name)
		}
		s.mu.Unlock()
	}
}

// Stop cancels every task and waits for their goroutines to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.mu.Lock()
	s.tasks = make(map[string]*task)
	s.mu.Unlock()
	s.wg.Wait()
}

// Len returns the number of scheduled tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
