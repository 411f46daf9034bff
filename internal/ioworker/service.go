// Package ioworker is the AsyncTaskService named in spec §5: a bounded
// pool that runs blocking filesystem work (watch-dir scans, metainfo
// reads, blocklist parses, disk-space probes) off the Engine Thread.
package ioworker

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Task is one unit of blocking I/O work.
type Task func(ctx context.Context) error

// Service bounds how many Tasks run concurrently, using a weighted
// semaphore rather than a fixed goroutine pool so a burst of small
// tasks (e.g. one blocklist parse) doesn't have to wait behind a
// long-running one occupying a pool slot it doesn't need.
type Service struct {
	sem *semaphore.Weighted
	log *zap.Logger
}

// New returns a Service that runs at most maxConcurrency Tasks at once.
func New(maxConcurrency int64, log *zap.Logger) *Service {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Service{sem: semaphore.NewWeighted(maxConcurrency), log: log}
}

// Submit never blocks its caller: it hands fn off to a goroutine that
// waits for a free slot before running it, or drops it if ctx is
// cancelled first. name is used only for logging a failure. Callers on
// the Engine Thread depend on this — acquiring the semaphore inline
// here would stall command/alert draining any time every worker slot
// is already busy.
func (s *Service) Submit(ctx context.Context, name string, fn Task) {
	go func() {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.log.Debug("io task not scheduled, context done", zap.String("task", name), zap.Error(err))
			return
		}
		defer s.sem.Release(1)
		if err := fn(ctx); err != nil {
			s.log.Warn("io task failed", zap.String("task", name), zap.Error(err))
		}
	}()
}
