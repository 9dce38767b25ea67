package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsEachTaskRepeatedly(t *testing.T) {
	var count int32
	task := Task{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) {
			atomic.AddInt32(&count, 1)
		},
	}

	sched := New(slog.Default(), task)
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	sched.Run(ctx)

	if atomic.LoadInt32(&count) < 2 {
		t.Fatalf("got %d ticks in 40ms at a 5ms interval, want at least 2", count)
	}
}

func TestSchedulerSuppressesOverlappingTick(t *testing.T) {
	var running int32
	var maxConcurrent int32
	task := Task{
		Name:     "slow",
		Interval: 2 * time.Millisecond,
		Run: func(ctx context.Context) {
			n := atomic.AddInt32(&running, 1)
			if n > atomic.LoadInt32(&maxConcurrent) {
				atomic.StoreInt32(&maxConcurrent, n)
			}
			time.Sleep(15 * time.Millisecond)
			atomic.AddInt32(&running, -1)
		},
	}

	sched := New(slog.Default(), task)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	sched.Run(ctx)

	if atomic.LoadInt32(&maxConcurrent) > 1 {
		t.Fatalf("got %d concurrent runs of the same task, want at most 1", maxConcurrent)
	}
}
