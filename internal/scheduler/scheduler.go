package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// Task is one periodic job driven by Scheduler.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Scheduler runs a fixed set of named periodic tasks on independent
// tickers, suppressing an overlapping tick for the same task rather than
// letting two instances run concurrently, mirroring a job runner's
// max_instances=1 semantics.
type Scheduler struct {
	tasks  []Task
	logger *slog.Logger
	group  singleflight.Group
}

func New(logger *slog.Logger, tasks ...Task) *Scheduler {
	return &Scheduler{tasks: tasks, logger: logger}
}

func (s *Scheduler) Run(ctx context.Context) {
	for _, task := range s.tasks {
		go s.runTask(ctx, task)
	}
	<-ctx.Done()
}

func (s *Scheduler) runTask(ctx context.Context, task Task) {
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, task)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, task Task) {
	_, err, _ := s.group.Do(task.Name, func() (interface{}, error) {
		task.Run(ctx)
		return nil, nil
	})
	if err != nil {
		s.logger.Warn("scheduler: task failed", slog.String("task", task.Name), slog.String("error", err.Error()))
	}
}
