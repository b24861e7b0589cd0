package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc"
)

// finalRunTimeout bounds the last run of a task after shutdown starts
const finalRunTimeout = 10 * time.Second

// Task is a periodic background job
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error

	// RunOnStop runs the task once more after ctx is cancelled, so queued
	// work is not lost on shutdown
	RunOnStop bool
}

// Scheduler runs tasks on their own tickers
type Scheduler struct {
	logger *slog.Logger
	wg     conc.WaitGroup
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger.With("component", "worker")}
}

// Start launches every task. They stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, tasks ...Task) {
	for _, t := range tasks {
		s.wg.Go(func() { s.run(ctx, t) })
		s.logger.Info("worker started", "task", t.Name, "interval", t.Interval)
	}
}

// Wait blocks until every task has returned
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if t.RunOnStop {
				fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalRunTimeout)
				s.exec(fctx, t)
				cancel()
			}
			s.logger.Info("worker stopped", "task", t.Name)
			return
		case <-ticker.C:
			s.exec(ctx, t)
		}
	}
}

func (s *Scheduler) exec(ctx context.Context, t Task) {
	if err := t.Run(ctx); err != nil {
		s.logger.Error("worker run failed", "task", t.Name, "error", err)
	}
}
