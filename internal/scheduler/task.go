package scheduler

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// TaskScheduler runs units as runtime-scheduled tasks and keeps track of
// them so a server can wait for stragglers on shutdown.
type TaskScheduler struct {
	group  errgroup.Group
	logger *slog.Logger
}

func NewTaskScheduler(logger *slog.Logger) *TaskScheduler {
	return &TaskScheduler{logger: componentLogger(logger, NameTask)}
}

func (s *TaskScheduler) Spawn(ctx context.Context, work func(ctx context.Context)) Unit {
	u := newUnit(ctx)
	s.group.Go(func() error {
		u.run(work)
		return nil
	})
	return u
}

// NewQueue returns an unbounded queue; Push never blocks.
func (s *TaskScheduler) NewQueue() Queue {
	return newListQueue()
}

func (s *TaskScheduler) Stop(units []Unit) {
	if n := stopUnits(units); n > 0 {
		s.logger.Debug("Stopped running tasks", "count", n)
	}
}

// Prepare drops the Connection header; the server owns connection reuse for tasks.
func (s *TaskScheduler) Prepare(h http.Header) {
	h.Del("Connection")
}

// Wait blocks until every task spawned so far has returned.
func (s *TaskScheduler) Wait() {
	_ = s.group.Wait()
}
