package scheduler

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
)

// DefaultQueueSize bounds ThreadScheduler queues. Producers block once it is reached.
const DefaultQueueSize = 64

// ThreadScheduler runs each unit on a dedicated OS thread.
type ThreadScheduler struct {
	QueueSize int
	logger    *slog.Logger
}

func NewThreadScheduler(logger *slog.Logger) *ThreadScheduler {
	return &ThreadScheduler{
		QueueSize: DefaultQueueSize,
		logger:    componentLogger(logger, NameThread),
	}
}

func (s *ThreadScheduler) Spawn(ctx context.Context, work func(ctx context.Context)) Unit {
	u := newUnit(ctx)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		u.run(work)
	}()
	return u
}

func (s *ThreadScheduler) NewQueue() Queue {
	size := s.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	return newChanQueue(size)
}

func (s *ThreadScheduler) Stop(units []Unit) {
	if n := stopUnits(units); n > 0 {
		s.logger.Debug("Stopped running units", "count", n)
	}
}

// Prepare leaves the headers alone; a thread per stream keeps the HTTP/1.1 connection itself.
func (s *ThreadScheduler) Prepare(http.Header) {}
