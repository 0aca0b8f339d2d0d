package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Scheduler names accepted by ByName.
const (
	NameThread = "thread"
	NameTask   = "task"
)

// ByName builds the scheduler configured under name.
func ByName(name string, logger *slog.Logger) (Scheduler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameThread, "":
		return NewThreadScheduler(logger), nil
	case NameTask:
		return NewTaskScheduler(logger), nil
	default:
		return nil, fmt.Errorf("unknown scheduler %q (want %q or %q)", name, NameThread, NameTask)
	}
}

type unit struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newUnit(ctx context.Context) *unit {
	uctx, cancel := context.WithCancel(ctx)
	return &unit{ctx: uctx, cancel: cancel, done: make(chan struct{})}
}

func (u *unit) Stop() { u.cancel() }

func (u *unit) Done() <-chan struct{} { return u.done }

func (u *unit) run(work func(ctx context.Context)) {
	defer close(u.done)
	defer u.cancel()
	work(u.ctx)
}

// stopUnits cancels every unit that has not finished yet and reports how many that was.
func stopUnits(units []Unit) int {
	stopped := 0
	for _, u := range units {
		if u == nil {
			continue
		}
		select {
		case <-u.Done():
			continue
		default:
		}
		u.Stop()
		stopped++
	}
	return stopped
}

func componentLogger(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", "scheduler", "scheduler", name)
}
