package dispatch

import (
	"errors"
	"log/slog"
	"time"

	"github.com/mattjoyce/stardispatch/internal/log"
	"github.com/mattjoyce/stardispatch/internal/metrics"
	"github.com/mattjoyce/stardispatch/internal/scheduler"
	"github.com/mattjoyce/stardispatch/internal/wire"
)

// DefaultHeartbeat is the liveness probe interval used by DefaultConfig.
const DefaultHeartbeat = 3 * time.Second

// ErrorHandler receives application errors. The configured handler is the
// first OnError callback of every dispatcher.
type ErrorHandler func(logger *slog.Logger, err error)

// FinalizeFunc hands the finished response representation back to the
// surrounding framework.
type FinalizeFunc func(view wire.ViewContext, resp *Response)

// Config is built once at startup and shared by every dispatcher.
type Config struct {
	Scheduler scheduler.Scheduler
	// Heartbeat is the probe interval. Zero disables the heartbeat.
	Heartbeat    time.Duration
	ErrorHandler ErrorHandler
	Finalize     FinalizeFunc
	Logger       *slog.Logger
	Metrics      *metrics.Dispatch
}

// DefaultConfig uses the thread scheduler, a 3s heartbeat and the logging error handler.
func DefaultConfig() Config {
	return Config{
		Scheduler:    scheduler.NewThreadScheduler(log.WithComponent("scheduler")),
		Heartbeat:    DefaultHeartbeat,
		ErrorHandler: LogError,
	}
}

func (c Config) validate() error {
	if c.Heartbeat < 0 {
		return &ConfigurationError{Field: "heartbeat", Reason: "must be a positive duration or zero to disable"}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Scheduler == nil {
		c.Scheduler = scheduler.NewThreadScheduler(log.WithComponent("scheduler"))
	}
	if c.ErrorHandler == nil {
		c.ErrorHandler = LogError
	}
	return c
}

// LogError is the default ErrorHandler. It logs the error type and message,
// plus the stack when the error is a recovered panic.
func LogError(logger *slog.Logger, err error) {
	attrs := []any{"error", err.Error(), "error_type", errorType(err)}
	var pe *PanicError
	if errors.As(err, &pe) {
		attrs = append(attrs, "stack", string(pe.Stack))
	}
	logger.Error("streamer failed", attrs...)
}
