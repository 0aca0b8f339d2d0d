package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/mattjoyce/stardispatch/internal/dispatch"
	"github.com/mattjoyce/stardispatch/internal/scheduler"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func fieldError(field, reason string) error {
	return &dispatch.ConfigurationError{Field: field, Reason: reason}
}

// validate checks a fully defaulted config.
func validate(cfg *Config) error {
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fieldError("service.log_level", fmt.Sprintf("must be one of debug, info, warn, error (got %q)", cfg.Service.LogLevel))
	}

	if cfg.API.Enabled {
		if _, _, err := net.SplitHostPort(cfg.API.Listen); err != nil {
			return fieldError("api.listen", fmt.Sprintf("must be host:port (got %q)", cfg.API.Listen))
		}
	}

	switch cfg.Streaming.Scheduler {
	case scheduler.NameThread, scheduler.NameTask:
	default:
		return fieldError("streaming.scheduler", fmt.Sprintf("must be %q or %q (got %q)",
			scheduler.NameThread, scheduler.NameTask, cfg.Streaming.Scheduler))
	}
	if cfg.Streaming.QueueSize < 0 {
		return fieldError("streaming.queue_size", "must not be negative")
	}
	if cfg.Events.History < 0 {
		return fieldError("events.history", "must not be negative")
	}
	if r := cfg.Tracing.SampleRate; r < 0 || r > 1 {
		return fieldError("tracing.sample_rate", fmt.Sprintf("must be between 0 and 1 (got %g)", r))
	}

	for field, value := range map[string]string{
		"service.name":     cfg.Service.Name,
		"api.listen":       cfg.API.Listen,
		"tracing.endpoint": cfg.Tracing.Endpoint,
	} {
		if m := envVarPattern.FindStringSubmatch(value); m != nil {
			return fieldError(field, fmt.Sprintf("references unset environment variable %s", m[1]))
		}
	}
	return nil
}
