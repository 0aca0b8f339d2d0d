package config

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete stardispatch configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	API       APIConfig       `yaml:"api,omitempty"`
	Streaming StreamingConfig `yaml:"streaming"`
	Events    EventsConfig    `yaml:"events,omitempty"`
	Tracing   TracingConfig   `yaml:"tracing,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// StreamingConfig defines dispatcher settings shared by every request.
type StreamingConfig struct {
	Heartbeat Heartbeat `yaml:"heartbeat"`
	Scheduler string    `yaml:"scheduler"`
	// QueueSize bounds the thread scheduler's per-dispatch queue.
	QueueSize int `yaml:"queue_size,omitempty"`
}

// EventsConfig sizes the in-memory event hub behind the feed endpoint.
type EventsConfig struct {
	History int `yaml:"history,omitempty"`
}

// TracingConfig controls export of dispatch spans over OTLP/HTTP.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint,omitempty"`
	SampleRate float64 `yaml:"sample_rate,omitempty"`
}

// Heartbeat is the probe interval. In YAML it is a number of seconds, or
// false (or 0) to disable probing.
type Heartbeat struct {
	Interval time.Duration
}

// Enabled reports whether probing is on.
func (h Heartbeat) Enabled() bool { return h.Interval > 0 }

// UnmarshalYAML accepts a non-negative number of seconds or false.
func (h *Heartbeat) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fieldError("streaming.heartbeat", "must be a number of seconds or false")
	}
	switch node.Tag {
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		if b {
			return fieldError("streaming.heartbeat", "must be a number of seconds or false, got true")
		}
		*h = Heartbeat{}
		return nil
	case "!!int", "!!float":
		secs, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return fieldError("streaming.heartbeat", fmt.Sprintf("invalid number %q", node.Value))
		}
		if secs < 0 {
			return fieldError("streaming.heartbeat", fmt.Sprintf("must not be negative, got %s", node.Value))
		}
		*h = Heartbeat{Interval: time.Duration(secs * float64(time.Second))}
		return nil
	default:
		return fieldError("streaming.heartbeat", fmt.Sprintf("must be a number of seconds or false, got %q", node.Value))
	}
}

// MarshalYAML writes the interval back as seconds, or false when disabled.
func (h Heartbeat) MarshalYAML() (interface{}, error) {
	if !h.Enabled() {
		return false, nil
	}
	return h.Interval.Seconds(), nil
}

// Defaults returns a config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "stardispatch",
			LogLevel: "info",
		},
		API: APIConfig{
			Enabled: true,
			Listen:  "localhost:8080",
		},
		Streaming: StreamingConfig{
			Heartbeat: Heartbeat{Interval: 3 * time.Second},
			Scheduler: "thread",
			QueueSize: 64,
		},
		Events: EventsConfig{
			History: 100,
		},
		Tracing: TracingConfig{
			Endpoint:   "localhost:4318",
			SampleRate: 1.0,
		},
	}
}
