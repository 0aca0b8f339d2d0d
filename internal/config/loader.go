package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/stardispatch/internal/dispatch"
	"github.com/mattjoyce/stardispatch/internal/metrics"
	"github.com/mattjoyce/stardispatch/internal/scheduler"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config text over Defaults, expanding ${VAR} references
// first. Keys absent from the text keep their default value.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	normalize(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// interpolateEnv replaces ${VAR} with its environment value. Unset
// variables are left in place so validation can name them.
func interpolateEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// normalize restores defaults for strings given explicitly empty, and
// canonicalizes the scheduler name.
func normalize(cfg *Config) {
	defaults := Defaults()
	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = defaults.Tracing.Endpoint
	}
	cfg.Streaming.Scheduler = strings.ToLower(strings.TrimSpace(cfg.Streaming.Scheduler))
	if cfg.Streaming.Scheduler == "" {
		cfg.Streaming.Scheduler = defaults.Streaming.Scheduler
	}
}

// DispatchConfig converts the streaming section into the configuration
// shared by every dispatcher.
func (c *Config) DispatchConfig(logger *slog.Logger, m *metrics.Dispatch) (dispatch.Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := scheduler.ByName(c.Streaming.Scheduler, logger)
	if err != nil {
		return dispatch.Config{}, fieldError("streaming.scheduler", err.Error())
	}
	if ts, ok := sched.(*scheduler.ThreadScheduler); ok && c.Streaming.QueueSize > 0 {
		ts.QueueSize = c.Streaming.QueueSize
	}
	return dispatch.Config{
		Scheduler:    sched,
		Heartbeat:    c.Streaming.Heartbeat.Interval,
		ErrorHandler: dispatch.LogError,
		Logger:       logger,
		Metrics:      m,
	}, nil
}
