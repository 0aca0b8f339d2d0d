package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/stardispatch/internal/dispatch"
	"github.com/mattjoyce/stardispatch/internal/scheduler"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		env       map[string]string
		wantErr   bool
		wantField string
		checkFn   func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal valid config",
			yaml: `
service:
  name: demo
streaming:
  heartbeat: 5
  scheduler: task
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.Name != "demo" {
					t.Error("service.name not parsed")
				}
				if cfg.Streaming.Heartbeat.Interval != 5*time.Second {
					t.Errorf("heartbeat = %v, want 5s", cfg.Streaming.Heartbeat.Interval)
				}
				if cfg.Streaming.Scheduler != "task" {
					t.Error("streaming.scheduler not parsed")
				}
				if cfg.Service.LogLevel != "info" {
					t.Error("default log_level not applied")
				}
				if cfg.API.Listen != "localhost:8080" {
					t.Error("default api.listen not applied")
				}
			},
		},
		{
			name: "empty file uses defaults",
			yaml: "",
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Streaming.Heartbeat.Interval != 3*time.Second {
					t.Errorf("heartbeat = %v, want 3s", cfg.Streaming.Heartbeat.Interval)
				}
				if cfg.Streaming.Scheduler != scheduler.NameThread {
					t.Errorf("scheduler = %q, want thread", cfg.Streaming.Scheduler)
				}
				if cfg.Streaming.QueueSize != 64 || cfg.Events.History != 100 {
					t.Error("sizing defaults not applied")
				}
			},
		},
		{
			name: "heartbeat false disables probing",
			yaml: `
streaming:
  heartbeat: false
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Streaming.Heartbeat.Enabled() {
					t.Error("heartbeat should be disabled")
				}
			},
		},
		{
			name: "heartbeat zero disables probing",
			yaml: `
streaming:
  heartbeat: 0
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Streaming.Heartbeat.Enabled() {
					t.Error("heartbeat should be disabled")
				}
			},
		},
		{
			name: "fractional heartbeat",
			yaml: `
streaming:
  heartbeat: 0.5
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Streaming.Heartbeat.Interval != 500*time.Millisecond {
					t.Errorf("heartbeat = %v, want 500ms", cfg.Streaming.Heartbeat.Interval)
				}
			},
		},
		{
			name:      "heartbeat string is rejected",
			yaml:      "streaming:\n  heartbeat: soon\n",
			wantErr:   true,
			wantField: "streaming.heartbeat",
		},
		{
			name:      "heartbeat true is rejected",
			yaml:      "streaming:\n  heartbeat: true\n",
			wantErr:   true,
			wantField: "streaming.heartbeat",
		},
		{
			name:      "negative heartbeat is rejected",
			yaml:      "streaming:\n  heartbeat: -1\n",
			wantErr:   true,
			wantField: "streaming.heartbeat",
		},
		{
			name:      "unknown scheduler",
			yaml:      "streaming:\n  scheduler: fibers\n",
			wantErr:   true,
			wantField: "streaming.scheduler",
		},
		{
			name:      "invalid log level",
			yaml:      "service:\n  log_level: loud\n",
			wantErr:   true,
			wantField: "service.log_level",
		},
		{
			name:      "bad listen address",
			yaml:      "api:\n  enabled: true\n  listen: nowhere\n",
			wantErr:   true,
			wantField: "api.listen",
		},
		{
			name: "tracing defaults",
			yaml: "tracing:\n  enabled: true\n",
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Tracing.Endpoint != "localhost:4318" || cfg.Tracing.SampleRate != 1.0 {
					t.Errorf("tracing = %+v, want default endpoint and full sampling", cfg.Tracing)
				}
			},
		},
		{
			name: "omitted sections keep defaults",
			yaml: "service:\n  name: demo\n",
			checkFn: func(t *testing.T, cfg *Config) {
				if !cfg.API.Enabled {
					t.Error("api.enabled = false, want default true")
				}
				if cfg.Streaming.Heartbeat.Interval != 3*time.Second {
					t.Errorf("heartbeat = %v, want 3s", cfg.Streaming.Heartbeat.Interval)
				}
			},
		},
		{
			name: "explicit zero values are kept",
			yaml: "api:\n  enabled: false\ntracing:\n  enabled: true\n  sample_rate: 0\n",
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.API.Enabled {
					t.Error("api.enabled = true, want false")
				}
				if cfg.Tracing.SampleRate != 0 {
					t.Errorf("sample_rate = %g, want 0", cfg.Tracing.SampleRate)
				}
			},
		},
		{
			name:      "sample rate out of range",
			yaml:      "tracing:\n  enabled: true\n  sample_rate: 2\n",
			wantErr:   true,
			wantField: "tracing.sample_rate",
		},
		{
			name: "env var interpolation",
			yaml: `
api:
  enabled: true
  listen: ${TEST_STARDISPATCH_LISTEN}
`,
			env: map[string]string{"TEST_STARDISPATCH_LISTEN": "0.0.0.0:9090"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.API.Listen != "0.0.0.0:9090" {
					t.Errorf("listen = %q, want env value", cfg.API.Listen)
				}
			},
		},
		{
			name:      "unset env var is reported",
			yaml:      "service:\n  name: ${TEST_STARDISPATCH_UNSET}\n",
			wantErr:   true,
			wantField: "service.name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0644); err != nil {
				t.Fatal(err)
			}

			cfg, err := Load(path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Load() succeeded, want error")
				}
				var ce *dispatch.ConfigurationError
				if !errors.As(err, &ce) {
					t.Fatalf("Load() error = %v, want ConfigurationError", err)
				}
				if ce.Field != tt.wantField {
					t.Errorf("error field = %q, want %q", ce.Field, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			tt.checkFn(t, cfg)
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("service:\n  name: fromdir\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(dir) failed: %v", err)
	}
	if cfg.Service.Name != "fromdir" {
		t.Errorf("name = %q, want fromdir", cfg.Service.Name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("Load() error = %v, want not found", err)
	}
}

func TestDispatchConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Streaming.QueueSize = 8

	dc, err := cfg.DispatchConfig(nil, nil)
	if err != nil {
		t.Fatalf("DispatchConfig() failed: %v", err)
	}
	ts, ok := dc.Scheduler.(*scheduler.ThreadScheduler)
	if !ok {
		t.Fatalf("scheduler = %T, want *ThreadScheduler", dc.Scheduler)
	}
	if ts.QueueSize != 8 {
		t.Errorf("queue size = %d, want 8", ts.QueueSize)
	}
	if dc.Heartbeat != 3*time.Second {
		t.Errorf("heartbeat = %v, want 3s", dc.Heartbeat)
	}
	if dc.ErrorHandler == nil || dc.Logger == nil {
		t.Error("error handler and logger must be set")
	}

	cfg.Streaming.Scheduler = scheduler.NameTask
	dc, err = cfg.DispatchConfig(nil, nil)
	if err != nil {
		t.Fatalf("DispatchConfig() failed: %v", err)
	}
	if _, ok := dc.Scheduler.(*scheduler.TaskScheduler); !ok {
		t.Errorf("scheduler = %T, want *TaskScheduler", dc.Scheduler)
	}
}

func TestDispatchConfigBuildsDispatcher(t *testing.T) {
	cfg := Defaults()
	cfg.Streaming.Heartbeat = Heartbeat{}

	dc, err := cfg.DispatchConfig(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dispatch.New(dc, nil, nil); err != nil {
		t.Fatalf("dispatch.New() rejected converted config: %v", err)
	}
}

func TestHeartbeatMarshal(t *testing.T) {
	on, err := Heartbeat{Interval: 2 * time.Second}.MarshalYAML()
	if err != nil || on != 2.0 {
		t.Errorf("MarshalYAML() = %v, %v; want 2", on, err)
	}
	off, err := Heartbeat{}.MarshalYAML()
	if err != nil || off != false {
		t.Errorf("MarshalYAML() = %v, %v; want false", off, err)
	}
}
