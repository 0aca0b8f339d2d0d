// Package doctor validates stardispatch configuration beyond what Load
// rejects outright: settings that parse but are likely mistakes.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/mattjoyce/stardispatch/internal/config"
	"github.com/mattjoyce/stardispatch/internal/scheduler"
)

// Thresholds for heartbeat warnings. Reverse proxies commonly drop idle
// connections after 60s.
const (
	minHeartbeat   = 100 * time.Millisecond
	proxyIdleLimit = 55 * time.Second
	minQueueSize   = 4
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid       bool    `json:"valid"`
	Path        string  `json:"path,omitempty"`
	Fingerprint string  `json:"fingerprint,omitempty"`
	Errors      []Issue `json:"errors,omitempty"`
	Warnings    []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration and the file it came from.
type Doctor struct {
	cfg      *config.Config
	path     string
	expected string
}

// New creates a Doctor. path may be empty when the config did not come from
// a file; expected, when set, is the fingerprint the file must match.
func New(cfg *config.Config, path, expected string) *Doctor {
	return &Doctor{cfg: cfg, path: path, expected: expected}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true, Path: d.path}

	d.checkFingerprint(r)
	d.validateAPIConfig(r)
	d.validateStreaming(r)
	d.validateScheduler(r)
	d.warnSmallHistory(r)
	d.validateTracing(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// checkFingerprint records the file fingerprint and compares it with the
// expected one.
func (d *Doctor) checkFingerprint(r *Result) {
	if d.path == "" {
		if d.expected != "" {
			d.addError(r, "integrity", "", "expected fingerprint given but no config file was loaded")
		}
		return
	}
	fp, err := config.Fingerprint(d.path)
	if err != nil {
		d.addError(r, "integrity", "", fmt.Sprintf("cannot fingerprint config: %v", err))
		return
	}
	r.Fingerprint = fp
	if d.expected == "" {
		return
	}
	if err := config.VerifyFingerprint(d.path, d.expected); err != nil {
		d.addError(r, "integrity", "", err.Error())
	}
}

// validateAPIConfig checks the HTTP surface that serves the streams.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		d.addWarning(r, "api", "api.enabled", "API disabled; serve has no endpoints to stream from")
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.API.Listen, err))
		return
	}
	switch host {
	case "", "0.0.0.0", "::":
		d.addWarning(r, "api", "api.listen",
			fmt.Sprintf("listen address %q exposes the endpoints on all interfaces", d.cfg.API.Listen))
	}
}

// validateStreaming flags heartbeat intervals that defeat their purpose.
func (d *Doctor) validateStreaming(r *Result) {
	hb := d.cfg.Streaming.Heartbeat
	switch {
	case !hb.Enabled():
		d.addWarning(r, "streaming", "streaming.heartbeat",
			"heartbeat disabled; departed clients are only noticed on the next write")
	case hb.Interval < minHeartbeat:
		d.addWarning(r, "streaming", "streaming.heartbeat",
			fmt.Sprintf("heartbeat %s is very short (< %s)", hb.Interval, minHeartbeat))
	case hb.Interval > proxyIdleLimit:
		d.addWarning(r, "streaming", "streaming.heartbeat",
			fmt.Sprintf("heartbeat %s may exceed proxy idle timeouts (~60s)", hb.Interval))
	}
}

func (d *Doctor) validateScheduler(r *Result) {
	s := d.cfg.Streaming
	switch s.Scheduler {
	case scheduler.NameThread:
		if s.QueueSize > 0 && s.QueueSize < minQueueSize {
			d.addWarning(r, "scheduler", "streaming.queue_size",
				fmt.Sprintf("queue_size %d makes streamers wait on every frame", s.QueueSize))
		}
	case scheduler.NameTask:
		if s.QueueSize != 0 && s.QueueSize != config.Defaults().Streaming.QueueSize {
			d.addWarning(r, "scheduler", "streaming.queue_size",
				"queue_size only applies to the thread scheduler; task queues are unbounded")
		}
	default:
		d.addError(r, "scheduler", "streaming.scheduler", fmt.Sprintf("unknown scheduler %q", s.Scheduler))
	}
}

func (d *Doctor) warnSmallHistory(r *Result) {
	if h := d.cfg.Events.History; h > 0 && h < 10 {
		d.addWarning(r, "events", "events.history",
			fmt.Sprintf("history %d leaves little to replay for reconnecting feed clients", h))
	}
}

// validateTracing checks the OTLP endpoint, which the exporter expects as
// host:port without a scheme.
func (d *Doctor) validateTracing(r *Result) {
	t := d.cfg.Tracing
	if !t.Enabled {
		return
	}
	if strings.Contains(t.Endpoint, "://") {
		d.addError(r, "tracing", "tracing.endpoint",
			fmt.Sprintf("endpoint %q must be host:port without a scheme", t.Endpoint))
		return
	}
	if t.SampleRate < 0.01 {
		d.addWarning(r, "tracing", "tracing.sample_rate",
			fmt.Sprintf("sample_rate %g drops nearly every dispatch span", t.SampleRate))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Configuration valid.\n")
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}
	if r.Fingerprint != "" {
		fmt.Fprintf(&b, "  %s  %s\n", r.Fingerprint, r.Path)
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
