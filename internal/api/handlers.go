package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/stardispatch/internal/dispatch"
	"github.com/mattjoyce/stardispatch/internal/signals"
)

const (
	defaultCount    = 5
	defaultInterval = time.Second
	maxCount        = 1000
)

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:           "ok",
		UptimeSeconds:    int64(time.Since(s.startedAt).Seconds()),
		ActiveDispatches: s.active.Load(),
		Subscribers:      s.hub.Subscribers(),
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleCounter handles GET|POST /ds/counter.
// It patches #counter `count` times, pausing `delay` milliseconds between patches.
func (s *Server) handleCounter(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, func(d *dispatch.Dispatcher, sig signals.Signals) {
		count := min(intSignal(sig, "count", defaultCount), maxCount)
		delay := time.Duration(intSignal(sig, "delay", 0)) * time.Millisecond

		d.Stream(func(ctx context.Context, sse *dispatch.Generator) error {
			for i := 1; i <= count; i++ {
				if err := sse.PatchElements(fmt.Sprintf(`<span id="counter">%d</span>`, i)); err != nil {
					return err
				}
				if err := sse.PatchSignals(map[string]any{"count": i}); err != nil {
					return err
				}
				if i < count {
					if err := sleep(ctx, delay); err != nil {
						return err
					}
				}
			}
			return nil
		})
	})
}

// handleClock handles GET /ds/clock: one streamer patches the clock element,
// another ticks a signal. Both run until the client leaves, or for `limit`
// ticks when set.
func (s *Server) handleClock(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, func(d *dispatch.Dispatcher, sig signals.Signals) {
		interval := time.Duration(intSignal(sig, "interval", int(defaultInterval/time.Millisecond))) * time.Millisecond
		if interval <= 0 {
			interval = defaultInterval
		}
		limit := intSignal(sig, "limit", 0)

		d.Stream(ticker(interval, limit, func(sse *dispatch.Generator, n int, now time.Time) error {
			return sse.PatchElements(fmt.Sprintf(`<time id="clock" datetime="%s">%s</time>`,
				now.Format(time.RFC3339), now.Format("15:04:05")))
		})).Stream(ticker(interval, limit, func(sse *dispatch.Generator, n int, _ time.Time) error {
			return sse.PatchSignals(map[string]any{"tick": n})
		}))
	})
}

// handleEcho handles POST /ds/echo: the received signals are patched back.
func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, func(d *dispatch.Dispatcher, sig signals.Signals) {
		d.PatchSignals(map[string]any(sig))
	})
}

// handleRedirect handles GET /ds/redirect?to=<path>. Only same-origin
// absolute paths are accepted.
func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	target, ok := redirectTarget(r.URL.Query().Get("to"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "to must be a same-origin path starting with /")
		return
	}
	s.serve(w, r, func(d *dispatch.Dispatcher, _ signals.Signals) {
		d.Redirect(target)
	})
}

// redirectTarget validates to as a path on this origin. The result is
// embedded in a quoted script string, so quote and markup characters are
// refused outright.
func redirectTarget(to string) (string, bool) {
	if !strings.HasPrefix(to, "/") || strings.HasPrefix(to, "//") || strings.ContainsAny(to, "'\"\\<>`") {
		return "", false
	}
	target, err := url.Parse(to)
	if err != nil || target.IsAbs() || target.Host != "" {
		return "", false
	}
	return target.String(), true
}

// serve builds a dispatcher for r, lets register attach its work and runs it
// against w. Malformed signals are rejected with 400 before any streaming.
func (s *Server) serve(w http.ResponseWriter, r *http.Request, register func(d *dispatch.Dispatcher, sig signals.Signals)) {
	d, err := dispatch.New(s.config.Dispatch, r, nil)
	if err != nil {
		s.logger.Error("failed to create dispatcher", "error", err)
		s.writeError(w, http.StatusInternalServerError, "dispatcher unavailable")
		return
	}

	sig, err := d.Signals()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	register(d, sig)

	s.active.Add(1)
	defer s.active.Add(-1)
	if err := d.Serve(w); err != nil && !dispatch.IsClientDisconnect(err) {
		s.logger.Debug("dispatch ended with error", "dispatch_id", d.ID(), "error", err)
	}
}

func ticker(interval time.Duration, limit int, tick func(sse *dispatch.Generator, n int, now time.Time) error) dispatch.Streamer {
	return func(ctx context.Context, sse *dispatch.Generator) error {
		t := time.NewTicker(interval)
		defer t.Stop()
		for n := 1; ; n++ {
			if err := tick(sse, n, time.Now()); err != nil {
				return err
			}
			if n == limit {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// intSignal reads a non-negative integer signal, accepting JSON numbers and
// numeric strings (query-parameter signals arrive as strings).
func intSignal(sig signals.Signals, path string, def int) int {
	v, ok := sig.Get(path)
	if !ok {
		return def
	}
	var n int
	switch val := v.(type) {
	case float64:
		n = int(val)
	case json.Number:
		i, err := val.Int64()
		if err != nil {
			return def
		}
		n = int(i)
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return def
		}
		n = i
	default:
		return def
	}
	if n < 0 {
		return def
	}
	return n
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
