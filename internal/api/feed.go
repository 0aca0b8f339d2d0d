package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/mattjoyce/stardispatch/internal/dispatch"
	"github.com/mattjoyce/stardispatch/internal/events"
	"github.com/mattjoyce/stardispatch/internal/signals"
	"github.com/mattjoyce/stardispatch/internal/wire"
)

// EventSignalsPublished is the hub event type for POST /ds/feed.
const EventSignalsPublished = "signals.published"

// handleFeed handles GET /ds/feed. Buffered hub events after Last-Event-ID
// are replayed, then every new event is patched into the `feed` signal with
// the hub event ID as the SSE id. The heartbeat detects departed clients
// while the hub is quiet.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	lastID := parseLastEventID(r.Header.Get("Last-Event-ID"))
	s.serve(w, r, func(d *dispatch.Dispatcher, _ signals.Signals) {
		d.Stream(func(ctx context.Context, sse *dispatch.Generator) error {
			return s.hub.Follow(ctx, lastID, func(ev events.Event) error {
				return sse.PatchSignals(map[string]any{"feed": ev}, wire.EventID(strconv.FormatInt(ev.ID, 10)))
			})
		})
	})
}

// handlePublish handles POST /ds/feed: the request signals are published on
// the hub and the new event ID is acknowledged as the `published` signal.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, func(d *dispatch.Dispatcher, sig signals.Signals) {
		ev := s.hub.Publish(EventSignalsPublished, map[string]any(sig))
		d.PatchSignals(map[string]any{"published": ev.ID})
	})
}

func parseLastEventID(v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
