package tail

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mattjoyce/stardispatch/internal/wire"
)

// FormatFrame renders one frame as a header line followed by its indented
// data lines.
func FormatFrame(theme Theme, f wire.Frame, at time.Time) string {
	var b strings.Builder
	b.WriteString(theme.Dim.Render(at.Format("15:04:05.000")))
	b.WriteByte(' ')

	if f.IsHeartbeat() {
		b.WriteString(theme.Dim.Render("♥ heartbeat"))
		return b.String()
	}

	b.WriteString(theme.EventStyle(f.Event).Render(f.Event))
	if f.ID != "" {
		b.WriteString(theme.Highlight.Render(" id=" + f.ID))
	}
	if f.Retry != "" {
		b.WriteString(theme.Dim.Render(" retry=" + f.Retry + "ms"))
	}
	for _, line := range f.Data {
		b.WriteString("\n  ")
		b.WriteString(line)
	}
	return b.String()
}

// formatCounts renders per-event totals sorted by event name.
func formatCounts(theme Theme, counts map[string]int, heartbeats int) string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names)+1)
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s %d", theme.EventStyle(name).Render(name), counts[name]))
	}
	parts = append(parts, theme.Dim.Render(fmt.Sprintf("heartbeats %d", heartbeats)))
	return strings.Join(parts, "  ")
}

// Plain writes every frame of src to w without a terminal UI. It returns
// when the stream ends or ctx is done.
func Plain(ctx context.Context, client *http.Client, src Source, w io.Writer, heartbeats bool) error {
	theme := Theme{}
	return Stream(ctx, client, src, "", nil, func(f wire.Frame) error {
		if f.IsHeartbeat() && !heartbeats {
			return nil
		}
		_, err := fmt.Fprintln(w, FormatFrame(theme, f, time.Now()))
		return err
	})
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
