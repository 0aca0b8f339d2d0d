package tail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/stardispatch/internal/signals"
	"github.com/mattjoyce/stardispatch/internal/wire"
)

// --- Message types ---

type frameMsg struct {
	frame wire.Frame
	at    time.Time
}

type connectedMsg struct {
	status string
}

// endedMsg reports the end of one connection. A nil err means the server
// closed the stream cleanly.
type endedMsg struct {
	err error
}

type reconnectMsg struct{}

type tickMsg time.Time

// Source describes the endpoint being tailed.
type Source struct {
	URL    string
	Method string
	// Signals is a JSON object sent as the datastar query parameter on
	// GET and as the JSON body otherwise.
	Signals string
	Header  http.Header
}

// Request builds the HTTP request for one connection. lastID, when set, is
// sent as Last-Event-ID so the server can resume.
func (s Source) Request(ctx context.Context, lastID string) (*http.Request, error) {
	method := strings.ToUpper(s.Method)
	if method == "" {
		method = http.MethodGet
	}

	target := s.URL
	var body io.Reader
	if s.Signals != "" {
		if method == http.MethodGet || method == http.MethodDelete {
			u, err := url.Parse(s.URL)
			if err != nil {
				return nil, fmt.Errorf("invalid url %q: %w", s.URL, err)
			}
			q := u.Query()
			q.Set(signals.QueryParam, s.Signals)
			u.RawQuery = q.Encode()
			target = u.String()
		} else {
			body = strings.NewReader(s.Signals)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for k, v := range s.Header {
		req.Header[k] = append([]string(nil), v...)
	}
	req.Header.Set("Accept", "text/event-stream")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}
	return req, nil
}

// Stream connects once and calls fn for every frame until the stream ends.
// It returns nil when the server closes the stream at a frame boundary.
func Stream(ctx context.Context, client *http.Client, src Source, lastID string, onConnect func(status string), fn func(wire.Frame) error) error {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := src.Request(ctx, lastID)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		return fmt.Errorf("unexpected content type %q", ct)
	}
	if onConnect != nil {
		onConnect(resp.Status)
	}

	fr := wire.NewFrameReader(resp.Body)
	for {
		f, err := fr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
	}
}

// --- Commands ---

// subscribe runs one connection in the background, feeding every message
// (connect, frames, end) into ch in order.
func subscribe(ctx context.Context, client *http.Client, src Source, lastID string, ch chan<- tea.Msg) tea.Cmd {
	return func() tea.Msg {
		err := Stream(ctx, client, src, lastID,
			func(status string) { ch <- connectedMsg{status: status} },
			func(f wire.Frame) error {
				select {
				case ch <- frameMsg{frame: f, at: time.Now()}:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		ch <- endedMsg{err: err}
		return nil
	}
}

// receiveNext waits for the next message from the channel.
func receiveNext(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}
