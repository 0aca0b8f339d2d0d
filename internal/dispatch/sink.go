package dispatch

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
)

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks github.com/mattjoyce/stardispatch/internal/dispatch Sink

// Sink is the live client connection. Each Send carries exactly one frame.
type Sink interface {
	Send(frame []byte) error
	Close() error
}

const (
	sseContentType = "text/event-stream"
	http11         = "HTTP/1.1"
)

// Response is the representation handed to the Finalize hook.
type Response struct {
	Status int
	Header http.Header
	// State is the terminal state of the run, or StateIdle if it never ran.
	State State
}

func newResponse(r *http.Request) *Response {
	h := http.Header{}
	h.Set("Content-Type", sseContentType)
	h.Set("Cache-Control", "no-cache")
	if r != nil && r.Proto == http11 {
		h.Set("Connection", "keep-alive")
	}
	// Disable response buffering in nginx and other proxies
	h.Set("X-Accel-Buffering", "no")
	h.Del("Content-Length")
	return &Response{Status: http.StatusOK, Header: h}
}

// WriteHeader copies the response headers onto w and sends the status line.
func (resp *Response) WriteHeader(w http.ResponseWriter) {
	dst := w.Header()
	for k, v := range resp.Header {
		dst[k] = append([]string(nil), v...)
	}
	dst.Del("Content-Length")
	w.WriteHeader(resp.Status)
}

// HTTPSink writes frames to an http.ResponseWriter, flushing after each one.
type HTTPSink struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	rc     *http.ResponseController
	closed bool
}

func NewHTTPSink(w http.ResponseWriter) *HTTPSink {
	return &HTTPSink{w: w, rc: http.NewResponseController(w)}
}

func (s *HTTPSink) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// Close marks the sink closed. The server owns the underlying connection.
func (s *HTTPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Accepts reports whether an Accept header value admits an SSE response.
func Accepts(accept string) bool {
	return strings.Contains(strings.ToLower(accept), sseContentType)
}
