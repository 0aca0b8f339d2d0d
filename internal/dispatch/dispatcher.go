package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mattjoyce/stardispatch/internal/log"
	"github.com/mattjoyce/stardispatch/internal/scheduler"
	"github.com/mattjoyce/stardispatch/internal/signals"
	"github.com/mattjoyce/stardispatch/internal/wire"
)

const tracerName = "github.com/mattjoyce/stardispatch/internal/dispatch"

// Streamer issues commands for the lifetime of one connection. A returned
// error ends the run and is routed by its class.
type Streamer func(ctx context.Context, sse *Generator) error

// State is the dispatcher lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateClientDisconnected
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateClientDisconnected:
		return "client_disconnected"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Dispatcher runs the streamers of one request against one sink.
type Dispatcher struct {
	id       string
	cfg      Config
	req      *http.Request
	view     wire.ViewContext
	logger   *slog.Logger
	response *Response

	signalsOnce sync.Once
	signals     signals.Signals
	signalsErr  error

	mu                 sync.Mutex
	state              State
	streamers          []Streamer
	heartbeatOn        bool
	lateErr            error
	onConnect          []func(*Generator)
	onClientDisconnect []func(error)
	onServerDisconnect []func(*Generator)
	onError            []func(error)
}

// New builds a dispatcher for r. view is handed untouched to callable and
// renderable elements and to the Finalize hook.
func New(cfg Config, r *http.Request, view wire.ViewContext) (*Dispatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	id := uuid.NewString()
	logger := log.WithDispatch(id)
	if cfg.Logger != nil {
		logger = cfg.Logger.With("component", "dispatch", "dispatch_id", id)
	}

	d := &Dispatcher{
		id:       id,
		cfg:      cfg,
		req:      r,
		view:     view,
		logger:   logger,
		response: newResponse(r),
	}
	cfg.Scheduler.Prepare(d.response.Header)

	handler := cfg.ErrorHandler
	d.onError = []func(error){func(err error) { handler(d.logger, err) }}
	return d, nil
}

// ID identifies the dispatch in logs and traces.
func (d *Dispatcher) ID() string { return d.id }

// Response is the representation passed to Finalize.
func (d *Dispatcher) Response() *Response { return d.response }

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SSE reports whether the request accepts an event stream.
func (d *Dispatcher) SSE() bool {
	if d.req == nil {
		return false
	}
	return Accepts(d.req.Header.Get("Accept"))
}

// Signals extracts the request's signals once. Every later call, and every
// generator of this dispatch, sees the same read-only snapshot.
func (d *Dispatcher) Signals() (signals.Signals, error) {
	d.signalsOnce.Do(func() {
		d.signals = signals.Signals{}
		if d.req == nil {
			return
		}
		sig, err := signals.Extract(d.req)
		if err != nil {
			d.signalsErr = err
			return
		}
		d.signals = sig.Clone()
	})
	return d.signals, d.signalsErr
}

// Err reports ErrRunning if a registration was rejected because Run had started.
func (d *Dispatcher) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lateErr
}

func (d *Dispatcher) register(what string, add func()) *Dispatcher {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateIdle {
		d.lateErr = ErrRunning
		d.logger.Warn("registration after run ignored", "registration", what, "state", d.state.String())
		return d
	}
	add()
	return d
}

// OnConnect runs fn before any streamer starts, with a generator bound to the sink.
func (d *Dispatcher) OnConnect(fn func(sse *Generator)) *Dispatcher {
	return d.register("on_connect", func() { d.onConnect = append(d.onConnect, fn) })
}

// OnClientDisconnect runs fn when the client goes away mid-stream.
func (d *Dispatcher) OnClientDisconnect(fn func(err error)) *Dispatcher {
	return d.register("on_client_disconnect", func() { d.onClientDisconnect = append(d.onClientDisconnect, fn) })
}

// OnServerDisconnect runs fn once every streamer has finished cleanly. The
// generator is still bound to the sink, so fn may write a final frame.
func (d *Dispatcher) OnServerDisconnect(fn func(sse *Generator)) *Dispatcher {
	return d.register("on_server_disconnect", func() { d.onServerDisconnect = append(d.onServerDisconnect, fn) })
}

// OnError runs fn for application errors, after the configured ErrorHandler.
func (d *Dispatcher) OnError(fn func(err error)) *Dispatcher {
	return d.register("on_error", func() { d.onError = append(d.onError, fn) })
}

// Stream registers a streamer. The first Stream call also enables the
// heartbeat when one is configured.
func (d *Dispatcher) Stream(s Streamer) *Dispatcher {
	return d.register("stream", func() {
		d.streamers = append(d.streamers, s)
		if d.cfg.Heartbeat > 0 {
			d.heartbeatOn = true
		}
	})
}

// streamOnce registers a single-command streamer that never enables the heartbeat.
func (d *Dispatcher) streamOnce(cmd wire.Command) *Dispatcher {
	return d.register("stream", func() {
		d.streamers = append(d.streamers, func(_ context.Context, sse *Generator) error {
			return sse.Write(cmd)
		})
	})
}

// PatchElements registers a one-shot element patch.
func (d *Dispatcher) PatchElements(html string, opts ...wire.Option) *Dispatcher {
	return d.streamOnce(wire.Command{Kind: wire.KindPatchElements, Elements: wire.Texts(html), Options: opts})
}

// RemoveElements registers a one-shot element removal.
func (d *Dispatcher) RemoveElements(selector string, opts ...wire.Option) *Dispatcher {
	return d.streamOnce(wire.Command{Kind: wire.KindRemoveElements, Selectors: []string{selector}, Options: opts})
}

// PatchSignals registers a one-shot signal patch.
func (d *Dispatcher) PatchSignals(sig any, opts ...wire.Option) *Dispatcher {
	return d.streamOnce(wire.Command{Kind: wire.KindPatchSignals, Signals: sig, Options: opts})
}

// RemoveSignals registers a one-shot signal removal.
func (d *Dispatcher) RemoveSignals(paths []string, opts ...wire.Option) *Dispatcher {
	return d.streamOnce(wire.Command{Kind: wire.KindRemoveSignals, Paths: paths, Options: opts})
}

// ExecuteScript registers a one-shot script.
func (d *Dispatcher) ExecuteScript(script string, opts ...wire.Option) *Dispatcher {
	return d.streamOnce(wire.Command{Kind: wire.KindExecuteScript, Script: script, Options: opts})
}

// Redirect registers a one-shot redirect.
func (d *Dispatcher) Redirect(url string, opts ...wire.Option) *Dispatcher {
	return d.streamOnce(wire.Command{Kind: wire.KindRedirect, URL: url, Options: opts})
}

// plan is the registration state frozen when Run starts.
type plan struct {
	work               []Streamer
	streamers          int
	heartbeat          bool
	onConnect          []func(*Generator)
	onClientDisconnect []func(error)
	onServerDisconnect []func(*Generator)
	onError            []func(error)
}

func (d *Dispatcher) freeze() plan {
	p := plan{
		work:               slices.Clone(d.streamers),
		streamers:          len(d.streamers),
		heartbeat:          d.heartbeatOn,
		onConnect:          slices.Clone(d.onConnect),
		onClientDisconnect: slices.Clone(d.onClientDisconnect),
		onServerDisconnect: slices.Clone(d.onServerDisconnect),
		onError:            slices.Clone(d.onError),
	}
	if p.heartbeat {
		p.work = append(p.work, heartbeat(d.cfg.Heartbeat))
	}
	return p
}

// Run streams to sink until every streamer is done, the client goes away,
// or an error surfaces. It runs once; later calls return ErrAlreadyRun.
// The returned error is the one that ended the run, after it was routed to
// the matching callbacks.
func (d *Dispatcher) Run(ctx context.Context, sink Sink) error {
	d.mu.Lock()
	if d.state != StateIdle {
		d.mu.Unlock()
		return ErrAlreadyRun
	}
	d.state = StateRunning
	p := d.freeze()
	d.mu.Unlock()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "dispatch.run", trace.WithAttributes(
		attribute.String("dispatch.id", d.id),
		attribute.Int("dispatch.streamers", p.streamers),
		attribute.Bool("dispatch.heartbeat", p.heartbeat),
	))
	defer span.End()

	start := time.Now()
	d.cfg.Metrics.RunStarted(p.streamers)
	d.logger.Debug("dispatch started", "streamers", p.streamers, "heartbeat", p.heartbeat)

	runCtx, cancel := context.WithCancel(ctx)
	var (
		units []scheduler.Unit
		err   error
		state = StateErrored
	)
	defer func() {
		d.cfg.Scheduler.Stop(units)
		cancel()
		if cerr := sink.Close(); cerr != nil {
			d.logger.Debug("sink close failed", "error", cerr)
		}
		d.finish(span, state, err, start)
	}()

	var gen *Generator
	gen, err = d.execute(runCtx, sink, p, &units)
	state = d.route(p, gen, err)
	return err
}

// Serve writes the SSE response headers to w and runs against it with the
// request's context.
func (d *Dispatcher) Serve(w http.ResponseWriter) error {
	if d.State() != StateIdle {
		return ErrAlreadyRun
	}
	d.response.WriteHeader(w)
	sink := NewHTTPSink(w)
	if err := sink.rc.Flush(); err != nil {
		d.logger.Debug("header flush failed", "error", err)
	}

	ctx := context.Background()
	if d.req != nil {
		ctx = d.req.Context()
	}
	return d.Run(ctx, sink)
}

func (d *Dispatcher) execute(ctx context.Context, sink Sink, p plan, units *[]scheduler.Unit) (*Generator, error) {
	sig, sigErr := d.Signals()
	gen := newGenerator(ctx, sinkWriter{d: d, sink: sink}, sig, d.view)
	if sigErr != nil {
		return gen, sigErr
	}

	for _, fn := range p.onConnect {
		if pe := protect(func() { fn(gen) }); pe != nil {
			return gen, pe
		}
	}

	switch len(p.work) {
	case 0:
		return gen, nil
	case 1:
		return gen, d.streamOne(ctx, p.work[0], gen)
	default:
		return gen, d.streamMany(ctx, sink, p, sig, units)
	}
}

// streamOne runs the only streamer inline, writing straight to the sink.
func (d *Dispatcher) streamOne(ctx context.Context, s Streamer, gen *Generator) error {
	if err := callStreamer(ctx, s, gen); err != nil {
		return err
	}
	return gen.Err()
}

// streamMany spawns a unit per streamer and linearizes their frames onto
// the sink. Only this goroutine ever writes to the sink.
func (d *Dispatcher) streamMany(ctx context.Context, sink Sink, p plan, sig signals.Signals, units *[]scheduler.Unit) error {
	q := d.cfg.Scheduler.NewQueue()
	for _, s := range p.work {
		u := d.cfg.Scheduler.Spawn(ctx, func(ctx context.Context) {
			gen := newGenerator(ctx, queueWriter{q: q}, sig, d.view)
			if err := callStreamer(ctx, s, gen); err != nil {
				_ = q.Push(ctx, scheduler.ErrItem(err))
				return
			}
			_ = q.Push(ctx, scheduler.DoneItem())
		})
		*units = append(*units, u)
	}

	done := 0
	for {
		item, err := q.Pop(ctx)
		if err != nil {
			return err
		}
		switch item.Kind {
		case scheduler.ItemFrame:
			if err := d.send(sink, item.Frame); err != nil {
				return err
			}
		case scheduler.ItemDone:
			done++
			if done == p.streamers {
				if err := q.Push(ctx, scheduler.EndItem()); err != nil {
					return err
				}
			}
		case scheduler.ItemErr:
			return item.Err
		case scheduler.ItemEnd:
			return nil
		}
	}
}

func (d *Dispatcher) send(sink Sink, frame []byte) error {
	if err := sink.Send(frame); err != nil {
		return err
	}
	d.cfg.Metrics.FrameWritten(len(frame), bytes.Equal(frame, wire.Heartbeat))
	return nil
}

// route runs the callbacks of exactly one outcome.
func (d *Dispatcher) route(p plan, gen *Generator, err error) State {
	switch {
	case err == nil:
		for _, fn := range p.onServerDisconnect {
			d.callback("on_server_disconnect", func() { fn(gen) })
		}
		return StateCompleted
	case IsClientDisconnect(err):
		d.logger.Debug("client disconnected", "error", err)
		for _, fn := range p.onClientDisconnect {
			d.callback("on_client_disconnect", func() { fn(err) })
		}
		return StateClientDisconnected
	default:
		for _, fn := range p.onError {
			d.callback("on_error", func() { fn(err) })
		}
		return StateErrored
	}
}

func (d *Dispatcher) finish(span trace.Span, state State, err error, start time.Time) {
	d.mu.Lock()
	d.state = state
	d.mu.Unlock()
	d.response.State = state

	elapsed := time.Since(start)
	d.cfg.Metrics.RunFinished(state.String(), elapsed)
	span.SetAttributes(attribute.String("dispatch.outcome", state.String()))
	if state == StateErrored && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if d.cfg.Finalize != nil {
		d.callback("finalize", func() { d.cfg.Finalize(d.view, d.response) })
	}
	d.logger.Debug("dispatch finished", "outcome", state.String(), "duration_ms", elapsed.Milliseconds())
}

// callback runs a user callback; a panic is logged and swallowed so the
// remaining callbacks and the teardown still run.
func (d *Dispatcher) callback(name string, fn func()) {
	if pe := protect(fn); pe != nil {
		d.logger.Error("callback panicked", "callback", name, "error", pe.Error(), "stack", string(pe.Stack))
	}
}

func heartbeat(interval time.Duration) Streamer {
	return func(ctx context.Context, sse *Generator) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := sse.CheckConnection(); err != nil {
					return err
				}
			}
		}
	}
}

func callStreamer(ctx context.Context, s Streamer, gen *Generator) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return s(ctx, gen)
}

// protect converts a panic in fn into a *PanicError.
func protect(fn func()) (pe *PanicError) {
	defer func() {
		if r := recover(); r != nil {
			pe = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	fn()
	return nil
}

func errorType(err error) string {
	return fmt.Sprintf("%T", err)
}
