package dispatch

import (
	"context"
	"sync"

	"github.com/mattjoyce/stardispatch/internal/scheduler"
	"github.com/mattjoyce/stardispatch/internal/signals"
	"github.com/mattjoyce/stardispatch/internal/wire"
)

// frameWriter is where a Generator puts encoded frames: the sink itself or a shared queue.
type frameWriter interface {
	writeFrame(ctx context.Context, frame []byte) error
}

type sinkWriter struct {
	d    *Dispatcher
	sink Sink
}

func (w sinkWriter) writeFrame(_ context.Context, frame []byte) error {
	return w.d.send(w.sink, frame)
}

type queueWriter struct {
	q scheduler.Queue
}

func (w queueWriter) writeFrame(ctx context.Context, frame []byte) error {
	return w.q.Push(ctx, scheduler.FrameItem(frame))
}

// Generator encodes commands and writes them as whole frames. Once a write
// fails, every later write returns that same error without writing.
type Generator struct {
	ctx     context.Context
	w       frameWriter
	signals signals.Signals
	view    wire.ViewContext

	mu  sync.Mutex
	err error
}

func newGenerator(ctx context.Context, w frameWriter, sig signals.Signals, view wire.ViewContext) *Generator {
	return &Generator{ctx: ctx, w: w, signals: sig, view: view}
}

// Signals returns the signal snapshot captured when the connection opened.
// It is shared with every other generator of the dispatch; do not modify it.
func (g *Generator) Signals() signals.Signals { return g.signals }

// Context is cancelled when the dispatch tears down.
func (g *Generator) Context() context.Context { return g.ctx }

// Err returns the sticky write error, if any.
func (g *Generator) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Write encodes cmd and writes it as one frame. Encoding errors are returned
// without poisoning the generator.
func (g *Generator) Write(cmd wire.Command) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	frame, err := wire.Encode(cmd, g.view)
	if err != nil {
		return err
	}
	if err := g.w.writeFrame(g.ctx, frame); err != nil {
		g.err = err
		return err
	}
	return nil
}

// PatchElements morphs html into the DOM.
func (g *Generator) PatchElements(html string, opts ...wire.Option) error {
	return g.PatchRendered(wire.Texts(html), opts...)
}

// PatchRendered is PatchElements for callable or component elements rendered
// against the dispatch's view context.
func (g *Generator) PatchRendered(elements []wire.Element, opts ...wire.Option) error {
	return g.Write(wire.Command{Kind: wire.KindPatchElements, Elements: elements, Options: opts})
}

// RemoveElements removes the elements matched by selector.
func (g *Generator) RemoveElements(selector string, opts ...wire.Option) error {
	return g.Write(wire.Command{Kind: wire.KindRemoveElements, Selectors: []string{selector}, Options: opts})
}

// PatchSignals merges sig into the client signals. Strings and byte slices
// are sent as JSON text verbatim.
func (g *Generator) PatchSignals(sig any, opts ...wire.Option) error {
	return g.Write(wire.Command{Kind: wire.KindPatchSignals, Signals: sig, Options: opts})
}

// RemoveSignals deletes the signals at the given dot paths.
func (g *Generator) RemoveSignals(paths []string, opts ...wire.Option) error {
	return g.Write(wire.Command{Kind: wire.KindRemoveSignals, Paths: paths, Options: opts})
}

// ExecuteScript runs script in the browser.
func (g *Generator) ExecuteScript(script string, opts ...wire.Option) error {
	return g.Write(wire.Command{Kind: wire.KindExecuteScript, Script: script, Options: opts})
}

// Redirect sends the browser to url.
func (g *Generator) Redirect(url string, opts ...wire.Option) error {
	return g.Write(wire.Command{Kind: wire.KindRedirect, URL: url, Options: opts})
}

// CheckConnection writes a heartbeat probe. A dead connection surfaces as an error here.
func (g *Generator) CheckConnection() error {
	return g.Write(wire.Command{Kind: wire.KindHeartbeat})
}
