// Package wire renders Datastar commands into Server-Sent-Events frames.
//
// Every command becomes one frame: an `event:` line, option lines, payload
// data lines and a terminating blank line. Options equal to their protocol
// default are never written, so the browser runtime applies its own defaults.
package wire

import "fmt"

// Event names understood by the Datastar browser runtime.
const (
	EventPatchElements = "datastar-patch-elements"
	EventPatchSignals  = "datastar-patch-signals"
)

// Data line literals.
const (
	ElementsLiteral          = "elements"
	SignalsLiteral           = "signals"
	SelectorLiteral          = "selector"
	ModeLiteral              = "mode"
	UseViewTransitionLiteral = "useViewTransition"
	OnlyIfMissingLiteral     = "onlyIfMissing"
	AutoRemoveLiteral        = "autoRemove"
	AttributesLiteral        = "attributes"
)

// PatchMode controls how patched elements are merged into the DOM.
type PatchMode string

const (
	ModeUpdate  PatchMode = "update"
	ModeOuter   PatchMode = "outer"
	ModeInner   PatchMode = "inner"
	ModeReplace PatchMode = "replace"
	ModePrepend PatchMode = "prepend"
	ModeAppend  PatchMode = "append"
	ModeBefore  PatchMode = "before"
	ModeAfter   PatchMode = "after"
	ModeRemove  PatchMode = "remove"
)

// Protocol defaults. An option carrying one of these values is suppressed.
const (
	DefaultPatchMode         = ModeUpdate
	DefaultRetryMillis       = 1000
	DefaultUseViewTransition = false
	DefaultOnlyIfMissing     = false
	DefaultAutoRemove        = true
)

// Kind tags a Command.
type Kind int

const (
	KindPatchElements Kind = iota
	KindRemoveElements
	KindPatchSignals
	KindRemoveSignals
	KindExecuteScript
	KindRedirect
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindPatchElements:
		return "patch-elements"
	case KindRemoveElements:
		return "remove-elements"
	case KindPatchSignals:
		return "patch-signals"
	case KindRemoveSignals:
		return "remove-signals"
	case KindExecuteScript:
		return "execute-script"
	case KindRedirect:
		return "redirect"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Command is one UI update. Only the payload fields relevant to Kind are read.
type Command struct {
	Kind Kind

	Elements  []Element // PatchElements
	Selectors []string  // RemoveElements
	Signals   any       // PatchSignals: map/struct (JSON encoded) or string/[]byte (verbatim)
	Paths     []string  // RemoveSignals
	Script    string    // ExecuteScript
	URL       string    // Redirect

	Options Options
}

// ViewContext is whatever the surrounding framework renders templates with.
// It is passed untouched to callable and renderable elements.
type ViewContext any

// Renderable is implemented by components that render themselves against a view context.
type Renderable interface {
	RenderIn(view ViewContext) (string, error)
}

type elementKind int

const (
	elementText elementKind = iota
	elementCallable
	elementRenderable
)

// Element is an HTML payload: plain text, a callable taking the view context,
// or a Renderable. The zero Element is empty text.
type Element struct {
	kind       elementKind
	text       string
	fn         func(view ViewContext) (string, error)
	renderable Renderable
}

// Text wraps literal HTML.
func Text(html string) Element {
	return Element{kind: elementText, text: html}
}

// Callable wraps a function invoked with the view context at encode time.
func Callable(fn func(view ViewContext) (string, error)) Element {
	return Element{kind: elementCallable, fn: fn}
}

// Render wraps a component rendered with the view context at encode time.
func Render(r Renderable) Element {
	return Element{kind: elementRenderable, renderable: r}
}

// Texts wraps several literal HTML strings.
func Texts(html ...string) []Element {
	out := make([]Element, len(html))
	for i, h := range html {
		out[i] = Text(h)
	}
	return out
}

// Resolve produces the element's HTML.
func (e Element) Resolve(view ViewContext) (string, error) {
	switch e.kind {
	case elementCallable:
		if e.fn == nil {
			return "", nil
		}
		return e.fn(view)
	case elementRenderable:
		if e.renderable == nil {
			return "", nil
		}
		return e.renderable.RenderIn(view)
	default:
		return e.text, nil
	}
}
