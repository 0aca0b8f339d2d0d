package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Heartbeat is the liveness probe: a bare frame terminator.
var Heartbeat = []byte("\n")

const (
	msgEnd           = "\n"
	signalSeparator  = "."
	autoRemoveAttr   = ` data-effect="el.remove()"`
	redirectTemplate = "setTimeout(() => { window.location = '%s' })"
)

// Encode renders cmd as one SSE frame.
func Encode(cmd Command, view ViewContext) ([]byte, error) {
	switch cmd.Kind {
	case KindPatchElements:
		return PatchElements(cmd.Elements, cmd.Options, view)
	case KindRemoveElements:
		return RemoveElements(cmd.Selectors, cmd.Options)
	case KindPatchSignals:
		return PatchSignals(cmd.Signals, cmd.Options)
	case KindRemoveSignals:
		return RemoveSignals(cmd.Paths, cmd.Options)
	case KindExecuteScript:
		return ExecuteScript(cmd.Script, cmd.Options)
	case KindRedirect:
		return Redirect(cmd.URL, cmd.Options)
	case KindHeartbeat:
		return append([]byte(nil), Heartbeat...), nil
	default:
		return nil, fmt.Errorf("encode: unknown command kind %v", cmd.Kind)
	}
}

// PatchElements renders a datastar-patch-elements frame. Each element is
// resolved against view and split into one data line per line of HTML.
func PatchElements(elements []Element, opts Options, view ViewContext) ([]byte, error) {
	var b strings.Builder
	b.WriteString("event: " + EventPatchElements + "\n")
	writeOptions(&b, opts)
	for i, el := range elements {
		html, err := el.Resolve(view)
		if err != nil {
			return nil, fmt.Errorf("render element %d: %w", i, err)
		}
		writeLines(&b, ElementsLiteral, html)
	}
	b.WriteString(msgEnd)
	return []byte(b.String()), nil
}

// RemoveElements is PatchElements without elements, in remove mode.
func RemoveElements(selectors []string, opts Options) ([]byte, error) {
	var sel any
	if len(selectors) == 1 {
		sel = selectors[0]
	} else {
		sel = selectors
	}
	opts = opts.Set(ModeLiteral, ModeRemove).Set(SelectorLiteral, sel)
	return PatchElements(nil, opts, nil)
}

// PatchSignals renders a datastar-patch-signals frame. Strings and byte
// slices are taken as JSON text already; anything else is JSON encoded.
func PatchSignals(signals any, opts Options) ([]byte, error) {
	var b strings.Builder
	b.WriteString("event: " + EventPatchSignals + "\n")
	writeOptions(&b, opts)

	switch s := signals.(type) {
	case string:
		writeLines(&b, SignalsLiteral, s)
	case []byte:
		writeLines(&b, SignalsLiteral, string(s))
	case json.RawMessage:
		writeLines(&b, SignalsLiteral, string(s))
	case nil:
		b.WriteString("data: " + SignalsLiteral + " {}\n")
	default:
		data, err := marshalJSON(s)
		if err != nil {
			return nil, fmt.Errorf("encode signals: %w", err)
		}
		b.WriteString("data: " + SignalsLiteral + " ")
		b.Write(data)
		b.WriteString("\n")
	}

	b.WriteString(msgEnd)
	return []byte(b.String()), nil
}

// RemoveSignals patches every dot path to null, e.g. "user.name" becomes
// {"user":{"name":null}}. Paths keep their given order in the JSON.
func RemoveSignals(paths []string, opts Options) ([]byte, error) {
	tree := newPathTree()
	for _, p := range paths {
		if p == "" {
			continue
		}
		tree.set(strings.Split(p, signalSeparator))
	}
	return PatchSignals(tree, opts)
}

// ExecuteScript appends a <script> tag to the body. Unless auto_remove is
// false the tag removes itself once it has run.
func ExecuteScript(script string, opts Options) ([]byte, error) {
	autoRemove := DefaultAutoRemove
	if v, ok := opts.Get(AutoRemoveLiteral); ok {
		autoRemove = truthy(v)
	}
	attrs, _ := opts.Get(AttributesLiteral)
	opts = opts.Without(AutoRemoveLiteral, AttributesLiteral)

	var tag strings.Builder
	tag.WriteString("<script")
	writeAttributes(&tag, attrs)
	if autoRemove {
		tag.WriteString(autoRemoveAttr)
	}
	tag.WriteString(">")
	tag.WriteString(script)
	tag.WriteString("</script>")

	opts = opts.Set(SelectorLiteral, "body").Set(ModeLiteral, ModeAppend)
	return PatchElements([]Element{Text(tag.String())}, opts, nil)
}

// Redirect navigates the browser to url after a zero-delay timer.
func Redirect(url string, opts Options) ([]byte, error) {
	return ExecuteScript(fmt.Sprintf(redirectTemplate, url), opts)
}

func writeAttributes(b *strings.Builder, attrs any) {
	switch a := attrs.(type) {
	case Options:
		for _, kv := range a {
			fmt.Fprintf(b, ` %s="%s"`, Camelize(kv.Key), valueText(kv.Value))
		}
	case map[string]string:
		for _, k := range sortedKeys(a) {
			fmt.Fprintf(b, ` %s="%s"`, Camelize(k), a[k])
		}
	case map[string]any:
		for _, k := range sortedKeys(a) {
			fmt.Fprintf(b, ` %s="%s"`, Camelize(k), valueText(a[k]))
		}
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	default:
		return valueText(v) != "false"
	}
}

// writeLines emits one data line per line of text. Trailing empty lines are dropped.
func writeLines(b *strings.Builder, tag, text string) {
	lines := strings.Split(text, "\n")
	for len(lines) > 0 && strings.TrimSuffix(lines[len(lines)-1], "\r") == "" {
		lines = lines[:len(lines)-1]
	}
	for _, line := range lines {
		b.WriteString("data: ")
		b.WriteString(tag)
		b.WriteString(" ")
		b.WriteString(strings.TrimSuffix(line, "\r"))
		b.WriteString("\n")
	}
}

// marshalJSON encodes v on a single line without HTML escaping.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// pathTree is a JSON object that remembers key insertion order.
type pathTree struct {
	keys []string
	vals map[string]any
}

func newPathTree() *pathTree {
	return &pathTree{vals: map[string]any{}}
}

func (t *pathTree) put(key string, v any) {
	if _, ok := t.vals[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.vals[key] = v
}

// set nulls the leaf at path, creating intermediate objects. An existing
// non-object value on the way is replaced by an object.
func (t *pathTree) set(path []string) {
	cur := t
	for _, part := range path[:len(path)-1] {
		next, ok := cur.vals[part].(*pathTree)
		if !ok {
			next = newPathTree()
			cur.put(part, next)
		}
		cur = next
	}
	cur.put(path[len(path)-1], nil)
}

func (t *pathTree) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range t.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalJSON(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := marshalJSON(t.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
