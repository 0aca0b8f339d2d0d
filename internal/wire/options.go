package wire

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Option is one named command option. Keys may be snake_case or camelCase.
type Option struct {
	Key   string
	Value any
}

// Options keeps insertion order, which is the order option lines are written in.
type Options []Option

// EventID sets the SSE `id` field.
func EventID(id string) Option { return Option{Key: "id", Value: id} }

// RetryDuration sets the SSE `retry` field.
func RetryDuration(d time.Duration) Option { return Option{Key: "retry", Value: d} }

// Mode sets the element patch mode.
func Mode(m PatchMode) Option { return Option{Key: ModeLiteral, Value: m} }

// Selector targets elements by CSS selector. Several selectors form one selector list.
func Selector(sel ...string) Option {
	if len(sel) == 1 {
		return Option{Key: SelectorLiteral, Value: sel[0]}
	}
	return Option{Key: SelectorLiteral, Value: sel}
}

// UseViewTransition wraps the patch in a view transition.
func UseViewTransition(on bool) Option { return Option{Key: UseViewTransitionLiteral, Value: on} }

// OnlyIfMissing only patches signals that do not exist yet.
func OnlyIfMissing(on bool) Option { return Option{Key: OnlyIfMissingLiteral, Value: on} }

// AutoRemove controls whether an executed script removes its own tag.
func AutoRemove(on bool) Option { return Option{Key: AutoRemoveLiteral, Value: on} }

// Attributes adds attributes to the script tag built by ExecuteScript.
func Attributes(attrs ...Option) Option { return Option{Key: AttributesLiteral, Value: Options(attrs)} }

// With sets an arbitrary option.
func With(key string, value any) Option { return Option{Key: key, Value: value} }

// Get returns the value stored under key, comparing camelized keys.
func (o Options) Get(key string) (any, bool) {
	key = Camelize(key)
	for _, opt := range o {
		if Camelize(opt.Key) == key {
			return opt.Value, true
		}
	}
	return nil, false
}

// Set returns a copy of o with key set to value, replacing an existing entry
// in place or appending a new one.
func (o Options) Set(key string, value any) Options {
	camel := Camelize(key)
	out := make(Options, len(o), len(o)+1)
	copy(out, o)
	for i, opt := range out {
		if Camelize(opt.Key) == camel {
			out[i] = Option{Key: opt.Key, Value: value}
			return out
		}
	}
	return append(out, Option{Key: key, Value: value})
}

// Without returns a copy of o without the given keys.
func (o Options) Without(keys ...string) Options {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[Camelize(k)] = true
	}
	out := make(Options, 0, len(o))
	for _, opt := range o {
		if !drop[Camelize(opt.Key)] {
			out = append(out, opt)
		}
	}
	return out
}

// Camelize converts snake_case to camelCase; camelCase input is unchanged.
func Camelize(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	parts := strings.Split(s, "_")
	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// headerFields maps option keys onto SSE header-style fields.
var headerFields = map[string]string{
	"id":            "id",
	"eventId":       "id",
	"retry":         "retry",
	"retryDuration": "retry",
}

// optionDefaults holds the declared default of every suppressible option.
var optionDefaults = map[string]any{
	"retry":                  DefaultRetryMillis,
	ModeLiteral:              DefaultPatchMode,
	UseViewTransitionLiteral: DefaultUseViewTransition,
	OnlyIfMissingLiteral:     DefaultOnlyIfMissing,
}

// suppressed reports whether an option is left off the wire: nil values,
// values equal to the declared default, and an unset selector. Other empty
// values are written, so `id: ` still resets the client's last event ID.
func suppressed(key string, v any) bool {
	if v == nil {
		return true
	}
	text := valueText(v)
	if key == SelectorLiteral && text == "" {
		return true
	}
	if def, ok := optionDefaults[key]; ok {
		return text == valueText(def)
	}
	return false
}

// valueText renders a value in its canonical textual form.
func valueText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case PatchMode:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Duration:
		return strconv.FormatInt(t.Milliseconds(), 10)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

func writeOptions(b *strings.Builder, opts Options) {
	for _, opt := range opts {
		key := Camelize(opt.Key)
		if field, ok := headerFields[key]; ok {
			if !suppressed(field, opt.Value) {
				fmt.Fprintf(b, "%s: %s\n", field, valueText(opt.Value))
			}
			continue
		}
		writeDataOption(b, key, opt.Value)
	}
}

func writeDataOption(b *strings.Builder, key string, value any) {
	if nested, ok := value.(Options); ok {
		for _, kv := range nested {
			fmt.Fprintf(b, "data: %s %s %s\n", key, Camelize(kv.Key), valueText(kv.Value))
		}
		return
	}

	rv := reflect.ValueOf(value)
	switch {
	case rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key()))
			fmt.Fprintf(b, "data: %s %s %s\n", key, k, valueText(v.Interface()))
		}
	case rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8:
		items := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			if text := valueText(rv.Index(i).Interface()); text != "" {
				items = append(items, text)
			}
		}
		if len(items) == 0 {
			return
		}
		if key == SelectorLiteral {
			fmt.Fprintf(b, "data: %s %s\n", key, strings.Join(items, ", "))
			return
		}
		for _, item := range items {
			fmt.Fprintf(b, "data: %s %s\n", key, item)
		}
	default:
		if !suppressed(key, value) {
			fmt.Fprintf(b, "data: %s %s\n", key, valueText(value))
		}
	}
}
