package signals

import (
	"net/url"
	"sort"
	"strings"
)

// nestValues turns flat form/query values into a tree using bracket keys:
//
//	user[name]=joe        -> {"user": {"name": "joe"}}
//	tags[]=a&tags[]=b     -> {"tags": ["a", "b"]}
//	q=1&q=2               -> {"q": "2"}   (last value wins)
func nestValues(values url.Values) Signals {
	out := Signals{}

	// Sorted for a deterministic result when keys collide (a=1 vs a[b]=2).
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		vals := values[key]
		if len(vals) == 0 {
			continue
		}
		path, list := splitKey(key)
		if len(path) == 0 {
			continue
		}
		if list {
			items := make([]any, len(vals))
			for i, v := range vals {
				items[i] = v
			}
			setNested(out, path, items)
			continue
		}
		setNested(out, path, vals[len(vals)-1])
	}
	return out
}

// splitKey parses "a[b][c]" into [a b c]. A trailing "[]" marks a list.
func splitKey(key string) (path []string, list bool) {
	head, rest, found := strings.Cut(key, "[")
	if head == "" {
		return nil, false
	}
	path = append(path, head)
	if !found {
		return path, false
	}

	rest = "[" + rest
	for len(rest) > 0 {
		if rest[0] != '[' {
			// trailing garbage after a closing bracket; keep the raw key
			return []string{key}, false
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return []string{key}, false
		}
		seg := rest[1:end]
		rest = rest[end+1:]
		if seg == "" {
			if rest != "" {
				// "a[][b]" is not supported; treat as a flat key
				return []string{key}, false
			}
			return path, true
		}
		path = append(path, seg)
	}
	return path, false
}

func setNested(root map[string]any, path []string, value any) {
	cur := root
	for _, part := range path[:len(path)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
}
