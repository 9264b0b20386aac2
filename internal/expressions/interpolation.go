// Package expressions provides variable collection, {{name}} text
// interpolation for previews, and the pluggable expression engines used to
// evaluate condition nodes and api result filters.
package expressions

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Markers delimiting a variable reference inside author-visible text.
const (
	markerOpen  = "{{"
	markerClose = "}}"
)

// Render substitutes {{name}} markers in text with values from the given
// map. Unknown names render as an ‹name› placeholder so the author can spot
// unresolved references. Dotted names traverse into nested maps (api
// results are parsed JSON). Malformed markers — unterminated {{, empty or
// nested references — are treated as literal text. Render never fails and
// never mutates its inputs.
func Render(text string, values map[string]any) string {
	var out strings.Builder
	out.Grow(len(text))

	i := 0
	for i < len(text) {
		idx := strings.Index(text[i:], markerOpen)
		if idx == -1 {
			out.WriteString(text[i:])
			break
		}

		out.WriteString(text[i : i+idx])
		start := i + idx + len(markerOpen)

		end := strings.Index(text[start:], markerClose)
		if end == -1 {
			// Unterminated marker: conservatively keep the rest as literal.
			out.WriteString(text[i+idx:])
			break
		}
		end += start

		name := strings.TrimSpace(text[start:end])
		if name == "" || strings.Contains(name, markerOpen) {
			out.WriteString(text[i+idx : end+len(markerClose)])
			i = end + len(markerClose)
			continue
		}

		if val, ok := lookup(values, name); ok {
			out.WriteString(stringify(val))
		} else {
			out.WriteString("‹" + name + "›")
		}
		i = end + len(markerClose)
	}

	return out.String()
}

// References returns the distinct variable names referenced by {{name}}
// markers in text, in order of first appearance. Malformed markers are
// skipped the same way Render treats them as literal text.
func References(text string) []string {
	var names []string
	seen := make(map[string]bool)

	i := 0
	for i < len(text) {
		idx := strings.Index(text[i:], markerOpen)
		if idx == -1 {
			break
		}
		start := i + idx + len(markerOpen)
		end := strings.Index(text[start:], markerClose)
		if end == -1 {
			break
		}
		end += start

		name := strings.TrimSpace(text[start:end])
		if name != "" && !strings.Contains(name, markerOpen) {
			// Only the root segment of a dotted path names a variable.
			root := name
			if dot := strings.IndexByte(root, '.'); dot != -1 {
				root = root[:dot]
			}
			if root != "" && !seen[root] {
				seen[root] = true
				names = append(names, root)
			}
		}
		i = end + len(markerClose)
	}

	return names
}

// lookup resolves a possibly dotted name against the value map. The whole
// name is tried as a direct key first, which supports keys containing dots.
func lookup(values map[string]any, name string) (any, bool) {
	if values == nil {
		return nil, false
	}
	if val, ok := values[name]; ok {
		return val, true
	}

	segments := strings.Split(name, ".")
	var current any = values
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// stringify converts a resolved value into display text. Strings embed
// as-is; complex values are JSON-encoded inline.
func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return ""
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
