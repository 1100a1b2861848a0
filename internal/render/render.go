// Package render converts arbitrary values into bounded attribute-safe strings.
//
// Every captured input, output, and aggregated stream value passes through this
// package before it is set on a span, so attribute payloads have a hard upper
// bound regardless of what user code returns.
package render

import "fmt"

const (
	// MaxLen is the maximum length, in runes, of any rendered value.
	MaxLen = 1024

	// marker terminates truncated values so consumers can tell a clipped
	// value from one that happened to fit exactly.
	marker = "..."

	// Placeholder stands in for values whose formatting panicked.
	Placeholder = "<unrepresentable>"
)

// Value renders v as a bounded string. Values whose String/Error methods
// panic render as Placeholder instead of propagating. Error and Stringer are
// invoked directly: fmt would swallow their panics into a "%!v(PANIC=...)"
// string instead of surfacing them to the guard.
func Value(v any) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = Placeholder
		}
	}()
	switch t := v.(type) {
	case nil:
		return "<nil>"
	case error:
		return Truncate(t.Error())
	case fmt.Stringer:
		return Truncate(t.String())
	}
	return Truncate(fmt.Sprintf("%v", v))
}

// Truncate clips s to exactly MaxLen runes, ending in the truncation marker.
// Strings of MaxLen runes or fewer pass through unchanged.
func Truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxLen {
		return s
	}
	return string(runes[:MaxLen-len(marker)]) + marker
}

// List renders items as a bounded "[a, b, c]" style list.
func List(items []any) string {
	out := "["
	for i, it := range items {
		if i > 0 {
			out += ", "
		}
		out += Value(it)
		if len(out) > MaxLen {
			break
		}
	}
	return Truncate(out + "]")
}

// Join concatenates items when every one of them is a string. The second
// return reports whether the join applied; mixed sequences never partially
// join.
func Join(items []any) (string, bool) {
	var out string
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return "", false
		}
		out += s
	}
	return Truncate(out), true
}
