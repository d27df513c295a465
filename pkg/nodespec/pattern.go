package nodespec

import (
	"fmt"
	"strings"
)

// Interpolate expands a name pattern. Each "<a|b|c>" token is replaced by the
// first alternative lookup finds with a non-empty value, or by nothing.
// Text outside tokens is kept verbatim.
func Interpolate(pattern string, lookup func(key string) (any, bool)) string {
	var b strings.Builder
	rest := pattern
	for {
		open := strings.IndexByte(rest, '<')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[open:], '>')
		if end < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:open])
		token := rest[open+1 : open+end]
		for _, alt := range strings.Split(token, "|") {
			if s, ok := nonEmpty(lookup(strings.TrimSpace(alt))); ok {
				b.WriteString(s)
				break
			}
		}
		rest = rest[open+end+1:]
	}
	return b.String()
}

// InterpolateMap expands pattern against the values of m.
func InterpolateMap(pattern string, m map[string]any) string {
	return Interpolate(pattern, func(key string) (any, bool) {
		v, ok := m[key]
		return v, ok
	})
}

func nonEmpty(v any, ok bool) (string, bool) {
	if !ok || v == nil {
		return "", false
	}
	s := fmt.Sprint(v)
	return s, s != ""
}
