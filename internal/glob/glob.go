// Package glob implements the two-character glob grammar used by FlowNode
// Entry match rules: '*' for any run of characters, '?' for exactly one,
// case-insensitive, compiled once to a regexp the way goproxy precompiles
// hasPort and httpsRegexp at package scope.
package glob

import (
	"regexp"
	"strings"
	"sync"
)

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*regexp.Regexp)
)

// Match reports whether s matches the glob pattern. "*" alone matches
// anything, including the empty string.
func Match(pattern, s string) bool {
	if pattern == "*" {
		return true
	}
	re := compile(pattern)
	return re.MatchString(s)
}

// MatchAny reports whether s matches at least one of patterns. An empty or
// nil pattern list means match anything for that dimension.
func MatchAny(patterns []string, s string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if Match(p, s) {
			return true
		}
	}
	return false
}

func compile(pattern string) *regexp.Regexp {
	cacheMu.RLock()
	re, ok := cache[pattern]
	cacheMu.RUnlock()
	if ok {
		return re
	}
	re = regexp.MustCompile("(?i)^" + translate(pattern) + "$")
	cacheMu.Lock()
	cache[pattern] = re
	cacheMu.Unlock()
	return re
}

// translate converts the glob grammar to a regexp body, escaping every
// character that has regexp meaning except the two glob wildcards.
func translate(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}
