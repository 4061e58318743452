package ratelimit

import (
	"strings"
)

// MatchEndpoint returns the first configuration whose pattern matches the
// request, or nil when the default limit applies.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	segments := splitPath(path)
	for i := range configs {
		if configs[i].matches(method, segments) {
			return &configs[i]
		}
	}
	return nil
}

// matches reports whether the request fits the pattern "METHOD /a/{wild}/c".
// A {name} segment matches exactly one non-empty path segment.
func (c *EndpointConfig) matches(method string, segments []string) bool {
	patMethod, patPath, ok := strings.Cut(c.Pattern, " ")
	if !ok || patMethod != method {
		return false
	}
	want := splitPath(patPath)
	if len(want) != len(segments) {
		return false
	}
	for i, w := range want {
		if strings.HasPrefix(w, "{") && strings.HasSuffix(w, "}") {
			if segments[i] == "" {
				return false
			}
			continue
		}
		if w != segments[i] {
			return false
		}
	}
	return true
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}
