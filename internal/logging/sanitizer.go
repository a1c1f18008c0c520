package logging

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// Sanitizer redacts credentials from log messages and attributes.
type Sanitizer struct {
	patterns []*regexp.Regexp
}

// NewSanitizer creates a sanitizer covering the provider key formats slate
// handles.
func NewSanitizer() *Sanitizer {
	patterns := []string{
		// OpenRouter
		`sk-or-v1-[a-zA-Z0-9]{32,}`,
		// Anthropic
		`sk-ant-[a-zA-Z0-9-]{40,}`,
		// OpenAI
		`sk-(?:proj-)?[A-Za-z0-9_-]{20,}`,
		// Bearer headers
		`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`,
		// key=value style leaks
		`(?i)api[_-]?key["'\s:=]+[a-zA-Z0-9_-]{20,}`,
		`(?i)password["'\s:=]+[^\s"']{8,}`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return &Sanitizer{patterns: compiled}
}

// Sanitize redacts sensitive substrings.
func (s *Sanitizer) Sanitize(input string) string {
	result := input
	for _, pattern := range s.patterns {
		result = pattern.ReplaceAllString(result, redacted)
	}
	return result
}

// SensitiveKey reports whether an attribute key names a credential, in which
// case its whole value is replaced.
func SensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, marker := range []string{"api_key", "apikey", "password", "secret", "authorization", "token"} {
		if strings.Contains(k, marker) && !strings.HasSuffix(k, "_tokens") {
			return true
		}
	}
	return false
}
