// Package language normalizes the language tags stored on jobs and sent to
// the provider.
package language

import "strings"

// NormalizeTag lowercases a tag and joins its subtags with "-" ("ZH_Hans"
// becomes "zh-hans"). The primary subtag must be 2-3 letters; later subtags
// may hold digits ("es-419"). Invalid tags normalize to "".
func NormalizeTag(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return ""
	}

	parts := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == '-' || r == '_'
	})
	if len(parts) == 0 {
		return ""
	}
	if len(parts[0]) < 2 || len(parts[0]) > 3 || !isAlpha(parts[0]) {
		return ""
	}
	for _, part := range parts[1:] {
		if len(part) > 8 || !isAlphaNum(part) {
			return ""
		}
	}
	return strings.Join(parts, "-")
}

// Equal reports whether two tags normalize to the same non-empty value.
func Equal(a, b string) bool {
	na := NormalizeTag(a)
	return na != "" && na == NormalizeTag(b)
}

func isAlpha(value string) bool {
	for _, r := range value {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func isAlphaNum(value string) bool {
	for _, r := range value {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
