package simplemusic

import "strings"

// normalizeText trims surrounding whitespace from a user supplied field.
func normalizeText(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// applyText replaces *dst with the trimmed value of src when src is set and
// not blank.
func applyText(dst *string, src *string) {
	if src == nil {
		return
	}
	if v := normalizeText(*src); v != "" {
		*dst = v
	}
}
