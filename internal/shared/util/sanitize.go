package util

import (
	"path"
	"strings"
)

const maxFileNameLength = 100

// SanitizeFileName rewrites an untrusted filename into a safe form. It never
// fails: traversal sequences, separators, null bytes, and control characters
// are stripped or replaced, and the result is length-capped. An unusable input
// collapses to "document".
func SanitizeFileName(name string) string {
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "\x00", "")
	// Keep only the final path element of whatever the client sent.
	s = strings.ReplaceAll(s, "\\", "/")
	s = path.Base(s)
	s = strings.ReplaceAll(s, "..", "_")

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_' || r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s = strings.TrimSpace(b.String())
	s = strings.TrimLeft(s, ".")

	if len(s) > maxFileNameLength {
		ext := path.Ext(s)
		if len(ext) > 10 {
			ext = ""
		}
		s = s[:maxFileNameLength-len(ext)] + ext
	}
	if s == "" {
		return "document"
	}
	return s
}
