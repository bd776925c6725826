package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// SanitizeBaseName converts an arbitrary title into a filesystem-safe base
// name for run directories. Accented characters are decomposed and stripped,
// separators become underscores, and everything else unsafe is dropped.
func SanitizeBaseName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "job"
	}

	decomposed := norm.NFKD.String(name)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining marks left over from decomposition
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case r == ' ' || r == '\t':
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "._-")
	if out == "" {
		return "job"
	}
	if len(out) > 80 {
		out = out[:80]
	}
	return out
}
