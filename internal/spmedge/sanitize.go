package spmedge

import (
	"path/filepath"
	"strings"
	"unicode"
)

// maxBaseLen bounds the sanitized base name, extension excluded.
const maxBaseLen = 100

// SanitizeFilename reduces name to a safe ASCII form: letters, digits,
// '-', '_' and '.' survive; whitespace and path separators become '_';
// everything else is dropped. The base (before the extension) is truncated
// to 100 characters. Sanitization is idempotent.
func SanitizeFilename(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	base = sanitizePart(base)
	ext = sanitizePart(ext)

	if len(base) > maxBaseLen {
		base = base[:maxBaseLen]
	}
	return base + ext
}

func sanitizePart(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '-' || r == '_' || r == '.':
			if r == '_' {
				if lastUnderscore {
					continue
				}
				lastUnderscore = true
			} else {
				lastUnderscore = false
			}
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '/' || r == '\\':
			if lastUnderscore {
				continue
			}
			b.WriteByte('_')
			lastUnderscore = true
		default:
			// dropped
		}
	}
	return b.String()
}

// FallbackName returns the replacement used when sanitization reduces a
// name to the empty string.
func FallbackName(id string) string {
	return "doc_" + ShortID(id)
}
