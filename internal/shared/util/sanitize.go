package util

import (
	"errors"
	"strings"
	"unicode"
)

const maxFileNameRunes = 128

// ErrInvalidFileName is returned for names that cannot be used in an archive key.
var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName flattens an uploaded file name into a single key segment.
// Separators become underscores, control characters are dropped and long names are truncated.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	var b strings.Builder
	n := 0
	for _, r := range strings.TrimSpace(name) {
		if n == maxFileNameRunes {
			break
		}
		switch {
		case r == '/' || r == '\\':
			b.WriteRune('_')
		case unicode.IsControl(r):
			continue
		default:
			b.WriteRune(r)
		}
		n++
	}
	s := strings.TrimSpace(b.String())
	if s == "" {
		return "", ErrInvalidFileName
	}
	return s, nil
}
