package relay

import (
	"strings"
	"unicode"
)

// MaxFilenameLength bounds the sanitized base name, extension excluded.
const MaxFilenameLength = 100

// FallbackFilename replaces names that sanitize to nothing.
const FallbackFilename = "download"

// SanitizeFilename turns a caller-supplied name into a safe
// Content-Disposition filename and appends extension.
//
// A trailing copy of extension is dropped first so "clip.mp4" does not
// become "clip.mp4.mp4". Every character other than ASCII letters, digits,
// '-', '_' and '.' becomes '_', runs of '_' collapse, leading and trailing
// '_' are trimmed and the result is cut to MaxFilenameLength.
func SanitizeFilename(raw, extension string) string {
	base := raw
	if extension != "" && len(base) >= len(extension) &&
		strings.EqualFold(base[len(base)-len(extension):], extension) {
		base = base[:len(base)-len(extension)]
	}

	var b strings.Builder
	b.Grow(len(base))
	lastUnderscore := false
	for _, r := range base {
		if !isFilenameRune(r) || unicode.IsSpace(r) {
			r = '_'
		}
		if r == '_' {
			if lastUnderscore {
				continue
			}
			lastUnderscore = true
		} else {
			lastUnderscore = false
		}
		b.WriteRune(r)
	}

	name := strings.Trim(b.String(), "_")
	if len(name) > MaxFilenameLength {
		name = name[:MaxFilenameLength]
	}
	if name == "" {
		name = FallbackFilename
	}

	return name + extension
}

func isFilenameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.':
		return true
	}
	return false
}
