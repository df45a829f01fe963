package resolver

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/sonroyaalmerol/cuebot/internal/faults"
)

const (
	MaxReferenceLen = 1000
	MaxQueryLen     = 200
)

// References end up in a subprocess argument list, so these character sets
// are rejected outright rather than escaped. URLs may carry '&' in their
// query string; bare references may not.
const (
	urlForbidden   = ";|`$(){}[]\\'\"\n\r\t"
	bareForbidden  = ";&|`$(){}[]\\'\"\n\r\t"
	queryForbidden = ";&|`$()"
)

// ValidateReference checks a user supplied media reference before it reaches
// yt-dlp.
func ValidateReference(ref string) error {
	const op = "validate reference"

	if strings.TrimSpace(ref) == "" {
		return faults.UserInputf(op, "empty reference")
	}
	if len(ref) > MaxReferenceLen {
		return faults.UserInputf(op, "reference longer than %d characters", MaxReferenceLen)
	}
	if strings.HasPrefix(ref, "-") {
		return faults.UserInputf(op, "reference must not start with '-'")
	}

	if strings.HasPrefix(ref, "http") {
		if strings.ContainsAny(ref, urlForbidden) {
			return faults.UserInputf(op, "reference contains forbidden characters")
		}
		u, err := url.Parse(ref)
		if err != nil {
			return faults.UserInputf(op, "invalid URL")
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return faults.UserInputf(op, "unsupported scheme %q", u.Scheme)
		}
		if u.Host == "" {
			return faults.UserInputf(op, "URL has no host")
		}
		return nil
	}

	if strings.Contains(ref, "://") {
		return faults.UserInputf(op, "only http and https URLs are supported")
	}
	if strings.ContainsAny(ref, bareForbidden) {
		return faults.UserInputf(op, "reference contains forbidden characters")
	}
	if strings.Contains(ref, "..") {
		return faults.UserInputf(op, "reference must not contain '..'")
	}
	return nil
}

func ValidateQuery(query string) error {
	const op = "validate query"

	if strings.TrimSpace(query) == "" {
		return faults.UserInputf(op, "empty search query")
	}
	if len(query) > MaxQueryLen {
		return faults.UserInputf(op, "query longer than %d characters", MaxQueryLen)
	}
	if strings.ContainsAny(query, queryForbidden) {
		return faults.UserInputf(op, "query contains forbidden characters")
	}
	if strings.HasPrefix(query, "-") {
		return faults.UserInputf(op, "query must not start with '-'")
	}
	return nil
}

// SanitizeQuery turns catalog metadata into text that passes ValidateQuery.
// Forbidden characters become spaces, runs of whitespace collapse and the
// result is cut to MaxQueryLen.
func SanitizeQuery(s string) string {
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(queryForbidden, r) {
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimLeft(s, "- ")
	for len(s) > MaxQueryLen {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return strings.TrimSpace(s)
}
