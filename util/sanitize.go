// Package util holds text scrubbing shared by the sinks and the logs.
package util

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxSanitizeLength is the maximum input length; longer input is truncated
// before scrubbing
const MaxSanitizeLength = 64 * 1024

var secretPatterns = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)(password|passwd|pwd)[\s:=]+[^\s]+`), "$1=REDACTED"},
	{regexp.MustCompile(`(?i)(token|authorization)[\s:=]+[^\s]+`), "$1=REDACTED"},
	{regexp.MustCompile(`(?i)(secret|secret[_-]?key)[\s:=]+[^\s]+`), "$1=REDACTED"},
	// Credentials embedded in URLs, e.g. redis://:pass@host:6379
	{regexp.MustCompile(`([a-z][a-z0-9+.-]*://)[^/\s:@]*:[^/\s@]+@`), "${1}REDACTED@"},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "REDACTED_AWS_KEY"},
	{regexp.MustCompile(`hvs\.[A-Za-z0-9_-]{20,}`), "REDACTED_VAULT_TOKEN"},
}

// SanitizeError renders err with credentials redacted. SMTP and Redis
// errors can echo the credentials that were sent.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error())
}

// SanitizeString redacts credentials from s
func SanitizeString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) > MaxSanitizeLength {
		s = s[:MaxSanitizeLength] + "... [truncated]"
	}
	for _, p := range secretPatterns {
		s = p.pattern.ReplaceAllString(s, p.replacement)
	}
	return s
}

// StripControl replaces control characters with a space. Filenames come
// from TFTP clients, and a newline in one would forge an extra syslog line.
func StripControl(s string) string {
	if strings.IndexFunc(s, unicode.IsControl) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}
