package utils

import (
	"fmt"
	"strings"
	"time"
)

const bytesPerMiB = 1024 * 1024

// FormatBytes converts bytes to a human-readable format (KB, MB, GB, etc.).
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// MiBPerSecond returns the throughput of n bytes over d in MiB/s.
// A non-positive duration yields 0.
func MiBPerSecond(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / bytesPerMiB / d.Seconds()
}

// FormatMBps renders a throughput value as "12.34 MB/s".
func FormatMBps(v float64) string {
	return fmt.Sprintf("%.2f MB/s", v)
}

// FormatClock renders a duration as hh:mm:ss.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// ParseBool converts a string to a boolean (supports multiple formats).
func ParseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on" || s == "enabled"
}

// TrimQuotes removes surrounding quotes from a string.
func TrimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// SplitKeyValue splits a "key=value" line into key and value. An optional
// "export " prefix is dropped, quoted values keep any '#' they contain and
// unquoted values lose a trailing inline comment.
func SplitKeyValue(line string) (string, string, bool) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(key), "export "))
	if key == "" {
		return "", "", false
	}
	value = strings.TrimSpace(value)

	if value != "" && (value[0] == '"' || value[0] == '\'') {
		if end := strings.IndexByte(value[1:], value[0]); end >= 0 {
			return key, value[1 : end+1], true
		}
		return key, TrimQuotes(value), true
	}
	if idx := strings.Index(value, " #"); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	return key, value, true
}

// IsComment checks whether a line is a comment (starts with #) or blank.
func IsComment(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "#") || trimmed == ""
}

// SplitList splits a comma, semicolon or whitespace separated list and drops
// empty items.
func SplitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n':
			return true
		}
		return false
	})
	out := parts[:0]
	for _, p := range parts {
		if p = TrimQuotes(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
