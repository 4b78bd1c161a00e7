package logging

import (
	"regexp"
)

const (
	// MaxBodyLogLength is the maximum length of a remote response body to log
	MaxBodyLogLength = 256
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Graph credentials travel as query parameters, so they show up in request
	// URLs, paging cursors and transport errors.
	graphTokenPattern = regexp.MustCompile(`(?i)(access_token|appsecret_proof|input_token|client_secret)=[^&\s"]+`)

	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)

	signaturePattern = regexp.MustCompile(`sha256=[0-9a-fA-F]{16,}`)
)

// SanitizeURL removes Graph credentials from a URL before it is logged.
func SanitizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	return graphTokenPattern.ReplaceAllString(rawURL, "${1}="+RedactedText)
}

// SanitizeConnectionString removes sensitive data from connection strings
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError renders err with tokens, passwords and signatures redacted.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	sanitized := graphTokenPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = passwordPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	return signaturePattern.ReplaceAllString(sanitized, "sha256="+RedactedText)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
