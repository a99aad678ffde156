package logger

import (
	"log/slog"
	"strings"
)

// SanitizedEmail masks an email address for logging (e.g., "u***@e***.com")
func SanitizedEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "[invalid-email]"
	}

	username := parts[0]
	domain := parts[1]

	if len(username) > 1 {
		username = string(username[0]) + strings.Repeat("*", len(username)-1)
	}

	// keep the TLD
	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	}

	return username + "@" + domain
}

// TokenFingerprint shortens an opaque token so log lines can be correlated
// without exposing a usable value
func TokenFingerprint(token string) string {
	if len(token) <= 8 {
		return "[REDACTED]"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// RedactedAttr returns a redacted slog attribute for sensitive values.
// Development keeps the raw value, every other environment gets a fingerprint.
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "development" {
		return slog.String(key, value)
	}
	return slog.String(key, TokenFingerprint(value))
}

var sensitiveParams = []string{
	"password",
	"token",
	"otp",
	"code",
	"secret",
	"email",
}

// SanitizeQueryString reports whether a query string carries a sensitive
// parameter and must be redacted as a whole
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
