package models

import (
	"fmt"
	"time"
)

// TokenSession is one issued OTP challenge as seen by the client.
// It is immutable: a resend produces a new value.
type TokenSession struct {
	Identifier       string
	CorrelationToken string
	ExpiresAt        time.Time
}

// NewTokenSession builds a session from an issuance response.
// expiresAt must be strictly after now.
func NewTokenSession(identifier, correlationToken string, expiresAt, now time.Time) (TokenSession, error) {
	if correlationToken == "" {
		return TokenSession{}, fmt.Errorf("%w: missing correlation token", ErrSessionExpiredOnIssue)
	}
	if !expiresAt.After(now) {
		return TokenSession{}, fmt.Errorf("%w: expires_at %s is not after %s",
			ErrSessionExpiredOnIssue,
			expiresAt.UTC().Format(time.RFC3339),
			now.UTC().Format(time.RFC3339))
	}

	return TokenSession{
		Identifier:       identifier,
		CorrelationToken: correlationToken,
		ExpiresAt:        expiresAt.UTC(),
	}, nil
}

// RemainingSeconds returns max(0, floor((ExpiresAt-now)/1s))
func (s TokenSession) RemainingSeconds(now time.Time) int {
	return RemainingSeconds(s.ExpiresAt, now)
}

// RemainingSeconds is the countdown for an absolute expiry.
// It is recomputed from the clock on every call so suspend/resume never skews it.
func RemainingSeconds(expiresAt, now time.Time) int {
	d := expiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

// CanResend reports whether a new code may be requested.
// A nil session never allows a resend.
func CanResend(session *TokenSession, now time.Time) bool {
	return session != nil && session.RemainingSeconds(now) == 0
}

// FormatRemaining renders seconds as zero-padded MM:SS
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
