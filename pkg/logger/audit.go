package logger

import (
	"context"
	"log/slog"
	"time"
)

// FlowEvent is one step of a client-side verification flow
type FlowEvent struct {
	Variant       string
	EventType     string // initiate, verify, resend, reset_credential, abandon
	Identifier    string
	FromState     string
	ToState       string
	Success       bool
	FailureReason string
}

// ChallengeEvent is one decision taken by the authority about an OTP challenge
type ChallengeEvent struct {
	EventType     string // issue, verify, resend, reset_password, purge
	Purpose       string
	ChallengeID   string
	Email         string
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes structured audit records for OTP flows and challenges
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogFlowEvent records a flow transition or a failed flow operation
func (al *AuditLogger) LogFlowEvent(event FlowEvent) {
	if al == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("audit_type", "otp_flow"),
		slog.String("variant", event.Variant),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Identifier != "" {
		attrs = append(attrs, slog.String("identifier", SanitizedEmail(event.Identifier)))
	}
	if event.FromState != "" {
		attrs = append(attrs, slog.String("from_state", event.FromState))
	}
	if event.ToState != "" {
		attrs = append(attrs, slog.String("to_state", event.ToState))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	al.log(event.Success, attrs)
}

// LogChallengeEvent records an authority-side challenge decision
func (al *AuditLogger) LogChallengeEvent(event ChallengeEvent) {
	if al == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("audit_type", "otp_challenge"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Purpose != "" {
		attrs = append(attrs, slog.String("purpose", event.Purpose))
	}
	if event.ChallengeID != "" {
		attrs = append(attrs, slog.String("challenge_id", event.ChallengeID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.log(event.Success, attrs)
}

// LogPasswordChange logs password reset completions
func (al *AuditLogger) LogPasswordChange(email, ipAddress string, success bool) {
	if al == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("audit_type", "password"),
		slog.String("event_type", "password_reset"),
		slog.Bool("success", success),
		slog.String("email", SanitizedEmail(email)),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}

	al.log(success, attrs)
}

// LogLogin records a login attempt against the authority
func (al *AuditLogger) LogLogin(email, ipAddress string, success bool, failureReason string) {
	if al == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("audit_type", "authentication"),
		slog.String("event_type", "login"),
		slog.Bool("success", success),
		slog.String("email", SanitizedEmail(email)),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}
	if failureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", failureReason))
	}

	al.log(success, attrs)
}

func (al *AuditLogger) log(success bool, attrs []slog.Attr) {
	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}
