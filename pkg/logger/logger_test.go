package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizedEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"alice@example.com", "a****@*******.com"},
		{"a@b.com", "a@*.com"},
		{"bob@localhost", "b**@localhost"},
		{"not-an-email", "[invalid-email]"},
		{"", "[invalid-email]"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, SanitizedEmail(tt.input), tt.input)
	}
}

func TestTokenFingerprint(t *testing.T) {
	assert.Equal(t, "[REDACTED]", TokenFingerprint("short"))
	assert.Equal(t, "eyJh...wxyz", TokenFingerprint("eyJhbGciOiJIUzI1NiJ9.payload.wxyz"))
}

func TestRedactedAttr(t *testing.T) {
	token := "eyJhbGciOiJIUzI1NiJ9.payload.sig1"

	assert.Equal(t, token, RedactedAttr("token", token, "development").Value.String())
	assert.Equal(t, "eyJh...sig1", RedactedAttr("token", token, "production").Value.String())
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("reset_token=abc"))
	assert.True(t, SanitizeQueryString("OTP=123456"))
	assert.True(t, SanitizeQueryString("email=a%40b.com"))
	assert.False(t, SanitizeQueryString("page=2&limit=10"))
	assert.False(t, SanitizeQueryString(""))
}

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	return record
}

func TestAuditLogger_LogFlowEvent(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogFlowEvent(FlowEvent{
		Variant:    "signup",
		EventType:  "verify",
		Identifier: "alice@example.com",
		FromState:  "awaiting_code",
		ToState:    "completed",
		Success:    true,
	})

	record := decodeRecord(t, &buf)
	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, "otp_flow", record["audit_type"])
	assert.Equal(t, "a****@*******.com", record["identifier"])
	assert.Equal(t, "completed", record["to_state"])
	assert.NotContains(t, buf.String(), "alice@example.com")
}

func TestAuditLogger_FailuresLogAtWarn(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogChallengeEvent(ChallengeEvent{
		EventType:     "verify",
		Purpose:       "signup",
		ChallengeID:   "c-1",
		Email:         "alice@example.com",
		Success:       false,
		FailureReason: "invalid_code",
		Metadata:      map[string]string{"attempts": "2"},
	})

	record := decodeRecord(t, &buf)
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "otp_challenge", record["audit_type"])
	assert.Equal(t, "invalid_code", record["failure_reason"])
	assert.Equal(t, "2", record["attempts"])
}

func TestAuditLogger_NilIsNoop(t *testing.T) {
	var al *AuditLogger

	assert.NotPanics(t, func() {
		al.LogFlowEvent(FlowEvent{EventType: "initiate"})
		al.LogChallengeEvent(ChallengeEvent{EventType: "issue"})
		al.LogPasswordChange("a@b.com", "", true)
		al.LogLogin("a@b.com", "", false, "invalid_password")
	})
}
