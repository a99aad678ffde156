package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/otpflow/internal/models"
)

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestAWSSESEmailService_SendOTPEmail(t *testing.T) {
	client := &fakeSES{}
	svc := newSESEmailService(client, "no-reply@otpflow.local", slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return now }

	err := svc.SendOTPEmail(context.Background(), "a@b.com", "123456", models.PurposePasswordReset, now.Add(2*time.Minute))
	require.NoError(t, err)

	require.NotNil(t, client.input)
	assert.Equal(t, "no-reply@otpflow.local", aws.ToString(client.input.Source))
	assert.Equal(t, []string{"a@b.com"}, client.input.Destination.ToAddresses)
	assert.Equal(t, "Your password reset code", aws.ToString(client.input.Message.Subject.Data))
	assert.Contains(t, aws.ToString(client.input.Message.Body.Text.Data), "123456")
	assert.Contains(t, aws.ToString(client.input.Message.Body.Text.Data), "expires in 2 minutes")
	assert.Contains(t, aws.ToString(client.input.Message.Body.Html.Data), "123456")
}

func TestAWSSESEmailService_SendFailure(t *testing.T) {
	client := &fakeSES{err: errors.New("throttled")}
	svc := newSESEmailService(client, "no-reply@otpflow.local", slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := svc.SendOTPEmail(context.Background(), "a@b.com", "123456", models.PurposeSignup, time.Now().Add(5*time.Minute))
	assert.ErrorContains(t, err, "failed to send email")
}

func TestValidFor(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "5 minutes", validFor(now.Add(5*time.Minute), now))
	assert.Equal(t, "5 minutes", validFor(now.Add(4*time.Minute+time.Second), now))
	assert.Equal(t, "1 minute", validFor(now.Add(30*time.Second), now))
	assert.Equal(t, "1 minute", validFor(now, now))
}

func TestLogEmailService_LogsCode(t *testing.T) {
	var buf bytes.Buffer
	svc := NewLogEmailService(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := svc.SendOTPEmail(context.Background(), "a@b.com", "654321", models.PurposeSignup, time.Now().Add(time.Minute))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"otp":"654321"`)
	assert.Contains(t, buf.String(), `"purpose":"signup"`)
}
