package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/BradenHooton/otpflow/internal/models"
	"github.com/BradenHooton/otpflow/pkg/logger"
)

// EmailService defines the interface for delivering one-time codes
type EmailService interface {
	SendOTPEmail(ctx context.Context, email, code string, purpose models.ChallengePurpose, expiresAt time.Time) error
}

// sesSender is the part of the SES client the email service uses
type sesSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   sesSender
	fromAddress string
	clock       func() time.Time
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newSESEmailService(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

func newSESEmailService(client sesSender, fromAddress string, logger *slog.Logger) *AWSSESEmailService {
	return &AWSSESEmailService{
		sesClient:   client,
		fromAddress: fromAddress,
		clock:       time.Now,
		logger:      logger,
	}
}

func otpSubject(purpose models.ChallengePurpose) string {
	if purpose == models.PurposePasswordReset {
		return "Your password reset code"
	}
	return "Verify your email address"
}

func otpIntro(purpose models.ChallengePurpose) string {
	if purpose == models.PurposePasswordReset {
		return "We received a request to reset your password. Enter this code to continue:"
	}
	return "Thank you for creating an account. Enter this code to verify your email address:"
}

// validFor renders the remaining lifetime of a code, rounded up to whole minutes
func validFor(expiresAt, now time.Time) string {
	minutes := int((expiresAt.Sub(now) + time.Minute - 1) / time.Minute)
	if minutes <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

// SendOTPEmail sends the one-time code to the user
func (s *AWSSESEmailService) SendOTPEmail(ctx context.Context, email, code string, purpose models.ChallengePurpose, expiresAt time.Time) error {
	lifetime := validFor(expiresAt, s.clock())

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; padding: 20px; background-color: #f8f9fa; border-radius: 4px; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <p>%s</p>
        <p class="code">%s</p>
        <p>This code expires in %s. If you did not request it, you can ignore this email.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, otpIntro(purpose), code, lifetime)

	textBody := fmt.Sprintf(`%s

%s

This code expires in %s. If you did not request it, you can ignore this email.

This is an automated message. Please do not reply to this email.
`, otpIntro(purpose), code, lifetime)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(otpSubject(purpose)),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send otp email via SES",
			slog.String("email", logger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("otp email sent",
		slog.String("email", logger.SanitizedEmail(email)),
		slog.String("purpose", string(purpose)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

// LogEmailService writes codes to the structured log instead of sending mail.
// It is selected when no AWS region is configured.
type LogEmailService struct {
	logger *slog.Logger
}

// NewLogEmailService creates a log-only email service
func NewLogEmailService(logger *slog.Logger) *LogEmailService {
	return &LogEmailService{logger: logger}
}

// SendOTPEmail logs the code
func (s *LogEmailService) SendOTPEmail(ctx context.Context, email, code string, purpose models.ChallengePurpose, expiresAt time.Time) error {
	s.logger.Warn("otp email not sent, delivery is log-only",
		slog.String("email", email),
		slog.String("purpose", string(purpose)),
		slog.String("otp", code),
		slog.String("expires_at", expiresAt.UTC().Format(time.RFC3339)))
	return nil
}
