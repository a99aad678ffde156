// Package verifier talks to the OTP authority over HTTP.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/otpflow/internal/flow"
	"github.com/BradenHooton/otpflow/internal/models"
	"github.com/BradenHooton/otpflow/pkg/logger"
	"github.com/sethvargo/go-retry"
)

// maxResponseBytes caps how much of an authority response is read
const maxResponseBytes = 64 << 10

// HTTPVerifier implements flow.RemoteVerifier against the authority's JSON API
type HTTPVerifier struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	env     string
}

// NewHTTPVerifier creates a verifier for the authority at baseURL
func NewHTTPVerifier(baseURL string, timeout time.Duration, logger *slog.Logger, env string) *HTTPVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		env:     env,
	}
}

var _ flow.RemoteVerifier = (*HTTPVerifier)(nil)

type issuedResponse struct {
	SignupToken string    `json:"signup_token"`
	ResetToken  string    `json:"reset_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (r issuedResponse) token() string {
	if r.SignupToken != "" {
		return r.SignupToken
	}
	return r.ResetToken
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// tokenField is the JSON name the authority uses for the correlation token
func tokenField(variant models.FlowVariant) string {
	if variant == models.FlowForgotPassword {
		return "reset_token"
	}
	return "signup_token"
}

// Initiate opens a signup or password-reset challenge
func (v *HTTPVerifier) Initiate(ctx context.Context, variant models.FlowVariant, req flow.InitiateRequest) (models.TokenSession, error) {
	var (
		path string
		body map[string]string
	)
	switch variant {
	case models.FlowSignup:
		path = "/auth/signup"
		body = map[string]string{"name": req.Name, "email": req.Identifier, "password": req.Credential}
	case models.FlowForgotPassword:
		path = "/auth/forgot-password"
		body = map[string]string{"email": req.Identifier}
	default:
		return models.TokenSession{}, models.ErrUnsupportedVariant
	}

	var resp issuedResponse
	if err := v.post(ctx, "initiate", path, body, &resp); err != nil {
		return models.TokenSession{}, err
	}

	v.logger.Debug("challenge issued",
		slog.String("identifier", logger.SanitizedEmail(req.Identifier)),
		logger.RedactedAttr("correlation_token", resp.token(), v.env),
		slog.Time("expires_at", resp.ExpiresAt))

	return models.TokenSession{
		Identifier:       req.Identifier,
		CorrelationToken: resp.token(),
		ExpiresAt:        resp.ExpiresAt,
	}, nil
}

// Verify submits a code for the challenge bound to correlationToken
func (v *HTTPVerifier) Verify(ctx context.Context, variant models.FlowVariant, correlationToken, identifier, code string) error {
	path := "/auth/verify-otp"
	if variant == models.FlowForgotPassword {
		path = "/auth/verify-forgot-otp"
	}

	body := map[string]string{
		tokenField(variant): correlationToken,
		"email":             identifier,
		"otp":               code,
	}
	return v.post(ctx, "verify", path, body, nil)
}

// Resend asks for a replacement code once the current one has expired
func (v *HTTPVerifier) Resend(ctx context.Context, variant models.FlowVariant, correlationToken, identifier string) (models.TokenSession, error) {
	path := "/auth/resend-otp"
	if variant == models.FlowForgotPassword {
		path = "/auth/resend-forgot-otp"
	}

	body := map[string]string{
		tokenField(variant): correlationToken,
		"email":             identifier,
	}

	var resp issuedResponse
	if err := v.post(ctx, "resend", path, body, &resp); err != nil {
		return models.TokenSession{}, err
	}

	return models.TokenSession{
		Identifier:       identifier,
		CorrelationToken: resp.token(),
		ExpiresAt:        resp.ExpiresAt,
	}, nil
}

// ResetCredential sets a new password after a verified reset challenge
func (v *HTTPVerifier) ResetCredential(ctx context.Context, correlationToken, identifier, newCredential, confirmCredential string) error {
	body := map[string]string{
		"reset_token":      correlationToken,
		"email":            identifier,
		"new_password":     newCredential,
		"confirm_password": confirmCredential,
	}
	return v.post(ctx, "reset_credential", "/auth/reset-password", body, nil)
}

// post sends body as JSON and decodes a 2xx response into out.
// 4xx responses become a RemoteRejection; everything else is a TransportFailure.
func (v *HTTPVerifier) post(ctx context.Context, op, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &models.TransportFailure{Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &models.TransportFailure{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Warn("authority unreachable",
			slog.String("op", op),
			slog.String("path", path),
			slog.Any("error", err))
		return &models.TransportFailure{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &models.TransportFailure{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return &models.TransportFailure{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
		return nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var er errorResponse
		_ = json.Unmarshal(raw, &er)
		detail := er.Detail
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return &models.RemoteRejection{
			Status: resp.StatusCode,
			Code:   er.Error,
			Detail: detail,
		}

	default:
		return &models.TransportFailure{Op: op, Err: fmt.Errorf("authority returned status %d", resp.StatusCode)}
	}
}

// WaitReady polls GET /health until the authority answers 200 or attempts run out
func (v *HTTPVerifier) WaitReady(ctx context.Context, attempts uint64) error {
	b := retry.NewFibonacci(100 * time.Millisecond)
	b = retry.WithCappedDuration(2*time.Second, b)
	b = retry.WithMaxRetries(attempts, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/health", nil)
		if err != nil {
			return err
		}

		resp, err := v.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode != http.StatusOK {
			return retry.RetryableError(errors.New("authority health check returned " + resp.Status))
		}
		return nil
	})
}
