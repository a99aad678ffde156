package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/otpflow/internal/models"
	pkghttp "github.com/BradenHooton/otpflow/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks the status and error body, returning the detail
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) string {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Detail, "Error detail should not be empty")
	return resp.Detail
}

// MockOTPService implements OTPServiceInterface for testing
type MockOTPService struct {
	SignupFunc         func(ctx context.Context, name, email, password, ipAddress string) (*models.IssuedChallenge, error)
	VerifySignupFunc   func(ctx context.Context, token, email, code, ipAddress string) error
	ResendSignupFunc   func(ctx context.Context, token, email, ipAddress string) (*models.IssuedChallenge, error)
	ForgotPasswordFunc func(ctx context.Context, email, ipAddress string) (*models.IssuedChallenge, error)
	VerifyResetFunc    func(ctx context.Context, token, email, code, ipAddress string) error
	ResendResetFunc    func(ctx context.Context, token, email, ipAddress string) (*models.IssuedChallenge, error)
	ResetPasswordFunc  func(ctx context.Context, token, email, newPassword, confirmPassword, ipAddress string) error
	LoginFunc          func(ctx context.Context, email, password, ipAddress string) (*models.AccessToken, error)
}

func (m *MockOTPService) Signup(ctx context.Context, name, email, password, ipAddress string) (*models.IssuedChallenge, error) {
	if m.SignupFunc != nil {
		return m.SignupFunc(ctx, name, email, password, ipAddress)
	}
	return nil, models.ErrNotFound
}

func (m *MockOTPService) VerifySignup(ctx context.Context, token, email, code, ipAddress string) error {
	if m.VerifySignupFunc != nil {
		return m.VerifySignupFunc(ctx, token, email, code, ipAddress)
	}
	return nil
}

func (m *MockOTPService) ResendSignup(ctx context.Context, token, email, ipAddress string) (*models.IssuedChallenge, error) {
	if m.ResendSignupFunc != nil {
		return m.ResendSignupFunc(ctx, token, email, ipAddress)
	}
	return nil, models.ErrResendTooSoon
}

func (m *MockOTPService) ForgotPassword(ctx context.Context, email, ipAddress string) (*models.IssuedChallenge, error) {
	if m.ForgotPasswordFunc != nil {
		return m.ForgotPasswordFunc(ctx, email, ipAddress)
	}
	return nil, models.ErrNotFound
}

func (m *MockOTPService) VerifyReset(ctx context.Context, token, email, code, ipAddress string) error {
	if m.VerifyResetFunc != nil {
		return m.VerifyResetFunc(ctx, token, email, code, ipAddress)
	}
	return nil
}

func (m *MockOTPService) ResendReset(ctx context.Context, token, email, ipAddress string) (*models.IssuedChallenge, error) {
	if m.ResendResetFunc != nil {
		return m.ResendResetFunc(ctx, token, email, ipAddress)
	}
	return nil, models.ErrResendTooSoon
}

func (m *MockOTPService) ResetPassword(ctx context.Context, token, email, newPassword, confirmPassword, ipAddress string) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, token, email, newPassword, confirmPassword, ipAddress)
	}
	return nil
}

func (m *MockOTPService) Login(ctx context.Context, email, password, ipAddress string) (*models.AccessToken, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password, ipAddress)
	}
	return nil, models.ErrInvalidCredentials
}
