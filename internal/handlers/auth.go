package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	otpauth "github.com/BradenHooton/otpflow/internal/auth"
	"github.com/BradenHooton/otpflow/internal/models"
	"github.com/BradenHooton/otpflow/pkg/auth"
	pkghttp "github.com/BradenHooton/otpflow/pkg/http"
	"github.com/go-chi/chi/v5/middleware"
)

// OTPServiceInterface defines the interface for OTP challenge business logic
type OTPServiceInterface interface {
	Signup(ctx context.Context, name, email, password, ipAddress string) (*models.IssuedChallenge, error)
	VerifySignup(ctx context.Context, token, email, code, ipAddress string) error
	ResendSignup(ctx context.Context, token, email, ipAddress string) (*models.IssuedChallenge, error)
	ForgotPassword(ctx context.Context, email, ipAddress string) (*models.IssuedChallenge, error)
	VerifyReset(ctx context.Context, token, email, code, ipAddress string) error
	ResendReset(ctx context.Context, token, email, ipAddress string) (*models.IssuedChallenge, error)
	ResetPassword(ctx context.Context, token, email, newPassword, confirmPassword, ipAddress string) error
	Login(ctx context.Context, email, password, ipAddress string) (*models.AccessToken, error)
}

// AuthHandler serves the signup, password-reset and login endpoints
type AuthHandler struct {
	service      OTPServiceInterface
	ipConfig     *pkghttp.IPConfig
	logger       *slog.Logger
	failureDelay *otpauth.TimingDelay
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service OTPServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// WithFailureDelay pads failed OTP verifications and logins; nil disables padding
func (h *AuthHandler) WithFailureDelay(delay *otpauth.TimingDelay) *AuthHandler {
	h.failureDelay = delay
	return h
}

// Request DTOs

// SignupRequest represents the request body for signup
type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// VerifySignupRequest represents the request body for signup OTP verification
type VerifySignupRequest struct {
	SignupToken string `json:"signup_token" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	OTP         string `json:"otp" validate:"required,numeric,min=4,max=8"`
}

// ResendSignupRequest represents the request body for resending a signup OTP
type ResendSignupRequest struct {
	SignupToken string `json:"signup_token" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
}

// ForgotPasswordRequest represents the request body for starting a password reset
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyResetRequest represents the request body for reset OTP verification
type VerifyResetRequest struct {
	ResetToken string `json:"reset_token" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	OTP        string `json:"otp" validate:"required,numeric,min=4,max=8"`
}

// ResendResetRequest represents the request body for resending a reset OTP
type ResendResetRequest struct {
	ResetToken string `json:"reset_token" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest represents the request body for setting a new password
type ResetPasswordRequest struct {
	ResetToken      string `json:"reset_token" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	NewPassword     string `json:"new_password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Response DTOs

// LoginResponse carries the bearer token issued on login
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SignupTokenResponse is returned when a signup challenge is issued
type SignupTokenResponse struct {
	SignupToken string    `json:"signup_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ResetTokenResponse is returned when a reset challenge is issued
type ResetTokenResponse struct {
	ResetToken string    `json:"reset_token"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// decode reads and validates a request body, writing a 400 on failure
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := pkghttp.DecodeJSON(w, r, dst); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if err := ValidateRequest(dst); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// Signup handles account creation and sends the signup OTP
// @Router /auth/signup [post]
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decode(w, r, &req) {
		return
	}

	issued, err := h.service.Signup(r.Context(), req.Name, req.Email, req.Password, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, SignupTokenResponse{
		SignupToken: issued.CorrelationToken,
		ExpiresAt:   issued.ExpiresAt.UTC(),
	})
}

// VerifySignup handles signup OTP verification
// @Router /auth/verify-otp [post]
func (h *AuthHandler) VerifySignup(w http.ResponseWriter, r *http.Request) {
	var req VerifySignupRequest
	if !decode(w, r, &req) {
		return
	}

	start := time.Now()
	err := h.service.VerifySignup(r.Context(), req.SignupToken, req.Email, req.OTP, pkghttp.ExtractClientIP(r, h.ipConfig))
	h.failureDelay.WaitFrom(start, err == nil)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteMessage(w, "Email verified successfully")
}

// ResendSignup handles reissuing an expired signup OTP
// @Router /auth/resend-otp [post]
func (h *AuthHandler) ResendSignup(w http.ResponseWriter, r *http.Request) {
	var req ResendSignupRequest
	if !decode(w, r, &req) {
		return
	}

	issued, err := h.service.ResendSignup(r.Context(), req.SignupToken, req.Email, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SignupTokenResponse{
		SignupToken: issued.CorrelationToken,
		ExpiresAt:   issued.ExpiresAt.UTC(),
	})
}

// ForgotPassword handles starting a password reset
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	issued, err := h.service.ForgotPassword(r.Context(), req.Email, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ResetTokenResponse{
		ResetToken: issued.CorrelationToken,
		ExpiresAt:  issued.ExpiresAt.UTC(),
	})
}

// VerifyReset handles reset OTP verification
// @Router /auth/verify-forgot-otp [post]
func (h *AuthHandler) VerifyReset(w http.ResponseWriter, r *http.Request) {
	var req VerifyResetRequest
	if !decode(w, r, &req) {
		return
	}

	start := time.Now()
	err := h.service.VerifyReset(r.Context(), req.ResetToken, req.Email, req.OTP, pkghttp.ExtractClientIP(r, h.ipConfig))
	h.failureDelay.WaitFrom(start, err == nil)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteMessage(w, "OTP verified successfully")
}

// ResendReset handles reissuing an expired reset OTP
// @Router /auth/resend-forgot-otp [post]
func (h *AuthHandler) ResendReset(w http.ResponseWriter, r *http.Request) {
	var req ResendResetRequest
	if !decode(w, r, &req) {
		return
	}

	issued, err := h.service.ResendReset(r.Context(), req.ResetToken, req.Email, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ResetTokenResponse{
		ResetToken: issued.CorrelationToken,
		ExpiresAt:  issued.ExpiresAt.UTC(),
	})
}

// ResetPassword handles setting a new password after reset OTP verification
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	err := h.service.ResetPassword(r.Context(), req.ResetToken, req.Email, req.NewPassword, req.ConfirmPassword, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteMessage(w, "Password reset successfully")
}

// Login exchanges a verified account's credentials for an access token
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	start := time.Now()
	token, err := h.service.Login(r.Context(), req.Email, req.Password, pkghttp.ExtractClientIP(r, h.ipConfig))
	h.failureDelay.WaitFrom(start, err == nil)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Invalid credentials")
		case errors.Is(err, models.ErrEmailNotVerified):
			pkghttp.WriteForbidden(w, "Email not verified. Please verify OTP.")
		default:
			h.writeServiceError(w, r, err)
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		AccessToken: token.Token,
		TokenType:   "bearer",
		ExpiresAt:   token.ExpiresAt.UTC(),
	})
}

// writeServiceError maps service errors to HTTP responses
func (h *AuthHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var pve *auth.PasswordValidationError

	switch {
	case errors.Is(err, models.ErrTokenInvalid):
		pkghttp.WriteError(w, http.StatusBadRequest, "invalid_token", "Invalid or expired token")
	case errors.Is(err, models.ErrInvalidCode):
		pkghttp.WriteError(w, http.StatusBadRequest, "invalid_otp", "Invalid or expired OTP")
	case errors.Is(err, models.ErrChallengeExpired):
		pkghttp.WriteError(w, http.StatusBadRequest, "otp_expired", "OTP has expired")
	case errors.Is(err, models.ErrTooManyAttempts):
		pkghttp.WriteError(w, http.StatusTooManyRequests, "too_many_attempts", "Too many attempts")
	case errors.Is(err, models.ErrResendTooSoon):
		pkghttp.WriteError(w, http.StatusTooManyRequests, "resend_too_soon", "OTP is still valid, please wait")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Email already registered")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "No account found with this email")
	case errors.Is(err, models.ErrEmailNotVerified):
		pkghttp.WriteForbidden(w, "Email not verified")
	case errors.Is(err, models.ErrChallengeNotVerified):
		pkghttp.WriteForbidden(w, "OTP not verified")
	case errors.Is(err, models.ErrCredentialMismatch):
		pkghttp.WriteBadRequest(w, "Passwords do not match")
	case errors.As(err, &pve):
		pkghttp.WriteBadRequest(w, pve.Error())
	default:
		h.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Health reports that the authority is serving requests
// @Router /health [get]
func Health(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
