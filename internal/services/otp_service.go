package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/otpflow/internal/clock"
	"github.com/BradenHooton/otpflow/internal/models"
	"github.com/BradenHooton/otpflow/pkg/auth"
	"github.com/BradenHooton/otpflow/pkg/logger"
)

// ChallengeRepository defines the interface for challenge storage
type ChallengeRepository interface {
	Create(ctx context.Context, challenge *models.Challenge) (*models.Challenge, error)
	GetByID(ctx context.Context, id string) (*models.Challenge, error)
	Update(ctx context.Context, challenge *models.Challenge) error
	Delete(ctx context.Context, id string) error
	DeleteByEmail(ctx context.Context, email string, purpose models.ChallengePurpose) (int64, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AccountRepository defines the interface for account storage
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, email string) error
}

// CorrelationTokenManager mints and checks correlation tokens and mints login access tokens
type CorrelationTokenManager interface {
	GenerateCorrelationToken(challengeID string, purpose models.ChallengePurpose, email string) (string, error)
	ValidateCorrelationToken(token string) (*models.CorrelationClaims, error)
	GenerateAccessToken(accountID, email string, ttl time.Duration) (*models.AccessToken, error)
}

// PasscodeGenerator creates and checks one-time codes
type PasscodeGenerator interface {
	NewSecret(accountName string) (string, error)
	GenerateCode(secret string) (string, error)
	Validate(code, secret string) bool
}

// OTPServiceConfig holds the challenge policy
type OTPServiceConfig struct {
	SignupExpiry   time.Duration
	ResetExpiry    time.Duration
	TokenTTL       time.Duration
	AccessTokenTTL time.Duration
	MaxAttempts    int
	BcryptCost     int
}

// OTPService issues and verifies OTP challenges for signup and password reset
type OTPService struct {
	accounts   AccountRepository
	challenges ChallengeRepository
	tokens     CorrelationTokenManager
	passcodes  PasscodeGenerator
	email      EmailService
	clock      clock.Clock
	cfg        OTPServiceConfig
	logger     *slog.Logger
	audit      *logger.AuditLogger

	// mu serializes read-modify-write sequences on accounts and challenges
	mu sync.Mutex
}

// NewOTPService creates a new OTPService
func NewOTPService(
	accounts AccountRepository,
	challenges ChallengeRepository,
	tokens CorrelationTokenManager,
	passcodes PasscodeGenerator,
	email EmailService,
	clk clock.Clock,
	cfg OTPServiceConfig,
	logger *slog.Logger,
	audit *logger.AuditLogger,
) *OTPService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = auth.BcryptCost
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = time.Hour
	}
	if clk == nil {
		clk = clock.New()
	}
	return &OTPService{
		accounts:   accounts,
		challenges: challenges,
		tokens:     tokens,
		passcodes:  passcodes,
		email:      email,
		clock:      clk,
		cfg:        cfg,
		logger:     logger,
		audit:      audit,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup creates a pending account and sends a signup code.
// A pending account for the same email is replaced; a verified one is a conflict.
func (s *OTPService) Signup(ctx context.Context, name, email, password, ipAddress string) (*models.IssuedChallenge, error) {
	email = normalizeEmail(email)

	if err := auth.ValidatePassword(password); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil && existing.EmailVerified:
		s.recordChallenge("issue", models.PurposeSignup, "", email, ipAddress, "email_registered")
		return nil, models.ErrConflict
	case err == nil:
		if err := s.accounts.Delete(ctx, email); err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("failed to replace pending account: %w", err)
		}
		if _, err := s.challenges.DeleteByEmail(ctx, email, models.PurposeSignup); err != nil {
			return nil, fmt.Errorf("failed to discard pending challenges: %w", err)
		}
	case !errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	hash, err := auth.HashPasswordWithCost(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	_, err = s.accounts.Create(ctx, &models.Account{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		CreatedAt:    s.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return s.issue(ctx, models.PurposeSignup, email, ipAddress)
}

// VerifySignup checks a signup code and marks the account verified
func (s *OTPService) VerifySignup(ctx context.Context, token, email, code, ipAddress string) error {
	email = normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, err := s.verifyLocked(ctx, models.PurposeSignup, token, email, code, ipAddress)
	if err != nil {
		return err
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	account.EmailVerified = true
	if err := s.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("failed to mark account verified: %w", err)
	}

	_ = s.challenges.Delete(ctx, challenge.ID)
	return nil
}

// ResendSignup replaces an expired signup challenge
func (s *OTPService) ResendSignup(ctx context.Context, token, email, ipAddress string) (*models.IssuedChallenge, error) {
	return s.resend(ctx, models.PurposeSignup, token, email, ipAddress)
}

// ForgotPassword sends a reset code to a verified account
func (s *OTPService) ForgotPassword(ctx context.Context, email, ipAddress string) (*models.IssuedChallenge, error) {
	email = normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.recordChallenge("issue", models.PurposePasswordReset, "", email, ipAddress, "unknown_email")
		}
		return nil, err
	}
	if !account.EmailVerified {
		s.recordChallenge("issue", models.PurposePasswordReset, "", email, ipAddress, "email_not_verified")
		return nil, models.ErrEmailNotVerified
	}

	if _, err := s.challenges.DeleteByEmail(ctx, email, models.PurposePasswordReset); err != nil {
		return nil, fmt.Errorf("failed to discard previous challenges: %w", err)
	}

	return s.issue(ctx, models.PurposePasswordReset, email, ipAddress)
}

// VerifyReset checks a reset code; the challenge stays usable for ResetPassword
func (s *OTPService) VerifyReset(ctx context.Context, token, email, code, ipAddress string) error {
	email = normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.verifyLocked(ctx, models.PurposePasswordReset, token, email, code, ipAddress)
	return err
}

// ResendReset replaces an expired reset challenge
func (s *OTPService) ResendReset(ctx context.Context, token, email, ipAddress string) (*models.IssuedChallenge, error) {
	return s.resend(ctx, models.PurposePasswordReset, token, email, ipAddress)
}

// ResetPassword sets a new password once the reset code has been verified
func (s *OTPService) ResetPassword(ctx context.Context, token, email, newPassword, confirmPassword, ipAddress string) error {
	email = normalizeEmail(email)

	if newPassword != confirmPassword {
		return models.ErrCredentialMismatch
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, err := s.resolveLocked(ctx, models.PurposePasswordReset, token, email)
	if err != nil {
		s.audit.LogPasswordChange(email, ipAddress, false)
		return err
	}
	if !challenge.IsVerified() {
		s.audit.LogPasswordChange(email, ipAddress, false)
		return models.ErrChallengeNotVerified
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	hash, err := auth.HashPasswordWithCost(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	account.PasswordHash = hash
	account.PasswordChangedAt = &now
	if err := s.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	_ = s.challenges.Delete(ctx, challenge.ID)
	s.audit.LogPasswordChange(email, ipAddress, true)
	return nil
}

// Login checks a password and issues an access token.
// Unknown emails and wrong passwords are indistinguishable; an unverified
// account with the right password gets ErrEmailNotVerified.
func (s *OTPService) Login(ctx context.Context, email, password, ipAddress string) (*models.AccessToken, error) {
	email = normalizeEmail(email)

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up account: %w", err)
		}
		s.audit.LogLogin(email, ipAddress, false, "unknown_email")
		return nil, models.ErrInvalidCredentials
	}

	if err := auth.ComparePassword(account.PasswordHash, password); err != nil {
		s.audit.LogLogin(email, ipAddress, false, "invalid_password")
		return nil, models.ErrInvalidCredentials
	}
	if !account.EmailVerified {
		s.audit.LogLogin(email, ipAddress, false, "email_not_verified")
		return nil, models.ErrEmailNotVerified
	}

	token, err := s.tokens.GenerateAccessToken(account.ID, account.Email, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	s.audit.LogLogin(email, ipAddress, true, "")
	return token, nil
}

// PurgeExpired removes challenges no correlation token can reference any more
func (s *OTPService) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.cfg.TokenTTL)
	return s.challenges.DeleteCreatedBefore(ctx, cutoff)
}

func (s *OTPService) expiryFor(purpose models.ChallengePurpose) time.Duration {
	if purpose == models.PurposePasswordReset {
		return s.cfg.ResetExpiry
	}
	return s.cfg.SignupExpiry
}

// issue creates a challenge, signs its token and mails the code
func (s *OTPService) issue(ctx context.Context, purpose models.ChallengePurpose, email, ipAddress string) (*models.IssuedChallenge, error) {
	secret, err := s.passcodes.NewSecret(email)
	if err != nil {
		return nil, err
	}
	code, err := s.passcodes.GenerateCode(secret)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	challenge, err := s.challenges.Create(ctx, &models.Challenge{
		Purpose:   purpose,
		Email:     email,
		Secret:    secret,
		ExpiresAt: now.Add(s.expiryFor(purpose)),
		CreatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	token, err := s.tokens.GenerateCorrelationToken(challenge.ID, purpose, email)
	if err != nil {
		_ = s.challenges.Delete(ctx, challenge.ID)
		return nil, err
	}

	if err := s.email.SendOTPEmail(ctx, email, code, purpose, challenge.ExpiresAt); err != nil {
		_ = s.challenges.Delete(ctx, challenge.ID)
		s.logger.Error("failed to deliver otp",
			slog.String("email", logger.SanitizedEmail(email)),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to deliver code: %w", err)
	}

	s.recordChallenge("issue", purpose, challenge.ID, email, ipAddress, "")

	return &models.IssuedChallenge{
		CorrelationToken: token,
		ExpiresAt:        challenge.ExpiresAt,
	}, nil
}

// resolveLocked maps a correlation token to its live challenge.
// A token for another purpose or email is treated as invalid.
func (s *OTPService) resolveLocked(ctx context.Context, purpose models.ChallengePurpose, token, email string) (*models.Challenge, error) {
	claims, err := s.tokens.ValidateCorrelationToken(token)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != purpose || normalizeEmail(claims.Email) != email {
		return nil, fmt.Errorf("%w: token is bound to another challenge", models.ErrTokenInvalid)
	}

	challenge, err := s.challenges.GetByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: challenge superseded or purged", models.ErrTokenInvalid)
		}
		return nil, err
	}
	return challenge, nil
}

func (s *OTPService) verifyLocked(ctx context.Context, purpose models.ChallengePurpose, token, email, code, ipAddress string) (*models.Challenge, error) {
	challenge, err := s.resolveLocked(ctx, purpose, token, email)
	if err != nil {
		s.recordChallenge("verify", purpose, "", email, ipAddress, "token_invalid")
		return nil, err
	}

	if challenge.IsVerified() {
		return challenge, nil
	}

	now := s.clock.Now()
	if challenge.IsExpired(now) {
		s.recordChallenge("verify", purpose, challenge.ID, email, ipAddress, "challenge_expired")
		return nil, models.ErrChallengeExpired
	}
	if challenge.Attempts >= s.cfg.MaxAttempts {
		s.recordChallenge("verify", purpose, challenge.ID, email, ipAddress, "too_many_attempts")
		return nil, models.ErrTooManyAttempts
	}

	if !s.passcodes.Validate(code, challenge.Secret) {
		challenge.Attempts++
		if err := s.challenges.Update(ctx, challenge); err != nil {
			return nil, fmt.Errorf("failed to record attempt: %w", err)
		}
		s.audit.LogChallengeEvent(logger.ChallengeEvent{
			EventType:     "verify",
			Purpose:       string(purpose),
			ChallengeID:   challenge.ID,
			Email:         email,
			IPAddress:     ipAddress,
			FailureReason: "invalid_code",
			Metadata:      map[string]string{"attempts": strconv.Itoa(challenge.Attempts)},
		})
		return nil, models.ErrInvalidCode
	}

	challenge.VerifiedAt = &now
	if err := s.challenges.Update(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to mark challenge verified: %w", err)
	}

	s.recordChallenge("verify", purpose, challenge.ID, email, ipAddress, "")
	return challenge, nil
}

func (s *OTPService) resend(ctx context.Context, purpose models.ChallengePurpose, token, email, ipAddress string) (*models.IssuedChallenge, error) {
	email = normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, err := s.resolveLocked(ctx, purpose, token, email)
	if err == nil && !challenge.IsExpired(s.clock.Now()) {
		err = models.ErrResendTooSoon
	}
	if err == nil && purpose == models.PurposeSignup {
		err = s.requirePendingAccount(ctx, email)
	}
	if err != nil {
		s.recordChallenge("resend", purpose, "", email, ipAddress, failureReason(err))
		return nil, err
	}

	// the old challenge stays live until its replacement has been delivered
	issued, err := s.issue(ctx, purpose, email, ipAddress)
	if err != nil {
		s.recordChallenge("resend", purpose, challenge.ID, email, ipAddress, "delivery_failed")
		return nil, err
	}
	if err := s.challenges.Delete(ctx, challenge.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Warn("failed to discard superseded challenge",
			slog.String("challenge_id", challenge.ID),
			slog.Any("error", err))
	}
	return issued, nil
}

func (s *OTPService) requirePendingAccount(ctx context.Context, email string) error {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account.EmailVerified {
		return models.ErrConflict
	}
	return nil
}

func (s *OTPService) recordChallenge(eventType string, purpose models.ChallengePurpose, challengeID, email, ipAddress, failure string) {
	s.audit.LogChallengeEvent(logger.ChallengeEvent{
		EventType:     eventType,
		Purpose:       string(purpose),
		ChallengeID:   challengeID,
		Email:         email,
		IPAddress:     ipAddress,
		Success:       failure == "",
		FailureReason: failure,
	})
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, models.ErrResendTooSoon):
		return "resend_too_soon"
	case errors.Is(err, models.ErrConflict):
		return "already_verified"
	case errors.Is(err, models.ErrNotFound):
		return "unknown_email"
	default:
		return "internal_error"
	}
}
