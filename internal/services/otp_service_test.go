package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/otpflow/internal/auth"
	"github.com/BradenHooton/otpflow/internal/clock"
	"github.com/BradenHooton/otpflow/internal/models"
	"github.com/BradenHooton/otpflow/internal/repositories"
	pkgauth "github.com/BradenHooton/otpflow/pkg/auth"
)

type otpFixture struct {
	svc        *OTPService
	clock      *clock.Fake
	email      *MockEmailService
	accounts   *repositories.AccountRepository
	challenges *repositories.ChallengeRepository
}

func testOTPConfig() OTPServiceConfig {
	return OTPServiceConfig{
		SignupExpiry: 5 * time.Minute,
		ResetExpiry:  2 * time.Minute,
		TokenTTL:     30 * time.Minute,
		MaxAttempts:  3,
		BcryptCost:   bcrypt.MinCost,
	}
}

func newOTPFixture(t *testing.T) *otpFixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	f := &otpFixture{
		clock:      clk,
		email:      &MockEmailService{},
		accounts:   repositories.NewAccountRepository(),
		challenges: repositories.NewChallengeRepository(),
	}
	f.svc = NewOTPService(
		f.accounts,
		f.challenges,
		auth.NewTokenManager("test-secret-key-for-correlation", 30*time.Minute, clk),
		auth.NewPasscodeManager("otpflow", 6),
		f.email,
		clk,
		testOTPConfig(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		nil,
	)
	return f
}

func (f *otpFixture) signupVerified(t *testing.T, email string) {
	t.Helper()
	ctx := context.Background()
	issued, err := f.svc.Signup(ctx, "Ada", email, "correct-horse", "127.0.0.1")
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifySignup(ctx, issued.CorrelationToken, email, f.email.LastCode(email), "127.0.0.1"))
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestOTPService_SignupAndVerify(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Signup(ctx, "Ada", " Ada@Example.com ", "correct-horse", "127.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, issued.CorrelationToken)
	assert.Equal(t, f.clock.Now().Add(5*time.Minute), issued.ExpiresAt)

	sent := f.email.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ada@example.com", sent[0].Email)
	assert.Equal(t, models.PurposeSignup, sent[0].Purpose)
	assert.Len(t, sent[0].Code, 6)

	account, err := f.accounts.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, account.EmailVerified)
	assert.NoError(t, pkgauth.ComparePassword(account.PasswordHash, "correct-horse"))

	err = f.svc.VerifySignup(ctx, issued.CorrelationToken, "ada@example.com", sent[0].Code, "127.0.0.1")
	require.NoError(t, err)

	account, err = f.accounts.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.True(t, account.EmailVerified)
	assert.Zero(t, f.challenges.Count())
}

func TestOTPService_SignupWeakPassword(t *testing.T) {
	f := newOTPFixture(t)

	_, err := f.svc.Signup(context.Background(), "Ada", "ada@example.com", "12345", "")

	var pve *pkgauth.PasswordValidationError
	assert.True(t, errors.As(err, &pve))
	assert.Empty(t, f.email.Sent())
}

func TestOTPService_SignupVerifiedEmailConflicts(t *testing.T) {
	f := newOTPFixture(t)
	f.signupVerified(t, "ada@example.com")

	_, err := f.svc.Signup(context.Background(), "Ada", "ada@example.com", "correct-horse", "")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestOTPService_SignupReplacesPendingAccount(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	first, err := f.svc.Signup(ctx, "Ada", "ada@example.com", "correct-horse", "")
	require.NoError(t, err)
	second, err := f.svc.Signup(ctx, "Ada L", "ada@example.com", "battery-staple", "")
	require.NoError(t, err)

	assert.Equal(t, 1, f.challenges.Count())

	err = f.svc.VerifySignup(ctx, first.CorrelationToken, "ada@example.com", f.email.LastCode("ada@example.com"), "")
	assert.ErrorIs(t, err, models.ErrTokenInvalid)

	require.NoError(t, f.svc.VerifySignup(ctx, second.CorrelationToken, "ada@example.com", f.email.LastCode("ada@example.com"), ""))
	account, err := f.accounts.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ada L", account.Name)
}

func TestOTPService_SignupEmailFailureDiscardsChallenge(t *testing.T) {
	f := newOTPFixture(t)
	f.email.SendOTPEmailFunc = func(ctx context.Context, email, code string, purpose models.ChallengePurpose, expiresAt time.Time) error {
		return errors.New("ses unavailable")
	}

	_, err := f.svc.Signup(context.Background(), "Ada", "ada@example.com", "correct-horse", "")
	assert.ErrorContains(t, err, "failed to deliver code")
	assert.Zero(t, f.challenges.Count())
}

func TestOTPService_VerifyWrongCodeCountsAttempts(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Signup(ctx, "Ada", "ada@example.com", "correct-horse", "")
	require.NoError(t, err)
	code := f.email.LastCode("ada@example.com")

	for i := 0; i < 3; i++ {
		err = f.svc.VerifySignup(ctx, issued.CorrelationToken, "ada@example.com", wrongCode(code), "")
		assert.ErrorIs(t, err, models.ErrInvalidCode)
	}

	err = f.svc.VerifySignup(ctx, issued.CorrelationToken, "ada@example.com", code, "")
	assert.ErrorIs(t, err, models.ErrTooManyAttempts)
}

func TestOTPService_VerifyExpiredChallenge(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Signup(ctx, "Ada", "ada@example.com", "correct-horse", "")
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)

	err = f.svc.VerifySignup(ctx, issued.CorrelationToken, "ada@example.com", f.email.LastCode("ada@example.com"), "")
	assert.ErrorIs(t, err, models.ErrChallengeExpired)
}

func TestOTPService_VerifyTokenBoundToEmail(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Signup(ctx, "Ada", "ada@example.com", "correct-horse", "")
	require.NoError(t, err)

	err = f.svc.VerifySignup(ctx, issued.CorrelationToken, "eve@example.com", f.email.LastCode("ada@example.com"), "")
	assert.ErrorIs(t, err, models.ErrTokenInvalid)

	err = f.svc.VerifyReset(ctx, issued.CorrelationToken, "ada@example.com", f.email.LastCode("ada@example.com"), "")
	assert.ErrorIs(t, err, models.ErrTokenInvalid)

	err = f.svc.VerifySignup(ctx, "garbage", "ada@example.com", "123456", "")
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestOTPService_ResendSignup(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Signup(ctx, "Ada", "ada@example.com", "correct-horse", "")
	require.NoError(t, err)

	_, err = f.svc.ResendSignup(ctx, issued.CorrelationToken, "ada@example.com", "")
	assert.ErrorIs(t, err, models.ErrResendTooSoon)

	f.clock.Advance(5 * time.Minute)

	reissued, err := f.svc.ResendSignup(ctx, issued.CorrelationToken, "ada@example.com", "")
	require.NoError(t, err)
	assert.NotEqual(t, issued.CorrelationToken, reissued.CorrelationToken)
	assert.Equal(t, f.clock.Now().Add(5*time.Minute), reissued.ExpiresAt)
	assert.Len(t, f.email.Sent(), 2)
	assert.Equal(t, 1, f.challenges.Count())

	err = f.svc.VerifySignup(ctx, reissued.CorrelationToken, "ada@example.com", f.email.LastCode("ada@example.com"), "")
	assert.NoError(t, err)
}

func TestOTPService_ResendDeliveryFailureKeepsChallenge(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Signup(ctx, "Ada", "ada@example.com", "correct-horse", "")
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)

	f.email.SendOTPEmailFunc = func(ctx context.Context, email, code string, purpose models.ChallengePurpose, expiresAt time.Time) error {
		return errors.New("ses unavailable")
	}
	_, err = f.svc.ResendSignup(ctx, issued.CorrelationToken, "ada@example.com", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to deliver code")
	assert.Equal(t, 1, f.challenges.Count())

	f.email.SendOTPEmailFunc = nil
	reissued, err := f.svc.ResendSignup(ctx, issued.CorrelationToken, "ada@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, 1, f.challenges.Count())

	// the superseded token is gone once the replacement is out
	_, err = f.svc.ResendSignup(ctx, issued.CorrelationToken, "ada@example.com", "")
	assert.ErrorIs(t, err, models.ErrTokenInvalid)

	err = f.svc.VerifySignup(ctx, reissued.CorrelationToken, "ada@example.com", f.email.LastCode("ada@example.com"), "")
	assert.NoError(t, err)
}

func TestOTPService_ResendResetDeliveryFailureKeepsChallenge(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	f.signupVerified(t, "ada@example.com")

	issued, err := f.svc.ForgotPassword(ctx, "ada@example.com", "")
	require.NoError(t, err)
	f.clock.Advance(2 * time.Minute)

	f.email.SendOTPEmailFunc = func(ctx context.Context, email, code string, purpose models.ChallengePurpose, expiresAt time.Time) error {
		return errors.New("ses unavailable")
	}
	_, err = f.svc.ResendReset(ctx, issued.CorrelationToken, "ada@example.com", "")
	require.Error(t, err)

	f.email.SendOTPEmailFunc = nil
	reissued, err := f.svc.ResendReset(ctx, issued.CorrelationToken, "ada@example.com", "")
	require.NoError(t, err)
	assert.NoError(t, f.svc.VerifyReset(ctx, reissued.CorrelationToken, "ada@example.com", f.email.LastCode("ada@example.com"), ""))
}

func TestOTPService_ConcurrentSignupsForPendingEmail(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	const callers = 8
	tokens := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			issued, err := f.svc.Signup(ctx, "Ada", "ada@example.com", "correct-horse", "")
			if assert.NoError(t, err) {
				tokens[i] = issued.CorrelationToken
			}
		}(i)
	}
	wg.Wait()

	// every signup replaced the previous one, so exactly one challenge survives
	assert.Equal(t, 1, f.challenges.Count())
	_, err := f.accounts.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)

	code := f.email.LastCode("ada@example.com")
	verified := 0
	for _, token := range tokens {
		if f.svc.VerifySignup(ctx, token, "ada@example.com", code, "") == nil {
			verified++
		}
	}
	assert.Equal(t, 1, verified)
}

func TestOTPService_ForgotPasswordPreconditions(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	_, err := f.svc.ForgotPassword(ctx, "nobody@example.com", "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.Signup(ctx, "Ada", "ada@example.com", "correct-horse", "")
	require.NoError(t, err)

	_, err = f.svc.ForgotPassword(ctx, "ada@example.com", "")
	assert.ErrorIs(t, err, models.ErrEmailNotVerified)
}

func TestOTPService_PasswordReset(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	f.signupVerified(t, "ada@example.com")

	issued, err := f.svc.ForgotPassword(ctx, "ADA@example.com", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(2*time.Minute), issued.ExpiresAt)

	err = f.svc.ResetPassword(ctx, issued.CorrelationToken, "ada@example.com", "new-password", "new-password", "")
	assert.ErrorIs(t, err, models.ErrChallengeNotVerified)

	require.NoError(t, f.svc.VerifyReset(ctx, issued.CorrelationToken, "ada@example.com", f.email.LastCode("ada@example.com"), ""))

	err = f.svc.ResetPassword(ctx, issued.CorrelationToken, "ada@example.com", "new-password", "other-password", "")
	assert.ErrorIs(t, err, models.ErrCredentialMismatch)

	err = f.svc.ResetPassword(ctx, issued.CorrelationToken, "ada@example.com", "new-password", "new-password", "10.0.0.1")
	require.NoError(t, err)

	account, err := f.accounts.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.NoError(t, pkgauth.ComparePassword(account.PasswordHash, "new-password"))
	require.NotNil(t, account.PasswordChangedAt)
	assert.Equal(t, f.clock.Now(), *account.PasswordChangedAt)

	err = f.svc.ResetPassword(ctx, issued.CorrelationToken, "ada@example.com", "new-password", "new-password", "")
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestOTPService_Login(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	f.signupVerified(t, "ada@example.com")

	access, err := f.svc.Login(ctx, " ADA@example.com ", "correct-horse", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(time.Hour), access.ExpiresAt)

	account, err := f.accounts.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	claims := &models.AccessClaims{}
	_, err = jwt.ParseWithClaims(access.Token, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret-key-for-correlation"), nil
	}, jwt.WithTimeFunc(f.clock.Now))
	require.NoError(t, err)
	assert.Equal(t, account.ID, claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)
}

func TestOTPService_LoginRejections(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	f.signupVerified(t, "ada@example.com")
	_, err := f.svc.Signup(ctx, "Bob", "bob@example.com", "correct-horse", "")
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "ada@example.com", "wrong-horse", "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "nobody@example.com", "correct-horse", "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "bob@example.com", "wrong-horse", "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "bob@example.com", "correct-horse", "")
	assert.ErrorIs(t, err, models.ErrEmailNotVerified)
}

func TestOTPService_LoginAfterPasswordReset(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	f.signupVerified(t, "ada@example.com")

	issued, err := f.svc.ForgotPassword(ctx, "ada@example.com", "")
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyReset(ctx, issued.CorrelationToken, "ada@example.com", f.email.LastCode("ada@example.com"), ""))
	require.NoError(t, f.svc.ResetPassword(ctx, issued.CorrelationToken, "ada@example.com", "new-password", "new-password", ""))

	_, err = f.svc.Login(ctx, "ada@example.com", "correct-horse", "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "ada@example.com", "new-password", "")
	assert.NoError(t, err)
}

func TestOTPService_VerifyResetIsIdempotent(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	f.signupVerified(t, "ada@example.com")

	issued, err := f.svc.ForgotPassword(ctx, "ada@example.com", "")
	require.NoError(t, err)
	code := f.email.LastCode("ada@example.com")

	require.NoError(t, f.svc.VerifyReset(ctx, issued.CorrelationToken, "ada@example.com", code, ""))
	assert.NoError(t, f.svc.VerifyReset(ctx, issued.CorrelationToken, "ada@example.com", code, ""))
}

func TestOTPService_ForgotPasswordSupersedesPrevious(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	f.signupVerified(t, "ada@example.com")

	first, err := f.svc.ForgotPassword(ctx, "ada@example.com", "")
	require.NoError(t, err)
	_, err = f.svc.ForgotPassword(ctx, "ada@example.com", "")
	require.NoError(t, err)

	err = f.svc.VerifyReset(ctx, first.CorrelationToken, "ada@example.com", f.email.LastCode("ada@example.com"), "")
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestOTPService_PurgeExpired(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, "Ada", "ada@example.com", "correct-horse", "")
	require.NoError(t, err)

	purged, err := f.svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged)

	f.clock.Advance(31 * time.Minute)

	purged, err = f.svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	assert.Zero(t, f.challenges.Count())
}

func TestOTPService_SignupLookupFailure(t *testing.T) {
	accounts := &MockAccountRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return nil, errors.New("store offline")
		},
	}
	svc := NewOTPService(accounts, &MockChallengeRepository{}, nil, nil, &MockEmailService{},
		clock.NewFake(time.Now()), testOTPConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	_, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "correct-horse", "")
	assert.ErrorContains(t, err, "failed to look up account")
}
