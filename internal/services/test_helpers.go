package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/otpflow/internal/models"
)

// SentOTP records one SendOTPEmail call
type SentOTP struct {
	Email     string
	Code      string
	Purpose   models.ChallengePurpose
	ExpiresAt time.Time
}

// MockEmailService implements EmailService for testing and remembers every code sent
type MockEmailService struct {
	SendOTPEmailFunc func(ctx context.Context, email, code string, purpose models.ChallengePurpose, expiresAt time.Time) error

	mu   sync.Mutex
	sent []SentOTP
}

func (m *MockEmailService) SendOTPEmail(ctx context.Context, email, code string, purpose models.ChallengePurpose, expiresAt time.Time) error {
	if m.SendOTPEmailFunc != nil {
		if err := m.SendOTPEmailFunc(ctx, email, code, purpose, expiresAt); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.sent = append(m.sent, SentOTP{Email: email, Code: code, Purpose: purpose, ExpiresAt: expiresAt})
	m.mu.Unlock()
	return nil
}

// Sent returns a copy of the recorded messages
func (m *MockEmailService) Sent() []SentOTP {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentOTP, len(m.sent))
	copy(out, m.sent)
	return out
}

// LastCode returns the most recent code sent to email, or "" if none
func (m *MockEmailService) LastCode(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Email == email {
			return m.sent[i].Code
		}
	}
	return ""
}

// MockAccountRepository implements AccountRepository for testing
type MockAccountRepository struct {
	CreateFunc     func(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByEmailFunc func(ctx context.Context, email string) (*models.Account, error)
	UpdateFunc     func(ctx context.Context, account *models.Account) error
	DeleteFunc     func(ctx context.Context, email string) error
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	return account, nil
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) Update(ctx context.Context, account *models.Account) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, account)
	}
	return nil
}

func (m *MockAccountRepository) Delete(ctx context.Context, email string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, email)
	}
	return nil
}

// MockChallengeRepository implements ChallengeRepository for testing
type MockChallengeRepository struct {
	CreateFunc              func(ctx context.Context, challenge *models.Challenge) (*models.Challenge, error)
	GetByIDFunc             func(ctx context.Context, id string) (*models.Challenge, error)
	UpdateFunc              func(ctx context.Context, challenge *models.Challenge) error
	DeleteFunc              func(ctx context.Context, id string) error
	DeleteByEmailFunc       func(ctx context.Context, email string, purpose models.ChallengePurpose) (int64, error)
	DeleteCreatedBeforeFunc func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *MockChallengeRepository) Create(ctx context.Context, challenge *models.Challenge) (*models.Challenge, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, challenge)
	}
	created := *challenge
	created.ID = "challenge-1"
	return &created, nil
}

func (m *MockChallengeRepository) GetByID(ctx context.Context, id string) (*models.Challenge, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockChallengeRepository) Update(ctx context.Context, challenge *models.Challenge) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, challenge)
	}
	return nil
}

func (m *MockChallengeRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockChallengeRepository) DeleteByEmail(ctx context.Context, email string, purpose models.ChallengePurpose) (int64, error) {
	if m.DeleteByEmailFunc != nil {
		return m.DeleteByEmailFunc(ctx, email, purpose)
	}
	return 0, nil
}

func (m *MockChallengeRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteCreatedBeforeFunc != nil {
		return m.DeleteCreatedBeforeFunc(ctx, cutoff)
	}
	return 0, nil
}
