package repositories

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/BradenHooton/otpflow/internal/models"
)

// AccountRepository keeps accounts in memory, indexed by normalized email
type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]models.Account // keyed by email
}

// NewAccountRepository creates an empty AccountRepository
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts: make(map[string]models.Account),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create stores a new account; the email must not be taken
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalizeEmail(account.Email)
	if _, exists := r.accounts[key]; exists {
		return nil, models.ErrConflict
	}

	a := *account
	a.ID = uuid.New().String()
	a.Email = key
	r.accounts[key] = a

	return &a, nil
}

// GetByEmail retrieves an account by email
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[normalizeEmail(email)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &a, nil
}

// Update replaces a stored account
func (r *AccountRepository) Update(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalizeEmail(account.Email)
	existing, ok := r.accounts[key]
	if !ok || existing.ID != account.ID {
		return models.ErrNotFound
	}
	r.accounts[key] = *account
	return nil
}

// Delete removes the account for email
func (r *AccountRepository) Delete(ctx context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalizeEmail(email)
	if _, ok := r.accounts[key]; !ok {
		return models.ErrNotFound
	}
	delete(r.accounts, key)
	return nil
}
