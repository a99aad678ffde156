package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/otpflow/internal/models"
)

// ChallengeRepository keeps OTP challenges in memory
type ChallengeRepository struct {
	mu         sync.RWMutex
	challenges map[string]models.Challenge
}

// NewChallengeRepository creates an empty ChallengeRepository
func NewChallengeRepository() *ChallengeRepository {
	return &ChallengeRepository{
		challenges: make(map[string]models.Challenge),
	}
}

// Create stores a new challenge and assigns its ID
func (r *ChallengeRepository) Create(ctx context.Context, challenge *models.Challenge) (*models.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *challenge
	c.ID = uuid.New().String()
	r.challenges[c.ID] = c

	return &c, nil
}

// GetByID retrieves a challenge by ID
func (r *ChallengeRepository) GetByID(ctx context.Context, id string) (*models.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.challenges[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &c, nil
}

// Update replaces a stored challenge
func (r *ChallengeRepository) Update(ctx context.Context, challenge *models.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.challenges[challenge.ID]; !ok {
		return models.ErrNotFound
	}
	r.challenges[challenge.ID] = *challenge
	return nil
}

// Delete removes a challenge; deleting a missing challenge is not an error
func (r *ChallengeRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.challenges, id)
	return nil
}

// DeleteByEmail removes every challenge for email with the given purpose
func (r *ChallengeRepository) DeleteByEmail(ctx context.Context, email string, purpose models.ChallengePurpose) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, c := range r.challenges {
		if c.Email == email && c.Purpose == purpose {
			delete(r.challenges, id)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteCreatedBefore removes challenges created before cutoff
func (r *ChallengeRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, c := range r.challenges {
		if c.CreatedAt.Before(cutoff) {
			delete(r.challenges, id)
			deleted++
		}
	}
	return deleted, nil
}

// Count returns the number of stored challenges
func (r *ChallengeRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.challenges)
}
