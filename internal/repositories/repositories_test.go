package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/otpflow/internal/models"
)

var repoNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestChallengeRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewChallengeRepository()

	created, err := repo.Create(ctx, &models.Challenge{
		Purpose:   models.PurposeSignup,
		Email:     "a@b.com",
		Secret:    "SECRET",
		ExpiresAt: repoNow.Add(5 * time.Minute),
		CreatedAt: repoNow,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	// callers get copies
	got.Attempts = 3
	again, _ := repo.GetByID(ctx, created.ID)
	assert.Equal(t, 0, again.Attempts)

	require.NoError(t, repo.Update(ctx, got))
	again, _ = repo.GetByID(ctx, created.ID)
	assert.Equal(t, 3, again.Attempts)

	require.NoError(t, repo.Delete(ctx, created.ID))
	_, err = repo.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, got), models.ErrNotFound)
}

func TestChallengeRepository_DeleteByEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewChallengeRepository()

	_, _ = repo.Create(ctx, &models.Challenge{Purpose: models.PurposeSignup, Email: "a@b.com"})
	_, _ = repo.Create(ctx, &models.Challenge{Purpose: models.PurposeSignup, Email: "a@b.com"})
	_, _ = repo.Create(ctx, &models.Challenge{Purpose: models.PurposePasswordReset, Email: "a@b.com"})
	_, _ = repo.Create(ctx, &models.Challenge{Purpose: models.PurposeSignup, Email: "c@d.com"})

	deleted, err := repo.DeleteByEmail(ctx, "a@b.com", models.PurposeSignup)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Equal(t, 2, repo.Count())
}

func TestChallengeRepository_DeleteCreatedBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewChallengeRepository()

	old, _ := repo.Create(ctx, &models.Challenge{Email: "a@b.com", CreatedAt: repoNow.Add(-time.Hour)})
	fresh, _ := repo.Create(ctx, &models.Challenge{Email: "a@b.com", CreatedAt: repoNow})

	deleted, err := repo.DeleteCreatedBefore(ctx, repoNow.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetByID(ctx, old.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = repo.GetByID(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestAccountRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()

	created, err := repo.Create(ctx, &models.Account{Email: " Alice@Example.com ", Name: "Alice", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "alice@example.com", created.Email)

	_, err = repo.Create(ctx, &models.Account{Email: "alice@example.com"})
	assert.ErrorIs(t, err, models.ErrConflict)

	got, err := repo.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)

	got.EmailVerified = true
	require.NoError(t, repo.Update(ctx, got))
	got, _ = repo.GetByEmail(ctx, "alice@example.com")
	assert.True(t, got.EmailVerified)

	require.NoError(t, repo.Delete(ctx, "alice@example.com"))
	_, err = repo.GetByEmail(ctx, "alice@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "alice@example.com"), models.ErrNotFound)
}

func TestAccountRepository_UpdateRequiresSameAccount(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()

	_, err := repo.Create(ctx, &models.Account{Email: "a@b.com"})
	require.NoError(t, err)

	err = repo.Update(ctx, &models.Account{ID: "someone-else", Email: "a@b.com"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}
