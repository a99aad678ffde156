package models

import (
	"time"
)

// ChallengePurpose binds a challenge to one flow
type ChallengePurpose string

const (
	PurposeSignup        ChallengePurpose = "signup"
	PurposePasswordReset ChallengePurpose = "password_reset"
)

// PurposeFor maps a client flow variant to the challenge purpose the authority issues
func PurposeFor(v FlowVariant) (ChallengePurpose, error) {
	switch v {
	case FlowSignup:
		return PurposeSignup, nil
	case FlowForgotPassword:
		return PurposePasswordReset, nil
	default:
		return "", ErrUnsupportedVariant
	}
}

// Challenge is one OTP challenge held by the authority
type Challenge struct {
	ID         string           `json:"id"`
	Purpose    ChallengePurpose `json:"purpose"`
	Email      string           `json:"email"`
	Secret     string           `json:"-"` // HOTP secret, never exposed
	Attempts   int              `json:"attempts"`
	ExpiresAt  time.Time        `json:"expires_at"`
	VerifiedAt *time.Time       `json:"verified_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// IsExpired checks if the code has expired at now
func (c *Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IsVerified checks if the code has already been accepted
func (c *Challenge) IsVerified() bool {
	return c.VerifiedAt != nil
}

// IssuedChallenge is what the authority returns to a client after issuing a code
type IssuedChallenge struct {
	CorrelationToken string
	ExpiresAt        time.Time
}
