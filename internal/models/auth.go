package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CorrelationClaims bind a correlation token to one challenge.
// The challenge ID travels as the JWT ID.
type CorrelationClaims struct {
	Purpose ChallengePurpose `json:"purpose"`
	Email   string           `json:"email"`
	jwt.RegisteredClaims
}

// AccessClaims identify a logged-in account; the account ID is the subject
type AccessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AccessToken is the bearer credential returned by a successful login
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}
