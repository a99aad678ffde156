package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BradenHooton/otpflow/internal/clock"
	"github.com/BradenHooton/otpflow/internal/models"
)

const (
	correlationIssuer = "otpflow-authority"
	accessIssuer      = "otpflow-authority/access"
)

// TokenManager mints correlation tokens for challenges and access tokens for logins
type TokenManager struct {
	secret string
	ttl    time.Duration
	clock  clock.Clock
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, ttl time.Duration, clk clock.Clock) *TokenManager {
	if clk == nil {
		clk = clock.New()
	}
	return &TokenManager{
		secret: secret,
		ttl:    ttl,
		clock:  clk,
	}
}

// GenerateCorrelationToken signs a token for challengeID
func (tm *TokenManager) GenerateCorrelationToken(challengeID string, purpose models.ChallengePurpose, email string) (string, error) {
	now := tm.clock.Now()

	claims := &models.CorrelationClaims{
		Purpose: purpose,
		Email:   email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        challengeID,
			Issuer:    correlationIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign correlation token: %w", err)
	}

	return tokenString, nil
}

// GenerateAccessToken signs a bearer token for accountID valid for ttl.
// Access tokens carry their own issuer so they never pass as correlation tokens.
func (tm *TokenManager) GenerateAccessToken(accountID, email string, ttl time.Duration) (*models.AccessToken, error) {
	now := tm.clock.Now()
	expiresAt := now.Add(ttl)

	claims := &models.AccessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    accessIssuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(tm.secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &models.AccessToken{Token: tokenString, ExpiresAt: expiresAt}, nil
}

// ValidateCorrelationToken verifies a token and returns its claims.
// Every failure wraps models.ErrTokenInvalid.
func (tm *TokenManager) ValidateCorrelationToken(tokenString string) (*models.CorrelationClaims, error) {
	claims := &models.CorrelationClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(correlationIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", models.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
	}

	if !token.Valid {
		return nil, models.ErrTokenInvalid
	}

	if claims.ID == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: missing challenge binding", models.ErrTokenInvalid)
	}

	return claims, nil
}
