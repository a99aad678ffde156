package models

import (
	"time"
)

// Account is a user record held by the development authority
type Account struct {
	ID                string
	Email             string
	Name              string
	PasswordHash      string
	EmailVerified     bool
	CreatedAt         time.Time
	PasswordChangedAt *time.Time
}
