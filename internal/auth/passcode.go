package auth

import (
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

// PasscodeManager issues numeric one-time codes from a per-challenge HOTP secret.
// Each challenge gets a fresh secret, so the counter is always zero.
type PasscodeManager struct {
	issuer string
	digits otp.Digits
}

const passcodeCounter = 0

// NewPasscodeManager creates a passcode manager; digits other than 8 fall back to 6
func NewPasscodeManager(issuer string, digits int) *PasscodeManager {
	d := otp.DigitsSix
	if digits == 8 {
		d = otp.DigitsEight
	}
	return &PasscodeManager{
		issuer: issuer,
		digits: d,
	}
}

// Digits returns the code length
func (pm *PasscodeManager) Digits() int {
	return pm.digits.Length()
}

// NewSecret creates a base32 HOTP secret for the given account
func (pm *PasscodeManager) NewSecret(accountName string) (string, error) {
	key, err := hotp.Generate(hotp.GenerateOpts{
		Issuer:      pm.issuer,
		AccountName: accountName,
		SecretSize:  20, // RFC 4226 recommendation
		Digits:      pm.digits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate passcode secret: %w", err)
	}
	return key.Secret(), nil
}

// GenerateCode derives the code a user must type for secret
func (pm *PasscodeManager) GenerateCode(secret string) (string, error) {
	code, err := hotp.GenerateCodeCustom(secret, passcodeCounter, pm.opts())
	if err != nil {
		return "", fmt.Errorf("failed to generate passcode: %w", err)
	}
	return code, nil
}

// Validate checks code against secret
func (pm *PasscodeManager) Validate(code, secret string) bool {
	ok, err := hotp.ValidateCustom(code, passcodeCounter, secret, pm.opts())
	return ok && err == nil
}

func (pm *PasscodeManager) opts() hotp.ValidateOpts {
	return hotp.ValidateOpts{
		Digits:    pm.digits,
		Algorithm: otp.AlgorithmSHA1,
	}
}
