package services

import (
	"errors"
	"strings"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidPIN is returned when a transfer confirmation code is rejected
var ErrInvalidPIN = errors.New("invalid pin")

// PinVerifier confirms transfers. A TOTP secret takes precedence over a
// bcrypt hash; with neither configured any non-empty PIN passes.
type PinVerifier struct {
	totpSecret string
	pinHash    string
}

func NewPinVerifier(totpSecret, pinHash string) *PinVerifier {
	return &PinVerifier{
		totpSecret: strings.TrimSpace(totpSecret),
		pinHash:    strings.TrimSpace(pinHash),
	}
}

// Verify returns nil when pin is accepted and ErrInvalidPIN otherwise
func (v *PinVerifier) Verify(pin string) error {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return ErrInvalidPIN
	}

	switch {
	case v.totpSecret != "":
		if !totp.Validate(pin, v.totpSecret) {
			return ErrInvalidPIN
		}
	case v.pinHash != "":
		if err := bcrypt.CompareHashAndPassword([]byte(v.pinHash), []byte(pin)); err != nil {
			return ErrInvalidPIN
		}
	}
	return nil
}

// Mode names the active verification method
func (v *PinVerifier) Mode() string {
	switch {
	case v.totpSecret != "":
		return "totp"
	case v.pinHash != "":
		return "bcrypt"
	default:
		return "open"
	}
}

// HashPIN hashes pin for the pin_hash setting
func HashPIN(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	return string(hash), err
}
