package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	MinPasswordLen = 12
	MaxPasswordLen = 72 // bcrypt ignores anything past 72 bytes
)

// ErrPasswordMismatch is returned when a password does not match its hash
var ErrPasswordMismatch = errors.New("password mismatch")

// PasswordValidationError lists every failed rule. Error() stays generic;
// the rules are for operator-facing messages only.
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	return "password does not meet requirements"
}

var commonPasswords = map[string]bool{
	"password1234":  true,
	"password123!":  true,
	"administrator": true,
	"qwertyuiop12":  true,
	"letmein12345":  true,
	"welcome12345":  true,
	"changeme1234":  true,
	"dinarexchange": true,
}

// HashPassword hashes an admin password with bcrypt
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// ComparePassword returns ErrPasswordMismatch for a wrong password and
// other errors for a malformed hash
func ComparePassword(hashedPassword, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}

// ValidatePassword enforces the admin password policy
func ValidatePassword(password string) error {
	var failed []string

	if len(password) < MinPasswordLen {
		failed = append(failed, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if len(password) > MaxPasswordLen {
		failed = append(failed, fmt.Sprintf("must be at most %d bytes", MaxPasswordLen))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !hasUpper || !hasLower {
		failed = append(failed, "must mix upper and lower case letters")
	}
	if !hasDigit {
		failed = append(failed, "must contain a digit")
	}
	if !hasSpecial {
		failed = append(failed, "must contain a symbol")
	}
	if commonPasswords[strings.ToLower(password)] {
		failed = append(failed, "is too common")
	}

	if len(failed) > 0 {
		return &PasswordValidationError{Errors: failed}
	}
	return nil
}
