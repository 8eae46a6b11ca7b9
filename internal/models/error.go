package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// ErrStaleWrite means the document changed between read and write
	ErrStaleWrite = errors.New("document was modified concurrently")

	// Authentication outcomes
	ErrInvalidCredential = errors.New("invalid or expired credential")
	ErrRateLimited       = errors.New("too many login attempts")
	ErrValidation        = errors.New("validation failed")

	// Account state errors
	ErrAccountDisabled = errors.New("account is disabled")
	ErrAccountLocked   = errors.New("account is temporarily locked")
)

// ErrTrustedIPNotFound is returned when a trusted IP record id is unknown.
// It matches ErrNotFound.
var ErrTrustedIPNotFound = fmt.Errorf("trusted ip %w", ErrNotFound)

// Governor refusal reasons
const (
	RateLimitReasonAccountLocked = "account_locked"
	RateLimitReasonRateLimited   = "rate_limited"
)

// RateLimitError carries the reason and reset time of a refused login.
// errors.Is(err, ErrRateLimited) holds for every RateLimitError.
type RateLimitError struct {
	Reason    string
	ResetTime time.Time
}

func (e *RateLimitError) Error() string {
	if e.Reason == RateLimitReasonAccountLocked {
		return "account temporarily locked"
	}
	return "too many login attempts"
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
