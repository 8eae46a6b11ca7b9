package services

import (
	"time"

	"github.com/dinarexchange/dinar-auth/internal/models"
)

// RateLimitConfig holds the thresholds for the customer login governor
type RateLimitConfig struct {
	AttemptWindow    time.Duration // how recent the last attempt must be to count
	MaxLoginAttempts int
	LockoutDuration  time.Duration
}

// Decision is the governor's verdict on a login attempt
type Decision struct {
	Allowed   bool
	Reason    string
	ResetTime time.Time
}

// Err returns the refusal as a *models.RateLimitError, or nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &models.RateLimitError{Reason: d.Reason, ResetTime: d.ResetTime}
}

// Governor tracks failed attempts on the account document itself and
// locks it once too many arrive in quick succession. Locks expire lazily
// on the next evaluation. It never touches storage; callers persist the
// mutated account.
type Governor struct {
	config RateLimitConfig
}

func NewGovernor(config RateLimitConfig) *Governor {
	return &Governor{config: config}
}

// Evaluate decides whether an attempt at now may proceed. It may mutate
// acc: an expired lock is cleared, and a burst over the threshold locks it.
func (g *Governor) Evaluate(acc *models.Account, now time.Time) Decision {
	if acc.AccountLocked && acc.LockUntil != nil {
		if now.Before(*acc.LockUntil) {
			return Decision{
				Reason:    models.RateLimitReasonAccountLocked,
				ResetTime: *acc.LockUntil,
			}
		}
		g.unlock(acc)
	} else if acc.AccountLocked {
		// Locked without an expiry is inconsistent; treat as expired
		g.unlock(acc)
	}

	if acc.LastLoginAttempt != nil &&
		now.Sub(*acc.LastLoginAttempt) < g.config.AttemptWindow &&
		acc.LoginAttempts >= g.config.MaxLoginAttempts {
		lockUntil := now.Add(g.config.LockoutDuration)
		acc.AccountLocked = true
		acc.LockUntil = &lockUntil
		return Decision{
			Reason:    models.RateLimitReasonRateLimited,
			ResetTime: lockUntil,
		}
	}

	return Decision{Allowed: true}
}

// Record notes an attempt outcome at now. Success resets the governor.
func (g *Governor) Record(acc *models.Account, success bool, now time.Time) {
	acc.LastLoginAttempt = &now
	if success {
		acc.LoginAttempts = 0
		g.unlock(acc)
		return
	}
	acc.LoginAttempts++
}

// Touch stamps the attempt time without counting a failure.
func (g *Governor) Touch(acc *models.Account, now time.Time) {
	acc.LastLoginAttempt = &now
}

func (g *Governor) unlock(acc *models.Account) {
	if acc.AccountLocked || acc.LockUntil != nil {
		acc.LoginAttempts = 0
	}
	acc.AccountLocked = false
	acc.LockUntil = nil
}

// AdminLockConfig holds the thresholds for admin password login
type AdminLockConfig struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// AdminLockPolicy is the stricter lock protecting password login. Its
// counters live on the admin document and are unrelated to Governor.
type AdminLockPolicy struct {
	config AdminLockConfig
}

func NewAdminLockPolicy(config AdminLockConfig) *AdminLockPolicy {
	return &AdminLockPolicy{config: config}
}

// RecordFailure counts a bad password. An expired lock restarts the count
// at 1; reaching the threshold starts a new lock.
func (p *AdminLockPolicy) RecordFailure(admin *models.Admin, now time.Time) (locked bool) {
	if admin.LockUntil != nil && !admin.LockUntil.After(now) {
		admin.LoginAttempts = 1
		admin.LockUntil = nil
		return false
	}

	admin.LoginAttempts++
	if admin.LoginAttempts >= p.config.MaxAttempts && !admin.IsLocked(now) {
		lockUntil := now.Add(p.config.LockDuration)
		admin.LockUntil = &lockUntil
		return true
	}
	return false
}

// RecordSuccess clears the counter and stamps the login time.
func (p *AdminLockPolicy) RecordSuccess(admin *models.Admin, now time.Time) {
	admin.LoginAttempts = 0
	admin.LockUntil = nil
	admin.LastLogin = &now
}
