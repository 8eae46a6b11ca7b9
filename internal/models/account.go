package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Account is a customer identity keyed by email. Customers never hold a
// password; they authenticate from a trusted IP or through a magic link.
type Account struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email            string             `bson:"email" json:"email"`
	Name             string             `bson:"name,omitempty" json:"name,omitempty"`
	MagicKey         *string            `bson:"magic_key,omitempty" json:"-"`
	MagicKeyIssuedAt *time.Time         `bson:"magic_key_issued_at,omitempty" json:"-"`
	TrustedIPs       []TrustedIP        `bson:"trusted_ips" json:"-"`
	LastLoginIP      string             `bson:"last_login_ip,omitempty" json:"-"`
	AutoLoginEnabled *bool              `bson:"auto_login_enabled,omitempty" json:"-"`
	LoginAttempts    int                `bson:"login_attempts" json:"-"`
	LastLoginAttempt *time.Time         `bson:"last_login_attempt,omitempty" json:"-"`
	AccountLocked    bool               `bson:"account_locked" json:"-"`
	LockUntil        *time.Time         `bson:"lock_until,omitempty" json:"-"`
	Version          int64              `bson:"version" json:"-"`
	CreatedAt        time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"-"`
}

// TrustedIP is an address from which the account has authenticated.
type TrustedIP struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	IP        string             `bson:"ip" json:"ip"`
	FirstSeen time.Time          `bson:"first_seen" json:"firstSeen"`
	LastUsed  time.Time          `bson:"last_used" json:"lastUsed"`
	UserAgent *string            `bson:"user_agent,omitempty" json:"userAgent,omitempty"`
	Location  *string            `bson:"location,omitempty" json:"location,omitempty"`
}

// AutoLogin reports whether trusted-IP auto-login applies. An unset flag
// counts as enabled.
func (a *Account) AutoLogin() bool {
	return a.AutoLoginEnabled == nil || *a.AutoLoginEnabled
}

// HasMagicKey reports whether an unconsumed magic key is stored.
func (a *Account) HasMagicKey() bool {
	return a.MagicKey != nil && *a.MagicKey != ""
}

// Clone returns a deep copy so callers can mutate without touching a
// shared value.
func (a *Account) Clone() *Account {
	c := *a
	c.TrustedIPs = append([]TrustedIP(nil), a.TrustedIPs...)
	return &c
}

// AccountView is the public projection returned to the customer.
type AccountView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func (a *Account) View() AccountView {
	return AccountView{
		ID:    a.ID.Hex(),
		Email: a.Email,
		Name:  a.Name,
	}
}
