package config

import "time"

// Default authentication policy values. These are tunable through the
// POLICY_* environment variables; the constants are the fallbacks.
const (
	DefaultAttemptWindow     = 5 * time.Minute
	DefaultMaxLoginAttempts  = 5
	DefaultLockoutDuration   = 15 * time.Minute
	DefaultAdminMaxAttempts  = 5
	DefaultAdminLockDuration = 2 * time.Hour
	DefaultMaxTrustedIPs     = 10
	DefaultSubnetTolerance   = 20
	DefaultMagicKeyTTL       = 24 * time.Hour
	DefaultSessionTTL        = 30 * 24 * time.Hour
	DefaultAdminTokenExpiry  = 8 * time.Hour
	DefaultNotifyTimeout     = 10 * time.Second
	DefaultAuditRetention    = 180 * 24 * time.Hour
	DefaultCleanupInterval   = 24 * time.Hour
	DefaultSessionCookieName = "auth-token"
	DefaultAdminCookieName   = "admin-token"
	DefaultMagicKeyBytes     = 32
	DefaultStaleWriteRetries = 3
)

// PolicyConfig holds the thresholds used by the login governor, the
// admin lock and the trusted IP store.
type PolicyConfig struct {
	AttemptWindow          time.Duration
	MaxLoginAttempts       int
	LockoutDuration        time.Duration
	AdminMaxAttempts       int
	AdminLockDuration      time.Duration
	MaxTrustedIPs          int
	SubnetTolerance        int
	CountMagicLinkRequests bool
	StaleWriteRetries      int
}

// DefaultPolicy returns the policy with every value at its default.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		AttemptWindow:     DefaultAttemptWindow,
		MaxLoginAttempts:  DefaultMaxLoginAttempts,
		LockoutDuration:   DefaultLockoutDuration,
		AdminMaxAttempts:  DefaultAdminMaxAttempts,
		AdminLockDuration: DefaultAdminLockDuration,
		MaxTrustedIPs:     DefaultMaxTrustedIPs,
		SubnetTolerance:   DefaultSubnetTolerance,
		StaleWriteRetries: DefaultStaleWriteRetries,
	}
}

func loadPolicy() PolicyConfig {
	return PolicyConfig{
		AttemptWindow:          getEnvAsDuration("POLICY_ATTEMPT_WINDOW", DefaultAttemptWindow),
		MaxLoginAttempts:       getEnvAsInt("POLICY_MAX_LOGIN_ATTEMPTS", DefaultMaxLoginAttempts),
		LockoutDuration:        getEnvAsDuration("POLICY_LOCKOUT_DURATION", DefaultLockoutDuration),
		AdminMaxAttempts:       getEnvAsInt("POLICY_ADMIN_MAX_ATTEMPTS", DefaultAdminMaxAttempts),
		AdminLockDuration:      getEnvAsDuration("POLICY_ADMIN_LOCK_DURATION", DefaultAdminLockDuration),
		MaxTrustedIPs:          getEnvAsInt("POLICY_MAX_TRUSTED_IPS", DefaultMaxTrustedIPs),
		SubnetTolerance:        getEnvAsInt("POLICY_SUBNET_TOLERANCE", DefaultSubnetTolerance),
		CountMagicLinkRequests: getEnvAsBool("POLICY_COUNT_MAGIC_LINK_REQUESTS", false),
		StaleWriteRetries:      getEnvAsInt("POLICY_STALE_WRITE_RETRIES", DefaultStaleWriteRetries),
	}
}
