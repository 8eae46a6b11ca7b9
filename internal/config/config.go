package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Server   ServerConfig
	Auth     AuthConfig
	Email    EmailConfig
	Policy   PolicyConfig
}

// DatabaseConfig configures the PostgreSQL pool that backs the audit log.
type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// MongoConfig configures the document store holding accounts and admins.
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	JWTSecret         string
	AdminTokenExpiry  time.Duration
	SessionTTL        time.Duration
	SessionCookieName string
	AdminCookieName   string
	CookieDomain      string
	MagicKeyTTL       time.Duration
	AuditRetention    time.Duration
	CleanupInterval   time.Duration
	AdminEmail        string
	AdminPassword     string
}

type EmailConfig struct {
	AWSRegion     string
	FromAddress   string
	BaseURL       string
	NotifyTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "dinar_audit"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Mongo: MongoConfig{
			URI:            getEnv("MONGODB_URI", ""),
			Database:       getEnv("MONGODB_DATABASE", "dinar_exchange"),
			ConnectTimeout: getEnvAsDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
			MaxPoolSize:    uint64(getEnvAsInt("MONGODB_MAX_POOL_SIZE", 50)),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 20),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AdminTokenExpiry:  getEnvAsDuration("ADMIN_TOKEN_EXPIRY", DefaultAdminTokenExpiry),
			SessionTTL:        getEnvAsDuration("SESSION_TTL", DefaultSessionTTL),
			SessionCookieName: getEnv("SESSION_COOKIE_NAME", DefaultSessionCookieName),
			AdminCookieName:   getEnv("ADMIN_COOKIE_NAME", DefaultAdminCookieName),
			CookieDomain:      getEnv("COOKIE_DOMAIN", ""),
			MagicKeyTTL:       getEnvAsDuration("MAGIC_KEY_TTL", DefaultMagicKeyTTL),
			AuditRetention:    getEnvAsDuration("AUDIT_RETENTION", DefaultAuditRetention),
			CleanupInterval:   getEnvAsDuration("CLEANUP_INTERVAL", DefaultCleanupInterval),
			AdminEmail:        getEnv("ADMIN_EMAIL", ""),
			AdminPassword:     getEnv("ADMIN_PASSWORD", ""),
		},
		Email: EmailConfig{
			AWSRegion:     getEnv("AWS_REGION", "us-east-1"),
			FromAddress:   getEnv("EMAIL_FROM", "no-reply@dinarexchange.com"),
			BaseURL:       strings.TrimRight(getEnv("BASE_URL", ""), "/"),
			NotifyTimeout: getEnvAsDuration("NOTIFY_TIMEOUT", DefaultNotifyTimeout),
		},
		Policy: loadPolicy(),
	}

	if cfg.Mongo.URI == "" {
		return nil, fmt.Errorf("MONGODB_URI is required")
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if cfg.Email.BaseURL == "" {
		return nil, fmt.Errorf("BASE_URL is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether cookies must be marked Secure.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Validate rejects policy values that would disable the governor or the trust cap.
func (p PolicyConfig) Validate() error {
	if p.MaxLoginAttempts < 1 {
		return fmt.Errorf("POLICY_MAX_LOGIN_ATTEMPTS must be at least 1")
	}
	if p.AdminMaxAttempts < 1 {
		return fmt.Errorf("POLICY_ADMIN_MAX_ATTEMPTS must be at least 1")
	}
	if p.MaxTrustedIPs < 1 {
		return fmt.Errorf("POLICY_MAX_TRUSTED_IPS must be at least 1")
	}
	if p.SubnetTolerance < 0 || p.SubnetTolerance > 255 {
		return fmt.Errorf("POLICY_SUBNET_TOLERANCE must be between 0 and 255")
	}
	if p.AttemptWindow <= 0 || p.LockoutDuration <= 0 || p.AdminLockDuration <= 0 {
		return fmt.Errorf("policy durations must be positive")
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return parseList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
