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
	Server   ServerConfig
	Auth     AuthConfig
	Lockout  LockoutConfig
	OTP      OTPConfig
	Email    EmailConfig
}

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

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// LockoutConfig tunes the login lockout policy. The escalation schedule is
// data so operators can reshape it without touching policy code.
type LockoutConfig struct {
	Window           time.Duration
	FreeAttempts     int
	Schedule         []time.Duration
	AttemptRetention time.Duration
	CleanupInterval  time.Duration
}

type OTPConfig struct {
	RateLimitWindow   time.Duration
	RateLimitMax      int
	TTL               time.Duration
	PasswordResetTTL  time.Duration
	MaxVerifyAttempts int
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
	SenderName  string
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
			Name:              getEnv("DB_NAME", "smartcane"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS"),
			TrustedProxies: getEnvAsSlice("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
		},
		Lockout: LockoutConfig{
			Window:           getEnvAsDuration("LOCKOUT_WINDOW", 30*time.Minute),
			FreeAttempts:     getEnvAsInt("LOCKOUT_FREE_ATTEMPTS", 3),
			Schedule:         defaultLockoutSchedule(),
			AttemptRetention: getEnvAsDuration("LOGIN_ATTEMPT_RETENTION", 24*time.Hour),
			CleanupInterval:  getEnvAsDuration("LOGIN_ATTEMPT_CLEANUP_INTERVAL", 1*time.Hour),
		},
		OTP: OTPConfig{
			RateLimitWindow:   getEnvAsDuration("OTP_RATE_LIMIT_WINDOW", 1*time.Hour),
			RateLimitMax:      getEnvAsInt("OTP_RATE_LIMIT_MAX", 3),
			TTL:               getEnvAsDuration("OTP_TTL", 10*time.Minute),
			PasswordResetTTL:  getEnvAsDuration("OTP_PASSWORD_RESET_TTL", 5*time.Minute),
			MaxVerifyAttempts: getEnvAsInt("OTP_MAX_VERIFY_ATTEMPTS", 5),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "ap-southeast-1"),
			FromAddress: getEnv("MAIL_FROM_ADDRESS", ""),
			SenderName:  getEnv("MAIL_SENDER_NAME", "iCane Smart Cane"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultLockoutSchedule is the escalating lockout duration ladder: the first
// excess attempt waits a minute, repeated abuse plateaus at half an hour.
func defaultLockoutSchedule() []time.Duration {
	return []time.Duration{
		60 * time.Second,
		180 * time.Second,
		600 * time.Second,
		1800 * time.Second,
	}
}

// validateJWTSecret enforces minimum security standards for the JWT secret
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

func getEnvAsSlice(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
