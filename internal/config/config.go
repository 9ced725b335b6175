package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort      string
	Environment     string
	BaseURL         string
	MySQLDSN        string
	RedisAddr       string
	RedisDB         int
	RedisPass       string
	JWTSecret       string
	JWTExpiresIn    time.Duration
	CookieExpiresIn time.Duration
	SwaggerHost     string
	Email           EmailConfig
}

// EmailConfig holds SMTP settings for outbound notifications.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Secure   bool
}

// Enabled reports whether enough is configured to actually send mail.
func (e EmailConfig) Enabled() bool {
	return e.Host != "" && e.From != ""
}

// ErrMissingJWTSecret is returned when JWT_SECRET is unset or empty.
var ErrMissingJWTSecret = errors.New("JWT_SECRET must be set and non-empty")

// Load builds Config from environment with sensible defaults.
// The signing secret has no default: a process without one must not start.
func Load() (*Config, error) {
	secret := os.Getenv("JWT_SECRET")
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingJWTSecret
	}

	cfg := &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		Environment:     getEnv("APP_ENV", "development"),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		MySQLDSN:        getEnv("MYSQL_DSN", "user:password@tcp(localhost:3306)/roamly?charset=utf8mb4&parseTime=True&loc=Local"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		RedisPass:       os.Getenv("REDIS_PASSWORD"),
		JWTSecret:       secret,
		JWTExpiresIn:    getEnvDuration("JWT_EXPIRES_IN", 2160*time.Hour),
		CookieExpiresIn: time.Duration(getEnvInt("JWT_COOKIE_EXPIRES_DAYS", 90)) * 24 * time.Hour,
		SwaggerHost:     os.Getenv("SWAGGER_HOST"),
	}

	cfg.Email = EmailConfig{
		Host:     os.Getenv("EMAIL_HOST"),
		Port:     getEnvInt("EMAIL_PORT", 587),
		Username: os.Getenv("EMAIL_USERNAME"),
		Password: os.Getenv("EMAIL_PASSWORD"),
		From:     os.Getenv("EMAIL_FROM"),
		Secure:   getEnvBool("EMAIL_SECURE", false),
	}

	return cfg, nil
}

// IsProduction reports whether the process runs in production mode.
// Controls the Secure attribute on the session cookie.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
