package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates runtime configuration for the budgetauth API.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	MinIO    MinIOConfig
	Auth     AuthConfig
	Avatar   AvatarConfig
	Metrics  MetricsConfig
	Log      LogConfig
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	APIPrefix    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// MinIOConfig carries MinIO connection and avatar bucket information.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	AvatarBucket    string
	UseSSL          bool
	Region          string
}

// AuthConfig groups authentication-related settings.
type AuthConfig struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	BcryptCost         int
	Issuer             string
}

// AvatarConfig controls how stored avatar keys become client URLs.
// When BaseURL is empty, presigned MinIO URLs valid for URLTTL are used.
type AvatarConfig struct {
	BaseURL string
	URLTTL  time.Duration
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:         getString("BUDGETAUTH_API_HOST", "0.0.0.0"),
			Port:         getInt("BUDGETAUTH_API_PORT", 8080),
			APIPrefix:    getString("BUDGETAUTH_API_PREFIX", "/api"),
			ReadTimeout:  getDuration("BUDGETAUTH_API_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDuration("BUDGETAUTH_API_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getDuration("BUDGETAUTH_API_IDLE_TIMEOUT", 60*time.Second),
		},
		Postgres: PostgresConfig{
			Host:     getString("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getString("POSTGRES_USER", "budgetauth_app"),
			Password: getString("POSTGRES_PASSWORD", "change-me"),
			Database: getString("POSTGRES_DB", "budgetauth"),
			SSLMode:  strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
		},
		MinIO: MinIOConfig{
			Endpoint:        getString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getString("MINIO_ROOT_USER", "budgetauth"),
			SecretAccessKey: getString("MINIO_ROOT_PASSWORD", "change-me-strong-password"),
			AvatarBucket:    getString("MINIO_AVATAR_BUCKET", "avatars"),
			UseSSL:          getBool("MINIO_USE_SSL", false),
			Region:          getString("MINIO_REGION", ""),
		},
		Auth: loadAuthConfig(),
		Avatar: AvatarConfig{
			BaseURL: strings.TrimRight(getString("BUDGETAUTH_AVATAR_BASE_URL", ""), "/"),
			URLTTL:  getDuration("BUDGETAUTH_AVATAR_URL_TTL", time.Hour),
		},
		Metrics: MetricsConfig{
			PrometheusPath: getString("BUDGETAUTH_METRICS_PATH", "/metrics"),
		},
		Log: LogConfig{
			Level: strings.ToLower(getString("LOG_LEVEL", "info")),
		},
	}

	if err := cfg.Auth.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects token settings that cannot produce a working issuer.
func (a AuthConfig) Validate() error {
	if strings.TrimSpace(a.AccessTokenSecret) == "" {
		return errors.New("access token secret must not be empty")
	}
	if strings.TrimSpace(a.RefreshTokenSecret) == "" {
		return errors.New("refresh token secret must not be empty")
	}
	if a.AccessTokenTTL <= 0 || a.RefreshTokenTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if a.AccessTokenTTL >= a.RefreshTokenTTL {
		return fmt.Errorf("access token ttl %s must be shorter than refresh token ttl %s", a.AccessTokenTTL, a.RefreshTokenTTL)
	}
	return nil
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "1", "true", "t", "yes", "y":
			return true
		case "0", "false", "f", "no", "n":
			return false
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func loadAuthConfig() AuthConfig {
	cost := getInt("BUDGETAUTH_AUTH_BCRYPT_COST", 12)
	if cost < 4 || cost > 31 {
		cost = 12
	}

	return AuthConfig{
		AccessTokenSecret:  getString("BUDGETAUTH_JWT_SECRET", "change-me-to-a-32-byte-secret"),
		RefreshTokenSecret: getString("BUDGETAUTH_JWT_REFRESH_SECRET", "change-me-to-a-64-byte-secret"),
		AccessTokenTTL:     getDuration("BUDGETAUTH_AUTH_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:    getDuration("BUDGETAUTH_AUTH_REFRESH_TOKEN_TTL", 168*time.Hour),
		BcryptCost:         cost,
		Issuer:             getString("BUDGETAUTH_JWT_ISSUER", "budgetauth"),
	}
}
