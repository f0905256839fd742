package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Env       string
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Estimator EstimatorConfig
	Presence  PresenceConfig
	Kafka     KafkaConfig
	Payments  PaymentsConfig
	RateLimit RateLimitConfig
	NewRelic  NewRelicConfig
	LogLevel  string
}

// ServerConfig holds HTTP(S) server configuration.
type ServerConfig struct {
	Port            string
	HTTPSEnabled    bool
	HTTPSPort       string
	CertFile        string
	KeyFile         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL configuration.
// URL takes precedence over the individual parts when set.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Migrate  bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	URL      string
	Addr     string
	Password string
	DB       int
	Required bool
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	JWTSecret     string
	SessionTTL    time.Duration
	Issuer        string
	Audience      string
	PublicKeyFile string
}

// EstimatorConfig holds settings for the external fare/ETA service and routing.
type EstimatorConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	OSRMURL  string
}

// PresenceConfig holds driver presence settings.
type PresenceConfig struct {
	Backend       string
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// KafkaConfig holds lifecycle event publishing settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// PaymentsConfig holds payment provider settings.
type PaymentsConfig struct {
	StripeAPIKey string
	Currency     string
}

// RateLimitConfig holds request limits per window.
type RateLimitConfig struct {
	APIRequests  int
	APIWindow    time.Duration
	AuthRequests int
	AuthWindow   time.Duration
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// Load loads configuration from environment variables.
// A .env file in the working directory is read first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Env: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "3000"),
			HTTPSEnabled:    getBoolEnv("HTTPS_ENABLED", false),
			HTTPSPort:       getEnv("HTTPS_PORT", "3001"),
			CertFile:        getEnv("TLS_CERT_FILE", "certs/server.crt"),
			KeyFile:         getEnv("TLS_KEY_FILE", "certs/server.key"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second),
			AllowedOrigins:  getListEnv("CORS_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "rapidride"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Migrate:  getBoolEnv("DB_MIGRATE", false),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			Required: getBoolEnv("REDIS_REQUIRED", false),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			SessionTTL:    getDurationEnv("SESSION_TTL", 24*time.Hour),
			Issuer:        getEnv("IDENTITY_ISSUER", ""),
			Audience:      getEnv("IDENTITY_AUDIENCE", ""),
			PublicKeyFile: getEnv("IDENTITY_PUBLIC_KEY_FILE", ""),
		},
		Estimator: EstimatorConfig{
			BaseURL:  getEnv("ESTIMATOR_URL", "http://localhost:8001"),
			Timeout:  getDurationEnv("ESTIMATOR_TIMEOUT", 10*time.Second),
			CacheTTL: getDurationEnv("ESTIMATE_CACHE_TTL", 5*time.Minute),
			OSRMURL:  getEnv("OSRM_URL", "https://router.project-osrm.org"),
		},
		Presence: PresenceConfig{
			Backend:       getEnv("PRESENCE_BACKEND", "memory"),
			IdleTimeout:   getDurationEnv("PRESENCE_IDLE_TIMEOUT", time.Hour),
			SweepInterval: getDurationEnv("PRESENCE_SWEEP_INTERVAL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: getListEnv("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "ride-events"),
		},
		Payments: PaymentsConfig{
			StripeAPIKey: getEnv("STRIPE_API_KEY", ""),
			Currency:     getEnv("PAYMENT_CURRENCY", "inr"),
		},
		RateLimit: RateLimitConfig{
			APIRequests:  getIntEnv("RATE_LIMIT_API", 300),
			APIWindow:    getDurationEnv("RATE_LIMIT_API_WINDOW", time.Minute),
			AuthRequests: getIntEnv("RATE_LIMIT_AUTH", 100),
			AuthWindow:   getDurationEnv("RATE_LIMIT_AUTH_WINDOW", 15*time.Minute),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "rapidride"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// IsProduction reports whether the service runs with production safeguards.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("SERVER_PORT must be set"))
	}
	if c.Server.HTTPSEnabled {
		if c.Server.HTTPSPort == "" {
			errs = append(errs, errors.New("HTTPS_PORT must be set when HTTPS_ENABLED"))
		}
		if c.Server.CertFile == "" || c.Server.KeyFile == "" {
			errs = append(errs, errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set when HTTPS_ENABLED"))
		}
	}
	if c.Auth.JWTSecret == "" && c.IsProduction() {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TTL must be > 0, got %s", c.Auth.SessionTTL))
	}
	switch c.Presence.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("PRESENCE_BACKEND must be memory or redis, got %q", c.Presence.Backend))
	}
	if c.Presence.Backend == "redis" && !c.Redis.Required {
		errs = append(errs, errors.New("PRESENCE_BACKEND=redis requires REDIS_REQUIRED=true"))
	}
	if c.Presence.IdleTimeout <= 0 || c.Presence.SweepInterval <= 0 {
		errs = append(errs, errors.New("presence idle timeout and sweep interval must be > 0"))
	}
	if c.RateLimit.APIRequests <= 0 || c.RateLimit.AuthRequests <= 0 {
		errs = append(errs, errors.New("rate limits must be > 0"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	raw := strings.Split(value, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
