package app

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Issuer        string // Issuer claim for tokens (default: authd)
	AccessSecret  string // Required: HMAC secret for access tokens
	RefreshSecret string // Required: HMAC secret for refresh tokens, must differ from AccessSecret

	DatabaseFile string // Path to SQLite database file (default: ./authd.db)
	PepperFile   string // Path to file containing pepper for password hashing (default: ./pepper)

	ResendAPIKey string // Optional: Resend API key; codes are logged when unset
	EmailFrom    string // Sender address for verification codes

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping sweep interval (default: 15m)
	MonitorInterval      time.Duration // Session expiry check interval (default: 1m)
}

func LoadConfig() Config {
	// A missing .env file is fine; real deployments set the environment
	// directly.
	_ = godotenv.Load()

	return Config{
		Issuer:        getEnvOrDefault("AUTHD_ISSUER", "authd"),
		AccessSecret:  os.Getenv("AUTHD_ACCESS_SECRET"),
		RefreshSecret: os.Getenv("AUTHD_REFRESH_SECRET"),

		DatabaseFile: getEnvOrDefault("AUTHD_DATABASE_FILE", "authd.db"),
		PepperFile:   getEnvOrDefault("AUTHD_PEPPER_FILE", "pepper"),

		ResendAPIKey: os.Getenv("AUTHD_RESEND_API_KEY"),
		EmailFrom:    getEnvOrDefault("AUTHD_EMAIL_FROM", "no-reply@localhost"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 15*time.Minute),
		MonitorInterval:      getEnvDurationOrDefault("MONITOR_INTERVAL", time.Minute),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
