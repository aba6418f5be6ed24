// Package config loads gateway configuration from the environment and the
// optional YAML limits profile.
package config

import (
	"os"
	"strings"
)

// Config holds the gateway's runtime configuration.
type Config struct {
	Port     string
	LogLevel string

	// DatabaseURL selects PostgreSQL when set; otherwise the gateway runs
	// on a local SQLite file at SQLitePath.
	DatabaseURL string
	SQLitePath  string

	PrivateAPIURL    string
	PrivateAPISecret string

	// RedisURL is optional; empty means the rate limiter runs memory-only.
	RedisURL string

	JWTSecret   string
	CORSOrigins []string

	// LimitsProfile points at an optional YAML file overriding tier limits.
	LimitsProfile string

	ForgiveUpstreamClientErrors bool

	Environment  string
	OTelEnabled  bool
	OTelEndpoint string
	OTelInsecure bool
}

// Load reads configuration from environment variables, applying defaults
// suitable for local development.
func Load() *Config {
	return &Config{
		Port:     getenv("PORT", "8080"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getenv("SQLITE_PATH", "gateway.db"),

		PrivateAPIURL:    os.Getenv("PRIVATE_API_URL"),
		PrivateAPISecret: os.Getenv("PRIVATE_API_SECRET"),

		RedisURL: os.Getenv("REDIS_URL"),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		CORSOrigins: splitList(os.Getenv("CORS_ORIGINS")),

		LimitsProfile: os.Getenv("LIMITS_PROFILE"),

		ForgiveUpstreamClientErrors: os.Getenv("FORGIVE_UPSTREAM_CLIENT_ERRORS") == "true",

		Environment:  getenv("ENVIRONMENT", "development"),
		OTelEnabled:  os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint: getenv("OTEL_ENDPOINT", "localhost:4317"),
		OTelInsecure: os.Getenv("OTEL_INSECURE") == "true",
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
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
