// Package config loads and validates Hang's environment configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration for the Room
// Coordination Service.
type Config struct {
	// Port defaults to 3005; ResumeTokenSecret is required
	Port              string
	ResumeTokenSecret string

	// Optional, defaulted
	Env      string
	LogLevel string

	RoomCleanupGracePeriod time.Duration
	AllowedOrigins         string

	// Redis / Bus (optional; absent disables C15 cross-instance fan-out
	// and falls back to an in-memory rate-limit store)
	RedisAddr     string
	RedisPassword string
	RedisEnabled  bool

	// OpenTelemetry (optional; absent disables tracing)
	OTELCollectorAddr      string
	OTELInsecureSkipVerify bool

	// Rate limits, in ulule/limiter's "N-M"/"N-H" textual format
	RateLimitConnectIP  string
	RateLimitCreateRoom string
	RateLimitJoinRoom   string
}

// ValidateEnv validates all required environment variables and returns a
// Config. All validation errors are collected before returning, so a
// misconfigured deployment reports everything wrong in one pass.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.Port = getEnvOrDefault("PORT", "3005")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got %q)", cfg.Port))
	}

	cfg.ResumeTokenSecret = os.Getenv("RESUME_TOKEN_SECRET")
	if cfg.ResumeTokenSecret == "" {
		errs = append(errs, "RESUME_TOKEN_SECRET is required")
	} else if len(cfg.ResumeTokenSecret) < 32 {
		errs = append(errs, fmt.Sprintf("RESUME_TOKEN_SECRET must be at least 32 characters (got %d)", len(cfg.ResumeTokenSecret)))
	}

	cfg.Env = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	gracePeriod := getEnvOrDefault("ROOM_CLEANUP_GRACE_PERIOD", "5s")
	d, err := time.ParseDuration(gracePeriod)
	if err != nil {
		errs = append(errs, fmt.Sprintf("ROOM_CLEANUP_GRACE_PERIOD must be a valid duration (got %q)", gracePeriod))
	}
	cfg.RoomCleanupGracePeriod = d

	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = getEnvOrDefault("REDIS_ADDR", "localhost:6379")
		if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got %q)", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.OTELCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")
	cfg.OTELInsecureSkipVerify = os.Getenv("OTEL_INSECURE_SKIP_VERIFY") == "true"

	cfg.RateLimitConnectIP = getEnvOrDefault("RATE_LIMIT_CONNECT_IP", "60-M")
	cfg.RateLimitCreateRoom = getEnvOrDefault("RATE_LIMIT_CREATE_ROOM", "20-M")
	cfg.RateLimitJoinRoom = getEnvOrDefault("RATE_LIMIT_JOIN_ROOM", "60-M")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	return err == nil && port >= 1 && port <= 65535
}

func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"port", cfg.Port,
		"resume_token_secret", redactSecret(cfg.ResumeTokenSecret),
		"env", cfg.Env,
		"log_level", cfg.LogLevel,
		"room_cleanup_grace_period", cfg.RoomCleanupGracePeriod,
		"redis_enabled", cfg.RedisEnabled,
		"otel_enabled", cfg.OTELCollectorAddr != "",
		"otel_insecure_skip_verify", cfg.OTELInsecureSkipVerify,
		"rate_limit_create_room", cfg.RateLimitCreateRoom,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret shows only the first 8 characters of a secret.
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
