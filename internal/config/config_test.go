package config

import (
	"os"
	"strings"
	"testing"
)

// setupTestEnv clears Hang's env vars for the duration of a test and
// restores whatever was there afterward.
func setupTestEnv(t *testing.T) func() {
	keys := []string{
		"PORT", "RESUME_TOKEN_SECRET", "GO_ENV", "LOG_LEVEL",
		"ALLOWED_ORIGINS", "ROOM_CLEANUP_GRACE_PERIOD",
		"REDIS_ENABLED", "REDIS_ADDR", "REDIS_PASSWORD",
		"OTEL_COLLECTOR_ADDR", "OTEL_INSECURE_SKIP_VERIFY",
		"RATE_LIMIT_CONNECT_IP", "RATE_LIMIT_CREATE_ROOM", "RATE_LIMIT_JOIN_ROOM",
	}
	orig := make(map[string]string, len(keys))
	for _, k := range keys {
		orig[k] = os.Getenv(k)
		os.Unsetenv(k)
	}
	return func() {
		for _, k := range keys {
			if v := orig[k]; v != "" {
				os.Setenv(k, v)
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

func TestValidateEnv_ValidConfiguration(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PORT", "8080")
	os.Setenv("RESUME_TOKEN_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected PORT to be '8080', got %q", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected GO_ENV to default to 'production', got %q", cfg.Env)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected LOG_LEVEL to default to 'info', got %q", cfg.LogLevel)
	}
	if cfg.RoomCleanupGracePeriod.String() != "5s" {
		t.Errorf("expected ROOM_CLEANUP_GRACE_PERIOD to default to 5s, got %v", cfg.RoomCleanupGracePeriod)
	}
}

func TestValidateEnv_MissingResumeTokenSecret(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PORT", "8080")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error for missing RESUME_TOKEN_SECRET, got nil")
	}
	if !strings.Contains(err.Error(), "RESUME_TOKEN_SECRET is required") {
		t.Errorf("expected error about RESUME_TOKEN_SECRET, got: %v", err)
	}
}

func TestValidateEnv_ShortResumeTokenSecret(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PORT", "8080")
	os.Setenv("RESUME_TOKEN_SECRET", "short")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error for short RESUME_TOKEN_SECRET, got nil")
	}
	if !strings.Contains(err.Error(), "must be at least 32 characters") {
		t.Errorf("expected error about secret length, got: %v", err)
	}
}

func TestValidateEnv_InvalidPort(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PORT", "99999")
	os.Setenv("RESUME_TOKEN_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error for invalid PORT, got nil")
	}
	if !strings.Contains(err.Error(), "PORT must be a valid port number") {
		t.Errorf("expected error about invalid PORT, got: %v", err)
	}
}

func TestValidateEnv_InvalidGracePeriod(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PORT", "8080")
	os.Setenv("RESUME_TOKEN_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")
	os.Setenv("ROOM_CLEANUP_GRACE_PERIOD", "not-a-duration")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error for invalid ROOM_CLEANUP_GRACE_PERIOD, got nil")
	}
	if !strings.Contains(err.Error(), "ROOM_CLEANUP_GRACE_PERIOD must be a valid duration") {
		t.Errorf("expected error about grace period, got: %v", err)
	}
}

func TestValidateEnv_InvalidRedisAddr(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PORT", "8080")
	os.Setenv("RESUME_TOKEN_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")
	os.Setenv("REDIS_ENABLED", "true")
	os.Setenv("REDIS_ADDR", "invalid-format")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error for invalid REDIS_ADDR, got nil")
	}
	if !strings.Contains(err.Error(), "REDIS_ADDR must be in format 'host:port'") {
		t.Errorf("expected error about REDIS_ADDR format, got: %v", err)
	}
}

func TestValidateEnv_RedisDefaultAddr(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PORT", "8080")
	os.Setenv("RESUME_TOKEN_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")
	os.Setenv("REDIS_ENABLED", "true")
	// REDIS_ADDR intentionally unset.

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("expected REDIS_ADDR to default to 'localhost:6379', got %q", cfg.RedisAddr)
	}
}

func TestValidateEnv_OTELInsecureSkipVerify(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PORT", "8080")
	os.Setenv("RESUME_TOKEN_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")
	os.Setenv("OTEL_COLLECTOR_ADDR", "collector:4317")
	os.Setenv("OTEL_INSECURE_SKIP_VERIFY", "true")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !cfg.OTELInsecureSkipVerify {
		t.Error("expected OTEL_INSECURE_SKIP_VERIFY=true to set OTELInsecureSkipVerify")
	}
}

func TestValidateEnv_RateLimitDefaults(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PORT", "8080")
	os.Setenv("RESUME_TOKEN_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.RateLimitConnectIP != "60-M" {
		t.Errorf("expected RATE_LIMIT_CONNECT_IP to default to '60-M', got %q", cfg.RateLimitConnectIP)
	}
	if cfg.RateLimitCreateRoom != "20-M" {
		t.Errorf("expected RATE_LIMIT_CREATE_ROOM to default to '20-M', got %q", cfg.RateLimitCreateRoom)
	}
	if cfg.RateLimitJoinRoom != "60-M" {
		t.Errorf("expected RATE_LIMIT_JOIN_ROOM to default to '60-M', got %q", cfg.RateLimitJoinRoom)
	}
}

func TestValidateEnv_CollectsAllErrors(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PORT", "not-a-port")
	os.Setenv("RESUME_TOKEN_SECRET", "short")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "PORT must be a valid port number") {
		t.Errorf("expected PORT error in combined message, got: %v", err)
	}
	if !strings.Contains(err.Error(), "RESUME_TOKEN_SECRET must be at least 32 characters") {
		t.Errorf("expected RESUME_TOKEN_SECRET error in combined message, got: %v", err)
	}
}

func TestRedactSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		expected string
	}{
		{"Long secret", "this-is-a-very-long-secret-key", "this-is-***"},
		{"Short secret", "short", "***"},
		{"Exactly 8 chars", "12345678", "***"},
		{"9 chars", "123456789", "12345678***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := redactSecret(tt.secret)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestIsValidHostPort(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		expected bool
	}{
		{"Valid localhost", "localhost:8080", true},
		{"Valid IP", "127.0.0.1:3000", true},
		{"Valid hostname", "example.com:443", true},
		{"Missing port", "localhost", false},
		{"Missing host", ":8080", false},
		{"Invalid port", "localhost:99999", false},
		{"Non-numeric port", "localhost:abc", false},
		{"Multiple colons", "localhost:8080:9090", false},
		{"Empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isValidHostPort(tt.addr)
			if result != tt.expected {
				t.Errorf("isValidHostPort(%q) = %v, expected %v", tt.addr, result, tt.expected)
			}
		})
	}
}
