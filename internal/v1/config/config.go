// Package config loads and validates the process environment into a single
// Config value. Every accumulated problem is reported at once so a
// misconfigured deployment fails loudly on the first attempt instead of
// one missing variable at a time.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the fully validated process configuration.
type Config struct {
	Port int

	MaxRooms     int
	CleanupGrace time.Duration

	TLSCertFile string
	TLSKeyFile  string

	AllowedOrigins []string

	GoEnv    string
	LogLevel string

	RateLimitEnabled     bool
	RedisAddr            string
	RedisPassword        string
	RateLimitWSConnectIP string // e.g. "20-M"
	RateLimitFrameUser   string // e.g. "50-S"
}

// Load reads the process environment, applies defaults, and validates the
// result. It never panics; every problem is accumulated into the returned
// error so a deployment sees the whole list at once.
func Load() (*Config, error) {
	cfg := &Config{}
	var problems []string

	cfg.Port = envInt("PORT", 3000)
	if cfg.Port < 1 || cfg.Port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT must be between 1 and 65535 (got %d)", cfg.Port))
	}

	cfg.MaxRooms = envInt("MAX_ROOMS", 5)
	if cfg.MaxRooms < 1 {
		problems = append(problems, fmt.Sprintf("MAX_ROOMS must be positive (got %d)", cfg.MaxRooms))
	}

	cfg.CleanupGrace = envDuration("CLEANUP_GRACE", 60*time.Second)
	if cfg.CleanupGrace <= 0 {
		problems = append(problems, "CLEANUP_GRACE must be a positive duration")
	}

	cfg.TLSCertFile = os.Getenv("TLS_CERT_FILE")
	cfg.TLSKeyFile = os.Getenv("TLS_KEY_FILE")
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		problems = append(problems, "TLS_CERT_FILE and TLS_KEY_FILE must both be set or both be empty")
	}

	cfg.AllowedOrigins = splitNonEmpty(getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000"))

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.RateLimitEnabled = os.Getenv("RATE_LIMIT_ENABLED") != "false"
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if cfg.RateLimitEnabled && cfg.RedisAddr != "" && !isValidHostPort(cfg.RedisAddr) {
		problems = append(problems, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got %q)", cfg.RedisAddr))
	}

	cfg.RateLimitWSConnectIP = getEnvOrDefault("RATE_LIMIT_WS_CONNECT_IP", "20-M")
	cfg.RateLimitFrameUser = getEnvOrDefault("RATE_LIMIT_FRAME_USER", "50-S")

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return cfg, nil
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Bare integers in CLEANUP_GRACE are seconds, matching the
		// source spec's "default 60 seconds" framing.
		if n, err2 := strconv.Atoi(v); err2 == nil {
			return time.Duration(n) * time.Second
		}
		return fallback
	}
	return d
}

func splitNonEmpty(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// isValidHostPort checks if a string is in the format "host:port".
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	return err == nil && port >= 1 && port <= 65535
}
