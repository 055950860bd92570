// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// DefaultPort is the socket port the daemon listens on unless overridden.
const DefaultPort = 4567

// DefaultDriveURL is the remote store API base used in production.
const DefaultDriveURL = "https://www.googleapis.com/drive/v3"

// Config holds all daemon configuration.
type Config struct {
	// Socket server
	Port int

	// Remote store
	DriveURL        string
	CredentialsFile string
	Token           string

	// Metrics (empty = disabled)
	MetricsAddr string

	// Resolve the root container before serving
	EagerRoot bool

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with defaults. Either
// a service-account credentials file or a static token must be configured;
// the token wins when both are set.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            envInt("SHEETSTORE_PORT", DefaultPort),
		DriveURL:        envOr("SHEETSTORE_DRIVE_URL", DefaultDriveURL),
		CredentialsFile: envOr("SHEETSTORE_CREDENTIALS", ""),
		Token:           envOr("SHEETSTORE_TOKEN", ""),
		MetricsAddr:     envOr("SHEETSTORE_METRICS_ADDR", ""),
		EagerRoot:       envBool("SHEETSTORE_EAGER_ROOT", false),
		LogLevel:        envOr("SHEETSTORE_LOG_LEVEL", "info"),
		LogFormat:       envOr("SHEETSTORE_LOG_FORMAT", "json"),
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SHEETSTORE_PORT %d out of range", cfg.Port)
	}
	if cfg.CredentialsFile == "" && cfg.Token == "" {
		return nil, fmt.Errorf("SHEETSTORE_CREDENTIALS or SHEETSTORE_TOKEN is required")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
