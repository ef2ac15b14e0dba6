package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the replbox server.
type Config struct {
	Host     string
	Port     int
	LogLevel string

	// APIKey protects all sandbox endpoints when set. Empty disables
	// authentication; health and metrics are always open.
	APIKey string

	// Sandbox placement
	TmpDir      string // root for work dirs, env dirs, and journals
	BaselineDir string // template environment; empty derives <TmpDir>/replbox_base_venv
	AssetsDir   string // font files staged into each work dir; empty disables

	// Interpreter tooling
	Python       string   // interpreter used to build environments
	UV           string   // uv binary; empty or missing falls back to pip
	BasePackages []string // packages preinstalled into the baseline; empty uses the built-in set

	// Lifecycle
	SandboxTTL    time.Duration // sandbox lifetime after creation
	SweepInterval time.Duration // period of the expiry backstop sweep

	// Operation bounds
	StartTimeout   time.Duration // interpreter readiness handshake
	MessageTimeout time.Duration // one receive while collecting output
	InstallTimeout time.Duration // one package installation
}

// Load reads configuration from environment variables with sensible
// defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Host:     envOrDefault("REPLBOX_HOST", "0.0.0.0"),
		Port:     8000,
		LogLevel: envOrDefault("REPLBOX_LOG_LEVEL", "info"),

		APIKey: os.Getenv("REPLBOX_API_KEY"),

		TmpDir:      envOrDefault("REPLBOX_TMP_DIR", os.TempDir()),
		BaselineDir: os.Getenv("REPLBOX_BASELINE_DIR"),
		AssetsDir:   os.Getenv("REPLBOX_ASSETS_DIR"),

		Python:       envOrDefault("REPLBOX_PYTHON", "python3"),
		UV:           envOrDefault("REPLBOX_UV", "uv"),
		BasePackages: envList("REPLBOX_BASE_PACKAGES"),

		SandboxTTL:    envOrDefaultDuration("REPLBOX_SANDBOX_TTL", 24*time.Hour),
		SweepInterval: envOrDefaultDuration("REPLBOX_SWEEP_INTERVAL", time.Hour),

		StartTimeout:   envOrDefaultDuration("REPLBOX_START_TIMEOUT", 60*time.Second),
		MessageTimeout: envOrDefaultDuration("REPLBOX_MESSAGE_TIMEOUT", time.Hour),
		InstallTimeout: envOrDefaultDuration("REPLBOX_INSTALL_TIMEOUT", 120*time.Second),
	}

	if portStr := os.Getenv("REPLBOX_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid REPLBOX_PORT %q: %w", portStr, err)
		}
		cfg.Port = port
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
