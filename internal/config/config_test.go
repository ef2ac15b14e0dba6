package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("REPLBOX_HOST")
	os.Unsetenv("REPLBOX_PORT")
	os.Unsetenv("REPLBOX_API_KEY")
	os.Unsetenv("REPLBOX_SANDBOX_TTL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Host)
	}
	if cfg.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Port)
	}
	if cfg.Python != "python3" {
		t.Errorf("expected python3, got %s", cfg.Python)
	}
	if cfg.SandboxTTL != 24*time.Hour {
		t.Errorf("expected TTL 24h, got %s", cfg.SandboxTTL)
	}
	if cfg.SweepInterval != time.Hour {
		t.Errorf("expected sweep interval 1h, got %s", cfg.SweepInterval)
	}
	if cfg.InstallTimeout != 120*time.Second {
		t.Errorf("expected install timeout 120s, got %s", cfg.InstallTimeout)
	}
	if cfg.BasePackages != nil {
		t.Errorf("expected no base package override, got %v", cfg.BasePackages)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("REPLBOX_PORT", "9999")
	os.Setenv("REPLBOX_API_KEY", "test-key")
	os.Setenv("REPLBOX_SANDBOX_TTL", "30m")
	os.Setenv("REPLBOX_BASE_PACKAGES", "numpy, pandas ,requests")
	defer func() {
		os.Unsetenv("REPLBOX_PORT")
		os.Unsetenv("REPLBOX_API_KEY")
		os.Unsetenv("REPLBOX_SANDBOX_TTL")
		os.Unsetenv("REPLBOX_BASE_PACKAGES")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Port)
	}
	if cfg.APIKey != "test-key" {
		t.Errorf("expected API key test-key, got %s", cfg.APIKey)
	}
	if cfg.SandboxTTL != 30*time.Minute {
		t.Errorf("expected TTL 30m, got %s", cfg.SandboxTTL)
	}
	want := []string{"numpy", "pandas", "requests"}
	if len(cfg.BasePackages) != len(want) {
		t.Fatalf("expected %d base packages, got %v", len(want), cfg.BasePackages)
	}
	for i, pkg := range want {
		if cfg.BasePackages[i] != pkg {
			t.Errorf("base package %d: expected %s, got %s", i, pkg, cfg.BasePackages[i])
		}
	}
}

func TestLoadInvalidPort(t *testing.T) {
	os.Setenv("REPLBOX_PORT", "not-a-number")
	defer os.Unsetenv("REPLBOX_PORT")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestLoadBadDurationFallsBack(t *testing.T) {
	os.Setenv("REPLBOX_SWEEP_INTERVAL", "often")
	defer os.Unsetenv("REPLBOX_SWEEP_INTERVAL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.SweepInterval != time.Hour {
		t.Errorf("expected fallback 1h, got %s", cfg.SweepInterval)
	}
}
