package sandbox

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig carries everything needed to stand up the sandbox runtime.
type ServiceConfig struct {
	// TmpRoot anchors sandbox directories, journal files, and the default
	// baseline location. Empty means the system temp directory.
	TmpRoot string
	// BaselineDir overrides the default baseline location under TmpRoot.
	BaselineDir string
	// AssetsDir optionally holds font files staged into each sandbox.
	AssetsDir string

	// Python and UV name the interpreter and installer binaries.
	Python string
	UV     string
	// BasePackages overrides DefaultBaselinePackages for the baseline build.
	BasePackages []string

	TTL            time.Duration
	SweepInterval  time.Duration
	StartTimeout   time.Duration
	MessageTimeout time.Duration
	InstallTimeout time.Duration
}

// NewService builds the baseline environment and returns a registry wired
// to provision, start, and reap sandboxes. The caller owns the registry
// lifecycle: StartSweep after creation, Shutdown on exit.
//
// A baseline build failure is not fatal. The service runs without a
// template and every sandbox gets a fresh environment instead, which is
// slower but functional.
func NewService(ctx context.Context, cfg ServiceConfig, logger *zerolog.Logger) (*Registry, error) {
	if cfg.TmpRoot == "" {
		cfg.TmpRoot = os.TempDir()
	}
	tool := newPyTool(cfg.Python, cfg.UV)

	packages := cfg.BasePackages
	if packages == nil {
		packages = DefaultBaselinePackages
	}
	baselineDir, err := EnsureBaseline(ctx, BaselineOptions{
		Dir:            cfg.BaselineDir,
		TmpRoot:        cfg.TmpRoot,
		Packages:       packages,
		InstallTimeout: cfg.InstallTimeout,
		Tool:           tool,
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("baseline build failed, continuing without a template environment")
		baselineDir = ""
	}

	prov := NewProvisioner(ProvisionerOptions{
		TmpRoot:     cfg.TmpRoot,
		BaselineDir: baselineDir,
		AssetsDir:   cfg.AssetsDir,
		Tool:        tool,
	}, logger)

	sessCfg := SessionConfig{
		StartTimeout:   cfg.StartTimeout,
		MessageTimeout: cfg.MessageTimeout,
		InstallTimeout: cfg.InstallTimeout,
		Tool:           tool,
	}

	return NewRegistry(RegistryConfig{
		TTL:           cfg.TTL,
		SweepInterval: cfg.SweepInterval,
		TmpRoot:       cfg.TmpRoot,
		Provision:     prov.Provision,
		StartSession: func(id string, dirs Dirs) (Session, error) {
			return StartSession(id, dirs, sessCfg, logger)
		},
		Cleanup: prov.Cleanup,
	}, logger), nil
}
