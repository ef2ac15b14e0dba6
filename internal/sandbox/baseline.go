package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// BaselineDirName is the directory name of the shared template environment.
const BaselineDirName = "replbox_base_venv"

// BaselineOptions configures construction of the shared template environment.
type BaselineOptions struct {
	// Dir is the baseline directory. Empty means TmpRoot/BaselineDirName.
	Dir string
	// TmpRoot anchors the default Dir.
	TmpRoot string
	// Packages are installed into the baseline one at a time. A package
	// that fails to install is logged and skipped.
	Packages []string
	// InstallTimeout bounds each package install.
	InstallTimeout time.Duration
	// Tool runs the environment and install commands.
	Tool pyTool
}

// DefaultBaselinePackages is the standard interpreter toolkit preinstalled
// into the baseline so sandboxes start with it available.
var DefaultBaselinePackages = []string{
	"ipykernel",
	"numpy",
	"pandas",
	"matplotlib",
	"scipy",
	"seaborn",
}

// EnsureBaseline creates the template environment if it does not already
// exist and returns its path. An existing usable baseline is reused as is,
// which keeps restarts cheap.
func EnsureBaseline(ctx context.Context, opts BaselineOptions, logger *zerolog.Logger) (string, error) {
	dir := opts.Dir
	if dir == "" {
		root := opts.TmpRoot
		if root == "" {
			root = os.TempDir()
		}
		dir = filepath.Join(root, BaselineDirName)
	}

	if baselineUsable(dir) {
		logger.Info().Str("dir", dir).Msg("reusing existing baseline environment")
		return dir, nil
	}

	logger.Info().Str("dir", dir).Msg("building baseline environment")
	started := time.Now()

	// A stale half-built directory from a crashed run would poison every
	// sandbox cloned from it, so clear before building.
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear baseline dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", fmt.Errorf("create baseline parent: %w", err)
	}
	if err := opts.Tool.createVenv(ctx, dir); err != nil {
		return "", fmt.Errorf("create baseline environment: %w", err)
	}

	for _, pkg := range opts.Packages {
		installCtx := ctx
		var cancel context.CancelFunc
		if opts.InstallTimeout > 0 {
			installCtx, cancel = context.WithTimeout(ctx, opts.InstallTimeout)
		}
		ok, _, stderr, err := opts.Tool.install(installCtx, dir, pkg)
		if cancel != nil {
			cancel()
		}
		switch {
		case err != nil:
			logger.Warn().Err(err).Str("package", pkg).Msg("baseline package install errored, skipping")
		case !ok:
			logger.Warn().Str("package", pkg).Str("stderr", tail(stderr, 2000)).Msg("baseline package install failed, skipping")
		default:
			logger.Info().Str("package", pkg).Msg("baseline package installed")
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("baseline build interrupted: %w", ctx.Err())
		}
	}

	logger.Info().Str("dir", dir).Dur("elapsed", time.Since(started)).Msg("baseline environment ready")
	return dir, nil
}

// tail returns at most n trailing bytes of s, where failures usually
// carry the useful part.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
