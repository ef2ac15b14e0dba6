package sandbox

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Dirs is the pair of private directories backing one sandbox.
type Dirs struct {
	WorkDir string
	EnvDir  string
}

// ProvisionerOptions configures sandbox directory provisioning.
type ProvisionerOptions struct {
	// TmpRoot is the directory sandbox directories are created under.
	TmpRoot string
	// BaselineDir is the template environment to clone. It may be absent;
	// sandboxes then get a fresh empty environment.
	BaselineDir string
	// AssetsDir optionally holds font files staged into each work dir.
	AssetsDir string
	// Tool builds fresh environments when the baseline is unusable.
	Tool pyTool
}

// Provisioner produces the working and environment directories for new
// sandboxes, cloning the baseline when one exists.
type Provisioner struct {
	opts   ProvisionerOptions
	logger *zerolog.Logger
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(opts ProvisionerOptions, logger *zerolog.Logger) *Provisioner {
	if opts.TmpRoot == "" {
		opts.TmpRoot = os.TempDir()
	}
	return &Provisioner{opts: opts, logger: logger}
}

// Provision creates the directory pair for sandbox id. On any failure
// both directories are removed before the error is returned, so a failed
// provision leaves no artifacts.
func (p *Provisioner) Provision(ctx context.Context, id string) (Dirs, error) {
	workDir, err := os.MkdirTemp(p.opts.TmpRoot, "sandbox_"+id+"_")
	if err != nil {
		return Dirs{}, provisionErr(fmt.Errorf("create work dir: %w", err))
	}

	envDir, err := os.MkdirTemp(p.opts.TmpRoot, "sandbox_venv_"+id+"_")
	if err != nil {
		_ = os.RemoveAll(workDir)
		return Dirs{}, provisionErr(fmt.Errorf("create env dir: %w", err))
	}

	dirs := Dirs{WorkDir: workDir, EnvDir: envDir}

	if err := p.populateEnv(ctx, id, envDir); err != nil {
		p.Cleanup(dirs)
		return Dirs{}, provisionErr(err)
	}

	p.stageAssets(id, workDir)

	return dirs, nil
}

// populateEnv fills envDir with a runnable interpreter environment,
// preferring a clone of the baseline over building from scratch.
func (p *Provisioner) populateEnv(ctx context.Context, id, envDir string) error {
	baseline := p.opts.BaselineDir
	if baseline != "" && baselineUsable(baseline) {
		if err := cloneTree(ctx, baseline, envDir); err == nil {
			return nil
		} else {
			p.logger.Warn().Err(err).Str("sandbox_id", id).Msg("baseline copy failed, building fresh environment")
		}
		// Clear the partial copy before falling back.
		if err := os.RemoveAll(envDir); err != nil {
			return fmt.Errorf("clear partial env dir: %w", err)
		}
		if err := os.MkdirAll(envDir, 0o755); err != nil {
			return fmt.Errorf("recreate env dir: %w", err)
		}
	}
	return p.opts.Tool.createVenv(ctx, envDir)
}

// stageAssets copies bundled font files into the work directory so user
// code can register them. Failures are logged and skipped.
func (p *Provisioner) stageAssets(id, workDir string) {
	if p.opts.AssetsDir == "" {
		return
	}
	entries, err := os.ReadDir(p.opts.AssetsDir)
	if err != nil {
		p.logger.Warn().Err(err).Str("sandbox_id", id).Msg("assets dir unreadable, skipping font staging")
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".ttf") {
			continue
		}
		src := filepath.Join(p.opts.AssetsDir, entry.Name())
		dst := filepath.Join(workDir, entry.Name())
		if err := copyFile(src, dst); err != nil {
			p.logger.Warn().Err(err).Str("sandbox_id", id).Str("asset", entry.Name()).Msg("failed to stage asset")
		}
	}
}

// Cleanup removes both sandbox directories, ignoring errors.
func (p *Provisioner) Cleanup(dirs Dirs) {
	if dirs.WorkDir != "" {
		_ = os.RemoveAll(dirs.WorkDir)
	}
	if dirs.EnvDir != "" {
		_ = os.RemoveAll(dirs.EnvDir)
	}
}

func baselineUsable(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "pyvenv.cfg"))
	return err == nil
}

// cloneTree copies the contents of src into dst. The cp fast path covers
// the common case; the native walk is the fallback for hosts where cp is
// unavailable or fails.
func cloneTree(ctx context.Context, src, dst string) error {
	if err := exec.CommandContext(ctx, "cp", "-a", src+"/.", dst).Run(); err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("copy %s: %w", src, ctx.Err())
	}
	return copyTree(src, dst)
}

// copyTree recursively copies src into dst, preserving permission bits
// and symlink targets.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if rel == "." {
			return nil
		}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("read symlink %s: %w", path, err)
			}
			if err := os.Symlink(link, target); err != nil {
				return fmt.Errorf("create symlink %s: %w", target, err)
			}
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(target, info.Mode().Perm()); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
		default:
			if err := copyFile(path, target); err != nil {
				return err
			}
		}
		return nil
	})
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", dst, err)
	}
	return out.Close()
}
