package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
)

// pyTool drives the Python environment tooling. uv is preferred for both
// venv creation and installs; plain venv+pip is the fallback so the
// service still works on hosts without uv.
type pyTool struct {
	python string
	uv     string
}

func newPyTool(python, uv string) pyTool {
	if python == "" {
		python = "python3"
	}
	if uv != "" {
		if _, err := exec.LookPath(uv); err != nil {
			uv = ""
		}
	}
	return pyTool{python: python, uv: uv}
}

// venvPython returns the interpreter inside an environment directory.
func venvPython(envDir string) string {
	return filepath.Join(envDir, "bin", "python")
}

// createVenv builds a fresh virtual environment in dir.
func (p pyTool) createVenv(ctx context.Context, dir string) error {
	var cmd *exec.Cmd
	if p.uv != "" {
		cmd = exec.CommandContext(ctx, p.uv, "venv", dir, "--python", p.python)
	} else {
		cmd = exec.CommandContext(ctx, p.python, "-m", "venv", dir)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("create venv in %s: %w: %s", dir, err, bytes.TrimSpace(out))
	}
	return nil
}

// install adds a package to the environment rooted at envDir, capturing
// installer output. A non-zero installer exit is reported through ok,
// not err; err means the installer could not run at all.
func (p pyTool) install(ctx context.Context, envDir, pkg string) (ok bool, stdout, stderr string, err error) {
	python := venvPython(envDir)

	var cmd *exec.Cmd
	if p.uv != "" {
		cmd = exec.CommandContext(ctx, p.uv, "pip", "install", "--python", python, pkg)
	} else {
		cmd = exec.CommandContext(ctx, python, "-m", "pip", "install", pkg)
	}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	stdout = outBuf.String()
	stderr = errBuf.String()

	if runErr == nil {
		return true, stdout, stderr, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, stdout, stderr, fmt.Errorf("install %s: %w", pkg, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return false, stdout, stderr, nil
	}
	return false, stdout, stderr, fmt.Errorf("install %s: %w", pkg, runErr)
}
