package kernel

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed launcher.py
var launcherSource []byte

// LauncherFileName is the name the kernel launcher is written under
// inside a sandbox environment directory.
const LauncherFileName = "kernel_launcher.py"

// WriteLauncher materializes the embedded launcher into dir and returns
// its path. The environment directory is used rather than the working
// directory so the file never shows up in sandbox file listings.
func WriteLauncher(dir string) (string, error) {
	path := filepath.Join(dir, LauncherFileName)
	if err := os.WriteFile(path, launcherSource, 0o644); err != nil {
		return "", fmt.Errorf("kernel: write launcher: %w", err)
	}
	return path, nil
}
