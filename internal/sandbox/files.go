package sandbox

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/replbox/replbox/pkg/types"
)

// ResolveFile maps a client-supplied relative path to the absolute path of
// an existing regular file under workDir. Paths that escape the work
// directory, lexically or through a symlink, yield ErrAccessDenied.
// Containment is checked before existence, so probing outside the boundary
// never reveals whether a target exists.
func ResolveFile(workDir, rel string) (string, error) {
	abs, err := containedPath(workDir, rel)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrFileNotFound
		}
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return "", ErrFileNotFound
	}
	return abs, nil
}

// UploadFile writes src to rel beneath workDir, creating parent
// directories as needed, and returns the absolute destination path.
func UploadFile(workDir, rel string, src io.Reader) (string, error) {
	abs, err := containedPath(workDir, rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create parent dirs: %w", err)
	}
	out, err := os.Create(abs)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", abs, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", fmt.Errorf("write %s: %w", abs, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", abs, err)
	}
	return abs, nil
}

// ListFiles returns every regular file under workDir with its path
// relative to the work directory and its size in bytes.
func ListFiles(workDir string) ([]types.FileInfo, error) {
	base, err := filepath.EvalSymlinks(workDir)
	if err != nil {
		return nil, fmt.Errorf("canonicalize work dir: %w", err)
	}
	files := []types.FileInfo{}
	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		files = append(files, types.FileInfo{Path: rel, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk work dir: %w", err)
	}
	return files, nil
}

// containedPath joins rel against the canonicalized workDir and verifies
// the result stays inside it. Symlinks along the existing portion of the
// path are resolved before the check so a link pointing outside cannot
// smuggle access. The returned path may not exist yet.
func containedPath(workDir, rel string) (string, error) {
	base, err := filepath.EvalSymlinks(workDir)
	if err != nil {
		return "", fmt.Errorf("canonicalize work dir: %w", err)
	}
	if filepath.IsAbs(rel) {
		return "", ErrAccessDenied
	}
	joined := filepath.Join(base, rel)
	if !within(base, joined) {
		return "", ErrAccessDenied
	}
	resolved, err := canonicalize(joined)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", joined, err)
	}
	if !within(base, resolved) {
		return "", ErrAccessDenied
	}
	return resolved, nil
}

func within(base, path string) bool {
	return path == base || strings.HasPrefix(path, base+string(filepath.Separator))
}

// canonicalize resolves symlinks along the longest existing prefix of
// path and reattaches the nonexistent remainder. The remainder cannot
// introduce an escape since components that do not exist cannot be links.
func canonicalize(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	var rest []string
	cur := path
	for {
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		rest = append(rest, filepath.Base(cur))
		cur = parent
		prefix, perr := filepath.EvalSymlinks(cur)
		if perr == nil {
			for i := len(rest) - 1; i >= 0; i-- {
				prefix = filepath.Join(prefix, rest[i])
			}
			return prefix, nil
		}
		if !errors.Is(perr, fs.ErrNotExist) {
			return "", perr
		}
	}
}
