package sandbox

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// WriteArchive streams a zstd-compressed tar of every regular file under
// workDir to w. Entry names are relative to the work directory.
func WriteArchive(workDir string, w io.Writer) error {
	base, err := filepath.EvalSymlinks(workDir)
	if err != nil {
		return fmt.Errorf("canonicalize work dir: %w", err)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("start compressor: %w", err)
	}
	tw := tar.NewWriter(zw)

	walkErr := filepath.WalkDir(base, func(path string, d fs.DirEntry, werr error) error {
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
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, cerr := io.Copy(tw, f)
		f.Close()
		return cerr
	})
	if walkErr != nil {
		tw.Close()
		zw.Close()
		return fmt.Errorf("archive work dir: %w", walkErr)
	}
	if err := tw.Close(); err != nil {
		zw.Close()
		return fmt.Errorf("finish tar stream: %w", err)
	}
	return zw.Close()
}
