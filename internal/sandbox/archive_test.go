package sandbox

import (
	"archive/tar"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestWriteArchive(t *testing.T) {
	workDir := t.TempDir()

	if _, err := UploadFile(workDir, "report.txt", strings.NewReader("findings")); err != nil {
		t.Fatalf("UploadFile() error: %v", err)
	}
	if _, err := UploadFile(workDir, "plots/fig1.png", strings.NewReader("not-a-real-png")); err != nil {
		t.Fatalf("UploadFile() error: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteArchive(workDir, &buf); err != nil {
		t.Fatalf("WriteArchive() error: %v", err)
	}

	zr, err := zstd.NewReader(&buf)
	if err != nil {
		t.Fatalf("zstd.NewReader() error: %v", err)
	}
	defer zr.Close()

	got := map[string]string{}
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar.Next() error: %v", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("read entry %s: %v", hdr.Name, err)
		}
		got[hdr.Name] = string(data)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(got), got)
	}
	if got["report.txt"] != "findings" {
		t.Errorf("report.txt content = %q", got["report.txt"])
	}
	if got["plots/fig1.png"] != "not-a-real-png" {
		t.Errorf("plots/fig1.png content = %q", got["plots/fig1.png"])
	}
}

func TestWriteArchive_EmptyWorkspace(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteArchive(t.TempDir(), &buf); err != nil {
		t.Fatalf("WriteArchive() error: %v", err)
	}

	zr, err := zstd.NewReader(&buf)
	if err != nil {
		t.Fatalf("zstd.NewReader() error: %v", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	if _, err := tr.Next(); err != io.EOF {
		t.Errorf("expected empty archive, got entry with err %v", err)
	}
}
