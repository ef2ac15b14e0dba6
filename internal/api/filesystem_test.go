package api

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/replbox/replbox/pkg/types"
)

func (h *apiHarness) upload(t *testing.T, id, fileName, filePath, contents string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(fw, contents); err != nil {
		t.Fatalf("write upload body: %v", err)
	}
	if filePath != "" {
		if err := mw.WriteField("file_path", filePath); err != nil {
			t.Fatalf("write file_path field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, h.ts.URL+"/sandbox/"+id+"/upload", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func TestServer_UploadListDownload(t *testing.T) {
	h := newAPIHarness(t, "")
	id := h.createSandbox(t)

	resp, body := h.upload(t, id, "hello.txt", "notes/hello.txt", "hi there")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d: %s", resp.StatusCode, body)
	}
	var up types.UploadResponse
	if err := json.Unmarshal(body, &up); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if !filepath.IsAbs(up.FilePath) || !strings.HasSuffix(up.FilePath, "notes/hello.txt") {
		t.Errorf("file_path = %q", up.FilePath)
	}

	resp, body = h.do(t, http.MethodGet, "/sandbox/"+id+"/files", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list files status = %d: %s", resp.StatusCode, body)
	}
	var files []types.FileInfo
	if err := json.Unmarshal(body, &files); err != nil {
		t.Fatalf("decode file listing: %v", err)
	}
	if len(files) != 1 || files[0].Path != "notes/hello.txt" || files[0].Size != int64(len("hi there")) {
		t.Errorf("file listing = %+v", files)
	}

	resp, body = h.do(t, http.MethodGet, "/sandbox/"+id+"/download/notes/hello.txt", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d: %s", resp.StatusCode, body)
	}
	if string(body) != "hi there" {
		t.Errorf("download body = %q", body)
	}
	cd := resp.Header.Get("Content-Disposition")
	if !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, "hello.txt") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestServer_UploadDefaultsToFilename(t *testing.T) {
	h := newAPIHarness(t, "")
	id := h.createSandbox(t)

	resp, body := h.upload(t, id, "data.csv", "", "a,b\n1,2\n")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d: %s", resp.StatusCode, body)
	}

	resp, body = h.do(t, http.MethodGet, "/sandbox/"+id+"/download/data.csv", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d: %s", resp.StatusCode, body)
	}
	if string(body) != "a,b\n1,2\n" {
		t.Errorf("download body = %q", body)
	}
}

func TestServer_UploadMissingFile(t *testing.T) {
	h := newAPIHarness(t, "")
	id := h.createSandbox(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("file_path", "x.txt"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, h.ts.URL+"/sandbox/"+id+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if msg := errBody(t, body); msg != "file form field is required" {
		t.Errorf("error = %q", msg)
	}
}

func TestServer_UploadEscapeDenied(t *testing.T) {
	h := newAPIHarness(t, "")
	id := h.createSandbox(t)

	resp, body := h.upload(t, id, "evil.txt", "../evil.txt", "payload")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if msg := errBody(t, body); msg != "file access denied" {
		t.Errorf("error = %q", msg)
	}
}

func TestServer_DownloadNotFound(t *testing.T) {
	h := newAPIHarness(t, "")
	id := h.createSandbox(t)

	resp, body := h.do(t, http.MethodGet, "/sandbox/"+id+"/download/missing.txt", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if msg := errBody(t, body); msg != "file not found" {
		t.Errorf("error = %q", msg)
	}
}

func TestServer_DownloadEscapeDenied(t *testing.T) {
	h := newAPIHarness(t, "")
	id := h.createSandbox(t)

	// Traversal and absolute targets are both refused. The Go client
	// sends dot segments through without normalizing them.
	for _, rel := range []string{"../../etc/passwd", "/etc/passwd"} {
		resp, body := h.do(t, http.MethodGet, "/sandbox/"+id+"/download/"+rel, nil)
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("download %q status = %d: %s", rel, resp.StatusCode, body)
			continue
		}
		if msg := errBody(t, body); msg != "file access denied" {
			t.Errorf("download %q error = %q", rel, msg)
		}
	}
}

func TestServer_Archive(t *testing.T) {
	h := newAPIHarness(t, "")
	id := h.createSandbox(t)

	if resp, body := h.upload(t, id, "data.csv", "", "a,b\n"); resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d: %s", resp.StatusCode, body)
	}
	if resp, body := h.upload(t, id, "plot.png", "figs/plot.png", "png-bytes"); resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d: %s", resp.StatusCode, body)
	}

	resp, body := h.do(t, http.MethodGet, "/sandbox/"+id+"/files/archive", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("archive status = %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/zstd" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, id+".tar.zst") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	zr, err := zstd.NewReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
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
			t.Fatalf("tar next: %v", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("tar read %s: %v", hdr.Name, err)
		}
		got[hdr.Name] = string(data)
	}

	want := map[string]string{
		"data.csv":      "a,b\n",
		"figs/plot.png": "png-bytes",
	}
	if len(got) != len(want) {
		t.Fatalf("archive entries = %v", got)
	}
	for name, contents := range want {
		if got[name] != contents {
			t.Errorf("archive %s = %q, want %q", name, got[name], contents)
		}
	}
}
