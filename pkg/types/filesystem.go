package types

// FileInfo is one regular file in a sandbox working directory. Path is
// relative to the working directory root.
type FileInfo struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// UploadResponse is returned by file upload and reports the absolute
// path the file was written to inside the sandbox.
type UploadResponse struct {
	FilePath string `json:"file_path"`
}
