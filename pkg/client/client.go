package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/replbox/replbox/pkg/types"
)

// Client is an HTTP client for the replbox API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new replbox API client. The client sets no overall
// request timeout because executes can legitimately run for a long time;
// bound individual calls through the context instead.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// doRequest performs an HTTP request with API key authentication.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	reqURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

// CreateSandbox creates a new sandbox and returns its id.
func (c *Client) CreateSandbox(ctx context.Context) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/sandbox/create", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var created types.CreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return created.SandboxID, nil
}

// ListSandboxes lists all live sandboxes keyed by id.
func (c *Client) ListSandboxes(ctx context.Context) (map[string]types.SandboxInfo, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/sandboxes", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var sandboxes map[string]types.SandboxInfo
	if err := json.NewDecoder(resp.Body).Decode(&sandboxes); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return sandboxes, nil
}

// CloseSandbox closes a sandbox and releases its resources.
func (c *Client) CloseSandbox(ctx context.Context, sandboxID string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/sandbox/%s/close", sandboxID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return nil
}

// Execute runs code in a sandbox and returns the finished record.
func (c *Client) Execute(ctx context.Context, sandboxID, code string) (*types.Execution, error) {
	body := types.ExecuteRequest{Code: code}
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/sandbox/%s/execute", sandboxID), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var rec types.Execution
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &rec, nil
}

// ExecuteStream runs code over the streaming websocket, invoking handle
// for every event frame as the server emits it, and returns the final
// record.
func (c *Client) ExecuteStream(ctx context.Context, sandboxID, code string, handle func(types.StreamEvent)) (*types.Execution, error) {
	wsURL, err := c.streamURL(sandboxID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("X-API-Key", c.apiKey)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(types.ExecuteRequest{Code: code}); err != nil {
		return nil, fmt.Errorf("send execute request: %w", err)
	}

	for {
		var ev types.StreamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseInternalServerErr {
				return nil, fmt.Errorf("execution failed: %s", ce.Text)
			}
			return nil, fmt.Errorf("read stream: %w", err)
		}
		if ev.Type == "done" {
			return ev.Record, nil
		}
		if handle != nil {
			handle(ev)
		}
	}
}

func (c *Client) streamURL(sandboxID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + fmt.Sprintf("/sandbox/%s/execute/stream", sandboxID)
	return u.String(), nil
}

// Install installs a package into a sandbox environment.
func (c *Client) Install(ctx context.Context, sandboxID, packageName string) (*types.InstallResult, error) {
	body := types.InstallRequest{PackageName: packageName}
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/sandbox/%s/install", sandboxID), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result types.InstallResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}

// Executions returns a sandbox's execution history in order.
func (c *Client) Executions(ctx context.Context, sandboxID string) ([]types.ExecutionSummary, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/sandbox/%s/executions", sandboxID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var rows []types.ExecutionSummary
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return rows, nil
}

// Upload sends a file into a sandbox's working directory. filePath is the
// optional destination relative to the working directory; empty means the
// file lands at the top level under fileName. The absolute path the server
// wrote is returned.
func (c *Client) Upload(ctx context.Context, sandboxID, fileName string, contents io.Reader, filePath string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, contents); err != nil {
		return "", fmt.Errorf("buffer upload: %w", err)
	}
	if filePath != "" {
		if err := mw.WriteField("file_path", filePath); err != nil {
			return "", fmt.Errorf("write form field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finish multipart body: %w", err)
	}

	reqURL := fmt.Sprintf("%s/sandbox/%s/upload", c.baseURL, sandboxID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var uploaded types.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return uploaded.FilePath, nil
}

// ListFiles lists the regular files in a sandbox's working directory.
func (c *Client) ListFiles(ctx context.Context, sandboxID string) ([]types.FileInfo, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/sandbox/%s/files", sandboxID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var files []types.FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return files, nil
}

// Download streams one file out of a sandbox's working directory into w.
func (c *Client) Download(ctx context.Context, sandboxID, path string, w io.Writer) error {
	reqURL := fmt.Sprintf("/sandbox/%s/download/%s", sandboxID, escapePath(path))
	resp, err := c.doRequest(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read download: %w", err)
	}
	return nil
}

// DownloadArchive streams a zstd-compressed tar of the whole working
// directory into w.
func (c *Client) DownloadArchive(ctx context.Context, sandboxID string, w io.Writer) error {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/sandbox/%s/files/archive", sandboxID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	return nil
}

// Health reports the server's health status string.
func (c *Client) Health(ctx context.Context) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var health types.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return health.Status, nil
}

// escapePath escapes each path element while keeping the separators, so
// names with spaces or metacharacters survive the URL round trip.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
