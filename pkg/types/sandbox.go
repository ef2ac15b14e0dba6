package types

import "time"

// CreateResponse is returned by sandbox creation.
type CreateResponse struct {
	SandboxID string `json:"sandbox_id"`
}

// SandboxInfo is the per-sandbox entry in the sandbox listing.
type SandboxInfo struct {
	CreatedAt time.Time `json:"created_at"`
}

// CloseResponse is returned by sandbox close.
type CloseResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}
