package types

// Result is one rich representation of an execution output, such as a
// rendered HTML table or a base64-encoded PNG plot.
type Result struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExecutionError describes an exception raised by user code.
type ExecutionError struct {
	Name      string   `json:"name"`
	Value     string   `json:"value"`
	Traceback []string `json:"traceback"`
}

// Execution is the outcome of one execute call. Stdout and Stderr keep
// the fragments in interpreter emission order; Results keeps rich outputs
// in emission order across execute_result and display_data messages.
type Execution struct {
	Stdout         []string        `json:"stdout"`
	Stderr         []string        `json:"stderr"`
	Error          *ExecutionError `json:"error"`
	Results        []Result        `json:"results"`
	ExecutionCount int             `json:"execution_count"`
}

// ExecuteRequest is the request body for executing code in a sandbox.
type ExecuteRequest struct {
	Code string `json:"code"`
}

// InstallRequest is the request body for installing a package.
type InstallRequest struct {
	PackageName string `json:"package_name"`
}

// InstallResult reports a package installation attempt. A failed install
// is a result, not an error: callers want the captured installer output.
type InstallResult struct {
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
	Message string `json:"message"`
}

// StreamEvent is one frame on the execute/stream websocket.
type StreamEvent struct {
	Type   string          `json:"type"` // "stdout", "stderr", "result", "error", "done"
	Text   string          `json:"text,omitempty"`
	Result *Result         `json:"result,omitempty"`
	Error  *ExecutionError `json:"error,omitempty"`
	Record *Execution      `json:"record,omitempty"`
}

// ExecutionSummary is one journal row returned by the executions endpoint.
type ExecutionSummary struct {
	Seq        int    `json:"seq"`
	Kind       string `json:"kind"` // "execute" or "install"
	StartedAt  string `json:"started_at"`
	DurationMS int64  `json:"duration_ms"`
	OK         bool   `json:"ok"`
	Detail     string `json:"detail,omitempty"`
}
