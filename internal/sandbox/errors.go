package sandbox

import (
	"errors"
	"fmt"
)

// Sentinel errors for the sandbox lifecycle and the filesystem gateway.
// User-code failures are never errors: they come back inside the
// execution record.
var (
	// ErrUnknownSandbox means no sandbox with the given id is registered.
	ErrUnknownSandbox = errors.New("sandbox not found")

	// ErrSessionClosed means the sandbox's session has been shut down.
	ErrSessionClosed = errors.New("sandbox session is closed")

	// ErrAccessDenied means a file path escaped the working directory.
	ErrAccessDenied = errors.New("file access denied")

	// ErrFileNotFound means a download target does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrProvisioning marks failures while building sandbox directories.
	ErrProvisioning = errors.New("provisioning failed")

	// ErrSessionStart marks failures while booting the interpreter.
	ErrSessionStart = errors.New("session start failed")

	// ErrExecute marks pump failures that are not user-code errors.
	ErrExecute = errors.New("execute failed")
)

func provisionErr(err error) error {
	return fmt.Errorf("%w: %w", ErrProvisioning, err)
}

func sessionStartErr(err error) error {
	return fmt.Errorf("%w: %w", ErrSessionStart, err)
}

func executeErr(err error) error {
	return fmt.Errorf("%w: %w", ErrExecute, err)
}
