package acquire

import (
	"errors"
	"fmt"

	"sona-transcriber/internal/domain"
)

// ErrCancelled is returned when the user aborts an in-flight acquisition.
// It is a distinct outcome, never conflated with download or extraction
// failure.
var ErrCancelled = errors.New("acquisition cancelled")

// HardwareError reports a missing accelerator for a model build. It is
// recoverable: the caller may confirm and retry with the gate skipped.
type HardwareError struct {
	ModelID string
	Engine  domain.ExecutionEngine
}

// Error formats the incompatibility for logs and UI.
func (e *HardwareError) Error() string {
	return fmt.Sprintf("model %s requires %s acceleration which was not detected", e.ModelID, e.Engine)
}

// ExtractionError reports a failed extraction helper run with captured
// diagnostic output.
type ExtractionError struct {
	ExitCode int
	Stderr   string
	Err      error
}

// Error formats extraction failures including helper diagnostics.
func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extraction helper failed (exit=%d)", e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}
