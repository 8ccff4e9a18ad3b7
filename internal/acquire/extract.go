package acquire

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// extractorBinary is the out-of-process extraction helper shipped with
// the application. It takes (archivePath, targetDir) and writes
// line-delimited JSON progress records to stdout.
const extractorBinary = "sona-extract"

// extractRecord is one line of helper stdout.
type extractRecord struct {
	Type       string  `json:"type"`
	Percentage float64 `json:"percentage"`
	Status     string  `json:"status"`
}

// ExtractProgressFunc receives extraction progress in the helper's own
// 0..100 range.
type ExtractProgressFunc func(percent float64, status string)

// Extractor drives the out-of-process archive extraction step.
type Extractor interface {
	Extract(ctx context.Context, archivePath, targetDir string, onProgress ExtractProgressFunc) error
}

// ProcessExtractor spawns the extraction helper as a subprocess.
type ProcessExtractor struct {
	binary string
}

// NewProcessExtractor creates an extractor using the bundled helper.
func NewProcessExtractor() *ProcessExtractor {
	return &ProcessExtractor{binary: extractorBinary}
}

// NewProcessExtractorForTests creates an extractor running an arbitrary
// command in place of the bundled helper.
func NewProcessExtractorForTests(binary string) *ProcessExtractor {
	return &ProcessExtractor{binary: binary}
}

// Extract runs the helper and streams its progress records. Cancelling
// the context force-terminates the helper and returns the context error;
// a non-zero exit surfaces an ExtractionError with captured stderr.
func (e *ProcessExtractor) Extract(ctx context.Context, archivePath, targetDir string, onProgress ExtractProgressFunc) error {
	cmd := exec.CommandContext(ctx, e.binary, archivePath, targetDir)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("attach helper stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start extraction helper: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var record extractRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			// Helpers may interleave free-form output; only well-formed
			// progress records are forwarded.
			continue
		}
		if record.Type == "progress" && onProgress != nil {
			onProgress(record.Percentage, record.Status)
		}
	}

	scanErr := scanner.Err()
	waitErr := cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &ExtractionError{
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      waitErr,
		}
	}
	if scanErr != nil {
		return fmt.Errorf("read helper output: %w", scanErr)
	}
	return nil
}
