// Package diagnostics validates external helpers and configured model
// paths at startup and after settings changes.
package diagnostics

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"sona-transcriber/internal/domain"
)

// Checker validates external tools and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings, modelsDir string) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("sona-engine"),
		c.checkTool("sona-extract"),
		c.checkRequiredPath("offline_model", "Offline model", settings.OfflineModelPath,
			"Download an offline model from the catalog or set its path in settings."),
		c.checkOptionalPath("punctuation_model", "Punctuation model", settings.PunctuationModelPath),
		c.checkOptionalPath("vad_model", "VAD model", settings.VADModelPath),
		c.checkOptionalPath("ctc_model", "CT-transducer model", settings.CTCModelPath),
		c.checkModelsDir(modelsDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a required helper executable is on PATH.
func (c *Checker) checkTool(name string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Helper not found in PATH: %s", name),
			Hint:    "Reinstall the application so its bundled helpers are available.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkRequiredPath validates a path that must be configured and exist.
func (c *Checker) checkRequiredPath(id, name, path, hint string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: id, Name: name}

	if strings.TrimSpace(path) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = name + " path is empty."
		item.Hint = hint
		return item
	}

	if _, err := c.stat(path); err != nil {
		item.Status = domain.DiagnosticStatusFail
		if errors.Is(err, os.ErrNotExist) {
			item.Message = fmt.Sprintf("%s path does not exist: %s", name, path)
		} else {
			item.Message = fmt.Sprintf("Cannot access %s path: %s", name, path)
		}
		item.Hint = hint
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found: %s", path)
	return item
}

// checkOptionalPath warns when a configured optional path is missing but
// never fails the report: the feature simply stays off.
func (c *Checker) checkOptionalPath(id, name, path string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: id, Name: name}

	if strings.TrimSpace(path) == "" {
		item.Status = domain.DiagnosticStatusPass
		item.Message = name + " is not configured."
		return item
	}

	if _, err := c.stat(path); err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("%s path is configured but missing: %s", name, path)
		item.Hint = "Download the model from the catalog or clear the setting."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found: %s", path)
	return item
}

// checkModelsDir validates the install directory exists and is writable.
func (c *Checker) checkModelsDir(dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "models_dir",
		Name: "Models directory",
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create models directory: %s", dir)
		item.Hint = "Check permissions for the application data directory."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Models directory is not writable: %s", dir)
		item.Hint = "Model downloads need write access to this directory."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}
