package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"sona-transcriber/internal/domain"
)

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()
	modelPath := filepath.Join(root, "sense-voice")
	if err := os.MkdirAll(modelPath, 0o755); err != nil {
		t.Fatalf("mkdir model: %v", err)
	}

	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/local/bin/" + name, nil },
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{
		OfflineModelPath: modelPath,
		Language:         "auto",
	}, filepath.Join(root, "models"))

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	if report.GeneratedAt.IsZero() {
		t.Fatal("expected report timestamp")
	}
}

// TestCheckerRunMissingToolsAndPaths validates failure reporting.
func TestCheckerRunMissingToolsAndPaths(t *testing.T) {
	checker := NewCheckerForTests(
		func(string) (string, error) { return "", errors.New("not found") },
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{
		OfflineModelPath: "/path/that/does/not/exist",
	}, filepath.Join(t.TempDir(), "models"))

	if !report.HasFailures {
		t.Fatal("expected failures")
	}

	assertStatusByID(t, report, "tool_sona-engine", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "tool_sona-extract", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "offline_model", domain.DiagnosticStatusFail)
}

// TestCheckerRunOptionalModelsWarn validates configured-but-missing
// optional models warn without failing the report.
func TestCheckerRunOptionalModelsWarn(t *testing.T) {
	root := t.TempDir()
	modelPath := filepath.Join(root, "sense-voice")
	if err := os.MkdirAll(modelPath, 0o755); err != nil {
		t.Fatalf("mkdir model: %v", err)
	}

	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/local/bin/" + name, nil },
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{
		OfflineModelPath:     modelPath,
		PunctuationModelPath: filepath.Join(root, "missing-punct"),
		VADModelPath:         "",
	}, filepath.Join(root, "models"))

	if report.HasFailures {
		t.Fatalf("warnings must not fail the report: %+v", report.Items)
	}
	assertStatusByID(t, report, "punctuation_model", domain.DiagnosticStatusWarn)
	assertStatusByID(t, report, "vad_model", domain.DiagnosticStatusPass)
}

// TestCheckerRunUnwritableModelsDir validates the write probe.
func TestCheckerRunUnwritableModelsDir(t *testing.T) {
	root := t.TempDir()
	modelPath := filepath.Join(root, "sense-voice")
	if err := os.MkdirAll(modelPath, 0o755); err != nil {
		t.Fatalf("mkdir model: %v", err)
	}

	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/local/bin/" + name, nil },
		os.Stat,
		os.MkdirAll,
		func(string, string) (*os.File, error) { return nil, errors.New("read-only filesystem") },
		os.Remove,
	)

	report := checker.Run(domain.Settings{OfflineModelPath: modelPath}, filepath.Join(root, "models"))
	assertStatusByID(t, report, "models_dir", domain.DiagnosticStatusFail)
	if !report.HasFailures {
		t.Fatal("expected failures")
	}
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			if item.Status != want {
				t.Fatalf("item %s: got %s, want %s", id, item.Status, want)
			}
			return
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
}
