package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"sona-transcriber/internal/models"
)

// fakeDownloader records attempted URLs and simulates transfers by
// writing the output file directly.
type fakeDownloader struct {
	mu    sync.Mutex
	urls  []string
	fail  func(url string) error
	block chan struct{}
}

func (d *fakeDownloader) Download(ctx context.Context, url, outputPath, taskID string) error {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	d.mu.Unlock()

	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if d.fail != nil {
		if err := d.fail(url); err != nil {
			return err
		}
	}
	return os.WriteFile(outputPath, []byte("artifact"), 0o644)
}

func (d *fakeDownloader) attempts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// fakeExtractor simulates the helper by creating the extracted directory.
type fakeExtractor struct {
	err error
}

func (e *fakeExtractor) Extract(ctx context.Context, archivePath, targetDir string, onProgress ExtractProgressFunc) error {
	if e.err != nil {
		return e.err
	}
	if onProgress != nil {
		onProgress(100, "Extraction complete")
	}
	name := strings.TrimSuffix(filepath.Base(archivePath), ".tar.bz2")
	return os.MkdirAll(filepath.Join(targetDir, name), 0o755)
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

// TestAcquireSingleFileInstall verifies the plain file download path.
func TestAcquireSingleFileInstall(t *testing.T) {
	resolver := models.NewResolver(t.TempDir())
	downloader := &fakeDownloader{}
	m := NewManagerForTests(resolver, downloader, &fakeExtractor{}, func() bool { return false }, []string{"https://primary.test"})

	var last int
	path, err := m.Acquire(context.Background(), "vad-silero", Options{}, func(percent int, status string) {
		last = percent
	})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if filepath.Base(path) != "silero_vad.onnx" {
		t.Fatalf("installed path = %q", path)
	}
	if last != 100 {
		t.Fatalf("final percent = %d, want 100", last)
	}

	attempts := downloader.attempts()
	if len(attempts) != 1 || !strings.HasPrefix(attempts[0], "https://primary.test/") {
		t.Fatalf("attempts = %v", attempts)
	}
	if tasks := m.Tasks(); len(tasks) != 0 {
		t.Fatalf("tasks after completion = %v, want none", tasks)
	}
}

// TestAcquireMirrorFailover verifies the second host is tried after the
// first one fails, and no further hosts after a success.
func TestAcquireMirrorFailover(t *testing.T) {
	resolver := models.NewResolver(t.TempDir())
	downloader := &fakeDownloader{
		fail: func(url string) error {
			if strings.HasPrefix(url, "https://primary.test") {
				return fmt.Errorf("connect: refused")
			}
			return nil
		},
	}
	m := NewManagerForTests(resolver, downloader, &fakeExtractor{}, func() bool { return false },
		[]string{"https://primary.test", "https://mirror.test", "https://spare.test"})

	if _, err := m.Acquire(context.Background(), "vad-silero", Options{}, nil); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	attempts := downloader.attempts()
	if len(attempts) != 2 {
		t.Fatalf("attempts = %v, want exactly two", attempts)
	}
	if !strings.HasPrefix(attempts[1], "https://mirror.test/") {
		t.Fatalf("second attempt = %q, want mirror host", attempts[1])
	}
}

// TestAcquireAllMirrorsFail verifies the last error surfaces as failure.
func TestAcquireAllMirrorsFail(t *testing.T) {
	resolver := models.NewResolver(t.TempDir())
	downloader := &fakeDownloader{
		fail: func(string) error { return fmt.Errorf("status 503") },
	}
	m := NewManagerForTests(resolver, downloader, &fakeExtractor{}, func() bool { return false },
		[]string{"https://primary.test", "https://mirror.test"})

	_, err := m.Acquire(context.Background(), "vad-silero", Options{}, nil)
	if err == nil {
		t.Fatal("expected failure when every host errors")
	}
	if errors.Is(err, ErrCancelled) {
		t.Fatal("download failure must not report cancelled")
	}
	if len(downloader.attempts()) != 2 {
		t.Fatalf("attempts = %v, want both hosts tried", downloader.attempts())
	}
}

// TestAcquireCancelDistinctOutcome verifies user cancel surfaces
// ErrCancelled and leaves no artifact behind.
func TestAcquireCancelDistinctOutcome(t *testing.T) {
	resolver := models.NewResolver(t.TempDir())
	downloader := &fakeDownloader{block: make(chan struct{})}
	m := NewManagerForTests(resolver, downloader, &fakeExtractor{}, func() bool { return false }, []string{"https://primary.test"})

	done := make(chan error, 1)
	go func() {
		_, err := m.Acquire(context.Background(), "vad-silero", Options{}, nil)
		done <- err
	}()

	waitFor(t, func() bool { return len(m.Tasks()) == 1 })
	if !m.Cancel("vad-silero") {
		t.Fatal("Cancel should find the in-flight task")
	}

	if err := <-done; !errors.Is(err, ErrCancelled) {
		t.Fatalf("Acquire() error = %v, want ErrCancelled", err)
	}

	entry, _ := models.Lookup("vad-silero")
	if resolver.IsInstalled(entry) {
		t.Fatal("cancelled acquisition must not leave an installed artifact")
	}
	if m.Cancel("vad-silero") {
		t.Fatal("Cancel after settle should report nothing in flight")
	}
}

// TestAcquireDuplicateRejected verifies one acquisition per model at a time.
func TestAcquireDuplicateRejected(t *testing.T) {
	resolver := models.NewResolver(t.TempDir())
	block := make(chan struct{})
	downloader := &fakeDownloader{block: block}
	m := NewManagerForTests(resolver, downloader, &fakeExtractor{}, func() bool { return false }, []string{"https://primary.test"})

	done := make(chan error, 1)
	go func() {
		_, err := m.Acquire(context.Background(), "vad-silero", Options{}, nil)
		done <- err
	}()
	waitFor(t, func() bool { return len(m.Tasks()) == 1 })

	if _, err := m.Acquire(context.Background(), "vad-silero", Options{}, nil); !errors.Is(err, ErrAcquireInFlight) {
		t.Fatalf("second Acquire() error = %v, want ErrAcquireInFlight", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
}

// TestAcquireHardwareGate verifies the accelerator check and its override.
func TestAcquireHardwareGate(t *testing.T) {
	resolver := models.NewResolver(t.TempDir())
	downloader := &fakeDownloader{}
	m := NewManagerForTests(resolver, downloader, &fakeExtractor{}, func() bool { return false }, []string{"https://primary.test"})

	_, err := m.Acquire(context.Background(), "whisper-turbo-cuda", Options{}, nil)
	var hwErr *HardwareError
	if !errors.As(err, &hwErr) {
		t.Fatalf("Acquire() error = %v, want HardwareError", err)
	}
	if hwErr.ModelID != "whisper-turbo-cuda" {
		t.Fatalf("hardware error model = %q", hwErr.ModelID)
	}

	// The user confirmed the warning; the gate must step aside.
	path, err := m.Acquire(context.Background(), "whisper-turbo-cuda", Options{SkipHardwareCheck: true}, nil)
	if err != nil {
		t.Fatalf("forced Acquire() error = %v", err)
	}
	if path == "" {
		t.Fatal("expected installed path")
	}
}

// TestAcquireArchiveFlowRemovesArchive verifies extraction runs and the
// downloaded archive never survives, on success or failure.
func TestAcquireArchiveFlowRemovesArchive(t *testing.T) {
	appDir := t.TempDir()
	resolver := models.NewResolver(appDir)
	entry, _ := models.Lookup("sense-voice-small")

	m := NewManagerForTests(resolver, &fakeDownloader{}, &fakeExtractor{}, func() bool { return true }, []string{"https://primary.test"})
	path, err := m.Acquire(context.Background(), "sense-voice-small", Options{}, nil)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if path != resolver.TargetPath(entry) {
		t.Fatalf("installed path = %q, want %q", path, resolver.TargetPath(entry))
	}
	if _, err := os.Stat(resolver.ArchivePath(entry)); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("archive should be removed after extraction")
	}

	failing := NewManagerForTests(models.NewResolver(t.TempDir()), &fakeDownloader{},
		&fakeExtractor{err: &ExtractionError{ExitCode: 2, Stderr: "corrupt archive"}},
		func() bool { return true }, []string{"https://primary.test"})
	_, err = failing.Acquire(context.Background(), "sense-voice-small", Options{}, nil)
	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("Acquire() error = %v, want ExtractionError", err)
	}
	if extractErr.ExitCode != 2 {
		t.Fatalf("exit code = %d, want 2", extractErr.ExitCode)
	}
}

// TestAcquireUnknownModel checks catalog validation up front.
func TestAcquireUnknownModel(t *testing.T) {
	m := NewManagerForTests(models.NewResolver(t.TempDir()), &fakeDownloader{}, &fakeExtractor{}, func() bool { return false }, nil)
	if _, err := m.Acquire(context.Background(), "no-such-model", Options{}, nil); err == nil {
		t.Fatal("expected unknown catalog id error")
	}
}
