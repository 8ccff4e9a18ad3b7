// Package acquire implements on-demand model acquisition: hardware
// pre-checks, mirrored downloads with progress and cancellation, and
// out-of-process archive extraction.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sona-transcriber/internal/domain"
	"sona-transcriber/internal/models"
)

// ErrAcquireInFlight is returned when a model is already being acquired.
var ErrAcquireInFlight = errors.New("acquisition already in progress")

// defaultHostPrefixes lists artifact hosts in failover order: the direct
// host first, then mirrors.
var defaultHostPrefixes = []string{
	"https://huggingface.co",
	"https://hf-mirror.com",
}

// Task is one in-flight acquisition visible to the UI.
type Task struct {
	CatalogID string `json:"catalogId"`
	Percent   int    `json:"percent"`
	Status    string `json:"status"`
}

// inflight pairs UI-visible task state with its cancellation handle.
type inflight struct {
	task   Task
	cancel context.CancelFunc
}

// Options tune one Acquire call.
type Options struct {
	// SkipHardwareCheck bypasses the accelerator gate after the user
	// confirmed the compatibility warning.
	SkipHardwareCheck bool
}

// Manager orchestrates catalog artifact acquisition.
type Manager struct {
	resolver       *models.Resolver
	downloader     Downloader
	extractor      Extractor
	hasAccelerator func() bool
	prefixes       []string
	log            zerolog.Logger

	mu       sync.Mutex
	inflight map[string]*inflight         // keyed by catalog id
	sinks    map[string]*progressReporter // keyed by download task id
}

// NewManager constructs the production manager with OS dependencies.
func NewManager(resolver *models.Resolver, logger zerolog.Logger) *Manager {
	m := &Manager{
		resolver:       resolver,
		extractor:      NewProcessExtractor(),
		hasAccelerator: detectAccelerator,
		prefixes:       defaultHostPrefixes,
		log:            logger,
		inflight:       make(map[string]*inflight),
		sinks:          make(map[string]*progressReporter),
	}
	m.downloader = NewHTTPDownloader(m.dispatchProgress)
	return m
}

// NewManagerForTests constructs a manager with injectable dependencies.
func NewManagerForTests(
	resolver *models.Resolver,
	downloader Downloader,
	extractor Extractor,
	hasAccelerator func() bool,
	prefixes []string,
) *Manager {
	return &Manager{
		resolver:       resolver,
		downloader:     downloader,
		extractor:      extractor,
		hasAccelerator: hasAccelerator,
		prefixes:       prefixes,
		log:            zerolog.Nop(),
		inflight:       make(map[string]*inflight),
		sinks:          make(map[string]*progressReporter),
	}
}

// Acquire downloads and installs one catalog artifact, reporting mapped
// progress through onProgress. It returns the installed path, the
// distinct ErrCancelled outcome, a recoverable *HardwareError, or a
// terminal failure.
func (m *Manager) Acquire(ctx context.Context, catalogID string, opts Options, onProgress ProgressCallback) (string, error) {
	entry, err := models.Lookup(catalogID)
	if err != nil {
		return "", err
	}

	if entry.ExecutionEngine == domain.ExecutionEngineCUDA && !opts.SkipHardwareCheck && !m.hasAccelerator() {
		return "", &HardwareError{ModelID: entry.ID, Engine: entry.ExecutionEngine}
	}

	if err := m.resolver.EnsureModelsDir(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	taskID := uuid.NewString()
	reporter := newProgressReporter(func(percent int, status string) {
		m.updateTask(entry.ID, percent, status)
		if onProgress != nil {
			onProgress(percent, status)
		}
	}, entry.IsArchive())

	if err := m.register(entry.ID, taskID, reporter, cancel); err != nil {
		return "", err
	}
	defer m.unregister(entry.ID, taskID)

	outputPath := m.resolver.TargetPath(entry)
	if entry.IsArchive() {
		outputPath = m.resolver.ArchivePath(entry)
	}

	if err := m.fetchWithFailover(ctx, entry, outputPath, taskID); err != nil {
		return "", err
	}

	if entry.IsArchive() {
		if err := m.extract(ctx, entry, outputPath, reporter); err != nil {
			return "", err
		}
	}

	installedPath, ok := m.resolver.InstalledPath(entry)
	if !ok {
		return "", fmt.Errorf("artifact %s installed but target missing: %s", entry.ID, m.resolver.TargetPath(entry))
	}

	reporter.done("Installed")
	m.log.Info().Str("model", entry.ID).Str("path", installedPath).Msg("model installed")
	return installedPath, nil
}

// Cancel aborts the in-flight acquisition for a catalog id, if any.
func (m *Manager) Cancel(catalogID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	flight, ok := m.inflight[catalogID]
	if !ok {
		return false
	}
	flight.cancel()
	return true
}

// Tasks returns a snapshot of all in-flight acquisitions.
func (m *Manager) Tasks() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := make([]Task, 0, len(m.inflight))
	for _, flight := range m.inflight {
		tasks = append(tasks, flight.task)
	}
	return tasks
}

// fetchWithFailover tries each host prefix in order until one download
// succeeds. Cancellation aborts the loop immediately; when every prefix
// fails the last error is surfaced.
func (m *Manager) fetchWithFailover(ctx context.Context, entry domain.CatalogEntry, outputPath, taskID string) error {
	var lastErr error
	for _, prefix := range m.prefixes {
		if ctx.Err() != nil {
			return ErrCancelled
		}

		url := prefix + entry.SourcePath
		err := m.downloader.Download(ctx, url, outputPath, taskID)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ErrCancelled
		}

		lastErr = err
		m.log.Warn().Str("model", entry.ID).Str("url", url).Err(err).Msg("download attempt failed, trying next mirror")
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no download hosts configured")
	}
	return fmt.Errorf("download %s: %w", entry.ID, lastErr)
}

// extract drives the out-of-process helper and removes the archive
// afterwards. The archive is also removed on cancellation and failure so
// no partial artifact survives.
func (m *Manager) extract(ctx context.Context, entry domain.CatalogEntry, archivePath string, reporter *progressReporter) error {
	if ctx.Err() != nil {
		_ = os.Remove(archivePath)
		return ErrCancelled
	}

	err := m.extractor.Extract(ctx, archivePath, m.resolver.ModelsDir(), reporter.onExtract)
	_ = os.Remove(archivePath)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			_ = os.RemoveAll(m.resolver.TargetPath(entry))
			return ErrCancelled
		}
		return err
	}
	if ctx.Err() != nil {
		_ = os.RemoveAll(m.resolver.TargetPath(entry))
		return ErrCancelled
	}
	return nil
}

// dispatchProgress routes raw download events to the owning reporter.
func (m *Manager) dispatchProgress(taskID string, downloaded, total int64) {
	m.mu.Lock()
	reporter := m.sinks[taskID]
	m.mu.Unlock()

	if reporter != nil {
		reporter.onBytes(downloaded, total)
	}
}

// register records an in-flight task, rejecting duplicates per catalog id.
func (m *Manager) register(catalogID, taskID string, reporter *progressReporter, cancel context.CancelFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.inflight[catalogID]; exists {
		return ErrAcquireInFlight
	}
	m.inflight[catalogID] = &inflight{
		task:   Task{CatalogID: catalogID, Status: "Starting"},
		cancel: cancel,
	}
	m.sinks[taskID] = reporter
	return nil
}

// unregister drops task state once an acquisition settles.
func (m *Manager) unregister(catalogID, taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, catalogID)
	delete(m.sinks, taskID)
}

// updateTask refreshes UI-visible progress for one catalog id.
func (m *Manager) updateTask(catalogID string, percent int, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if flight, ok := m.inflight[catalogID]; ok {
		flight.task.Percent = percent
		flight.task.Status = status
	}
}
