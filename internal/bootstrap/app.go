// Package bootstrap wires configuration, model acquisition, the batch
// scheduler, and persistence behind the Wails application shell.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"sona-transcriber/internal/acquire"
	"sona-transcriber/internal/config"
	"sona-transcriber/internal/diagnostics"
	"sona-transcriber/internal/domain"
	"sona-transcriber/internal/engine"
	"sona-transcriber/internal/history"
	"sona-transcriber/internal/logging"
	"sona-transcriber/internal/models"
	"sona-transcriber/internal/queue"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

var mediaDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Media files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.mp3;*.wav;*.m4a;*.flac;*.aac;*.ogg;*.webm",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// DownloadResult is the outcome of one model acquisition request.
type DownloadResult struct {
	InstalledPath   string `json:"installedPath,omitempty"`
	HardwareWarning string `json:"hardwareWarning,omitempty"`
	Cancelled       bool   `json:"cancelled,omitempty"`
}

// App binds the core services to the UI runtime.
type App struct {
	Store       config.Store
	Resolver    *models.Resolver
	Acquire     *acquire.Manager
	Scheduler   *queue.Scheduler
	Engine      engine.Engine
	History     *history.Store
	Diagnostics domain.DiagnosticReport

	checker  *diagnostics.Checker
	assets   fs.FS
	log      zerolog.Logger
	closeLog func()

	mu         sync.Mutex
	runtimeCtx context.Context
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	appDir := filepath.Join(homeDir, ".sona-transcriber")

	logger, closeLog, err := logging.New(filepath.Join(appDir, "logs"))
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(appDir, "settings.json"))
	settings, err := store.Load()
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("load settings: %w", err)
	}

	resolver := models.NewResolver(appDir)
	hist, err := history.Open(filepath.Join(appDir, "history.sqlite"))
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("open history store: %w", err)
	}

	eng := engine.NewSherpaEngine()
	checker := diagnostics.NewChecker()

	app := &App{
		Store:       store,
		Resolver:    resolver,
		Acquire:     acquire.NewManager(resolver, logger),
		Engine:      eng,
		History:     hist,
		Diagnostics: checker.Run(settings, resolver.ModelsDir()),
		checker:     checker,
		assets:      assets,
		log:         logger,
		closeLog:    closeLog,
	}
	app.Scheduler = queue.NewScheduler(eng, hist, store, app.resolveITNPaths, logger)
	app.Scheduler.SetNotify(func(event queue.Event) {
		app.emit("queue:event", event)
	})

	return app, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Sona Transcriber",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores the Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown releases the runtime context and closes owned resources.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = nil
	a.mu.Unlock()

	if err := a.History.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close history store")
	}
	if a.closeLog != nil {
		a.closeLog()
	}
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// SaveSettings normalizes and persists settings, refreshes diagnostics,
// and kicks a dispatch pass so a changed concurrency ceiling applies on
// the next scheduling decision.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Diagnostics = a.checker.Run(normalized, a.Resolver.ModelsDir())
	a.mu.Unlock()

	a.Scheduler.Dispatch()
	return normalized, nil
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	report := a.checker.Run(settings, a.Resolver.ModelsDir())
	a.mu.Lock()
	a.Diagnostics = report
	a.mu.Unlock()
	return report, nil
}

// GetCatalog returns all model catalog entries with install state.
func (a *App) GetCatalog() []domain.CatalogEntry {
	return a.Resolver.Catalog()
}

// DownloadModel acquires one catalog artifact. Without force, a missing
// accelerator returns a hardware warning the user can confirm; with
// force the gate is skipped. Progress is pushed as download events.
func (a *App) DownloadModel(modelID string, force bool) (DownloadResult, error) {
	id := strings.TrimSpace(modelID)
	if id == "" {
		return DownloadResult{}, fmt.Errorf("model id is required")
	}

	installedPath, err := a.Acquire.Acquire(context.Background(), id, acquire.Options{SkipHardwareCheck: force},
		func(percent int, status string) {
			a.emit("download:progress", acquire.Task{CatalogID: id, Percent: percent, Status: status})
		})
	if err != nil {
		var hwErr *acquire.HardwareError
		if errors.As(err, &hwErr) {
			return DownloadResult{HardwareWarning: hwErr.Error()}, nil
		}
		if errors.Is(err, acquire.ErrCancelled) {
			return DownloadResult{Cancelled: true}, nil
		}
		return DownloadResult{}, err
	}

	if err := a.applyInstalledModel(id, installedPath); err != nil {
		a.log.Warn().Str("model", id).Err(err).Msg("update settings after install")
	}
	return DownloadResult{InstalledPath: installedPath}, nil
}

// CancelModelDownload aborts an in-flight acquisition for the model id.
func (a *App) CancelModelDownload(modelID string) bool {
	return a.Acquire.Cancel(strings.TrimSpace(modelID))
}

// DownloadTasks returns all in-flight acquisitions.
func (a *App) DownloadTasks() []acquire.Task {
	return a.Acquire.Tasks()
}

// PickMediaFiles opens a native multi-selection dialog for media files.
func (a *App) PickMediaFiles() ([]string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return nil, err
	}

	paths, err := wailsruntime.OpenMultipleFilesDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select media files",
		Filters: mediaDialogFilter,
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// SubmitFiles queues the given files for transcription.
func (a *App) SubmitFiles(paths []string) []domain.QueueItem {
	return a.Scheduler.Submit(paths)
}

// GetQueue returns a snapshot of the queue in submission order.
func (a *App) GetQueue() []domain.QueueItem {
	return a.Scheduler.Items()
}

// RemoveQueueItem removes one item from the queue.
func (a *App) RemoveQueueItem(id string) error {
	return a.Scheduler.Remove(id)
}

// ClearQueue removes all items and clears the editor projection.
func (a *App) ClearQueue() {
	a.Scheduler.Clear()
}

// SetActiveItem selects which item's transcript the editor mirrors; an
// empty id clears the editor.
func (a *App) SetActiveItem(id string) error {
	return a.Scheduler.SetActive(id)
}

// GetEditorState returns the current editor projection snapshot.
func (a *App) GetEditorState() queue.EditorState {
	return a.Scheduler.Projection().Snapshot()
}

// QueueEvents returns scheduler events after the given sequence number.
func (a *App) QueueEvents(sinceSeq int64) []queue.Event {
	return a.Scheduler.EventsSince(sinceSeq)
}

// GetHistory lists persisted transcripts, newest first.
func (a *App) GetHistory() ([]history.Record, error) {
	return a.History.List()
}

// GetHistoryRecord returns one transcript with its segments.
func (a *App) GetHistoryRecord(id string) (history.Record, error) {
	return a.History.Get(id)
}

// DeleteHistoryRecord removes one transcript from history.
func (a *App) DeleteHistoryRecord(id string) error {
	return a.History.Delete(id)
}

// resolveITNPaths maps ordered rule ids to installed rule file paths,
// skipping rules that are not installed yet.
func (a *App) resolveITNPaths(ruleIDs []string) []string {
	var paths []string
	for _, ruleID := range ruleIDs {
		entry, err := models.Lookup(ruleID)
		if err != nil {
			continue
		}
		if path, ok := a.Resolver.InstalledPath(entry); ok {
			paths = append(paths, path)
		}
	}
	return paths
}

// applyInstalledModel records a freshly installed artifact in settings
// so the next dispatch picks it up.
func (a *App) applyInstalledModel(catalogID, installedPath string) error {
	settings, err := a.Store.Load()
	if err != nil {
		return err
	}

	switch catalogID {
	case "sense-voice-small", "paraformer-zh", "whisper-turbo-cuda":
		settings.OfflineModelPath = installedPath
	case "punct-ct-transformer":
		settings.PunctuationModelPath = installedPath
	case "vad-silero":
		settings.VADModelPath = installedPath
	default:
		if strings.HasPrefix(catalogID, "itn-") {
			settings.ITNRulesOrder = appendMissing(settings.ITNRulesOrder, catalogID)
			settings.EnableITN = true
		} else {
			// Streaming models and future entries have no settings slot.
			return nil
		}
	}

	if err := a.Store.Save(settings); err != nil {
		return err
	}

	a.mu.Lock()
	a.Diagnostics = a.checker.Run(config.Normalize(settings), a.Resolver.ModelsDir())
	a.mu.Unlock()
	return nil
}

// appendMissing adds value to list when absent, preserving order.
func appendMissing(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}

// emit pushes one runtime event when the UI is attached.
func (a *App) emit(name string, payload any) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, name, payload)
	}
}

// runtimeContext returns the current Wails runtime context for dialogs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}
