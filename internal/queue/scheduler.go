// Package queue implements the batch transcription scheduler: a bounded
// set of concurrent jobs over user-submitted files, buffered partial
// result flushes, and the shared editor projection for the active item.
package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sona-transcriber/internal/config"
	"sona-transcriber/internal/domain"
	"sona-transcriber/internal/engine"
)

// defaultVADBufferSize is the voice-activity window handed to the engine.
const defaultVADBufferSize = 512

// HistoryStore persists finished transcripts. Saving is a fast,
// non-cancellable finalization step invoked only on job completion.
type HistoryStore interface {
	Save(sourcePath string, segments []domain.TranscriptSegment, durationSeconds float64, scratchAudioPath string) (string, error)
}

// ITNPathResolver maps ordered ITN rule ids to installed rule file paths.
type ITNPathResolver func(ruleIDs []string) []string

// Scheduler runs transcription jobs at a configured concurrency ceiling.
// The queue item list is the single source of truth; the projection and
// history store are downstream mirrors updated only from here.
type Scheduler struct {
	engine     engine.Engine
	history    HistoryStore
	store      config.Store
	itnPaths   ITNPathResolver
	projection *Projection
	bus        *EventBus
	log        zerolog.Logger

	mu       sync.Mutex
	items    []*domain.QueueItem
	activeID string
	cancels  map[string]context.CancelFunc
	notify   func(Event)
}

// NewScheduler wires the scheduler with its collaborators.
func NewScheduler(eng engine.Engine, history HistoryStore, store config.Store, itnPaths ITNPathResolver, logger zerolog.Logger) *Scheduler {
	if itnPaths == nil {
		itnPaths = func(ruleIDs []string) []string { return nil }
	}
	return &Scheduler{
		engine:     eng,
		history:    history,
		store:      store,
		itnPaths:   itnPaths,
		projection: NewProjection(),
		bus:        NewEventBus(1000),
		log:        logger,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// SetNotify registers a push callback invoked for every published event.
func (s *Scheduler) SetNotify(fn func(Event)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// Projection returns the shared editor projection.
func (s *Scheduler) Projection() *Projection {
	return s.projection
}

// EventsSince returns scheduler events after the given sequence number.
func (s *Scheduler) EventsSince(seq int64) []Event {
	return s.bus.Since(seq)
}

// Submit appends one queue item per file path and starts a dispatch pass.
func (s *Scheduler) Submit(paths []string) []domain.QueueItem {
	created := make([]domain.QueueItem, 0, len(paths))

	s.mu.Lock()
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		item := &domain.QueueItem{
			ID:          uuid.NewString(),
			DisplayName: filepath.Base(trimmed),
			SourcePath:  trimmed,
			Status:      domain.QueueStatusPending,
		}
		s.items = append(s.items, item)
		created = append(created, *item)
	}
	s.mu.Unlock()

	for _, item := range created {
		s.publish(Event{Type: EventTypeStatus, ItemID: item.ID, Status: domain.QueueStatusPending})
	}
	s.Dispatch()
	return created
}

// Items returns a snapshot of the queue in submission order.
func (s *Scheduler) Items() []domain.QueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.QueueItem, 0, len(s.items))
	for _, item := range s.items {
		copied := *item
		copied.Segments = append([]domain.TranscriptSegment(nil), item.Segments...)
		out = append(out, copied)
	}
	return out
}

// ActiveID returns the id of the active item, or empty when none.
func (s *Scheduler) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// SetActive mirrors the chosen item into the editor projection and points
// the engine's alignment source at its file. An empty id clears both.
func (s *Scheduler) SetActive(id string) error {
	if id == "" {
		s.mu.Lock()
		s.activeID = ""
		s.projection.Clear()
		s.mu.Unlock()
		s.publish(Event{Type: EventTypeActive})
		return nil
	}

	s.mu.Lock()
	item := s.findLocked(id)
	if item == nil {
		s.mu.Unlock()
		return fmt.Errorf("queue item not found: %s", id)
	}
	s.activeID = id
	s.projection.Replace(id, item.HistoryID, item.Segments)
	sourcePath := item.SourcePath
	s.mu.Unlock()

	s.engine.SetActiveSourceFile(sourcePath)
	s.publish(Event{Type: EventTypeActive, ItemID: id})
	return nil
}

// Remove deletes one item. A processing item's job is cancelled; removing
// the active item promotes the next remaining item in submission order,
// or clears the projection when the queue empties.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	idx := -1
	for i, item := range s.items {
		if item.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("queue item not found: %s", id)
	}

	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)

	wasActive := s.activeID == id
	var promoted *domain.QueueItem
	if wasActive {
		if len(s.items) == 0 {
			s.activeID = ""
			s.projection.Clear()
		} else {
			next := idx
			if next >= len(s.items) {
				next = len(s.items) - 1
			}
			promoted = s.items[next]
			s.activeID = promoted.ID
			s.projection.Replace(promoted.ID, promoted.HistoryID, promoted.Segments)
		}
	}
	var promotedPath, promotedID string
	if promoted != nil {
		promotedPath = promoted.SourcePath
		promotedID = promoted.ID
	}
	s.mu.Unlock()

	s.publish(Event{Type: EventTypeRemoved, ItemID: id})
	if promoted != nil {
		s.engine.SetActiveSourceFile(promotedPath)
		s.publish(Event{Type: EventTypeActive, ItemID: promotedID})
	} else if wasActive {
		s.publish(Event{Type: EventTypeActive})
	}

	s.Dispatch()
	return nil
}

// Clear cancels all running jobs and empties the queue and projection.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
	s.items = nil
	s.activeID = ""
	s.projection.Clear()
	s.mu.Unlock()

	s.publish(Event{Type: EventTypeRemoved, Message: "queue cleared"})
	s.publish(Event{Type: EventTypeActive})
}

// Dispatch runs one scheduling pass: it fills free slots with pending
// items in FIFO order. It is idempotent and a no-op when no slot is free,
// so completions can safely re-invoke it at any rate.
func (s *Scheduler) Dispatch() {
	settings, err := s.store.Load()
	if err != nil {
		s.log.Error().Err(err).Msg("load settings for dispatch, using defaults")
		settings = config.DefaultSettings()
	}

	type start struct {
		ctx  context.Context
		id   string
		path string
	}
	var started []start

	s.mu.Lock()
	processing := 0
	for _, item := range s.items {
		if item.Status == domain.QueueStatusProcessing {
			processing++
		}
	}
	slots := settings.MaxConcurrent - processing
	for _, item := range s.items {
		if slots <= 0 {
			break
		}
		if item.Status != domain.QueueStatusPending {
			continue
		}

		item.Status = domain.QueueStatusProcessing
		ctx, cancel := context.WithCancel(context.Background())
		s.cancels[item.ID] = cancel
		started = append(started, start{ctx: ctx, id: item.ID, path: item.SourcePath})
		slots--
	}
	s.mu.Unlock()

	for _, job := range started {
		s.publish(Event{Type: EventTypeStatus, ItemID: job.id, Status: domain.QueueStatusProcessing})
		go s.runJob(job.ctx, job.id, job.path, settings)
	}
}

// runJob executes one transcription from configuration to persistence.
// Job failures stay isolated to their queue item; the deferred dispatch
// backfills the freed slot whatever the outcome.
func (s *Scheduler) runJob(ctx context.Context, id, path string, settings domain.Settings) {
	defer s.Dispatch()
	defer s.clearCancel(id)

	cfg := engine.Config{
		ModelPath:       settings.OfflineModelPath,
		Language:        settings.Language,
		ITNPaths:        s.itnPaths(config.ActiveITNRules(settings)),
		PunctuationPath: settings.PunctuationModelPath,
		VADPath:         settings.VADModelPath,
		VADBufferSize:   defaultVADBufferSize,
		CTCPath:         settings.CTCModelPath,
	}
	if err := s.engine.Configure(cfg); err != nil {
		s.failItem(id, err)
		return
	}

	scratch := filepath.Join(os.TempDir(), "sona-scratch-"+id+".wav")
	buffer := &segmentBuffer{}
	split := settings.EnableTimeline
	flush := func() { s.flushInto(id, buffer, split) }

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				flush()
			}
		}
	}()

	final, err := s.engine.TranscribeFile(ctx, engine.Request{
		Path:         path,
		LanguageHint: settings.Language,
		ScratchPath:  scratch,
		OnProgress: func(percent int) {
			s.setProgress(id, percent)
		},
		OnSegment: func(segment domain.TranscriptSegment) {
			if buffer.add(segment) {
				flush()
			}
		},
	})
	close(done)

	if err != nil {
		// Partials below the flush threshold are still on the buffer;
		// deliver them before closing so the failed item keeps them.
		flush()
		buffer.close()
		_ = os.Remove(scratch)
		if ctx.Err() != nil {
			// Removed or cleared mid-run; the item is no longer tracked.
			return
		}
		s.failItem(id, err)
		return
	}

	buffer.close()
	s.completeItem(id, path, final, split, scratch)
	_ = os.Remove(scratch)
}

// flushInto merges one drained buffer batch into the item and mirrors the
// active item into the projection. Terminal items are left untouched so a
// late flush can never trail the final replacement.
func (s *Scheduler) flushInto(id string, buffer *segmentBuffer, split bool) {
	batch := buffer.drain()
	if len(batch) == 0 {
		return
	}
	if split {
		batch = splitByPunctuation(batch)
	}

	s.mu.Lock()
	item := s.findLocked(id)
	if item == nil || item.Status.IsTerminal() {
		s.mu.Unlock()
		return
	}
	item.Segments = mergeSegments(item.Segments, batch)
	if s.activeID == id {
		s.projection.Replace(id, item.HistoryID, item.Segments)
	}
	s.mu.Unlock()

	s.publish(Event{Type: EventTypeSegments, ItemID: id})
}

// completeItem replaces partials with the final list, persists history,
// and marks the item complete. Persistence failure is logged but never
// reverts completion.
func (s *Scheduler) completeItem(id, path string, final []domain.TranscriptSegment, split bool, scratch string) {
	if split {
		final = splitByPunctuation(final)
	}
	final = mergeSegments(nil, final)

	var duration float64
	if len(final) > 0 {
		duration = final[len(final)-1].End
	}

	// The item can be removed while an engine ignores its cancel; bail
	// before persisting so no orphaned history record is written.
	s.mu.Lock()
	if s.findLocked(id) == nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	historyID, err := s.history.Save(path, final, duration, scratch)
	if err != nil {
		s.log.Warn().Str("item", id).Err(err).Msg("history save failed, keeping item complete")
		historyID = ""
	}

	s.mu.Lock()
	item := s.findLocked(id)
	if item == nil {
		s.mu.Unlock()
		return
	}
	item.Segments = final
	item.Status = domain.QueueStatusComplete
	item.Progress = 100
	item.HistoryID = historyID
	if s.activeID == id {
		s.projection.Replace(id, historyID, final)
	}
	s.mu.Unlock()

	s.publish(Event{Type: EventTypeStatus, ItemID: id, Status: domain.QueueStatusComplete, Progress: 100})
}

// failItem records the failure and keeps partial segments for inspection.
func (s *Scheduler) failItem(id string, jobErr error) {
	s.mu.Lock()
	item := s.findLocked(id)
	if item == nil {
		s.mu.Unlock()
		return
	}
	item.Status = domain.QueueStatusError
	item.ErrorMessage = jobErr.Error()
	s.mu.Unlock()

	s.log.Error().Str("item", id).Err(jobErr).Msg("transcription job failed")
	s.publish(Event{Type: EventTypeStatus, ItemID: id, Status: domain.QueueStatusError, Message: jobErr.Error()})
}

// setProgress updates a processing item's progress percentage.
func (s *Scheduler) setProgress(id string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 99 {
		percent = 99
	}

	s.mu.Lock()
	item := s.findLocked(id)
	changed := item != nil && item.Status == domain.QueueStatusProcessing && item.Progress != percent
	if changed {
		item.Progress = percent
	}
	s.mu.Unlock()

	if changed {
		s.publish(Event{Type: EventTypeStatus, ItemID: id, Status: domain.QueueStatusProcessing, Progress: percent})
	}
}

// findLocked returns the item with the given id; callers hold s.mu.
func (s *Scheduler) findLocked(id string) *domain.QueueItem {
	for _, item := range s.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// clearCancel drops the cancellation handle once a job settles.
func (s *Scheduler) clearCancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancels, id)
}

// publish stores the event and pushes it to the registered notifier.
func (s *Scheduler) publish(event Event) {
	published := s.bus.Publish(event)

	s.mu.Lock()
	notify := s.notify
	s.mu.Unlock()
	if notify != nil {
		notify(published)
	}
}
