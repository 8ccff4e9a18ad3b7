// Package engine defines the narrow contract the scheduler uses to talk
// to the transcription engine, plus a subprocess-backed implementation.
package engine

import (
	"context"

	"sona-transcriber/internal/domain"
)

// Config carries model and post-processing paths applied before a job.
// Applying the same config twice is idempotent and safe per job.
type Config struct {
	ModelPath       string
	Language        string
	ITNPaths        []string
	PunctuationPath string
	VADPath         string
	VADBufferSize   int
	CTCPath         string
}

// Request describes one file transcription with streaming callbacks.
// Progress and partial-segment callbacks are delivered in the order the
// engine produced them.
type Request struct {
	Path         string
	LanguageHint string
	ScratchPath  string
	OnProgress   func(percent int)
	OnSegment    func(segment domain.TranscriptSegment)
}

// Engine is the external transcription collaborator.
type Engine interface {
	Configure(cfg Config) error
	TranscribeFile(ctx context.Context, req Request) ([]domain.TranscriptSegment, error)
	SetActiveSourceFile(path string)
}
