package queue

import (
	"sync"

	"sona-transcriber/internal/domain"
)

// EditorState is the single-job view the editor renders.
type EditorState struct {
	SourceID  string                     `json:"sourceId"`
	HistoryID string                     `json:"historyId,omitempty"`
	Segments  []domain.TranscriptSegment `json:"segments"`
}

// Projection holds the active queue item's transcript for the editor.
// It is written only by the scheduler; readers take snapshots and never
// mutate.
type Projection struct {
	mu    sync.Mutex
	state EditorState
}

// NewProjection creates an empty projection.
func NewProjection() *Projection {
	return &Projection{}
}

// Replace swaps the projection to exactly the given item state. The
// segment slice is copied so later scheduler mutations cannot alias the
// published view.
func (p *Projection) Replace(sourceID, historyID string, segments []domain.TranscriptSegment) {
	copied := make([]domain.TranscriptSegment, len(segments))
	copy(copied, segments)

	p.mu.Lock()
	p.state = EditorState{SourceID: sourceID, HistoryID: historyID, Segments: copied}
	p.mu.Unlock()
}

// Clear empties the projection.
func (p *Projection) Clear() {
	p.mu.Lock()
	p.state = EditorState{}
	p.mu.Unlock()
}

// Snapshot returns a copy of the current editor state.
func (p *Projection) Snapshot() EditorState {
	p.mu.Lock()
	defer p.mu.Unlock()

	copied := make([]domain.TranscriptSegment, len(p.state.Segments))
	copy(copied, p.state.Segments)
	return EditorState{
		SourceID:  p.state.SourceID,
		HistoryID: p.state.HistoryID,
		Segments:  copied,
	}
}
