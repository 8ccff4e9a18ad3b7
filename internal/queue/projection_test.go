package queue

import (
	"testing"

	"sona-transcriber/internal/domain"
)

// TestProjectionReplaceCopies verifies published state cannot be mutated
// through the caller's slice or a returned snapshot.
func TestProjectionReplaceCopies(t *testing.T) {
	p := NewProjection()
	segments := []domain.TranscriptSegment{{ID: "a", Text: "one"}}
	p.Replace("item-1", "hist-1", segments)

	segments[0].Text = "mutated"
	snapshot := p.Snapshot()
	if snapshot.Segments[0].Text != "one" {
		t.Fatal("projection aliased the caller's slice")
	}

	snapshot.Segments[0].Text = "also mutated"
	if p.Snapshot().Segments[0].Text != "one" {
		t.Fatal("snapshot aliased projection state")
	}

	if snapshot.SourceID != "item-1" || snapshot.HistoryID != "hist-1" {
		t.Fatalf("snapshot = %+v", snapshot)
	}
}

// TestProjectionClear verifies the empty state.
func TestProjectionClear(t *testing.T) {
	p := NewProjection()
	p.Replace("item-1", "", []domain.TranscriptSegment{{ID: "a"}})
	p.Clear()

	snapshot := p.Snapshot()
	if snapshot.SourceID != "" || len(snapshot.Segments) != 0 {
		t.Fatalf("snapshot = %+v, want empty", snapshot)
	}
}
