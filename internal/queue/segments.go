package queue

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"sona-transcriber/internal/domain"
)

const (
	// flushThreshold bounds how many buffered partial segments accumulate
	// before a flush is forced, independent of timing.
	flushThreshold = 50

	// flushInterval bounds how long partial segments wait before reaching
	// the queue item, independent of engine output rate.
	flushInterval = 500 * time.Millisecond
)

// segmentBuffer collects one job's partial segments between flushes.
type segmentBuffer struct {
	mu      sync.Mutex
	pending []domain.TranscriptSegment
	closed  bool
}

// add appends a segment and reports whether the threshold was reached.
// Segments arriving after close are dropped: the final replacement has
// already superseded them.
func (b *segmentBuffer) add(segment domain.TranscriptSegment) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	b.pending = append(b.pending, segment)
	return len(b.pending) >= flushThreshold
}

// drain removes and returns all buffered segments.
func (b *segmentBuffer) drain() []domain.TranscriptSegment {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.pending
	b.pending = nil
	return out
}

// close makes the buffer reject further segments and drops leftovers.
func (b *segmentBuffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.pending = nil
}

// mergeSegments folds incoming segments into existing ones: a segment
// with a known id replaces the earlier version, new ids append, and the
// result is ordered by start time ascending with no duplicate ids.
func mergeSegments(existing, incoming []domain.TranscriptSegment) []domain.TranscriptSegment {
	out := make([]domain.TranscriptSegment, len(existing))
	copy(out, existing)

	index := make(map[string]int, len(out))
	for i, segment := range out {
		index[segment.ID] = i
	}

	for _, segment := range incoming {
		if i, ok := index[segment.ID]; ok {
			out[i] = segment
			continue
		}
		index[segment.ID] = len(out)
		out = append(out, segment)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	return out
}

// sentenceEnders terminate a sentence for the timeline split pass.
var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true, ';': true,
	'。': true, '！': true, '？': true, '；': true,
}

// splitByPunctuation re-segments each segment at sentence-ending
// punctuation, distributing the original time span across the pieces in
// proportion to their rune length. Derived ids stay unique and stable so
// a re-flush of the same source segment replaces its earlier pieces.
func splitByPunctuation(segments []domain.TranscriptSegment) []domain.TranscriptSegment {
	out := make([]domain.TranscriptSegment, 0, len(segments))
	for _, segment := range segments {
		pieces := splitSentences(segment.Text)
		if len(pieces) <= 1 {
			out = append(out, segment)
			continue
		}

		total := 0
		for _, piece := range pieces {
			total += len([]rune(piece))
		}

		span := segment.End - segment.Start
		cursor := segment.Start
		for i, piece := range pieces {
			weight := float64(len([]rune(piece))) / float64(total)
			end := cursor + span*weight
			if i == len(pieces)-1 {
				end = segment.End
			}
			out = append(out, domain.TranscriptSegment{
				ID:      fmt.Sprintf("%s/%d", segment.ID, i),
				Start:   cursor,
				End:     end,
				Text:    piece,
				IsFinal: segment.IsFinal,
			})
			cursor = end
		}
	}
	return out
}

// splitSentences cuts text after each sentence-ending rune.
func splitSentences(text string) []string {
	var pieces []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if sentenceEnders[r] {
			piece := strings.TrimSpace(current.String())
			if piece != "" {
				pieces = append(pieces, piece)
			}
			current.Reset()
		}
	}
	if tail := strings.TrimSpace(current.String()); tail != "" {
		pieces = append(pieces, tail)
	}
	return pieces
}
