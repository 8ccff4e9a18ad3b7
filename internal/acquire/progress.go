package acquire

import (
	"fmt"
	"sync"
	"time"
)

// reporterEmitInterval throttles user-facing progress callbacks.
const reporterEmitInterval = 500 * time.Millisecond

// ProgressCallback receives mapped acquisition progress for one task.
type ProgressCallback func(percent int, status string)

// progressReporter maps raw download/extraction progress into a single
// 0..100 range, throttles emissions, and maintains a rolling transfer
// rate estimate from consecutive (bytes, timestamp) samples.
//
// When extraction follows the download, download occupies 0..50 and
// extraction 50..95; otherwise download spans the full range. The final
// 100 is emitted explicitly on completion.
type progressReporter struct {
	cb         ProgressCallback
	hasArchive bool
	now        func() time.Time

	mu         sync.Mutex
	lastEmit   time.Time
	lastBytes  int64
	lastSample time.Time
	rate       float64
}

func newProgressReporter(cb ProgressCallback, hasArchive bool) *progressReporter {
	return &progressReporter{
		cb:         cb,
		hasArchive: hasArchive,
		now:        time.Now,
	}
}

// onBytes consumes raw download progress from the host primitive.
func (r *progressReporter) onBytes(downloaded, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if !r.lastSample.IsZero() {
		elapsed := now.Sub(r.lastSample).Seconds()
		if elapsed > 0 {
			instant := float64(downloaded-r.lastBytes) / elapsed
			if r.rate == 0 {
				r.rate = instant
			} else {
				r.rate = r.rate*0.7 + instant*0.3
			}
		}
	}
	r.lastBytes = downloaded
	r.lastSample = now

	if total <= 0 {
		return
	}

	complete := downloaded == total
	if !complete && now.Sub(r.lastEmit) < reporterEmitInterval {
		return
	}
	r.lastEmit = now

	fraction := float64(downloaded) / float64(total)
	percent := int(fraction * 100)
	if r.hasArchive {
		percent = int(fraction * 50)
	}

	status := fmt.Sprintf("Downloading %s / %s (%s/s)",
		formatBytes(downloaded), formatBytes(total), formatBytes(int64(r.rate)))
	r.emit(percent, status)
}

// onExtract consumes helper progress in its native 0..100 range.
func (r *progressReporter) onExtract(percent float64, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	complete := percent >= 100
	if !complete && now.Sub(r.lastEmit) < reporterEmitInterval {
		return
	}
	r.lastEmit = now

	mapped := 50 + int(percent*0.45)
	if status == "" {
		status = "Extracting"
	}
	r.emit(mapped, status)
}

// done emits the terminal progress update.
func (r *progressReporter) done(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emit(100, status)
}

func (r *progressReporter) emit(percent int, status string) {
	if percent > 100 {
		percent = 100
	}
	if r.cb != nil {
		r.cb(percent, status)
	}
}

// formatBytes renders a byte count in the largest sensible unit.
func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
