package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// partSuffix marks in-flight downloads; files are renamed into place only
// after a complete transfer so cancellation never leaves a partial artifact.
const partSuffix = ".part"

// downloadEmitInterval throttles byte-level progress events.
const downloadEmitInterval = 100 * time.Millisecond

// ProgressSink receives byte-level download progress keyed by task id.
type ProgressSink func(taskID string, downloaded, total int64)

// Downloader is the host file-download primitive consumed by the manager.
type Downloader interface {
	Download(ctx context.Context, url, outputPath, taskID string) error
}

// HTTPDownloader streams a URL to disk and emits progress events.
type HTTPDownloader struct {
	client *http.Client
	sink   ProgressSink
}

// NewHTTPDownloader creates a downloader reporting into the given sink.
func NewHTTPDownloader(sink ProgressSink) *HTTPDownloader {
	return &HTTPDownloader{
		client: &http.Client{},
		sink:   sink,
	}
}

// Download fetches url into outputPath. Progress events carry taskID so
// concurrent transfers stay distinguishable. On any failure, including
// context cancellation, the partial file is removed.
func (d *HTTPDownloader) Download(ctx context.Context, url, outputPath, taskID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	partPath := outputPath + partSuffix
	file, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	total := resp.ContentLength
	if err := d.copyWithProgress(ctx, file, resp.Body, total, taskID); err != nil {
		file.Close()
		_ = os.Remove(partPath)
		return err
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(partPath)
		return fmt.Errorf("finalize download: %w", err)
	}
	if err := os.Rename(partPath, outputPath); err != nil {
		_ = os.Remove(partPath)
		return fmt.Errorf("move download into place: %w", err)
	}
	return nil
}

// copyWithProgress streams body into w, emitting throttled progress.
func (d *HTTPDownloader) copyWithProgress(ctx context.Context, w io.Writer, body io.Reader, total int64, taskID string) error {
	buf := make([]byte, 64*1024)
	var downloaded int64
	var lastEmit time.Time

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return fmt.Errorf("write download chunk: %w", err)
			}
			downloaded += int64(n)

			now := time.Now()
			if d.sink != nil && (now.Sub(lastEmit) >= downloadEmitInterval || downloaded == total) {
				d.sink(taskID, downloaded, total)
				lastEmit = now
			}
		}

		if readErr == io.EOF {
			if d.sink != nil {
				d.sink(taskID, downloaded, total)
			}
			return nil
		}
		if readErr != nil {
			// Reads aborted by cancellation surface the context error so
			// the caller reports Cancelled, not a network failure.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("read download stream: %w", readErr)
		}
	}
}
