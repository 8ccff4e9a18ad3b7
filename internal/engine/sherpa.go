package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"sona-transcriber/internal/domain"
)

// engineBinary is the sherpa-onnx CLI helper bundled with the app. It
// reads one media file and writes line-delimited JSON records to stdout.
const engineBinary = "sona-engine"

// engineRecord is one line of helper stdout.
type engineRecord struct {
	Type    string  `json:"type"`
	Percent int     `json:"percent"`
	ID      string  `json:"id"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	IsFinal bool    `json:"isFinal"`

	Segments []domain.TranscriptSegment `json:"segments"`
}

// SherpaEngine runs transcriptions through the bundled CLI helper.
type SherpaEngine struct {
	binary string

	mu         sync.Mutex
	cfg        Config
	sourceFile string
}

// NewSherpaEngine creates the production engine.
func NewSherpaEngine() *SherpaEngine {
	return &SherpaEngine{binary: engineBinary}
}

// NewSherpaEngineForTests creates an engine running an arbitrary command
// in place of the bundled helper.
func NewSherpaEngineForTests(binary string) *SherpaEngine {
	return &SherpaEngine{binary: binary}
}

// Configure stores model and post-processing paths for subsequent runs.
func (e *SherpaEngine) Configure(cfg Config) error {
	if strings.TrimSpace(cfg.ModelPath) == "" {
		return fmt.Errorf("model path is required")
	}

	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	return nil
}

// SetActiveSourceFile points downstream alignment features at a file.
func (e *SherpaEngine) SetActiveSourceFile(path string) {
	e.mu.Lock()
	e.sourceFile = path
	e.mu.Unlock()
}

// ActiveSourceFile returns the current alignment source, if any.
func (e *SherpaEngine) ActiveSourceFile() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sourceFile
}

// TranscribeFile runs the helper on one file, streaming progress and
// partial segments, and returns the final ordered segment list.
func (e *SherpaEngine) TranscribeFile(ctx context.Context, req Request) ([]domain.TranscriptSegment, error) {
	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()

	if strings.TrimSpace(cfg.ModelPath) == "" {
		return nil, fmt.Errorf("engine is not configured")
	}

	args := buildEngineArgs(cfg, req)
	cmd := exec.CommandContext(ctx, e.binary, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("attach engine stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine helper: %w", err)
	}

	var final []domain.TranscriptSegment
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var record engineRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}

		switch record.Type {
		case "progress":
			if req.OnProgress != nil {
				req.OnProgress(record.Percent)
			}
		case "segment":
			if req.OnSegment != nil {
				req.OnSegment(domain.TranscriptSegment{
					ID:      record.ID,
					Start:   record.Start,
					End:     record.End,
					Text:    record.Text,
					IsFinal: record.IsFinal,
				})
			}
		case "result":
			final = record.Segments
		}
	}

	scanErr := scanner.Err()
	waitErr := cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = waitErr.Error()
		}
		return nil, fmt.Errorf("engine helper failed (exit=%d): %s", exitCode, msg)
	}
	if scanErr != nil {
		return nil, fmt.Errorf("read engine output: %w", scanErr)
	}
	if final == nil {
		return nil, fmt.Errorf("engine helper produced no result")
	}
	return final, nil
}

// buildEngineArgs assembles helper CLI args from config and request.
func buildEngineArgs(cfg Config, req Request) []string {
	args := []string{
		"--model", cfg.ModelPath,
		"--input", req.Path,
	}

	lang := cfg.Language
	if req.LanguageHint != "" {
		lang = req.LanguageHint
	}
	if lang != "" && !strings.EqualFold(lang, "auto") {
		args = append(args, "--language", lang)
	}

	for _, path := range cfg.ITNPaths {
		args = append(args, "--itn-rule", path)
	}
	if cfg.PunctuationPath != "" {
		args = append(args, "--punctuation-model", cfg.PunctuationPath)
	}
	if cfg.VADPath != "" {
		args = append(args, "--vad-model", cfg.VADPath)
		if cfg.VADBufferSize > 0 {
			args = append(args, "--vad-buffer", strconv.Itoa(cfg.VADBufferSize))
		}
	}
	if cfg.CTCPath != "" {
		args = append(args, "--ctc-model", cfg.CTCPath)
	}
	if req.ScratchPath != "" {
		args = append(args, "--scratch", req.ScratchPath)
	}
	return args
}
