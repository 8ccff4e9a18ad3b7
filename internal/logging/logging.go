// Package logging configures the process-wide file logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

const logFileName = "sona.log"

// New opens a console-formatted file logger under dir and returns it
// together with a close function.
func New(dir string) (zerolog.Logger, func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}

	writer := zerolog.ConsoleWriter{
		Out:        file,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	logger := zerolog.New(writer).With().Timestamp().Int("pid", os.Getpid()).Logger()

	return logger, func() { file.Close() }, nil
}
