package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tis24dev/drivesave/internal/types"
)

const (
	// RunLogName is the append-only log of every run.
	RunLogName = "backup_log.txt"
	// ErrorLogName receives fatal errors with their stack traces.
	ErrorLogName = "backup_error.txt"
)

// StartRunLogger returns a logger that mirrors its output to
// <logDir>/backup_log.txt and a cleanup function closing the file.
func StartRunLogger(logDir string, level types.LogLevel, useColor bool) (*Logger, func(), error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}

	logger := New(level, useColor)
	if err := logger.OpenLogFile(filepath.Join(logDir, RunLogName)); err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = logger.CloseLogFile()
	}
	return logger, cleanup, nil
}
