package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/tis24dev/drivesave/internal/types"
)

type bootstrapEntry struct {
	level   types.LogLevel
	message string
}

// BootstrapLogger collects messages emitted before the configuration is
// loaded so they can be replayed into the real logger (and its log file).
type BootstrapLogger struct {
	mu       sync.Mutex
	entries  []bootstrapEntry
	flushed  bool
	minLevel types.LogLevel
	stdout   io.Writer
	stderr   io.Writer
}

// NewBootstrapLogger creates a bootstrap logger at INFO level.
func NewBootstrapLogger() *BootstrapLogger {
	return &BootstrapLogger{
		minLevel: types.LogLevelInfo,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
}

// SetLevel updates the minimum level replayed on Flush.
func (b *BootstrapLogger) SetLevel(level types.LogLevel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.minLevel = level
}

// Debug records a debug message without printing it.
func (b *BootstrapLogger) Debug(format string, args ...interface{}) {
	b.record(types.LogLevelDebug, fmt.Sprintf(format, args...))
}

// Info prints and records an informational message.
func (b *BootstrapLogger) Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(b.stdout, msg)
	b.record(types.LogLevelInfo, msg)
}

// Warning prints a warning on stderr and records it.
func (b *BootstrapLogger) Warning(format string, args ...interface{}) {
	msg := strings.TrimSuffix(fmt.Sprintf(format, args...), "\n")
	fmt.Fprintln(b.stderr, msg)
	b.record(types.LogLevelWarning, msg)
}

// Error prints an error on stderr and records it.
func (b *BootstrapLogger) Error(format string, args ...interface{}) {
	msg := strings.TrimSuffix(fmt.Sprintf(format, args...), "\n")
	fmt.Fprintln(b.stderr, msg)
	b.record(types.LogLevelError, msg)
}

func (b *BootstrapLogger) record(level types.LogLevel, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flushed {
		return
	}
	b.entries = append(b.entries, bootstrapEntry{level: level, message: message})
}

// Flush replays the recorded entries into logger (only the first time).
func (b *BootstrapLogger) Flush(logger *Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flushed || logger == nil {
		return
	}
	for _, entry := range b.entries {
		if entry.level > b.minLevel {
			continue
		}
		switch entry.level {
		case types.LogLevelDebug:
			logger.Debug("%s", entry.message)
		case types.LogLevelWarning:
			logger.Warning("%s", entry.message)
		case types.LogLevelError:
			logger.Error("%s", entry.message)
		default:
			logger.Info("%s", entry.message)
		}
	}
	b.flushed = true
	b.entries = nil
}
