package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-errors/errors"
)

// ErrorLog appends fatal errors to a durable file so unattended runs leave
// a trace even when nobody reads stdout.
type ErrorLog struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewErrorLog creates an error log writing to <logDir>/backup_error.txt.
func NewErrorLog(logDir string) *ErrorLog {
	return &ErrorLog{
		path: filepath.Join(logDir, ErrorLogName),
		now:  time.Now,
	}
}

// Path returns the file the log appends to.
func (e *ErrorLog) Path() string {
	return e.path
}

// Record appends err with its stack trace. Errors created with go-errors
// keep the stack of their origin; anything else is wrapped here.
func (e *ErrorLog) Record(context string, err error) error {
	if e == nil || err == nil {
		return nil
	}
	var stackErr *errors.Error
	if !errors.As(err, &stackErr) {
		stackErr = errors.Wrap(err, 1)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("create error log directory: %w", err)
	}
	entry := fmt.Sprintf("[%s] %s: %v\n%s\n",
		e.now().Format("2006-01-02 15:04:05"), context, err, stackErr.Stack())
	f, openErr := os.OpenFile(e.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if openErr != nil {
		return fmt.Errorf("open error log %s: %w", e.path, openErr)
	}
	defer f.Close()

	_, werr := f.WriteString(entry)
	return werr
}
