// Package safefs wraps filesystem calls that can hang on removable or
// half-detached media with a wall-clock timeout.
package safefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

var (
	osStat    = os.Stat
	osReadDir = os.ReadDir
)

// ErrTimeout classifies filesystem operations that did not complete within
// the configured timeout.
var ErrTimeout = errors.New("filesystem operation timed out")

// TimeoutError is returned when a filesystem operation exceeds its allowed duration.
// The underlying call is not cancelled; the caller only stops waiting.
type TimeoutError struct {
	Op      string
	Path    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	if e == nil {
		return "filesystem operation timed out"
	}
	if e.Timeout > 0 {
		return fmt.Sprintf("%s %s: timeout after %s", e.Op, e.Path, e.Timeout)
	}
	return fmt.Sprintf("%s %s: timeout", e.Op, e.Path)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

func effectiveTimeout(ctx context.Context, timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0
		}
		if remaining < timeout {
			return remaining
		}
	}
	return timeout
}

// bounded runs fn on its own goroutine and gives up after timeout.
func bounded[T any](ctx context.Context, op, path string, timeout time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	timeout = effectiveTimeout(ctx, timeout)
	if timeout <= 0 {
		return fn()
	}

	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{value: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, &TimeoutError{Op: op, Path: path, Timeout: timeout}
	}
}

// Stat is os.Stat bounded by timeout.
func Stat(ctx context.Context, path string, timeout time.Duration) (fs.FileInfo, error) {
	stat := osStat
	return bounded(ctx, "stat", path, timeout, func() (fs.FileInfo, error) {
		return stat(path)
	})
}

// ReadDir is os.ReadDir bounded by timeout.
func ReadDir(ctx context.Context, path string, timeout time.Duration) ([]os.DirEntry, error) {
	readDir := osReadDir
	return bounded(ctx, "readdir", path, timeout, func() ([]os.DirEntry, error) {
		return readDir(path)
	})
}

// DirExists reports whether path is an existing directory. A missing path
// is (false, nil); a timeout or other stat failure is returned as an error.
func DirExists(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	info, err := Stat(ctx, path, timeout)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
