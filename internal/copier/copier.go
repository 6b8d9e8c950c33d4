// Package copier streams files onto the backup volume and samples throughput.
package copier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tis24dev/drivesave/pkg/utils"
)

const (
	// BufferSize is the fixed read/write buffer.
	BufferSize = 4 << 20
	// SampleWindow is the copy time between throughput samples.
	SampleWindow = 1000 * time.Millisecond
)

// ErrUnsafeDestination is returned when a destination would fall outside
// the volume root.
var ErrUnsafeDestination = errors.New("destination outside backup volume")

// Sample is a throughput measurement taken during a copy.
type Sample struct {
	File        string
	FileBytes   int64
	FileSize    int64
	CurrentMBps float64
	PeakMBps    float64
}

// Hooks receive progress notifications. Either may be nil.
type Hooks struct {
	OnStart  func(source string, size int64)
	OnSample func(Sample)
}

// Engine copies one file at a time. Peak throughput is kept across files
// for the lifetime of the engine, which is one run.
type Engine struct {
	volumeRoot string
	hooks      Hooks
	now        func() time.Time
	window     time.Duration
	buf        []byte

	peak    float64
	current float64
}

// New creates an engine that refuses to write outside volumeRoot.
func New(volumeRoot string, hooks Hooks) *Engine {
	return &Engine{
		volumeRoot: filepath.Clean(volumeRoot),
		hooks:      hooks,
		now:        time.Now,
		window:     SampleWindow,
		buf:        make([]byte, BufferSize),
	}
}

// PeakMBps returns the highest sampled throughput so far.
func (e *Engine) PeakMBps() float64 { return e.peak }

// CurrentMBps returns the most recent sample.
func (e *Engine) CurrentMBps() float64 { return e.current }

// DestinationPath maps source under destinationRoot, dropping the volume
// name and leading separators so the full source tree is preserved.
func DestinationPath(source, destinationRoot string) string {
	rel := filepath.Clean(source)
	rel = rel[len(filepath.VolumeName(rel)):]
	rel = strings.TrimLeft(rel, `/\`)
	return filepath.Join(destinationRoot, rel)
}

// CopyFile copies source into destinationRoot and returns the bytes written.
// The copy is bounded by the size observed at open. A started copy is not
// interrupted by ctx; ctx is only checked before the file is opened.
func (e *Engine) CopyFile(ctx context.Context, source, destinationRoot string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	dest := DestinationPath(source, destinationRoot)
	if err := e.checkDestination(dest); err != nil {
		return 0, err
	}

	in, err := os.Open(source)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	size := info.Size()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create destination directory: %w", err)
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create destination: %w", err)
	}

	if e.hooks.OnStart != nil {
		e.hooks.OnStart(source, size)
	}

	written, copyErr := e.stream(out, io.LimitReader(in, size), source, size)
	closeErr := out.Close()
	if copyErr == nil && closeErr != nil {
		copyErr = fmt.Errorf("close destination: %w", closeErr)
	}
	if copyErr != nil {
		_ = os.Remove(dest)
		return written, copyErr
	}

	_ = os.Chtimes(dest, info.ModTime(), info.ModTime())
	return written, nil
}

// stream copies through the fixed buffer, sampling throughput whenever a
// full window of copy time has elapsed.
func (e *Engine) stream(dst io.Writer, src io.Reader, name string, size int64) (int64, error) {
	var written, windowBytes int64
	windowStart := e.now()

	for {
		n, rerr := src.Read(e.buf)
		if n > 0 {
			wn, werr := dst.Write(e.buf[:n])
			written += int64(wn)
			windowBytes += int64(wn)
			if werr != nil {
				return written, fmt.Errorf("write destination: %w", werr)
			}
			if wn != n {
				return written, fmt.Errorf("write destination: %w", io.ErrShortWrite)
			}

			if now := e.now(); now.Sub(windowStart) >= e.window {
				e.current = utils.MiBPerSecond(windowBytes, now.Sub(windowStart))
				if e.current > e.peak {
					e.peak = e.current
				}
				windowStart = now
				windowBytes = 0
				if e.hooks.OnSample != nil {
					e.hooks.OnSample(Sample{
						File:        name,
						FileBytes:   written,
						FileSize:    size,
						CurrentMBps: e.current,
						PeakMBps:    e.peak,
					})
				}
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("read source: %w", rerr)
		}
	}
}

// checkDestination rejects paths outside the volume root, including paths
// that escape through a symlinked directory already on the volume.
func (e *Engine) checkDestination(dest string) error {
	if !utils.IsWithin(e.volumeRoot, dest) {
		return fmt.Errorf("%w: %s", ErrUnsafeDestination, dest)
	}

	root, err := filepath.EvalSymlinks(e.volumeRoot)
	if err != nil {
		return fmt.Errorf("resolve volume root: %w", err)
	}
	existing, err := deepestExisting(filepath.Dir(dest))
	if err != nil {
		return err
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}
	if !utils.IsWithin(root, resolved) {
		return fmt.Errorf("%w: %s resolves to %s", ErrUnsafeDestination, dest, resolved)
	}
	return nil
}

func deepestExisting(path string) (string, error) {
	for {
		_, err := os.Lstat(path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("inspect destination: %w", err)
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path, nil
		}
		path = parent
	}
}
