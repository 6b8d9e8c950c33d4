// Package orchestrator drives a backup run through its state machine:
// mount, enumerate, copy, report, unmount.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/google/uuid"

	"github.com/tis24dev/drivesave/internal/copier"
	"github.com/tis24dev/drivesave/internal/events"
	"github.com/tis24dev/drivesave/internal/logging"
	"github.com/tis24dev/drivesave/internal/metrics"
	"github.com/tis24dev/drivesave/internal/report"
	"github.com/tis24dev/drivesave/internal/types"
	"github.com/tis24dev/drivesave/pkg/utils"
)

// FolderTimeLayout is the timestamp part of destination folder names.
const FolderTimeLayout = "2006-01-02_15-04-05"

// ErrNoVolume is returned when the orchestrator was built without a volume.
var ErrNoVolume = errors.New("no backup volume configured")

// BackupError represents a run failure with the phase it happened in and
// the exit code to report.
type BackupError struct {
	Phase string // state name: "mounting", "enumerating", "copying", ...
	Err   error  // *goerrors.Error carrying the stack
	Code  types.ExitCode
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("%s phase failed: %v", e.Phase, e.Err)
}

func (e *BackupError) Unwrap() error {
	return e.Err
}

// Stack returns the captured stack trace, if any.
func (e *BackupError) Stack() string {
	var ge *goerrors.Error
	if errors.As(e.Err, &ge) {
		return string(ge.Stack())
	}
	return ""
}

func newBackupError(state types.RunState, code types.ExitCode, err error) *BackupError {
	return &BackupError{Phase: state.String(), Err: goerrors.Wrap(err, 2), Code: code}
}

// Orchestrator performs backup runs. It holds no per-run state between
// calls except the last summary.
type Orchestrator struct {
	logger    *logging.Logger
	version   string
	volume    Volume
	selector  FileSelector
	newCopier CopierFactory
	notifier  Notifier
	markers   MarkerStore
	metrics   MetricsExporter
	space     SpaceChecker
	progress  *events.Bus[types.ProgressEvent]
	retention RetentionPolicy
	fs        FS
	clock     TimeProvider

	mu   sync.Mutex
	last *report.Summary
}

func (o *Orchestrator) now() time.Time {
	return o.clock.Now()
}

// LastSummary returns the summary of the most recent run.
func (o *Orchestrator) LastSummary() (report.Summary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return report.Summary{}, false
	}
	return *o.last, true
}

func (o *Orchestrator) setLast(s report.Summary) {
	o.mu.Lock()
	o.last = &s
	o.mu.Unlock()
}

func (o *Orchestrator) publish(ev types.ProgressEvent) {
	o.progress.Publish(ev)
}

// PerformBackup runs one backup of paths. marker is the last successful
// run; the returned marker is either the same value or a new one when every
// file was copied. A nil error with a partial run is normal; only aborted
// runs return an error, always a *BackupError.
func (o *Orchestrator) PerformBackup(ctx context.Context, paths []string, kind types.BackupKind, marker types.LastBackupMarker) (run types.BackupRun, next types.LastBackupMarker, err error) {
	next = marker
	run = types.BackupRun{
		ID:        uuid.NewString(),
		Kind:      kind,
		State:     types.StateIdle,
		StartTime: o.now(),
		Sources:   append([]string(nil), paths...),
	}
	if kind == types.BackupIncremental {
		run.Cutoff = marker.Timestamp
	}

	if o.volume == nil {
		return run, next, newBackupError(types.StateIdle, types.ExitConfigError, ErrNoVolume)
	}

	// Set once Mount is attempted: a failed mount may already have brought
	// the disk online, and Unmount is idempotent.
	mountStarted := false
	defer func() {
		if r := recover(); r != nil {
			perr := goerrors.Wrap(r, 2)
			o.logger.Critical("Panic during %s: %v", run.State, r)
			err = &BackupError{Phase: run.State.String(), Err: perr, Code: types.ExitPanicError}
		}
		if err != nil {
			o.abort(ctx, &run, mountStarted, next, err)
		}
	}()

	o.logger.Phase("%s backup %s started for %d source path(s)", kind, run.ID, len(paths))

	// Mounting
	run.State = types.StateMounting
	o.publish(types.ProgressEvent{RunID: run.ID, CurrentOperation: "Mounting backup volume", Indeterminate: true})
	mountStarted = true
	if mountErr := o.volume.Mount(ctx); mountErr != nil {
		o.logger.Error("Mount failed: %v", mountErr)
		return run, next, newBackupError(types.StateMounting, types.ExitMountError, mountErr)
	}

	// Enumerating
	run.State = types.StateEnumerating
	dest, dirErr := o.createDestination(run.Kind, run.StartTime)
	if dirErr != nil {
		return run, next, newBackupError(types.StateEnumerating, types.ExitBackupError, dirErr)
	}
	run.DestinationDir = dest
	o.logger.Step("Destination: %s", dest)

	o.publish(types.ProgressEvent{RunID: run.ID, CurrentOperation: "Enumerating files", Indeterminate: true})
	files := o.enumerate(ctx, paths, kind, run.Cutoff)
	run.TotalFiles = len(files)
	for _, f := range files {
		run.TotalBytes += f.Size
	}
	o.logger.Info("Selected %d file(s), %s", run.TotalFiles, utils.FormatBytes(run.TotalBytes))

	if run.TotalFiles == 0 {
		run.NothingToDo = true
		o.logger.Info("Nothing to back up")
		if rmErr := o.fs.Remove(dest); rmErr != nil {
			o.logger.Warning("Could not remove empty destination %s: %v", dest, rmErr)
		}
	} else {
		if o.space != nil {
			if res := o.space.CheckDiskSpaceForEstimate(run.TotalBytes); !res.Passed {
				o.logger.Warning("%s", res.Message)
			}
		}

		// Copying
		run.State = types.StateCopying
		o.copyAll(ctx, &run, files)
	}

	// Reporting
	run.State = types.StateReporting
	run.EndTime = o.now()
	summary := report.Build(run)
	o.setLast(summary)

	if !run.NothingToDo {
		if mErr := o.writeManifest(run, summary.Status); mErr != nil {
			o.logger.Warning("Failed to write manifest: %v", mErr)
		}
	}
	if o.notifier != nil {
		o.notifier.Notify(context.WithoutCancel(ctx), summary)
	}

	if run.FullySucceeded() {
		next = types.LastBackupMarker{Path: run.DestinationDir, Timestamp: run.StartTime.Truncate(time.Second)}
		if o.markers != nil {
			if sErr := o.markers.SaveMarker(next); sErr != nil {
				o.logger.Warning("Failed to persist last backup marker: %v", sErr)
			}
		}
		o.applyRetention(run.DestinationDir)
	}
	o.exportMetrics(summary, next)

	// Unmounting
	run.State = types.StateUnmounting
	o.publish(types.ProgressEvent{RunID: run.ID, Percentage: 100, CurrentOperation: "Unmounting backup volume", Indeterminate: true})
	o.unmount(ctx)
	mountStarted = false

	run.State = types.StateDone
	o.publish(types.ProgressEvent{RunID: run.ID, Percentage: 100, CurrentOperation: "Done", DetailedStatus: string(summary.Status), Complete: true})
	o.logSummary(summary)
	return run, next, nil
}

func (o *Orchestrator) createDestination(kind types.BackupKind, start time.Time) (string, error) {
	root := o.volume.MountPath()
	name := kind.FolderPrefix() + "_" + start.Format(FolderTimeLayout)
	dest := filepath.Join(root, name)
	if _, err := o.fs.Stat(dest); err == nil {
		dest = filepath.Join(root, name+"_"+uuid.NewString()[:8])
	}
	if err := o.fs.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("create destination %s: %w", dest, err)
	}
	return dest, nil
}

// enumerate concatenates the selection of every root. A root that fails
// contributes nothing.
func (o *Orchestrator) enumerate(ctx context.Context, paths []string, kind types.BackupKind, cutoff time.Time) []types.FileRef {
	var files []types.FileRef
	for _, root := range paths {
		selected, err := o.selector.SelectFiles(ctx, root, kind, cutoff)
		if err != nil {
			o.logger.Warning("Skipping source %s: %v", root, err)
			continue
		}
		o.logger.Debug("Source %s: %d file(s)", root, len(selected))
		files = append(files, selected...)
	}
	return files
}

func (o *Orchestrator) copyAll(ctx context.Context, run *types.BackupRun, files []types.FileRef) {
	var fileBytes int64
	percent := func(extra int64) float64 {
		if run.TotalBytes <= 0 {
			return 0
		}
		return float64(run.ProcessedBytes+extra) * 100 / float64(run.TotalBytes)
	}

	engine := o.newCopier(o.volume.MountPath(), copier.Hooks{
		OnSample: func(s copier.Sample) {
			fileBytes = s.FileBytes
			run.CurrentThroughputMBps = s.CurrentMBps
			o.publish(types.ProgressEvent{
				RunID:            run.ID,
				Percentage:       percent(fileBytes),
				CurrentOperation: "Copying",
				CurrentFile:      s.File,
				DetailedStatus:   fmt.Sprintf("%s MiB/s (peak %s MiB/s)", utils.FormatMBps(s.CurrentMBps), utils.FormatMBps(s.PeakMBps)),
			})
		},
	})

	for i, f := range files {
		if ctx.Err() != nil {
			run.Interrupted = true
			o.logger.Warning("Shutdown requested: %d file(s) not copied", len(files)-i)
			break
		}

		fileBytes = 0
		o.publish(types.ProgressEvent{
			RunID:            run.ID,
			Percentage:       percent(0),
			CurrentOperation: "Copying",
			CurrentFile:      f.FullPath,
			DetailedStatus:   fmt.Sprintf("file %d of %d", i+1, len(files)),
		})

		n, err := engine.CopyFile(ctx, f.FullPath, run.DestinationDir)
		run.PeakThroughputMBps = engine.PeakMBps()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				run.Interrupted = true
				o.logger.Warning("Shutdown requested: %d file(s) not copied", len(files)-i)
				break
			}
			run.FailedFiles++
			run.Errors = append(run.Errors, types.FileError{FileName: f.FullPath, Message: err.Error()})
			o.logger.Warning("Failed to copy %s: %v", f.FullPath, err)
			continue
		}
		run.SucceededFiles++
		run.ProcessedBytes += n
	}
}

func (o *Orchestrator) unmount(ctx context.Context) {
	if err := o.volume.Unmount(context.WithoutCancel(ctx)); err != nil {
		o.logger.Warning("Unmount failed: %v", err)
	}
}

// abort handles a run that could not finish: best-effort unmount, failure
// summary and metrics. It never returns an error of its own.
func (o *Orchestrator) abort(ctx context.Context, run *types.BackupRun, mountStarted bool, marker types.LastBackupMarker, cause error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Critical("Panic while aborting run %s: %v", run.ID, r)
		}
	}()

	if mountStarted {
		o.unmount(ctx)
	}
	run.State = types.StateAborted
	if run.EndTime.IsZero() {
		run.EndTime = o.now()
	}

	summary := report.Failure(*run, cause)
	o.setLast(summary)
	if o.notifier != nil {
		o.notifier.Notify(context.WithoutCancel(ctx), summary)
	}
	o.exportMetrics(summary, marker)
	o.publish(types.ProgressEvent{RunID: run.ID, CurrentOperation: "Aborted", DetailedStatus: cause.Error(), Complete: true})
}

func (o *Orchestrator) exportMetrics(summary report.Summary, marker types.LastBackupMarker) {
	if o.metrics == nil {
		return
	}
	m := metrics.FromSummary(summary, marker.Timestamp)
	m.Version = o.version
	if err := o.metrics.Export(m); err != nil {
		o.logger.Warning("Failed to export Prometheus metrics: %v", err)
	}
}

func (o *Orchestrator) logSummary(s report.Summary) {
	o.logger.Phase("Backup %s: %d/%d file(s), %s in %s",
		s.Status, s.Files.Succeeded, s.Files.Total, utils.FormatBytes(s.TotalBytes), utils.FormatClock(s.Duration))
	if s.Files.Total > 0 {
		o.logger.Info("Throughput: avg %s MiB/s, peak %s MiB/s",
			utils.FormatMBps(s.AvgThroughputMBps), utils.FormatMBps(s.PeakThroughputMBps))
	}
	for _, fe := range s.ErrorSample {
		o.logger.Warning("  %s", fe)
	}
	if s.ErrorOverflow > 0 {
		o.logger.Warning("  ... and %d more", s.ErrorOverflow)
	}
}
