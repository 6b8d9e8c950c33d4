package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tis24dev/drivesave/internal/checks"
	"github.com/tis24dev/drivesave/internal/events"
	"github.com/tis24dev/drivesave/internal/logging"
	"github.com/tis24dev/drivesave/internal/notify"
	"github.com/tis24dev/drivesave/internal/orchestrator"
	"github.com/tis24dev/drivesave/internal/report"
	"github.com/tis24dev/drivesave/internal/state"
	"github.com/tis24dev/drivesave/internal/types"
	"github.com/tis24dev/drivesave/pkg/utils"
)

// runner performs one locked backup run against the stored state.
type runner struct {
	logger  *logging.Logger
	store   *state.Store
	checker *checks.Checker
	orch    *orchestrator.Orchestrator
}

func (r *runner) run(ctx context.Context, kind types.BackupKind) (types.BackupRun, error) {
	if res := r.checker.CheckDirectories(); !res.Passed {
		return types.BackupRun{}, res.Error
	}
	if res := r.checker.CheckLockFile(); !res.Passed {
		return types.BackupRun{}, fmt.Errorf("%s: %w", res.Message, res.Error)
	}
	defer func() {
		if err := r.checker.ReleaseLock(); err != nil {
			r.logger.Warning("Failed to release lock: %v", err)
		}
	}()

	paths := r.store.LoadPaths()
	if len(paths) == 0 {
		return types.BackupRun{}, errNoPaths
	}
	marker := r.store.LoadMarker()
	if kind == types.BackupIncremental && marker.IsZero() {
		r.logger.Info("No previous backup recorded: incremental run copies every file")
	}

	run, _, err := r.orch.PerformBackup(ctx, paths, kind, marker)
	return run, err
}

func (a *application) newRunner(logger *logging.Logger, progress *events.Bus[types.ProgressEvent]) *runner {
	store := a.store(logger)
	checker := a.checker(logger)
	return &runner{
		logger:  logger,
		store:   store,
		checker: checker,
		orch:    a.newOrchestrator(logger, store, checker, progress),
	}
}

// runUnattended is the process entry used by the OS scheduler: one run of
// the stored schedule kind, then exit.
func (a *application) runUnattended(ctx context.Context) int {
	logger, cleanup := a.runLogger()
	defer cleanup()
	errorLog := logging.NewErrorLog(a.cfg.LogDir)

	r := a.newRunner(logger, nil)
	kind := r.store.LoadSchedule().Kind
	logger.Info("drivesave %s: unattended %s backup", a.version, kind)

	run, err := r.run(ctx, kind)
	code := exitCodeFor(run, err)
	if err != nil {
		logger.Error("Backup failed: %v", err)
		if recErr := errorLog.Record("unattended backup", err); recErr != nil {
			logger.Warning("Cannot write %s: %v", errorLog.Path(), recErr)
		}
	}
	logger.Debug("Exit code %d (%s)", code.Int(), code)
	return code.Int()
}

// runBackupNow runs one backup in the foreground with a progress line.
func (a *application) runBackupNow(ctx context.Context, kindName string) int {
	kind, err := types.ParseBackupKind(kindName)
	if err != nil {
		a.bootstrap.Error("ERROR: %v", err)
		return types.ExitConfigError.Int()
	}

	logger, cleanup := a.runLogger()
	defer cleanup()
	errorLog := logging.NewErrorLog(a.cfg.LogDir)

	progress := events.NewBus[types.ProgressEvent]()
	progress.OnListenerPanic(func(err error) { logger.Debug("%v", err) })
	display := newProgressDisplay(os.Stdout, logging.IsTerminal(os.Stdout))
	stop, done := progress.Listen(display.Show)

	r := a.newRunner(logger, progress)
	run, err := r.run(ctx, kind)

	stop()
	<-done
	display.Finish()
	progress.Close()

	if summary, ok := r.orch.LastSummary(); ok {
		fmt.Fprintln(os.Stdout, formatSummary(summary))
	}
	code := exitCodeFor(run, err)
	if err != nil {
		logger.Error("Backup failed: %v", err)
		_ = errorLog.Record("backup-now", err)
	}
	return code.Int()
}

// formatSummary is the one-line result printed after a foreground run.
func formatSummary(s report.Summary) string {
	if s.NothingToDo {
		return fmt.Sprintf("%s: nothing to back up", notify.StatusLabel(s.Status))
	}
	return fmt.Sprintf("%s: %d/%d files, %s in %s (failed: %d)",
		notify.StatusLabel(s.Status), s.Files.Succeeded, s.Files.Total,
		utils.FormatBytes(s.TotalBytes), notify.FormatDuration(s.Duration), s.Files.Failed)
}

// progressDisplay renders progress events as a single rewritten line on a
// terminal, or as one line per operation change otherwise.
type progressDisplay struct {
	out      io.Writer
	tty      bool
	lastOp   string
	lastFile string
	dirty    bool
}

func newProgressDisplay(out io.Writer, tty bool) *progressDisplay {
	return &progressDisplay{out: out, tty: tty}
}

func (d *progressDisplay) Show(ev types.ProgressEvent) {
	line := formatProgress(ev)
	if d.tty {
		fmt.Fprintf(d.out, "\r\033[K%s", line)
		d.dirty = true
		if ev.Complete {
			d.Finish()
		}
		return
	}
	if ev.CurrentOperation == d.lastOp && ev.CurrentFile == d.lastFile && !ev.Complete {
		return
	}
	d.lastOp, d.lastFile = ev.CurrentOperation, ev.CurrentFile
	fmt.Fprintln(d.out, line)
}

// Finish ends a pending terminal line.
func (d *progressDisplay) Finish() {
	if d.tty && d.dirty {
		fmt.Fprintln(d.out)
		d.dirty = false
	}
}

func formatProgress(ev types.ProgressEvent) string {
	var b strings.Builder
	if ev.Indeterminate {
		b.WriteString("[  ...  ] ")
	} else {
		fmt.Fprintf(&b, "[%5.1f%%] ", ev.Percentage)
	}
	b.WriteString(ev.CurrentOperation)
	if ev.CurrentFile != "" {
		b.WriteString(" ")
		b.WriteString(filepath.Base(ev.CurrentFile))
	}
	if ev.DetailedStatus != "" {
		b.WriteString(" (")
		b.WriteString(ev.DetailedStatus)
		b.WriteString(")")
	}
	return b.String()
}
