package main

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/tis24dev/drivesave/internal/clock"
	"github.com/tis24dev/drivesave/internal/events"
	"github.com/tis24dev/drivesave/internal/health"
	"github.com/tis24dev/drivesave/internal/logging"
	"github.com/tis24dev/drivesave/internal/scheduler"
	"github.com/tis24dev/drivesave/internal/state"
	"github.com/tis24dev/drivesave/internal/types"
)

// runDaemon runs the scheduler loop, the health socket and the event
// listeners until ctx is cancelled.
func (a *application) runDaemon(ctx context.Context) int {
	logger, cleanup := a.runLogger()
	defer cleanup()
	errorLog := logging.NewErrorLog(a.cfg.LogDir)

	logBus := events.NewBus[logging.Entry]()
	progress := events.NewBus[types.ProgressEvent]()
	defer logBus.Close()
	defer progress.Close()
	logger.AddHook(logBus.Publish)

	r := a.newRunner(logger, progress)
	watcher := state.NewScheduleWatcher(r.store)
	trusted := clock.NewTrusted(a.cfg.Scheduler.NTPServers, a.cfg.Scheduler.NTPTimeout, logger)

	sched := scheduler.New(scheduler.Capabilities{
		Paths:    r.store.LoadPaths,
		Schedule: watcher.Current,
		Run: func(ctx context.Context, kind types.BackupKind) error {
			_, err := r.run(ctx, kind)
			if err != nil {
				if recErr := errorLog.Record(kind.String()+" backup", err); recErr != nil {
					logger.Warning("Cannot write %s: %v", errorLog.Path(), recErr)
				}
			}
			return err
		},
	}, trusted, a.cfg.Scheduler.Interval, logger)

	server := health.NewServer(a.cfg.HealthSocket, sched, a.version, logger)

	// Critical entries also land in the error log. The hook runs on the
	// logging goroutine, so the write happens on the listener instead.
	stopLog, logDone := logBus.Listen(func(e logging.Entry) {
		if e.Level == types.LogLevelCritical {
			_ = errorLog.Record("daemon", errors.New(e.Message))
		}
	})
	stopProgress, progressDone := progress.Listen(newProgressLogger(logger).Handle)
	defer func() {
		stopLog()
		stopProgress()
		<-logDone
		<-progressDone
	}()

	trusted.Now()
	if off, ok := trusted.Offset(); ok {
		logger.Debug("Network time offset: %s", off)
	} else {
		logger.Warning("Network time unavailable, scheduling on the local clock")
	}
	logger.Info("drivesave %s daemon starting; schedule: %s", a.version, watcher.Current())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		return server.Serve(gctx)
	})
	server.SetReady(true)

	if err := g.Wait(); err != nil {
		logger.Error("Daemon stopped with error: %v", err)
		_ = errorLog.Record("daemon", err)
		return types.ExitGenericError.Int()
	}
	logger.Info("Daemon stopped")
	return types.ExitSuccess.Int()
}

// progressLogger writes one debug line per operation change of a run.
type progressLogger struct {
	logger *logging.Logger
	lastOp string
}

func newProgressLogger(logger *logging.Logger) *progressLogger {
	return &progressLogger{logger: logger}
}

func (p *progressLogger) Handle(ev types.ProgressEvent) {
	if ev.CurrentOperation == p.lastOp && !ev.Complete {
		return
	}
	p.lastOp = ev.CurrentOperation
	if ev.Complete {
		p.logger.Debug("Run %s finished: %s", ev.RunID, ev.DetailedStatus)
		p.lastOp = ""
		return
	}
	p.logger.Debug("Run %s: %s", ev.RunID, ev.CurrentOperation)
}
