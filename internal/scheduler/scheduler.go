// Package scheduler fires backup runs at the configured weekday and time.
// A single goroutine owns the running flag; runs execute asynchronously and
// report completion back to it.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tis24dev/drivesave/internal/clock"
	"github.com/tis24dev/drivesave/internal/logging"
	"github.com/tis24dev/drivesave/internal/types"
)

// DefaultInterval is the tick period.
const DefaultInterval = 30 * time.Second

const dateLayout = "2006-01-02"

// ErrNotRunning is returned by TriggerNow callers when the loop has stopped.
var ErrNotRunning = errors.New("scheduler is not running")

// Capabilities are the only things the scheduler can do or see.
type Capabilities struct {
	Paths    func() []string
	Schedule func() types.ScheduleConfig
	Run      func(ctx context.Context, kind types.BackupKind) error
}

// Status is a snapshot for health reporting.
type Status struct {
	Running     bool      `json:"running"`
	LastFired   string    `json:"last_fired,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastRunEnd  time.Time `json:"last_run_end,omitempty"`
	NextRun     time.Time `json:"next_run,omitempty"`
	ScheduleSet string    `json:"schedule"`
}

type triggerRequest struct {
	kind     types.BackupKind
	accepted chan bool
}

// Scheduler is the ticker loop.
type Scheduler struct {
	caps     Capabilities
	clock    clock.Clock
	interval time.Duration
	logger   *logging.Logger

	triggers chan triggerRequest
	finished chan error
	stopped  chan struct{}

	// newTicker is replaced in tests.
	newTicker func(d time.Duration) (<-chan time.Time, func())

	// running mirrors the loop-owned flag for Status readers.
	running atomic.Bool

	mu         sync.Mutex
	lastFired  string
	lastError  string
	lastRunEnd time.Time
}

// New creates a scheduler. A nil clock uses the local clock; a
// non-positive interval uses DefaultInterval.
func New(caps Capabilities, clk clock.Clock, interval time.Duration, logger *logging.Logger) *Scheduler {
	if clk == nil {
		clk = clock.Local{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Scheduler{
		caps:     caps,
		clock:    clk,
		interval: interval,
		logger:   logger,
		triggers: make(chan triggerRequest),
		finished: make(chan error, 1),
		stopped:  make(chan struct{}),
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// Run executes the loop until ctx is cancelled. An in-flight run sees the
// same cancellation and is waited for before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.stopped)

	tick, stop := s.newTicker(s.interval)
	defer stop()

	s.logger.Info("Scheduler started (interval %s)", s.interval)
	running := false

	start := func(kind types.BackupKind, reason string) bool {
		if running {
			s.logger.Warning("%s trigger dropped: a backup is already running", reason)
			return false
		}
		running = true
		s.running.Store(true)
		s.logger.Info("Starting %s backup (%s)", kind, reason)
		go func() {
			s.finished <- s.caps.Run(ctx, kind)
		}()
		return true
	}

	s.tick(start)
	for {
		select {
		case <-ctx.Done():
			if running {
				s.logger.Info("Waiting for the running backup to stop")
				s.complete(<-s.finished)
			}
			s.logger.Info("Scheduler stopped")
			return nil
		case <-tick:
			s.tick(start)
		case req := <-s.triggers:
			if len(s.paths()) == 0 {
				s.logger.Warning("Manual trigger ignored: no source paths configured")
				req.accepted <- false
				continue
			}
			req.accepted <- start(req.kind, "manual")
		case err := <-s.finished:
			running = false
			s.complete(err)
		}
	}
}

func (s *Scheduler) complete(err error) {
	s.running.Store(false)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRunEnd = s.clock.Now()
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
		s.logger.Error("Backup run failed: %v", err)
	}
}

func (s *Scheduler) paths() []string {
	if s.caps.Paths == nil {
		return nil
	}
	return s.caps.Paths()
}

func (s *Scheduler) schedule() (types.ScheduleConfig, bool) {
	if s.caps.Schedule == nil {
		return types.ScheduleConfig{}, false
	}
	return s.caps.Schedule(), true
}

// tick applies the firing gate once.
func (s *Scheduler) tick(start func(types.BackupKind, string) bool) {
	sched, ok := s.schedule()
	if !ok || !sched.Enabled {
		return
	}
	now := s.clock.Now()

	s.mu.Lock()
	fire := ShouldFire(sched, now, s.lastFired)
	if fire {
		s.lastFired = now.Format(dateLayout)
	}
	s.mu.Unlock()
	if !fire {
		return
	}

	if len(s.paths()) == 0 {
		s.logger.Warning("Scheduled backup skipped: no source paths configured")
		return
	}
	start(sched.Kind, "scheduled")
}

// ShouldFire is the firing gate: enabled, matching day, matching hour and
// minute, and not already fired today.
func ShouldFire(sched types.ScheduleConfig, now time.Time, lastFired string) bool {
	if !sched.Enabled {
		return false
	}
	if !sched.IsDaily() {
		wd, ok := sched.Weekday()
		if !ok || wd != now.Weekday() {
			return false
		}
	}
	if now.Hour() != sched.Hour || now.Minute() != sched.Minute {
		return false
	}
	return lastFired != now.Format(dateLayout)
}

// TriggerNow asks the loop to start a run of kind. It returns false when a
// run is already active, no paths are configured or the loop has stopped.
func (s *Scheduler) TriggerNow(ctx context.Context, kind types.BackupKind) bool {
	req := triggerRequest{kind: kind, accepted: make(chan bool, 1)}
	select {
	case s.triggers <- req:
	case <-s.stopped:
		return false
	case <-ctx.Done():
		return false
	}
	select {
	case ok := <-req.accepted:
		return ok
	case <-ctx.Done():
		return false
	}
}

// Running reports whether a run is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Status returns a snapshot for the health endpoint.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := Status{
		Running:    s.running.Load(),
		LastFired:  s.lastFired,
		LastError:  s.lastError,
		LastRunEnd: s.lastRunEnd,
	}
	s.mu.Unlock()

	if sched, ok := s.schedule(); ok {
		st.ScheduleSet = sched.String()
		if next, err := NextRun(sched, s.clock.Now()); err == nil {
			st.NextRun = next
		}
	}
	return st
}
