package state

import (
	"sync"
	"time"

	"github.com/tis24dev/drivesave/internal/types"
)

// LoadSchedule returns the persisted schedule, or the default schedule
// (Monday 22:00 Full, enabled) when none is stored or the file is unreadable.
func (s *Store) LoadSchedule() types.ScheduleConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sched types.ScheduleConfig
	found, err := s.readJSON(ScheduleFile, &sched)
	if err != nil {
		s.logger.Warning("Cannot read schedule, using default: %v", err)
		return types.DefaultSchedule()
	}
	if !found {
		return types.DefaultSchedule()
	}
	return sched
}

// SaveSchedule validates and persists sched.
func (s *Store) SaveSchedule(sched types.ScheduleConfig) error {
	if err := sched.Validate(); err != nil {
		return err
	}
	day, _ := types.NormalizeDay(sched.Day)
	sched.Day = day

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(ScheduleFile, sched)
}

// ScheduleModTime returns the schedule file's modification time so callers
// can detect external edits. It is zero when the file does not exist.
func (s *Store) ScheduleModTime() time.Time {
	return s.modTime(ScheduleFile)
}

// ScheduleWatcher caches the schedule and reloads it when the file's
// modification time changes. It is safe for concurrent use.
type ScheduleWatcher struct {
	mu      sync.Mutex
	store   *Store
	modTime time.Time
	current types.ScheduleConfig
	loaded  bool
}

// NewScheduleWatcher creates a watcher over store.
func NewScheduleWatcher(store *Store) *ScheduleWatcher {
	return &ScheduleWatcher{store: store}
}

// Current returns the schedule, re-reading the file only if it changed.
func (w *ScheduleWatcher) Current() types.ScheduleConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	mt := w.store.ScheduleModTime()
	if !w.loaded || !mt.Equal(w.modTime) {
		w.current = w.store.LoadSchedule()
		w.modTime = mt
		w.loaded = true
	}
	return w.current
}
