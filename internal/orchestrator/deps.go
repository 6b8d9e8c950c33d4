package orchestrator

import (
	"context"
	"io/fs"
	"os"
	"time"

	"github.com/tis24dev/drivesave/internal/checks"
	"github.com/tis24dev/drivesave/internal/copier"
	"github.com/tis24dev/drivesave/internal/events"
	"github.com/tis24dev/drivesave/internal/logging"
	"github.com/tis24dev/drivesave/internal/metrics"
	"github.com/tis24dev/drivesave/internal/report"
	"github.com/tis24dev/drivesave/internal/safefs"
	"github.com/tis24dev/drivesave/internal/selector"
	"github.com/tis24dev/drivesave/internal/types"
)

// FS abstracts the filesystem operations on the backup volume to simplify testing.
type FS interface {
	Stat(path string) (os.FileInfo, error)
	MkdirAll(path string, perm fs.FileMode) error
	Remove(path string) error
	RemoveAll(path string) error
	ReadDir(path string) ([]os.DirEntry, error)
	WriteFile(path string, data []byte, perm fs.FileMode) error
}

// TimeProvider abstracts time acquisition for determinism in tests.
type TimeProvider interface {
	Now() time.Time
}

// Volume is the mountable backup target.
type Volume interface {
	Mount(ctx context.Context) error
	Unmount(ctx context.Context) error
	MountPath() string
}

// FileSelector enumerates the files of one source root.
type FileSelector interface {
	SelectFiles(ctx context.Context, root string, kind types.BackupKind, cutoff time.Time) ([]types.FileRef, error)
}

// Copier copies single files onto the volume. One Copier serves one run.
type Copier interface {
	CopyFile(ctx context.Context, source, destinationRoot string) (int64, error)
	PeakMBps() float64
}

// CopierFactory builds the Copier of a run.
type CopierFactory func(volumeRoot string, hooks copier.Hooks) Copier

// Notifier receives the summary of every run. Failures stay inside it.
type Notifier interface {
	Notify(ctx context.Context, summary report.Summary) int
}

// MarkerStore persists the last fully successful run.
type MarkerStore interface {
	SaveMarker(m types.LastBackupMarker) error
}

// MetricsExporter writes the metrics of a finished run.
type MetricsExporter interface {
	Export(m *metrics.BackupMetrics) error
}

// SpaceChecker reports free space on the mounted volume.
type SpaceChecker interface {
	CheckDiskSpaceForEstimate(estimatedBytes int64) checks.CheckResult
}

// Deps groups orchestrator dependencies. Only Volume is required.
type Deps struct {
	Logger    *logging.Logger
	Version   string
	Volume    Volume
	Selector  FileSelector
	NewCopier CopierFactory
	Notifier  Notifier
	Markers   MarkerStore
	Metrics   MetricsExporter
	Space     SpaceChecker
	Progress  *events.Bus[types.ProgressEvent]
	Retention RetentionPolicy
	FS        FS
	Time      TimeProvider
}

// volumeListTimeout bounds directory listings on the backup volume, which
// can hang when a removable device stops answering.
const volumeListTimeout = 30 * time.Second

type osFS struct{}

func (osFS) Stat(path string) (os.FileInfo, error) { return os.Stat(path) }
func (osFS) MkdirAll(path string, perm fs.FileMode) error { return os.MkdirAll(path, perm) }
func (osFS) Remove(path string) error { return os.Remove(path) }
func (osFS) RemoveAll(path string) error { return os.RemoveAll(path) }
func (osFS) ReadDir(path string) ([]os.DirEntry, error) {
	return safefs.ReadDir(context.Background(), path, volumeListTimeout)
}
func (osFS) WriteFile(path string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(path, data, perm)
}

type realTimeProvider struct{}

func (realTimeProvider) Now() time.Time { return time.Now() }

func defaultCopierFactory(volumeRoot string, hooks copier.Hooks) Copier {
	return copier.New(volumeRoot, hooks)
}

// NewWithDeps builds an orchestrator using custom dependencies while preserving defaults.
func NewWithDeps(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}

	o := &Orchestrator{
		logger:    logger,
		version:   deps.Version,
		volume:    deps.Volume,
		selector:  deps.Selector,
		newCopier: deps.NewCopier,
		notifier:  deps.Notifier,
		markers:   deps.Markers,
		metrics:   deps.Metrics,
		space:     deps.Space,
		progress:  deps.Progress,
		retention: deps.Retention,
		fs:        deps.FS,
		clock:     deps.Time,
	}
	if o.selector == nil {
		o.selector = selector.New()
	}
	if o.newCopier == nil {
		o.newCopier = defaultCopierFactory
	}
	if o.fs == nil {
		o.fs = osFS{}
	}
	if o.clock == nil {
		o.clock = realTimeProvider{}
	}
	return o
}
