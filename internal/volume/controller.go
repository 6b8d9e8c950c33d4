// Package volume brings the backup volume online before a run and takes it
// offline afterwards, verifying each transition by polling the mount path.
package volume

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tis24dev/drivesave/internal/config"
	"github.com/tis24dev/drivesave/internal/logging"
	"github.com/tis24dev/drivesave/internal/safefs"
)

// ScriptPlaceholder is replaced with the directive script path in Args.
const ScriptPlaceholder = config.ScriptPlaceholder

var (
	// ErrNotMounted is returned when the mount path did not appear.
	ErrNotMounted = errors.New("volume not mounted")
	// ErrStillMounted is returned when the mount path did not disappear.
	ErrStillMounted = errors.New("volume still mounted")
)

// Options configures a Controller.
type Options struct {
	MountPath   string
	Command     string
	Args        []string
	Disk        int
	Partition   int
	Letter      string
	SettleDelay time.Duration
	VerifyDelay time.Duration
	StatTimeout time.Duration
	ScriptDir   string
}

// OptionsFromConfig maps the VOLUME_* settings.
func OptionsFromConfig(cfg config.VolumeConfig) Options {
	return Options{
		MountPath:   cfg.MountPath,
		Command:     cfg.Command,
		Args:        append([]string(nil), cfg.CommandArgs...),
		Disk:        cfg.Disk,
		Partition:   cfg.Partition,
		Letter:      cfg.Letter,
		SettleDelay: cfg.SettleDelay,
		VerifyDelay: cfg.VerifyDelay,
		StatTimeout: cfg.StatTimeout,
	}
}

// Controller mounts and unmounts the backup volume. Both operations are
// idempotent.
type Controller struct {
	opts   Options
	runner CommandRunner
	logger *logging.Logger

	sleep func(ctx context.Context, d time.Duration) error
	flush func()
}

// New creates a controller. A nil runner uses OSCommandRunner.
func New(opts Options, runner CommandRunner, logger *logging.Logger) *Controller {
	if runner == nil {
		runner = OSCommandRunner{}
	}
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	if opts.ScriptDir == "" {
		opts.ScriptDir = os.TempDir()
	}
	if opts.StatTimeout <= 0 {
		opts.StatTimeout = 5 * time.Second
	}
	return &Controller{
		opts:   opts,
		runner: runner,
		logger: logger,
		sleep:  sleepContext,
		flush:  flushFilesystems,
	}
}

// MountPath returns the directory that exists while the volume is mounted.
func (c *Controller) MountPath() string {
	return c.opts.MountPath
}

// IsMounted reports whether the mount path currently exists.
func (c *Controller) IsMounted(ctx context.Context) (bool, error) {
	return safefs.DirExists(ctx, c.opts.MountPath, c.opts.StatTimeout)
}

// Mount brings the volume online and assigns its mount path. It succeeds
// immediately if the path already exists.
func (c *Controller) Mount(ctx context.Context) error {
	if mounted, err := c.IsMounted(ctx); err == nil && mounted {
		c.logger.Info("Volume already mounted at %s", c.opts.MountPath)
		return nil
	} else if err != nil {
		c.logger.Warning("Cannot check %s before mount: %v", c.opts.MountPath, err)
	}

	c.logger.Step("Bringing volume online (disk %d)", c.opts.Disk)
	if err := c.runScript(ctx, "online", c.onlineScript()); err != nil {
		c.logger.Warning("Volume online step failed: %v", err)
	}
	if err := c.sleep(ctx, c.opts.SettleDelay); err != nil {
		return err
	}

	if err := c.runScript(ctx, "assign", c.assignScript()); err != nil {
		c.logger.Warning("Volume assign step failed: %v", err)
	}
	if c.waitFor(ctx, true) {
		c.logger.Info("Volume mounted at %s", c.opts.MountPath)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.logger.Warning("Mount path %s did not appear, retrying with forced online", c.opts.MountPath)
	if err := c.runScript(ctx, "force mount", c.forceMountScript()); err != nil {
		c.logger.Warning("Forced mount step failed: %v", err)
	}
	if c.waitFor(ctx, true) {
		c.logger.Info("Volume mounted at %s (forced)", c.opts.MountPath)
		return nil
	}

	return fmt.Errorf("%w: %s did not appear", ErrNotMounted, c.opts.MountPath)
}

// Unmount flushes pending writes, removes the mount path and takes the
// volume offline. It succeeds immediately if the path is already absent.
func (c *Controller) Unmount(ctx context.Context) error {
	mounted, err := c.IsMounted(ctx)
	if err == nil && !mounted {
		c.logger.Info("Volume not mounted, nothing to unmount")
		return nil
	}
	if err != nil {
		c.logger.Warning("Cannot check %s before unmount: %v", c.opts.MountPath, err)
	}

	c.logger.Step("Taking volume offline")
	c.flush()

	if err := c.runScript(ctx, "offline", c.offlineScript()); err != nil {
		c.logger.Warning("Volume offline step failed: %v", err)
	}
	if c.waitFor(ctx, false) {
		c.logger.Info("Volume unmounted")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.logger.Warning("Mount path %s still present, forcing offline", c.opts.MountPath)
	if err := c.runScript(ctx, "force offline", c.forceOfflineScript()); err != nil {
		c.logger.Warning("Forced offline step failed: %v", err)
	}
	if c.waitFor(ctx, false) {
		c.logger.Info("Volume unmounted (forced)")
		return nil
	}

	return fmt.Errorf("%w: %s is still present", ErrStillMounted, c.opts.MountPath)
}

// waitFor sleeps the verify delay and then checks the mount path. A stat
// failure never counts as the wanted state: a hung device is neither
// usable nor gone.
func (c *Controller) waitFor(ctx context.Context, wantPresent bool) bool {
	if err := c.sleep(ctx, c.opts.VerifyDelay); err != nil {
		return false
	}
	present, err := c.IsMounted(ctx)
	if err != nil {
		c.logger.Debug("Verify %s: %v", c.opts.MountPath, err)
		return false
	}
	return present == wantPresent
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
