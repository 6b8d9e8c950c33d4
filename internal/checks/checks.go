package checks

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tis24dev/drivesave/internal/logging"
)

// LockFileName is created in the state directory while a run is active.
const LockFileName = ".drivesave.lock"

// ErrLocked is returned when another run holds a fresh lock.
var ErrLocked = errors.New("another backup run is in progress")

var (
	osStat     = os.Stat
	osRemove   = os.Remove
	osOpenFile = os.OpenFile
	osMkdirAll = os.MkdirAll
	syncFile   = func(f *os.File) error { return f.Sync() }
	now        = time.Now

	// diskSpaceGB is replaced in tests.
	diskSpaceGB = availableGB
)

// Checker performs the pre-run validation checks.
type Checker struct {
	logger *logging.Logger
	config *CheckerConfig
}

// CheckerConfig holds configuration for the checks.
type CheckerConfig struct {
	VolumePath     string
	StateDir       string
	LogDir         string
	MinFreeSpaceGB float64
	LockFilePath   string
	MaxLockAge     time.Duration
	DryRun         bool
}

// Validate checks if the checker configuration is valid
func (c *CheckerConfig) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state directory cannot be empty")
	}
	if c.LockFilePath == "" {
		c.LockFilePath = filepath.Join(c.StateDir, LockFileName)
	}
	if c.MinFreeSpaceGB < 0 {
		return fmt.Errorf("minimum free space cannot be negative")
	}
	if c.MaxLockAge <= 0 {
		return fmt.Errorf("max lock age must be positive")
	}
	return nil
}

// CheckResult holds the result of a validation check
type CheckResult struct {
	Name    string
	Passed  bool
	Message string
	Error   error
}

// NewChecker creates a new checker
func NewChecker(logger *logging.Logger, config *CheckerConfig) *Checker {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Checker{
		logger: logger,
		config: config,
	}
}

// GetDefaultCheckerConfig returns a default checker configuration
func GetDefaultCheckerConfig(volumePath, stateDir, logDir string) *CheckerConfig {
	return &CheckerConfig{
		VolumePath:     volumePath,
		StateDir:       stateDir,
		LogDir:         logDir,
		MinFreeSpaceGB: 1.0,
		LockFilePath:   filepath.Join(stateDir, LockFileName),
		MaxLockAge:     12 * time.Hour,
	}
}

func (c *Checker) lockPath() string {
	if c.config.LockFilePath != "" {
		return c.config.LockFilePath
	}
	return filepath.Join(c.config.StateDir, LockFileName)
}

// CheckDirectories creates the state and log directories when missing.
func (c *Checker) CheckDirectories() CheckResult {
	result := CheckResult{Name: "Directories"}
	for _, dir := range []string{c.config.StateDir, c.config.LogDir} {
		if dir == "" {
			continue
		}
		if c.config.DryRun {
			c.logger.Info("[DRY RUN] Would ensure directory: %s", dir)
			continue
		}
		if err := osMkdirAll(dir, 0o755); err != nil {
			result.Error = fmt.Errorf("create directory %s: %w", dir, err)
			result.Message = result.Error.Error()
			return result
		}
	}
	result.Passed = true
	result.Message = "State and log directories available"
	return result
}

// CheckLockFile acquires the run lock. A lock older than MaxLockAge is
// treated as left behind by a crashed run and removed.
func (c *Checker) CheckLockFile() CheckResult {
	result := CheckResult{
		Name:   "Lock File",
		Passed: false,
	}

	lockPath := c.lockPath()
	c.logger.Debug("Lock file path: %s", lockPath)

	if info, err := osStat(lockPath); err == nil {
		age := now().Sub(info.ModTime())
		if age > c.config.MaxLockAge {
			c.logger.Warning("Removing stale lock file (age: %v)", age.Round(time.Second))
			if err := osRemove(lockPath); err != nil {
				result.Error = fmt.Errorf("failed to remove stale lock: %w", err)
				result.Message = result.Error.Error()
				return result
			}
		} else {
			result.Error = ErrLocked
			result.Message = fmt.Sprintf("Another backup is in progress (lock age: %v%s)", age.Round(time.Second), lockOwner(lockPath))
			c.logger.Error("%s", result.Message)
			return result
		}
	}

	if c.config.DryRun {
		c.logger.Info("[DRY RUN] Would create lock file: %s", lockPath)
		result.Passed = true
		result.Message = "Lock file check skipped (dry run)"
		return result
	}

	c.logger.Debug("Creating lock file with PID %d", os.Getpid())
	f, err := osOpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		if os.IsExist(err) {
			result.Error = ErrLocked
			result.Message = "Another backup acquired the lock"
			c.logger.Error("%s", result.Message)
			return result
		}
		result.Error = fmt.Errorf("failed to create lock file: %w", err)
		result.Message = result.Error.Error()
		return result
	}
	defer f.Close()

	hostname, _ := os.Hostname()
	lockContent := fmt.Sprintf("pid=%d\nhost=%s\ntime=%s\n", os.Getpid(), hostname, now().Format(time.RFC3339))
	if _, err := f.WriteString(lockContent); err != nil {
		result.Error = fmt.Errorf("failed to write lock file: %w", err)
		result.Message = result.Error.Error()
		return result
	}
	if err := syncFile(f); err != nil {
		c.logger.Warning("Failed to sync lock file %s: %v", lockPath, err)
	}

	result.Passed = true
	result.Message = "Lock file acquired successfully"
	c.logger.Debug("%s", result.Message)
	return result
}

// lockOwner returns ", pid N on host" from the lock content when readable.
func lockOwner(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var pid, host string
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if _, err := strconv.Atoi(value); err == nil {
				pid = value
			}
		case "host":
			host = value
		}
	}
	if pid == "" {
		return ""
	}
	if host == "" {
		return ", pid " + pid
	}
	return fmt.Sprintf(", pid %s on %s", pid, host)
}

// ReleaseLock removes the lock file
func (c *Checker) ReleaseLock() error {
	lockPath := c.lockPath()

	if c.config.DryRun {
		c.logger.Info("[DRY RUN] Would release lock file: %s", lockPath)
		return nil
	}

	if err := osRemove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	c.logger.Debug("Lock file released: %s", lockPath)
	return nil
}

// CheckDiskSpaceForEstimate compares free space on the volume with
// max(MinFreeSpaceGB, estimatedBytes). Files are overwritten one by one, so
// callers treat a failed result as a warning.
func (c *Checker) CheckDiskSpaceForEstimate(estimatedBytes int64) CheckResult {
	result := CheckResult{
		Name:   "Disk Space (Estimated)",
		Passed: false,
	}

	estimatedGB := float64(estimatedBytes) / (1024 * 1024 * 1024)
	requiredGB := math.Max(c.config.MinFreeSpaceGB, estimatedGB)
	if requiredGB <= 0 || c.config.VolumePath == "" {
		result.Passed = true
		result.Message = "Disk space check disabled"
		return result
	}

	available, err := diskSpaceGB(c.config.VolumePath)
	if err != nil {
		result.Error = fmt.Errorf("disk space check failed (%s): %w", c.config.VolumePath, err)
		result.Message = result.Error.Error()
		return result
	}
	c.logger.Debug("Volume %s: %.2f GB available, %.2f GB required", c.config.VolumePath, available, requiredGB)

	if available < requiredGB {
		result.Message = fmt.Sprintf("Disk space low on %s: %.2f GB available, %.2f GB required (max of %.2f GB min, %.2f GB selected)",
			c.config.VolumePath, available, requiredGB, c.config.MinFreeSpaceGB, estimatedGB)
		result.Error = errors.New(result.Message)
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("Sufficient disk space for %.2f GB on %s", estimatedGB, c.config.VolumePath)
	return result
}
