package orchestrator

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tis24dev/drivesave/internal/types"
)

// RetentionPolicy limits the backup folders kept on the volume. Zero
// fields disable the matching rule.
type RetentionPolicy struct {
	MaxCount int
	MaxAge   time.Duration
}

// Enabled reports whether any rule is active.
func (p RetentionPolicy) Enabled() bool {
	return p.MaxCount > 0 || p.MaxAge > 0
}

// RetentionSummary describes the last retention pass.
type RetentionSummary struct {
	Deleted   []string
	Remaining int
}

type backupFolder struct {
	path      string
	timestamp time.Time
}

// parseFolderName extracts the timestamp of a backup folder name such as
// "Full_Backup_2026-03-02_22-00-00" or the same with a collision suffix.
func parseFolderName(name string) (time.Time, bool) {
	for _, kind := range []types.BackupKind{types.BackupFull, types.BackupIncremental} {
		prefix := kind.FolderPrefix() + "_"
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := name[len(prefix):]
		if len(rest) < len(FolderTimeLayout) {
			return time.Time{}, false
		}
		ts, err := time.ParseInLocation(FolderTimeLayout, rest[:len(FolderTimeLayout)], time.Local)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	}
	return time.Time{}, false
}

// listBackupFolders returns the backup folders under root, newest first.
func (o *Orchestrator) listBackupFolders(root string) ([]backupFolder, error) {
	entries, err := o.fs.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var folders []backupFolder
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ts, ok := parseFolderName(e.Name())
		if !ok {
			continue
		}
		folders = append(folders, backupFolder{path: filepath.Join(root, e.Name()), timestamp: ts})
	}
	sort.SliceStable(folders, func(i, j int) bool {
		return folders[i].timestamp.After(folders[j].timestamp)
	})
	return folders, nil
}

// applyRetention deletes folders beyond MaxCount or older than MaxAge. The
// newest folder and keep are never deleted. Deletion failures are logged.
func (o *Orchestrator) applyRetention(keep string) RetentionSummary {
	var summary RetentionSummary
	if !o.retention.Enabled() {
		return summary
	}

	root := o.volume.MountPath()
	folders, err := o.listBackupFolders(root)
	if err != nil {
		o.logger.Warning("Retention skipped: cannot list %s: %v", root, err)
		return summary
	}

	now := o.now()
	for i, f := range folders {
		if i == 0 || f.path == keep {
			continue
		}
		tooMany := o.retention.MaxCount > 0 && i >= o.retention.MaxCount
		tooOld := o.retention.MaxAge > 0 && now.Sub(f.timestamp) > o.retention.MaxAge
		if !tooMany && !tooOld {
			continue
		}
		o.logger.Debug("Deleting old backup: %s (created: %s)",
			filepath.Base(f.path), f.timestamp.Format("2006-01-02 15:04:05"))
		if err := o.fs.RemoveAll(f.path); err != nil {
			o.logger.Warning("Failed to delete %s: %v", f.path, err)
			continue
		}
		summary.Deleted = append(summary.Deleted, f.path)
	}

	summary.Remaining = len(folders) - len(summary.Deleted)
	if len(summary.Deleted) > 0 {
		o.logger.Info("Retention applied: deleted %d backup(s), %d remaining", len(summary.Deleted), summary.Remaining)
	}
	return summary
}
