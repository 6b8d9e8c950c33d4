package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/tis24dev/drivesave/internal/types"
	"github.com/tis24dev/drivesave/pkg/utils"
)

// MarkerTimeLayout is the timestamp layout inside last_backup.txt.
const MarkerTimeLayout = "2006-01-02 15:04:05"

// LoadMarker returns the last-backup marker. A missing or malformed file
// yields the zero marker, which makes the next incremental run copy everything.
func (s *Store) LoadMarker() types.LastBackupMarker {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(MarkerFile))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warning("Cannot read last backup marker: %v", err)
		}
		return types.LastBackupMarker{}
	}
	marker, err := ParseMarker(string(data))
	if err != nil {
		s.logger.Warning("Ignoring malformed last backup marker: %v", err)
		return types.LastBackupMarker{}
	}
	return marker
}

// SaveMarker persists m. It satisfies the orchestrator's MarkerStore.
func (s *Store) SaveMarker(m types.LastBackupMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := utils.EnsureDir(s.dir); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	return utils.WriteFileAtomic(s.path(MarkerFile), []byte(FormatMarker(m)), 0o600)
}

// FormatMarker renders "path|yyyy-MM-dd HH:mm:ss" in local time.
func FormatMarker(m types.LastBackupMarker) string {
	return m.Path + "|" + m.Timestamp.Local().Format(MarkerTimeLayout)
}

// ParseMarker is the inverse of FormatMarker.
func ParseMarker(s string) (types.LastBackupMarker, error) {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, "|")
	if idx < 0 {
		return types.LastBackupMarker{}, fmt.Errorf("marker %q has no separator", s)
	}
	ts, err := time.ParseInLocation(MarkerTimeLayout, strings.TrimSpace(s[idx+1:]), time.Local)
	if err != nil {
		return types.LastBackupMarker{}, fmt.Errorf("marker timestamp: %w", err)
	}
	return types.LastBackupMarker{Path: s[:idx], Timestamp: ts}, nil
}
