// Package state persists the small JSON and text files that survive between
// runs: the source path set, the schedule, the last-backup marker and the
// email settings. Read failures fall back to defaults and are logged.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tis24dev/drivesave/internal/logging"
	"github.com/tis24dev/drivesave/pkg/utils"
)

const (
	PathsFile    = "paths.json"
	ScheduleFile = "schedule.json"
	MarkerFile   = "last_backup.txt"
	EmailFile    = "email.json"
)

// Store reads and writes the state files under a single directory.
type Store struct {
	dir    string
	logger *logging.Logger

	mu sync.Mutex
}

// NewStore returns a store rooted at dir. The directory is created on first write.
func NewStore(dir string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// readJSON decodes name into v. It returns (false, nil) when the file does
// not exist.
func (s *Store) readJSON(name string, v interface{}) (bool, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (s *Store) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := utils.EnsureDir(s.dir); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	return utils.WriteFileAtomic(s.path(name), append(data, '\n'), 0o600)
}

// modTime returns the modification time of name, or the zero time if it is missing.
func (s *Store) modTime(name string) time.Time {
	info, err := os.Stat(s.path(name))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
