package state

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tis24dev/drivesave/pkg/utils"
)

// LoadPaths returns the persisted source paths. Entries that are not
// absolute existing directories, or that repeat an earlier entry, are
// dropped and the pruned list is written back.
func (s *Store) LoadPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadPathsLocked()
}

func (s *Store) loadPathsLocked() []string {
	var stored []string
	if _, err := s.readJSON(PathsFile, &stored); err != nil {
		s.logger.Warning("Cannot read source paths, starting with an empty set: %v", err)
		return nil
	}

	valid := normalizePaths(stored, func(p string) bool {
		if utils.DirExists(p) {
			return true
		}
		s.logger.Warning("Removing source path that no longer exists: %s", p)
		return false
	})

	if len(valid) != len(stored) {
		if err := s.writeJSON(PathsFile, valid); err != nil {
			s.logger.Warning("Cannot persist pruned source paths: %v", err)
		}
	}
	return valid
}

// normalizePaths drops relative and repeated entries and anything keep
// rejects, preserving the original order.
func normalizePaths(paths []string, keep func(string) bool) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			continue
		}
		p = filepath.Clean(p)
		if seen[p] {
			continue
		}
		if keep != nil && !keep(p) {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// SavePaths overwrites the persisted path set.
func (s *Store) SavePaths(paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if paths == nil {
		paths = []string{}
	}
	return s.writeJSON(PathsFile, paths)
}

// AddPath appends dir to the set. It must be an existing directory; a
// relative path is resolved against the working directory.
func (s *Store) AddPath(dir string) ([]string, error) {
	abs, err := utils.AbsPath(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("source path %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path %s is not a directory", abs)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	paths := s.loadPathsLocked()
	for _, p := range paths {
		if p == abs {
			return paths, nil
		}
	}
	paths = append(paths, abs)
	if err := s.writeJSON(PathsFile, paths); err != nil {
		return nil, err
	}
	return paths, nil
}

// RemovePath deletes dir from the set and reports whether it was present.
func (s *Store) RemovePath(dir string) (bool, error) {
	abs, err := utils.AbsPath(dir)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", dir, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var stored []string
	if _, err := s.readJSON(PathsFile, &stored); err != nil {
		return false, err
	}
	out := stored[:0]
	removed := false
	for _, p := range stored {
		if filepath.Clean(p) == abs {
			removed = true
			continue
		}
		out = append(out, p)
	}
	if !removed {
		return false, nil
	}
	return true, s.writeJSON(PathsFile, out)
}
