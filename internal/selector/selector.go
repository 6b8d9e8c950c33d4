// Package selector builds the list of files a run copies.
package selector

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/tis24dev/drivesave/internal/types"
)

// Selector enumerates source roots.
type Selector struct {
	walk func(root string, fn fs.WalkDirFunc) error
}

// New returns a selector backed by filepath.WalkDir.
func New() *Selector {
	return &Selector{walk: filepath.WalkDir}
}

// SelectFiles returns the regular files under root that belong in a run of
// the given kind. Full returns everything; Incremental returns files whose
// modification time is strictly after cutoff, or everything when cutoff is
// zero. Any walk error aborts the whole root.
func (s *Selector) SelectFiles(ctx context.Context, root string, kind types.BackupKind, cutoff time.Time) ([]types.FileRef, error) {
	filterByTime := kind == types.BackupIncremental && !cutoff.IsZero()

	var files []types.FileRef
	err := s.walk(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if filterByTime && !info.ModTime().After(cutoff) {
			return nil
		}
		files = append(files, types.FileRef{
			FullPath: path,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", root, err)
	}
	return files, nil
}

// TotalBytes sums the sizes of files.
func TotalBytes(files []types.FileRef) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}
