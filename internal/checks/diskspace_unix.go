//go:build unix

package checks

import "golang.org/x/sys/unix"

func availableGB(path string) (float64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return float64(uint64(stat.Bavail)*uint64(stat.Bsize)) / (1024 * 1024 * 1024), nil
}
