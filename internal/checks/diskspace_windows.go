//go:build windows

package checks

import "golang.org/x/sys/windows"

func availableGB(path string) (float64, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return 0, err
	}
	return float64(free) / (1024 * 1024 * 1024), nil
}
