//go:build !unix && !windows

package checks

import "errors"

func availableGB(string) (float64, error) {
	return 0, errors.New("free space query not supported on this platform")
}
