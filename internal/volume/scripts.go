package volume

import (
	"fmt"
	"strings"
)

// Directive scripts fed to the volume control command. They follow diskpart
// syntax; any shim that accepts the same directives can be configured.

func (c *Controller) selectDisk() string {
	return fmt.Sprintf("select disk %d", c.opts.Disk)
}

func (c *Controller) selectPartition() string {
	return fmt.Sprintf("select partition %d", c.opts.Partition)
}

// target returns the assign/remove argument: a drive letter when one is
// configured, otherwise a mount point.
func (c *Controller) target() string {
	if l := strings.TrimSpace(c.opts.Letter); l != "" {
		return "letter=" + strings.ToUpper(l)
	}
	return fmt.Sprintf("mount=%q", c.opts.MountPath)
}

func script(lines ...string) string {
	return strings.Join(append(lines, "exit"), "\n") + "\n"
}

func (c *Controller) onlineScript() string {
	return script(
		c.selectDisk(),
		"online disk noerr",
		c.selectPartition(),
	)
}

func (c *Controller) assignScript() string {
	return script(
		c.selectDisk(),
		c.selectPartition(),
		"assign "+c.target()+" noerr",
	)
}

func (c *Controller) forceMountScript() string {
	return script(
		c.selectDisk(),
		"attributes disk clear readonly noerr",
		"online disk noerr",
		c.selectPartition(),
		"assign "+c.target()+" noerr",
	)
}

func (c *Controller) offlineScript() string {
	return script(
		c.selectDisk(),
		c.selectPartition(),
		"remove "+c.target()+" noerr",
		c.selectDisk(),
		"offline disk",
	)
}

func (c *Controller) forceOfflineScript() string {
	return script(
		c.selectDisk(),
		c.selectPartition(),
		"remove "+c.target()+" noerr",
		c.selectDisk(),
		"offline disk noerr",
		"attributes disk clear readonly noerr",
		"offline disk",
	)
}
