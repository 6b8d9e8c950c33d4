// Package clock provides the scheduler's notion of "now". Network time is
// preferred; any NTP failure falls back silently to the local clock.
package clock

import (
	"sync"
	"time"

	"github.com/beevik/ntp"

	"github.com/tis24dev/drivesave/internal/logging"
)

// DefaultServers are queried in order until one answers.
var DefaultServers = []string{"time.windows.com", "time.google.com", "pool.ntp.org"}

// queryFunc is replaced in tests.
var queryFunc = func(host string, timeout time.Duration) (*ntp.Response, error) {
	return ntp.QueryWithOptions(host, ntp.QueryOptions{Timeout: timeout})
}

// Clock reports wall time.
type Clock interface {
	Now() time.Time
}

// Local is the machine clock.
type Local struct{}

// Now returns time.Now().
func (Local) Now() time.Time { return time.Now() }

// Trusted queries NTP servers and applies the clock offset to local time.
// A successful offset is cached for CacheFor so a 30 s ticker does not hit
// the network on every tick. After a failed round no server is asked again
// for RetryAfter. Servers are queried without holding the lock: concurrent
// callers get the last known offset, or local time, while a refresh runs.
type Trusted struct {
	Servers    []string
	Timeout    time.Duration
	CacheFor   time.Duration
	RetryAfter time.Duration

	logger *logging.Logger
	local  func() time.Time

	mu         sync.Mutex
	offset     time.Duration
	fetchedAt  time.Time
	haveValue  bool
	failedAt   time.Time
	refreshing bool
}

// NewTrusted builds a Trusted clock. Empty servers means DefaultServers.
func NewTrusted(servers []string, timeout time.Duration, logger *logging.Logger) *Trusted {
	if len(servers) == 0 {
		servers = DefaultServers
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Trusted{
		Servers:    servers,
		Timeout:    timeout,
		CacheFor:   10 * time.Minute,
		RetryAfter: time.Minute,
		logger:     logger,
		local:      time.Now,
	}
}

// Now returns network-corrected local time, or local time when no server
// answers.
func (c *Trusted) Now() time.Time {
	now := c.local()

	c.mu.Lock()
	fresh := c.haveValue && now.Sub(c.fetchedAt) < c.CacheFor
	backingOff := !c.haveValue && !c.failedAt.IsZero() && now.Sub(c.failedAt) < c.RetryAfter
	if fresh || backingOff || c.refreshing {
		var offset time.Duration
		if c.haveValue {
			offset = c.offset
		}
		c.mu.Unlock()
		return now.Add(offset)
	}
	c.refreshing = true
	c.mu.Unlock()

	offset, ok := c.query()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshing = false
	if !ok {
		c.haveValue = false
		c.failedAt = now
		return now
	}
	c.offset = offset
	c.fetchedAt = now
	c.haveValue = true
	c.failedAt = time.Time{}
	return now.Add(offset)
}

// query asks each server in turn and returns the first valid offset.
func (c *Trusted) query() (time.Duration, bool) {
	for _, host := range c.Servers {
		resp, err := queryFunc(host, c.Timeout)
		if err == nil {
			err = resp.Validate()
		}
		if err != nil {
			c.logger.Debug("NTP query to %s failed: %v", host, err)
			continue
		}
		return resp.ClockOffset, true
	}
	return 0, false
}

// Offset returns the last applied NTP offset and whether one is cached.
func (c *Trusted) Offset() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset, c.haveValue
}
