// Package notify delivers run summaries to the operator. Delivery is always
// best effort: failures are logged and never change the run outcome.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/tis24dev/drivesave/internal/logging"
	"github.com/tis24dev/drivesave/internal/report"
)

// NotificationResult represents the result of a notification attempt
type NotificationResult struct {
	Success  bool
	Method   string // "email-smtp", "email-sendmail"
	Error    error
	Duration time.Duration
	Metadata map[string]interface{}
}

// Notifier is the interface that must be implemented by all notification providers
type Notifier interface {
	// Name returns the notifier name (e.g., "Email")
	Name() string

	// IsEnabled returns whether this notifier is enabled
	IsEnabled() bool

	// Send delivers the summary.
	Send(ctx context.Context, summary report.Summary) (*NotificationResult, error)
}

// Manager fans a summary out to every enabled notifier.
type Manager struct {
	notifiers []Notifier
	logger    *logging.Logger
}

// NewManager creates a manager over notifiers; nil entries are ignored.
func NewManager(logger *logging.Logger, notifiers ...Notifier) *Manager {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	m := &Manager{logger: logger}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Notify sends summary through every enabled notifier. It returns the
// number of successful deliveries; failures are only logged.
func (m *Manager) Notify(ctx context.Context, summary report.Summary) int {
	if m == nil {
		return 0
	}
	delivered := 0
	for _, n := range m.notifiers {
		if !n.IsEnabled() {
			m.logger.Debug("%s notifications disabled", n.Name())
			continue
		}
		result, err := safeSend(ctx, n, summary)
		if err != nil {
			m.logger.Warning("%s notification failed: %v", n.Name(), err)
			continue
		}
		if result != nil && !result.Success {
			m.logger.Warning("%s notification not delivered: %v", n.Name(), result.Error)
			continue
		}
		delivered++
		m.logger.Info("%s notification sent", n.Name())
	}
	return delivered
}

func safeSend(ctx context.Context, n Notifier, summary report.Summary) (result *NotificationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s notifier: %v", n.Name(), r)
		}
	}()
	return n.Send(ctx, summary)
}

// GetStatusEmoji returns the emoji for a given status
func GetStatusEmoji(status report.Status) string {
	switch status {
	case report.StatusSuccess:
		return "✅"
	case report.StatusPartial:
		return "⚠️"
	case report.StatusFailure:
		return "❌"
	default:
		return "❓"
	}
}

// StatusLabel returns the human form used in subjects and headers.
func StatusLabel(status report.Status) string {
	switch status {
	case report.StatusSuccess:
		return "Success"
	case report.StatusPartial:
		return "Partial Success"
	case report.StatusFailure:
		return "Failed"
	default:
		return "Unknown"
	}
}

// FormatDuration formats a duration in human-readable format (e.g., "2h 15m 30s")
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case hours > 0:
		return joinUnits([]int{hours, minutes, seconds}, []string{"h", "m", "s"})
	case minutes > 0:
		return joinUnits([]int{minutes, seconds}, []string{"m", "s"})
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

func joinUnits(values []int, units []string) string {
	out := ""
	for i, v := range values {
		if v == 0 {
			continue
		}
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%d%s", v, units[i])
	}
	return out
}
