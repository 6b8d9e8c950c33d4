package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tis24dev/drivesave/internal/types"
)

// CronSpec renders sched as a standard five-field cron expression.
func CronSpec(sched types.ScheduleConfig) (string, error) {
	if err := sched.Validate(); err != nil {
		return "", err
	}
	dow := "*"
	if !sched.IsDaily() {
		wd, _ := sched.Weekday()
		dow = fmt.Sprintf("%d", int(wd))
	}
	return fmt.Sprintf("%d %d * * %s", sched.Minute, sched.Hour, dow), nil
}

// NextRun returns the next fire time strictly after from. Disabled
// schedules have no next run.
func NextRun(sched types.ScheduleConfig, from time.Time) (time.Time, error) {
	if !sched.Enabled {
		return time.Time{}, fmt.Errorf("schedule disabled")
	}
	spec, err := CronSpec(sched)
	if err != nil {
		return time.Time{}, err
	}
	parsed, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return parsed.Next(from), nil
}

// CronLine returns a crontab entry that runs one unattended backup at the
// scheduled time.
func CronLine(sched types.ScheduleConfig, binary, configPath string) (string, error) {
	spec, err := CronSpec(sched)
	if err != nil {
		return "", err
	}
	args := []string{binary}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	args = append(args, "--run-unattended")
	return spec + " " + strings.Join(args, " "), nil
}
