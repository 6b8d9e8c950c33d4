package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DayDaily is the schedule day that matches every weekday.
const DayDaily = "daily"

// ScheduleConfig is the persisted weekly or daily trigger.
type ScheduleConfig struct {
	Day     string // weekday name ("Monday") or DayDaily
	Hour    int
	Minute  int
	Kind    BackupKind
	Enabled bool
}

// DefaultSchedule is used when no schedule has been stored yet.
func DefaultSchedule() ScheduleConfig {
	return ScheduleConfig{
		Day:     time.Monday.String(),
		Hour:    22,
		Minute:  0,
		Kind:    BackupFull,
		Enabled: true,
	}
}

var titleCaser = cases.Title(language.English)

// NormalizeDay returns the canonical spelling of a schedule day.
func NormalizeDay(day string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(day))
	if d == DayDaily || d == "everyday" || d == "*" {
		return DayDaily, nil
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := strings.ToLower(wd.String())
		if d == name || d == name[:3] {
			return titleCaser.String(name), nil
		}
	}
	return "", fmt.Errorf("invalid schedule day %q", day)
}

// Weekday returns the configured weekday and false for daily schedules.
func (s ScheduleConfig) Weekday() (time.Weekday, bool) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(s.Day, wd.String()) {
			return wd, true
		}
	}
	return time.Sunday, false
}

// IsDaily reports whether the schedule fires every day.
func (s ScheduleConfig) IsDaily() bool {
	return strings.EqualFold(s.Day, DayDaily)
}

// Clock formats the trigger time as "HH:mm".
func (s ScheduleConfig) Clock() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

func (s ScheduleConfig) String() string {
	state := "enabled"
	if !s.Enabled {
		state = "disabled"
	}
	return fmt.Sprintf("%s %s %s (%s)", s.Day, s.Clock(), s.Kind, state)
}

// Validate checks day, time and kind.
func (s ScheduleConfig) Validate() error {
	if _, err := NormalizeDay(s.Day); err != nil {
		return err
	}
	if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("invalid schedule time %02d:%02d", s.Hour, s.Minute)
	}
	if s.Kind != BackupFull && s.Kind != BackupIncremental {
		return fmt.Errorf("invalid backup kind %d", s.Kind)
	}
	return nil
}

// ParseClock parses "HH:mm", also accepting a trailing ":ss".
func ParseClock(value string) (hour, minute int, err error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, perr := time.Parse(layout, value); perr == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	return 0, 0, fmt.Errorf("invalid time %q (want HH:mm)", value)
}

// ParseSchedule parses the command-line form "Monday 22:00 Full". The kind
// may be omitted and defaults to Full.
func ParseSchedule(s string) (ScheduleConfig, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 || len(fields) > 3 {
		return ScheduleConfig{}, fmt.Errorf("invalid schedule %q (want \"<Day|daily> HH:mm [Full|Incremental]\")", s)
	}
	day, err := NormalizeDay(fields[0])
	if err != nil {
		return ScheduleConfig{}, err
	}
	hour, minute, err := ParseClock(fields[1])
	if err != nil {
		return ScheduleConfig{}, err
	}
	kind := BackupFull
	if len(fields) == 3 {
		if kind, err = ParseBackupKind(fields[2]); err != nil {
			return ScheduleConfig{}, err
		}
	}
	return ScheduleConfig{Day: day, Hour: hour, Minute: minute, Kind: kind, Enabled: true}, nil
}

type scheduleJSON struct {
	Day     string     `json:"day"`
	Time    string     `json:"time"`
	Kind    BackupKind `json:"kind"`
	Enabled bool       `json:"enabled"`
}

// MarshalJSON writes {"day","time":"HH:mm","kind","enabled"}.
func (s ScheduleConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(scheduleJSON{
		Day:     s.Day,
		Time:    s.Clock(),
		Kind:    s.Kind,
		Enabled: s.Enabled,
	})
}

// UnmarshalJSON reads the persisted schedule form.
func (s *ScheduleConfig) UnmarshalJSON(data []byte) error {
	raw := scheduleJSON{Enabled: true}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	day, err := NormalizeDay(raw.Day)
	if err != nil {
		return err
	}
	hour, minute, err := ParseClock(raw.Time)
	if err != nil {
		return err
	}
	*s = ScheduleConfig{Day: day, Hour: hour, Minute: minute, Kind: raw.Kind, Enabled: raw.Enabled}
	return nil
}
