package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/tis24dev/drivesave/internal/scheduler"
	"github.com/tis24dev/drivesave/internal/state"
	"github.com/tis24dev/drivesave/internal/types"
	"github.com/tis24dev/drivesave/pkg/utils"
)

var (
	osExecutable = os.Executable
	timeNow      = time.Now
)

func (a *application) addPath(dir string) int {
	logger := a.consoleLogger()
	paths, err := a.store(logger).AddPath(dir)
	if err != nil {
		logger.Error("Cannot add %s: %v", dir, err)
		return types.ExitConfigError.Int()
	}
	logger.Info("Source paths (%d):", len(paths))
	for _, p := range paths {
		fmt.Println("  " + p)
	}
	return types.ExitSuccess.Int()
}

func (a *application) removePath(dir string) int {
	logger := a.consoleLogger()
	removed, err := a.store(logger).RemovePath(dir)
	if err != nil {
		logger.Error("Cannot remove %s: %v", dir, err)
		return types.ExitStateError.Int()
	}
	if !removed {
		logger.Warning("%s is not a configured source path", dir)
		return types.ExitSuccess.Int()
	}
	logger.Info("Removed %s", dir)
	return types.ExitSuccess.Int()
}

func (a *application) listPaths() int {
	logger := a.consoleLogger()
	paths := a.store(logger).LoadPaths()
	if len(paths) == 0 {
		fmt.Println("No source paths configured. Use --add-path DIR.")
		return types.ExitSuccess.Int()
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return types.ExitSuccess.Int()
}

func (a *application) setSchedule(value string) int {
	logger := a.consoleLogger()
	sched, err := types.ParseSchedule(value)
	if err != nil {
		logger.Error("Invalid schedule %q: %v", value, err)
		return types.ExitConfigError.Int()
	}
	if err := a.store(logger).SaveSchedule(sched); err != nil {
		logger.Error("Cannot save schedule: %v", err)
		return types.ExitStateError.Int()
	}
	logger.Info("Schedule set: %s", sched)
	printNextRun(sched)
	return types.ExitSuccess.Int()
}

func (a *application) disableSchedule() int {
	logger := a.consoleLogger()
	store := a.store(logger)
	sched := store.LoadSchedule()
	sched.Enabled = false
	if err := store.SaveSchedule(sched); err != nil {
		logger.Error("Cannot save schedule: %v", err)
		return types.ExitStateError.Int()
	}
	logger.Info("Schedule disabled (%s)", sched)
	return types.ExitSuccess.Int()
}

func (a *application) showSchedule() int {
	logger := a.consoleLogger()
	sched := a.store(logger).LoadSchedule()
	fmt.Printf("Schedule: %s\n", sched)
	printNextRun(sched)
	return types.ExitSuccess.Int()
}

func printNextRun(sched types.ScheduleConfig) {
	next, err := scheduler.NextRun(sched, timeNow())
	if err != nil {
		fmt.Println("Next run: none (schedule disabled)")
		return
	}
	fmt.Printf("Next run: %s\n", next.Format("Monday 02.01.2006 15:04"))
}

// cronLine prints a crontab entry for hosts that prefer the OS scheduler
// over --daemon.
func (a *application) cronLine() int {
	logger := a.consoleLogger()
	sched := a.store(logger).LoadSchedule()
	if !sched.Enabled {
		logger.Warning("The stored schedule is disabled; the line below still uses its day and time")
	}

	binary, err := osExecutable()
	if err != nil {
		logger.Error("Cannot resolve executable path: %v", err)
		return types.ExitGenericError.Int()
	}
	configPath := a.args.ConfigPath
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}

	line, err := scheduler.CronLine(sched, binary, configPath)
	if err != nil {
		logger.Error("%v", err)
		return types.ExitConfigError.Int()
	}
	fmt.Println(line)
	return types.ExitSuccess.Int()
}

// applyEmailSettings updates settings from "key=value" fields. The password
// is refused: it belongs in SMTP_PASSWORD or the secrets file.
func applyEmailSettings(settings state.EmailSettings, spec string) (state.EmailSettings, error) {
	fields := strings.Fields(spec)
	if len(fields) == 0 {
		return settings, errors.New("no settings given")
	}
	for _, field := range fields {
		key, value, ok := utils.SplitKeyValue(field)
		if !ok {
			return settings, fmt.Errorf("invalid setting %q (want key=value)", field)
		}
		switch strings.ToLower(key) {
		case "server":
			settings.Server = value
		case "port":
			port, err := cast.ToIntE(value)
			if err != nil {
				return settings, fmt.Errorf("invalid port %q", value)
			}
			settings.Port = port
		case "username", "user":
			settings.Username = value
		case "from":
			settings.From = value
		case "to":
			settings.To = value
		case "tls":
			tls, err := cast.ToBoolE(value)
			if err != nil {
				return settings, fmt.Errorf("invalid tls value %q", value)
			}
			settings.TLS = tls
		case "password":
			return settings, errors.New("the password is not stored in email.json; use SMTP_PASSWORD or --encrypt-secret")
		default:
			return settings, fmt.Errorf("unknown email setting %q", key)
		}
	}
	return settings, nil
}

func (a *application) setEmail(spec string) int {
	logger := a.consoleLogger()
	store := a.store(logger)
	settings, err := applyEmailSettings(store.LoadEmail(), spec)
	if err != nil {
		logger.Error("%v", err)
		return types.ExitConfigError.Int()
	}
	if err := settings.Validate(); err != nil {
		logger.Warning("Saved, but notifications will fail until completed: %v", err)
	}
	if err := store.SaveEmail(settings); err != nil {
		logger.Error("Cannot save email settings: %v", err)
		return types.ExitStateError.Int()
	}
	logger.Info("Email settings saved: %s:%d from %s to %s", settings.Server, settings.Port, settings.From, settings.To)
	return types.ExitSuccess.Int()
}
