package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/tis24dev/drivesave/internal/cli"
	"github.com/tis24dev/drivesave/internal/config"
	"github.com/tis24dev/drivesave/internal/logging"
	"github.com/tis24dev/drivesave/internal/types"
	"github.com/tis24dev/drivesave/internal/version"
)

func main() {
	os.Exit(run())
}

func run() (exitCode int) {
	bootstrap := logging.NewBootstrapLogger()

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n%s\n", r, debug.Stack())
			exitCode = types.ExitPanicError.Int()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			bootstrap.Warning("Received signal %v, shutting down...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	args := cli.Parse()
	if args.ShowVersion {
		cli.ShowVersion()
		return types.ExitSuccess.Int()
	}
	if args.ShowHelp {
		cli.ShowHelp()
		return types.ExitSuccess.Int()
	}

	mode, err := args.Mode()
	if err != nil {
		bootstrap.Error("ERROR: %v", err)
		return types.ExitConfigError.Int()
	}
	if mode == cli.ModeNone {
		bootstrap.Error("No action given. Use --help to list the available options.")
		return types.ExitConfigError.Int()
	}

	// The client modes only need the socket path; a missing config file
	// falls back to defaults and the environment.
	configPath := args.ConfigPath
	if isClientMode(mode) && !fileExists(configPath) {
		configPath = ""
	}

	bootstrap.Debug("Loading configuration from %s (%s)", args.ConfigPath, args.ConfigPathSource)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		bootstrap.Error("ERROR: %v", err)
		return types.ExitConfigError.Int()
	}
	if err := cfg.Validate(); err != nil {
		bootstrap.Error("ERROR: invalid configuration: %v", err)
		return types.ExitConfigError.Int()
	}

	level := cfg.DebugLevel
	if args.LogLevel != types.LogLevelNone {
		level = args.LogLevel
	}
	bootstrap.SetLevel(level)

	app := &application{
		args:      args,
		cfg:       cfg,
		level:     level,
		bootstrap: bootstrap,
		version:   version.String(),
	}
	return app.dispatch(ctx, mode)
}

func isClientMode(mode cli.Mode) bool {
	return mode == cli.ModeHealthcheck || mode == cli.ModeTrigger
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (a *application) dispatch(ctx context.Context, mode cli.Mode) int {
	switch mode {
	case cli.ModeRunUnattended:
		return a.runUnattended(ctx)
	case cli.ModeBackupNow:
		return a.runBackupNow(ctx, a.args.BackupNow)
	case cli.ModeDaemon:
		return a.runDaemon(ctx)
	case cli.ModeHealthcheck:
		return a.runHealthcheck(ctx)
	case cli.ModeTrigger:
		return a.runTrigger(ctx, a.args.Kind)
	case cli.ModeAddPath:
		return a.addPath(a.args.AddPath)
	case cli.ModeRemovePath:
		return a.removePath(a.args.RemovePath)
	case cli.ModeListPaths:
		return a.listPaths()
	case cli.ModeSetSchedule:
		return a.setSchedule(a.args.SetSchedule)
	case cli.ModeDisableSchedule:
		return a.disableSchedule()
	case cli.ModeShowSchedule:
		return a.showSchedule()
	case cli.ModeCronLine:
		return a.cronLine()
	case cli.ModeSetEmail:
		return a.setEmail(a.args.SetEmail)
	case cli.ModeTestEmail:
		return a.testEmail(ctx)
	case cli.ModeTestVolume:
		return a.testVolume(ctx)
	case cli.ModeEncryptSecret:
		return a.encryptSecret()
	default:
		a.bootstrap.Error("ERROR: unsupported mode %q", mode)
		return types.ExitGenericError.Int()
	}
}
