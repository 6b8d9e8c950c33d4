package cli

import (
	"bytes"
	"flag"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/tis24dev/drivesave/internal/config"
	"github.com/tis24dev/drivesave/internal/types"
)

func TestStringFlag(t *testing.T) {
	t.Run("default value", func(t *testing.T) {
		sf := newStringFlag("default")
		if sf.String() != "default" {
			t.Fatalf("String() = %q, want default", sf.String())
		}
		if sf.set {
			t.Fatal("flag should start unset")
		}
	})

	t.Run("set values", func(t *testing.T) {
		sf := newStringFlag("default")
		if err := sf.Set("first"); err != nil {
			t.Fatalf("Set returned error: %v", err)
		}
		if err := sf.Set("second"); err != nil {
			t.Fatalf("Set returned error: %v", err)
		}
		if sf.String() != "second" {
			t.Fatalf("String() = %q, want second", sf.String())
		}
		if !sf.set {
			t.Fatal("flag should be marked as set")
		}
	})
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected types.LogLevel
	}{
		{"debug string", "debug", types.LogLevelDebug},
		{"debug number", "5", types.LogLevelDebug},
		{"info string", "info", types.LogLevelInfo},
		{"warning string", "warning", types.LogLevelWarning},
		{"warn alias", "warn", types.LogLevelWarning},
		{"error number", "2", types.LogLevelError},
		{"critical string", "critical", types.LogLevelCritical},
		{"none number", "0", types.LogLevelNone},
		{"uppercase", "DEBUG", types.LogLevelDebug},
		{"surrounding whitespace", " debug ", types.LogLevelDebug},
		{"unknown", "invalid", types.LogLevelInfo},
		{"empty string", "", types.LogLevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseLogLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLogLevel(%q) = %v; want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func parseWithArgs(t *testing.T, cliArgs []string) *Args {
	t.Helper()
	origCommandLine := flag.CommandLine
	origUsage := flag.Usage
	origArgs := os.Args

	flag.CommandLine = flag.NewFlagSet("test", flag.ContinueOnError)
	flag.CommandLine.SetOutput(io.Discard)
	flag.Usage = func() {}

	os.Args = append([]string{"test-binary"}, cliArgs...)

	t.Cleanup(func() {
		flag.CommandLine = origCommandLine
		flag.Usage = origUsage
		os.Args = origArgs
	})

	return Parse()
}

func TestParseDefaults(t *testing.T) {
	args := parseWithArgs(t, nil)
	if args.ConfigPath != config.DefaultConfigPath {
		t.Fatalf("ConfigPath = %q, want %q", args.ConfigPath, config.DefaultConfigPath)
	}
	if args.ConfigPathSource != configSourceDefault {
		t.Fatalf("ConfigPathSource = %q, want %q", args.ConfigPathSource, configSourceDefault)
	}
	if args.LogLevel != types.LogLevelNone {
		t.Fatalf("LogLevel = %v, want LogLevelNone", args.LogLevel)
	}
	if args.Kind != "Incremental" {
		t.Fatalf("Kind = %q, want Incremental", args.Kind)
	}
	if mode, err := args.Mode(); err != nil || mode != ModeNone {
		t.Fatalf("Mode() = %q, %v; want none", mode, err)
	}
}

func TestParseCustomFlags(t *testing.T) {
	args := parseWithArgs(t, []string{
		"--config", "/custom/drivesave.env",
		"--log-level", "debug",
		"--set-schedule", "daily 03:30 Incremental",
	})

	if args.ConfigPath != "/custom/drivesave.env" || args.ConfigPathSource != configSourceFlag {
		t.Fatalf("config = %q (%s)", args.ConfigPath, args.ConfigPathSource)
	}
	if args.LogLevel != types.LogLevelDebug {
		t.Fatalf("LogLevel = %v, want debug", args.LogLevel)
	}
	mode, err := args.Mode()
	if err != nil || mode != ModeSetSchedule {
		t.Fatalf("Mode() = %q, %v", mode, err)
	}
	if args.SetSchedule != "daily 03:30 Incremental" {
		t.Fatalf("SetSchedule = %q", args.SetSchedule)
	}
}

func TestParseModes(t *testing.T) {
	tests := []struct {
		args []string
		want Mode
	}{
		{[]string{"--run-unattended"}, ModeRunUnattended},
		{[]string{"--backup-now", "Full"}, ModeBackupNow},
		{[]string{"--daemon"}, ModeDaemon},
		{[]string{"--healthcheck"}, ModeHealthcheck},
		{[]string{"--trigger", "--kind", "Full"}, ModeTrigger},
		{[]string{"--add-path", "/srv"}, ModeAddPath},
		{[]string{"--remove-path", "/srv"}, ModeRemovePath},
		{[]string{"--list-paths"}, ModeListPaths},
		{[]string{"--disable-schedule"}, ModeDisableSchedule},
		{[]string{"--show-schedule"}, ModeShowSchedule},
		{[]string{"--cron-line"}, ModeCronLine},
		{[]string{"--set-email", "server=smtp.example.com"}, ModeSetEmail},
		{[]string{"--test-email"}, ModeTestEmail},
		{[]string{"--test-volume"}, ModeTestVolume},
		{[]string{"--encrypt-secret"}, ModeEncryptSecret},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			args := parseWithArgs(t, tt.args)
			mode, err := args.Mode()
			if err != nil || mode != tt.want {
				t.Fatalf("Mode() = %q, %v; want %q", mode, err, tt.want)
			}
		})
	}
}

func TestModeRejectsCombinations(t *testing.T) {
	args := parseWithArgs(t, []string{"--daemon", "--run-unattended"})
	if _, err := args.Mode(); err == nil || !strings.Contains(err.Error(), "cannot be combined") {
		t.Fatalf("Mode() error = %v", err)
	}
}

func TestParseAliasFlags(t *testing.T) {
	args := parseWithArgs(t, []string{
		"-c", "/alias/config.env",
		"-l", "warning",
		"-v",
	})

	if args.ConfigPath != "/alias/config.env" {
		t.Fatalf("ConfigPath = %q, want /alias/config.env", args.ConfigPath)
	}
	if args.LogLevel != types.LogLevelWarning {
		t.Fatalf("LogLevel = %v, want warning", args.LogLevel)
	}
	if !args.ShowVersion {
		t.Fatal("ShowVersion should be true when -v is provided")
	}
}

func TestParseLogLevelOverrideOrder(t *testing.T) {
	args := parseWithArgs(t, []string{"--log-level", "debug", "-l", "warning"})
	if args.LogLevel != types.LogLevelWarning {
		t.Fatalf("LogLevel = %v, want warning (last flag wins)", args.LogLevel)
	}
}

func TestPrintHelp(t *testing.T) {
	parseWithArgs(t, nil)
	var buf bytes.Buffer
	printHelp(&buf, "drivesave")
	out := buf.String()
	if !strings.Contains(out, "Usage: drivesave [options]") {
		t.Fatalf("help missing usage line: %q", out)
	}
	for _, opt := range []string{"-config", "-run-unattended", "-set-schedule", "-encrypt-secret"} {
		if !strings.Contains(out, opt) {
			t.Fatalf("help missing %s: %q", opt, out)
		}
	}
}

func TestShowVersionPrintsAndExitsZero(t *testing.T) {
	origExit := osExit
	origStdout := os.Stdout

	var exitCode = -1
	osExit = func(code int) {
		exitCode = code
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w

	t.Cleanup(func() {
		_ = w.Close()
		_ = r.Close()
		osExit = origExit
		os.Stdout = origStdout
	})

	ShowVersion()
	_ = w.Close()

	outBytes, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	out := string(outBytes)
	if !strings.Contains(out, "drivesave") || !strings.Contains(out, "Version:") {
		t.Fatalf("version output missing expected fields: %q", out)
	}
	if exitCode != 0 {
		t.Fatalf("exit code = %d; want 0", exitCode)
	}
}

func TestShowHelpExitsZero(t *testing.T) {
	parseWithArgs(t, nil)
	origExit := osExit
	origStderr := os.Stderr
	var exitCode = -1
	osExit = func(code int) { exitCode = code }

	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	os.Stderr = devNull
	t.Cleanup(func() {
		osExit = origExit
		os.Stderr = origStderr
		devNull.Close()
	})

	ShowHelp()
	if exitCode != 0 {
		t.Fatalf("exit code = %d; want 0", exitCode)
	}
}
