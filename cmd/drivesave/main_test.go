package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tis24dev/drivesave/internal/checks"
	"github.com/tis24dev/drivesave/internal/cli"
	"github.com/tis24dev/drivesave/internal/config"
	"github.com/tis24dev/drivesave/internal/logging"
	"github.com/tis24dev/drivesave/internal/orchestrator"
	"github.com/tis24dev/drivesave/internal/report"
	"github.com/tis24dev/drivesave/internal/state"
	"github.com/tis24dev/drivesave/internal/types"
)

func newTestApp(t *testing.T) *application {
	t.Helper()
	root := t.TempDir()
	t.Setenv("STATE_DIR", filepath.Join(root, "state"))
	t.Setenv("LOG_DIR", filepath.Join(root, "log"))
	t.Setenv("VOLUME_MOUNT_PATH", filepath.Join(root, "volume"))
	t.Setenv("EMAIL_ENABLED", "false")
	t.Setenv("METRICS_ENABLED", "false")

	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	return &application{
		args:      &cli.Args{ConfigPath: filepath.Join(root, "drivesave.env")},
		cfg:       cfg,
		level:     types.LogLevelError,
		bootstrap: logging.NewBootstrapLogger(),
		version:   "test",
	}
}

func quietLogger() *logging.Logger {
	logger := logging.New(types.LogLevelDebug, false)
	logger.SetOutput(&bytes.Buffer{})
	return logger
}

func TestExitCodeFor(t *testing.T) {
	full := types.BackupRun{TotalFiles: 2, SucceededFiles: 2}
	partial := types.BackupRun{TotalFiles: 2, SucceededFiles: 1, FailedFiles: 1}

	tests := []struct {
		name string
		run  types.BackupRun
		err  error
		want types.ExitCode
	}{
		{"success", full, nil, types.ExitSuccess},
		{"nothing to do", types.BackupRun{NothingToDo: true}, nil, types.ExitSuccess},
		{"partial", partial, nil, types.ExitPartialBackup},
		{"interrupted", types.BackupRun{TotalFiles: 1, Interrupted: true}, nil, types.ExitPartialBackup},
		{"backup error", full, &orchestrator.BackupError{Phase: "mounting", Err: errors.New("x"), Code: types.ExitMountError}, types.ExitMountError},
		{"wrapped backup error", full, fmt.Errorf("run: %w", &orchestrator.BackupError{Code: types.ExitPanicError, Err: errors.New("p")}), types.ExitPanicError},
		{"locked", full, fmt.Errorf("busy: %w", checks.ErrLocked), types.ExitLockError},
		{"no paths", full, errNoPaths, types.ExitConfigError},
		{"other", full, errors.New("boom"), types.ExitBackupError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.run, tt.err); got != tt.want {
				t.Fatalf("exitCodeFor = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		ev   types.ProgressEvent
		want string
	}{
		{types.ProgressEvent{CurrentOperation: "Mounting backup volume", Indeterminate: true}, "[  ...  ] Mounting backup volume"},
		{types.ProgressEvent{Percentage: 42.26, CurrentOperation: "Copying", CurrentFile: "/src/a/report.pdf", DetailedStatus: "file 3 of 9"}, "[ 42.3%] Copying report.pdf (file 3 of 9)"},
		{types.ProgressEvent{Percentage: 100, CurrentOperation: "Done", DetailedStatus: "success", Complete: true}, "[100.0%] Done (success)"},
	}
	for _, tt := range tests {
		if got := formatProgress(tt.ev); got != tt.want {
			t.Errorf("formatProgress = %q, want %q", got, tt.want)
		}
	}
}

func TestProgressDisplayPlainOutputSkipsRepeats(t *testing.T) {
	var buf bytes.Buffer
	d := newProgressDisplay(&buf, false)
	d.Show(types.ProgressEvent{CurrentOperation: "Copying", CurrentFile: "/a"})
	d.Show(types.ProgressEvent{CurrentOperation: "Copying", CurrentFile: "/a", Percentage: 10})
	d.Show(types.ProgressEvent{CurrentOperation: "Copying", CurrentFile: "/b", Percentage: 50})
	d.Show(types.ProgressEvent{CurrentOperation: "Done", Percentage: 100, Complete: true})
	d.Finish()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
}

func TestProgressDisplayTerminalRewritesLine(t *testing.T) {
	var buf bytes.Buffer
	d := newProgressDisplay(&buf, true)
	d.Show(types.ProgressEvent{CurrentOperation: "Copying", CurrentFile: "/a"})
	d.Show(types.ProgressEvent{CurrentOperation: "Copying", CurrentFile: "/b"})
	d.Finish()

	out := buf.String()
	if strings.Count(out, "\r") != 2 || !strings.HasSuffix(out, "\n") {
		t.Fatalf("unexpected terminal output %q", out)
	}
}

func TestProgressLoggerLogsOperationChanges(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(types.LogLevelDebug, false)
	logger.SetOutput(&buf)
	p := newProgressLogger(logger)

	p.Handle(types.ProgressEvent{RunID: "r1", CurrentOperation: "Copying"})
	p.Handle(types.ProgressEvent{RunID: "r1", CurrentOperation: "Copying", Percentage: 50})
	p.Handle(types.ProgressEvent{RunID: "r1", CurrentOperation: "Done", DetailedStatus: "success", Complete: true})

	out := buf.String()
	if strings.Count(out, "Run r1: Copying") != 1 {
		t.Fatalf("expected one copying line, got %q", out)
	}
	if !strings.Contains(out, "Run r1 finished: success") {
		t.Fatalf("missing completion line: %q", out)
	}
}

func TestPassphrase(t *testing.T) {
	origTTY := stdinIsTerminal
	origRead := readPassword
	t.Cleanup(func() {
		stdinIsTerminal = origTTY
		readPassword = origRead
	})

	t.Setenv(passphraseEnv, "from-env")
	got, err := passphrase()
	if err != nil || string(got) != "from-env" {
		t.Fatalf("passphrase() = %q, %v", got, err)
	}

	t.Setenv(passphraseEnv, "")
	stdinIsTerminal = func() bool { return false }
	if _, err := passphrase(); err == nil {
		t.Fatal("expected error without terminal")
	}

	stdinIsTerminal = func() bool { return true }
	readPassword = func() ([]byte, error) { return []byte("typed"), nil }
	got, err = passphrase()
	if err != nil || string(got) != "typed" {
		t.Fatalf("passphrase() = %q, %v", got, err)
	}
}

func TestPromptTwice(t *testing.T) {
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })

	answers := [][]byte{[]byte("secret"), []byte("secret")}
	readPassword = func() ([]byte, error) {
		next := answers[0]
		answers = answers[1:]
		return next, nil
	}
	if got, err := promptTwice("SMTP password"); err != nil || got != "secret" {
		t.Fatalf("promptTwice = %q, %v", got, err)
	}

	answers = [][]byte{[]byte("one"), []byte("two")}
	if _, err := promptTwice("SMTP password"); err == nil {
		t.Fatal("expected mismatch error")
	}

	answers = [][]byte{{}, {}}
	if _, err := promptTwice("SMTP password"); err == nil {
		t.Fatal("expected empty error")
	}
}

func TestScheduleModes(t *testing.T) {
	app := newTestApp(t)
	store := app.store(quietLogger())

	if code := app.setSchedule("nonsense"); code != types.ExitConfigError.Int() {
		t.Fatalf("setSchedule(invalid) = %d", code)
	}
	if code := app.setSchedule("Friday 21:30 Incremental"); code != 0 {
		t.Fatalf("setSchedule = %d", code)
	}
	sched := store.LoadSchedule()
	if sched.Day != "Friday" || sched.Hour != 21 || sched.Minute != 30 || sched.Kind != types.BackupIncremental || !sched.Enabled {
		t.Fatalf("unexpected schedule %+v", sched)
	}

	if code := app.disableSchedule(); code != 0 {
		t.Fatalf("disableSchedule = %d", code)
	}
	sched = store.LoadSchedule()
	if sched.Enabled || sched.Day != "Friday" {
		t.Fatalf("schedule after disable = %+v", sched)
	}
	if code := app.showSchedule(); code != 0 {
		t.Fatalf("showSchedule = %d", code)
	}
}

func TestCronLineMode(t *testing.T) {
	app := newTestApp(t)
	orig := osExecutable
	t.Cleanup(func() { osExecutable = orig })

	osExecutable = func() (string, error) { return "", errors.New("no exe") }
	if code := app.cronLine(); code != types.ExitGenericError.Int() {
		t.Fatalf("cronLine without executable = %d", code)
	}

	osExecutable = func() (string, error) { return "/usr/local/bin/drivesave", nil }
	if code := app.cronLine(); code != 0 {
		t.Fatalf("cronLine = %d", code)
	}
}

func TestPathModes(t *testing.T) {
	app := newTestApp(t)
	store := app.store(quietLogger())
	src := t.TempDir()

	if code := app.addPath(filepath.Join(src, "missing")); code != types.ExitConfigError.Int() {
		t.Fatalf("addPath(missing) = %d", code)
	}
	if code := app.addPath(src); code != 0 {
		t.Fatalf("addPath = %d", code)
	}
	if paths := store.LoadPaths(); len(paths) != 1 || paths[0] != src {
		t.Fatalf("paths = %v", paths)
	}
	if code := app.listPaths(); code != 0 {
		t.Fatalf("listPaths = %d", code)
	}
	if code := app.removePath(src); code != 0 {
		t.Fatalf("removePath = %d", code)
	}
	if paths := store.LoadPaths(); len(paths) != 0 {
		t.Fatalf("paths after remove = %v", paths)
	}
}

func TestRunnerRefusesWithoutPaths(t *testing.T) {
	app := newTestApp(t)
	r := app.newRunner(quietLogger(), nil)

	_, err := r.run(context.Background(), types.BackupFull)
	if !errors.Is(err, errNoPaths) {
		t.Fatalf("expected errNoPaths, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(app.cfg.StateDir, checks.LockFileName)); !os.IsNotExist(statErr) {
		t.Fatalf("lock file left behind: %v", statErr)
	}
}

func TestRunnerRespectsLock(t *testing.T) {
	app := newTestApp(t)
	if err := os.MkdirAll(app.cfg.StateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	lock := filepath.Join(app.cfg.StateDir, checks.LockFileName)
	if err := os.WriteFile(lock, []byte("pid=1\nhost=other\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	r := app.newRunner(quietLogger(), nil)
	_, err := r.run(context.Background(), types.BackupIncremental)
	if !errors.Is(err, checks.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if exitCodeFor(types.BackupRun{}, err) != types.ExitLockError {
		t.Fatalf("unexpected exit code for %v", err)
	}
	if _, statErr := os.Stat(lock); statErr != nil {
		t.Fatalf("foreign lock must stay: %v", statErr)
	}
}

func TestSampleSummaryIsPartial(t *testing.T) {
	s := sampleSummary(timeNow())
	if s.Status != report.StatusPartial || s.Files.Failed != 1 || len(s.ErrorSample) != 1 {
		t.Fatalf("unexpected sample summary %+v", s)
	}
}

func TestApplyEmailSettings(t *testing.T) {
	base := state.DefaultEmailSettings()

	got, err := applyEmailSettings(base, "server=smtp.example.com port=465 user=backup from=nas@example.com to=admin@example.com tls=false")
	if err != nil {
		t.Fatalf("applyEmailSettings: %v", err)
	}
	want := state.EmailSettings{Server: "smtp.example.com", Port: 465, Username: "backup", From: "nas@example.com", To: "admin@example.com", TLS: false}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}

	for _, bad := range []string{"", "server", "port=abc", "tls=maybe", "password=x", "color=blue"} {
		if _, err := applyEmailSettings(base, bad); err == nil {
			t.Errorf("applyEmailSettings(%q) expected error", bad)
		}
	}
}

func TestSetEmailMode(t *testing.T) {
	app := newTestApp(t)
	store := app.store(quietLogger())

	if code := app.setEmail("password=hunter2"); code != types.ExitConfigError.Int() {
		t.Fatalf("setEmail(password) = %d", code)
	}
	if code := app.setEmail("server=smtp.example.com to=admin@example.com"); code != 0 {
		t.Fatalf("setEmail = %d", code)
	}
	got := store.LoadEmail()
	if got.Server != "smtp.example.com" || got.To != "admin@example.com" || got.Port != 587 || !got.TLS {
		t.Fatalf("stored settings = %+v", got)
	}
}

func TestFormatSummary(t *testing.T) {
	s := sampleSummary(timeNow())
	line := formatSummary(s)
	if !strings.HasPrefix(line, "Partial Success: 2/3 files") || !strings.Contains(line, "failed: 1") {
		t.Fatalf("formatSummary = %q", line)
	}
	if got := formatSummary(report.Summary{Status: report.StatusSuccess, NothingToDo: true}); got != "Success: nothing to back up" {
		t.Fatalf("formatSummary(nothing to do) = %q", got)
	}
}
