package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/tis24dev/drivesave/internal/types"
)

func TestNew(t *testing.T) {
	logger := New(types.LogLevelInfo, true)

	if logger.level != types.LogLevelInfo {
		t.Errorf("Expected level %v, got %v", types.LogLevelInfo, logger.level)
	}
	if !logger.useColor {
		t.Error("Expected useColor to be true")
	}
	if logger.output == nil {
		t.Error("Expected output to be set")
	}
}

func TestSetLevel(t *testing.T) {
	logger := New(types.LogLevelInfo, false)
	logger.SetLevel(types.LogLevelDebug)

	if logger.GetLevel() != types.LogLevelDebug {
		t.Errorf("Expected level %v, got %v", types.LogLevelDebug, logger.GetLevel())
	}
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(types.LogLevelWarning, false)
	logger.SetOutput(&buf)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Step("step message")
	logger.Warning("warning message")
	logger.Error("error message")
	logger.Critical("critical message")

	output := buf.String()
	for _, hidden := range []string{"debug message", "info message", "step message"} {
		if strings.Contains(output, hidden) {
			t.Errorf("%q should not appear when level is WARNING", hidden)
		}
	}
	for _, shown := range []string{"warning message", "error message", "critical message"} {
		if !strings.Contains(output, shown) {
			t.Errorf("%q should appear when level is WARNING", shown)
		}
	}
}

func TestLabelsAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(types.LogLevelInfo, false)
	logger.SetOutput(&buf)

	logger.Phase("mounting")
	logger.Skip("metrics disabled")

	out := buf.String()
	if !strings.Contains(out, "PHASE    mounting") {
		t.Errorf("Expected PHASE label, got %q", out)
	}
	if !strings.Contains(out, "SKIP     metrics disabled") {
		t.Errorf("Expected SKIP label, got %q", out)
	}
	if strings.Contains(out, "\033[") {
		t.Errorf("Expected no ANSI codes when color is disabled, got %q", out)
	}
}

func TestCountersAndHasFlags(t *testing.T) {
	logger := New(types.LogLevelDebug, false)
	logger.SetOutput(&bytes.Buffer{})

	if logger.HasWarnings() || logger.HasErrors() {
		t.Fatal("fresh logger should have no warnings or errors")
	}
	logger.Warning("w1")
	logger.Warning("w2")
	logger.Error("e1")
	logger.Critical("c1")

	warnings, errors := logger.Counts()
	if warnings != 2 || errors != 2 {
		t.Errorf("Expected 2 warnings and 2 errors, got %d/%d", warnings, errors)
	}
}

func TestHooksReceiveEntries(t *testing.T) {
	logger := New(types.LogLevelInfo, false)
	logger.SetOutput(&bytes.Buffer{})

	var mu sync.Mutex
	var got []Entry
	logger.AddHook(func(e Entry) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})

	logger.Debug("filtered")
	logger.Info("hello %s", "world")
	logger.Step("copying")

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(got))
	}
	if got[0].Message != "hello world" || got[0].Level != types.LogLevelInfo {
		t.Errorf("unexpected first entry: %+v", got[0])
	}
	if got[1].Label != "STEP" {
		t.Errorf("Expected STEP label, got %q", got[1].Label)
	}
}

func TestHookMayLogWithoutDeadlock(t *testing.T) {
	logger := New(types.LogLevelInfo, false)
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	reentered := false
	logger.AddHook(func(e Entry) {
		if !reentered {
			reentered = true
			logger.Info("from hook")
		}
	})
	logger.Info("first")

	if !strings.Contains(buf.String(), "from hook") {
		t.Fatalf("hook output missing: %q", buf.String())
	}
}

func TestOpenLogFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "backup_log.txt")

	logger := New(types.LogLevelInfo, true)
	logger.SetOutput(&bytes.Buffer{})
	if err := logger.OpenLogFile(logPath); err != nil {
		t.Fatalf("OpenLogFile failed: %v", err)
	}
	if logger.GetLogFilePath() != logPath {
		t.Errorf("Expected log path %s, got %s", logPath, logger.GetLogFilePath())
	}

	logger.Info("to file")
	if err := logger.CloseLogFile(); err != nil {
		t.Fatalf("CloseLogFile failed: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "to file") {
		t.Errorf("log file missing message: %q", content)
	}
	if strings.Contains(content, "\033[") {
		t.Errorf("log file must not contain color codes: %q", content)
	}
	if logger.GetLogFilePath() != "" {
		t.Error("Expected empty log path after close")
	}
}

func TestFatalUsesExitFunc(t *testing.T) {
	logger := New(types.LogLevelInfo, false)
	logger.SetOutput(&bytes.Buffer{})

	code := -1
	logger.SetExitFunc(func(c int) { code = c })
	logger.Fatal(types.ExitMountError, "volume missing")

	if code != types.ExitMountError.Int() {
		t.Errorf("Expected exit code %d, got %d", types.ExitMountError.Int(), code)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Info("ignored")
	logger.Step("ignored")
	logger.Warning("ignored")
}
