package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tis24dev/drivesave/internal/types"
)

func newQuietBootstrap() (*BootstrapLogger, *bytes.Buffer) {
	var console bytes.Buffer
	b := NewBootstrapLogger()
	b.stdout = &console
	b.stderr = &console
	return b, &console
}

func TestBootstrapLoggerRecordAndFlushDefaultLevel(t *testing.T) {
	b, console := newQuietBootstrap()
	if b.minLevel != types.LogLevelInfo {
		t.Fatalf("default minLevel should be INFO, got %v", b.minLevel)
	}

	b.Debug("hidden")
	b.Info("info")
	b.Warning("warn")
	b.Error("err")

	if len(b.entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(b.entries))
	}
	if strings.Contains(console.String(), "hidden") {
		t.Fatalf("debug messages must not be printed before flush")
	}

	var buf bytes.Buffer
	logger := New(types.LogLevelDebug, false)
	logger.SetOutput(&buf)

	b.Flush(logger)

	out := buf.String()
	for _, msg := range []string{"info", "warn", "err"} {
		if !strings.Contains(out, msg) {
			t.Fatalf("output missing %s", msg)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug entry should be filtered at INFO level")
	}

	buf.Reset()
	b.Flush(logger)
	if buf.Len() != 0 {
		t.Fatalf("second flush should not emit logs")
	}
}

func TestBootstrapLoggerLevelFiltering(t *testing.T) {
	b, _ := newQuietBootstrap()
	b.SetLevel(types.LogLevelWarning)
	b.Info("info skipped")
	b.Warning("warn kept")
	b.Error("err kept")

	var buf bytes.Buffer
	logger := New(types.LogLevelDebug, false)
	logger.SetOutput(&buf)

	b.Flush(logger)
	out := buf.String()
	if strings.Contains(out, "info skipped") {
		t.Fatalf("info should have been filtered out")
	}
	if !strings.Contains(out, "warn kept") || !strings.Contains(out, "err kept") {
		t.Fatalf("expected warn and err to be emitted, got %s", out)
	}
}
