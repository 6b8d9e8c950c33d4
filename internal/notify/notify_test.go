package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tis24dev/drivesave/internal/logging"
	"github.com/tis24dev/drivesave/internal/report"
	"github.com/tis24dev/drivesave/internal/types"
)

func createTestSummary() report.Summary {
	start := time.Date(2024, 3, 11, 22, 0, 5, 0, time.Local)
	return report.Summary{
		RunID:              "8c1f",
		Kind:               types.BackupFull,
		Status:             report.StatusPartial,
		StartTime:          start,
		EndTime:            start.Add(90 * time.Second),
		Duration:           90 * time.Second,
		Destination:        "/mnt/drivesave/Full_Backup_2024-03-11_22-00-05",
		Files:              report.FileCounts{Total: 1234, Succeeded: 1233, Failed: 1},
		TotalBytes:         3 * 1024 * 1024 * 1024,
		AvgThroughputMBps:  34.13,
		PeakThroughputMBps: 80.5,
		ErrorSample:        []types.FileError{{FileName: "/data/<locked>.db", Message: "permission denied"}},
	}
}

func TestStatusEmojiAndLabel(t *testing.T) {
	cases := []struct {
		status report.Status
		emoji  string
		label  string
	}{
		{report.StatusSuccess, "✅", "Success"},
		{report.StatusPartial, "⚠️", "Partial Success"},
		{report.StatusFailure, "❌", "Failed"},
		{report.Status("other"), "❓", "Unknown"},
	}
	for _, tc := range cases {
		if got := GetStatusEmoji(tc.status); got != tc.emoji {
			t.Errorf("GetStatusEmoji(%s) = %s, want %s", tc.status, got, tc.emoji)
		}
		if got := StatusLabel(tc.status); got != tc.label {
			t.Errorf("StatusLabel(%s) = %s, want %s", tc.status, got, tc.label)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "< 1s"},
		{3 * time.Second, "3s"},
		{2 * time.Minute, "2m"},
		{2*time.Minute + 10*time.Second, "2m 10s"},
		{1*time.Hour + 5*time.Minute + 7*time.Second, "1h 5m 7s"},
		{2 * time.Hour, "2h"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.duration); got != tc.expected {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.duration, got, tc.expected)
		}
	}
}

func TestBuildEmailSubject(t *testing.T) {
	s := createTestSummary()
	if got := BuildEmailSubject(s); got != "Backup report - Full - 11.03.2024 22:00" {
		t.Fatalf("BuildEmailSubject() = %q", got)
	}
	s.Status = report.StatusFailure
	if got := BuildEmailSubject(s); !strings.HasSuffix(got, "- FAILED") {
		t.Fatalf("failure subject = %q", got)
	}
}

func TestBuildEmailBodies(t *testing.T) {
	s := createTestSummary()
	s.ErrorOverflow = 3

	text := BuildEmailPlainText(s)
	for _, want := range []string{"FULL BACKUP REPORT - PARTIAL SUCCESS", "1,233 / 1,234", "00:01:30", "34.13 MB/s", "80.50 MB/s", "And 3 more...", "permission denied"} {
		if !strings.Contains(text, want) {
			t.Errorf("plain text missing %q:\n%s", want, text)
		}
	}

	htmlBody := BuildEmailHTML(s)
	for _, want := range []string{"<!DOCTYPE html>", "Full Backup Report", "#FF9800", "&lt;locked&gt;", "And 3 more...", "width: 100%;"} {
		if !strings.Contains(htmlBody, want) {
			t.Errorf("html missing %q", want)
		}
	}
	if strings.Contains(htmlBody, "<locked>") {
		t.Error("file names must be escaped in HTML")
	}
}

type fakeNotifier struct {
	name    string
	enabled bool
	err     error
	panics  bool
	calls   int
}

func (f *fakeNotifier) Name() string    { return f.name }
func (f *fakeNotifier) IsEnabled() bool { return f.enabled }
func (f *fakeNotifier) Send(ctx context.Context, s report.Summary) (*NotificationResult, error) {
	f.calls++
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return &NotificationResult{Error: f.err}, f.err
	}
	return &NotificationResult{Success: true}, nil
}

func TestManagerIsBestEffort(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(types.LogLevelDebug, false)
	logger.SetOutput(&buf)

	ok := &fakeNotifier{name: "ok", enabled: true}
	failing := &fakeNotifier{name: "failing", enabled: true, err: errors.New("smtp down")}
	panicking := &fakeNotifier{name: "panicking", enabled: true, panics: true}
	disabled := &fakeNotifier{name: "disabled"}

	m := NewManager(logger, failing, nil, panicking, disabled, ok)
	if got := m.Notify(context.Background(), createTestSummary()); got != 1 {
		t.Fatalf("Notify() delivered %d; want 1", got)
	}
	if disabled.calls != 0 {
		t.Fatal("disabled notifier must not be called")
	}
	if ok.calls != 1 {
		t.Fatal("failures must not stop later notifiers")
	}
	logs := buf.String()
	if !strings.Contains(logs, "smtp down") || !strings.Contains(logs, "panic in panicking") {
		t.Fatalf("expected failures in logs:\n%s", logs)
	}
}

func TestNilManager(t *testing.T) {
	var m *Manager
	if got := m.Notify(context.Background(), report.Summary{}); got != 0 {
		t.Fatalf("nil manager delivered %d", got)
	}
}
