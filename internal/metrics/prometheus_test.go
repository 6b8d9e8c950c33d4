package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tis24dev/drivesave/internal/logging"
	"github.com/tis24dev/drivesave/internal/report"
	"github.com/tis24dev/drivesave/internal/types"
)

func TestPrometheusExporterExport(t *testing.T) {
	dir := t.TempDir()
	logger := logging.New(types.LogLevelError, false)
	exporter := NewPrometheusExporter(dir, logger)

	metrics := &BackupMetrics{
		Hostname:       "test-host",
		Version:        "1.2.0",
		Kind:           types.BackupFull,
		StartTime:      time.Unix(1000, 0),
		EndTime:        time.Unix(1100, 0),
		Duration:       100 * time.Second,
		Status:         report.StatusPartial,
		FilesTotal:     10,
		FilesSucceeded: 9,
		FilesFailed:    1,
		BytesCopied:    123456789,
		AvgMBps:        1.5,
		PeakMBps:       12.25,
		LastSuccess:    time.Unix(900, 0),
	}

	if err := exporter.Export(metrics); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("Failed to read metrics file: %v", err)
	}

	content := string(data)
	for _, expected := range []string{
		"drivesave_start_time_seconds 1000",
		"drivesave_end_time_seconds 1100",
		"drivesave_duration_seconds 100.00",
		"drivesave_status 1",
		"drivesave_bytes_copied 123456789",
		"drivesave_throughput_avg_mibps 1.50",
		"drivesave_throughput_peak_mibps 12.25",
		"drivesave_files{result=\"failed\"} 1",
		"drivesave_files{result=\"succeeded\"} 9",
		"drivesave_last_success_time_seconds 900",
		"drivesave_info{hostname=\"test-host\",version=\"1.2.0\",kind=\"Full\"} 1",
	} {
		if !strings.Contains(content, expected) {
			t.Fatalf("metrics output missing %q\n%s", expected, content)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, FileName+".tmp")); !os.IsNotExist(err) {
		t.Fatalf("temporary metrics file should be renamed away, stat err = %v", err)
	}
}

func TestPrometheusExporterNilMetrics(t *testing.T) {
	dir := t.TempDir()
	exporter := NewPrometheusExporter(dir, nil)
	if err := exporter.Export(nil); err != nil {
		t.Fatalf("Export(nil) error = %v", err)
	}
}

func TestPrometheusExporterEmptyDir(t *testing.T) {
	exporter := NewPrometheusExporter("", nil)
	if err := exporter.Export(&BackupMetrics{}); err == nil {
		t.Fatal("expected error for empty textfile directory")
	}
}

func TestFromSummary(t *testing.T) {
	s := report.Summary{
		Kind:               types.BackupIncremental,
		Status:             report.StatusFailure,
		Duration:           3 * time.Second,
		Files:              report.FileCounts{Total: 4, Succeeded: 2, Failed: 2},
		TotalBytes:         512,
		PeakThroughputMBps: 4,
	}
	last := time.Unix(42, 0)
	m := FromSummary(s, last)
	if m.Kind != types.BackupIncremental || m.FilesFailed != 2 || m.BytesCopied != 512 || !m.LastSuccess.Equal(last) {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	if statusCode(m.Status) != 2 {
		t.Fatalf("statusCode(failure) = %d; want 2", statusCode(m.Status))
	}
}

func TestExportOmitsUnknownLastSuccess(t *testing.T) {
	dir := t.TempDir()
	if err := NewPrometheusExporter(dir, nil).Export(&BackupMetrics{Status: report.StatusSuccess}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, FileName))
	if strings.Contains(string(data), "drivesave_last_success_time_seconds") {
		t.Fatal("last success metric should be omitted when unknown")
	}
	if !strings.Contains(string(data), "drivesave_status 0") {
		t.Fatalf("expected success status, got\n%s", data)
	}
}
