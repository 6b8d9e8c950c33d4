package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tis24dev/drivesave/internal/logging"
	"github.com/tis24dev/drivesave/internal/report"
	"github.com/tis24dev/drivesave/internal/types"
)

// FileName is the textfile collected by node_exporter.
const FileName = "drivesave.prom"

// BackupMetrics represents the subset of run statistics exported as Prometheus metrics.
type BackupMetrics struct {
	Hostname string
	Version  string
	Kind     types.BackupKind

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Status         report.Status
	FilesTotal     int
	FilesSucceeded int
	FilesFailed    int
	BytesCopied    int64
	AvgMBps        float64
	PeakMBps       float64

	// LastSuccess is the start of the most recent fully successful run;
	// zero when none is known.
	LastSuccess time.Time
}

// FromSummary fills a BackupMetrics from a run summary.
func FromSummary(s report.Summary, lastSuccess time.Time) *BackupMetrics {
	host, _ := os.Hostname()
	return &BackupMetrics{
		Hostname:       host,
		Kind:           s.Kind,
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
		Duration:       s.Duration,
		Status:         s.Status,
		FilesTotal:     s.Files.Total,
		FilesSucceeded: s.Files.Succeeded,
		FilesFailed:    s.Files.Failed,
		BytesCopied:    s.TotalBytes,
		AvgMBps:        s.AvgThroughputMBps,
		PeakMBps:       s.PeakThroughputMBps,
		LastSuccess:    lastSuccess,
	}
}

// statusCode maps a report status to the gauge value: 0=success,1=partial,2=failure.
func statusCode(s report.Status) int {
	switch s {
	case report.StatusSuccess:
		return 0
	case report.StatusPartial:
		return 1
	default:
		return 2
	}
}

// PrometheusExporter writes run metrics in Prometheus textfile format for node_exporter.
type PrometheusExporter struct {
	textfileDir string
	logger      *logging.Logger
}

// NewPrometheusExporter creates a new PrometheusExporter using the provided directory.
func NewPrometheusExporter(textfileDir string, logger *logging.Logger) *PrometheusExporter {
	return &PrometheusExporter{
		textfileDir: strings.TrimRight(textfileDir, "/"),
		logger:      logger,
	}
}

// Export writes the given metrics snapshot to drivesave.prom in textfileDir.
// The file is written to a .tmp sibling and renamed so the collector never
// sees a partial file.
func (pe *PrometheusExporter) Export(m *BackupMetrics) error {
	if pe == nil || m == nil {
		return nil
	}

	if pe.textfileDir == "" {
		return fmt.Errorf("metrics textfile directory is empty")
	}

	if err := os.MkdirAll(pe.textfileDir, 0o755); err != nil {
		return fmt.Errorf("create metrics directory %s: %w", pe.textfileDir, err)
	}

	tmpPath := filepath.Join(pe.textfileDir, FileName+".tmp")
	finalPath := filepath.Join(pe.textfileDir, FileName)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create metrics file %s: %w", tmpPath, err)
	}
	defer f.Close()

	writeMetric := func(name, help, value string) {
		fmt.Fprintf(f, "# HELP %s %s\n", name, help)
		fmt.Fprintf(f, "# TYPE %s gauge\n", name)
		fmt.Fprintf(f, "%s %s\n", name, value)
	}

	endTs := m.EndTime.Unix()
	if m.EndTime.IsZero() && !m.StartTime.IsZero() {
		endTs = m.StartTime.Add(m.Duration).Unix()
	}

	writeMetric("drivesave_start_time_seconds", "Unix timestamp of run start",
		fmt.Sprintf("%d", m.StartTime.Unix()))
	writeMetric("drivesave_end_time_seconds", "Unix timestamp of run end",
		fmt.Sprintf("%d", endTs))
	writeMetric("drivesave_duration_seconds", "Duration of last run in seconds",
		fmt.Sprintf("%.2f", m.Duration.Seconds()))
	writeMetric("drivesave_status", "Status of last run (0=success,1=partial,2=failure)",
		fmt.Sprintf("%d", statusCode(m.Status)))
	writeMetric("drivesave_bytes_copied", "Bytes copied during last run",
		fmt.Sprintf("%d", m.BytesCopied))
	writeMetric("drivesave_throughput_avg_mibps", "Average copy throughput of last run in MiB/s",
		fmt.Sprintf("%.2f", m.AvgMBps))
	writeMetric("drivesave_throughput_peak_mibps", "Peak sampled copy throughput of last run in MiB/s",
		fmt.Sprintf("%.2f", m.PeakMBps))

	fmt.Fprintf(f, "# HELP drivesave_files Files handled by last run\n")
	fmt.Fprintf(f, "# TYPE drivesave_files gauge\n")
	fmt.Fprintf(f, "drivesave_files{result=\"total\"} %d\n", m.FilesTotal)
	fmt.Fprintf(f, "drivesave_files{result=\"succeeded\"} %d\n", m.FilesSucceeded)
	fmt.Fprintf(f, "drivesave_files{result=\"failed\"} %d\n", m.FilesFailed)

	if !m.LastSuccess.IsZero() {
		writeMetric("drivesave_last_success_time_seconds", "Unix timestamp of the last fully successful run",
			fmt.Sprintf("%d", m.LastSuccess.Unix()))
	}

	fmt.Fprintf(f, "# HELP drivesave_info Static information about this instance\n")
	fmt.Fprintf(f, "# TYPE drivesave_info gauge\n")
	fmt.Fprintf(f, "drivesave_info{hostname=%q,version=%q,kind=%q} 1\n", m.Hostname, m.Version, m.Kind.String())

	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync metrics file %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("rename metrics file to %s: %w", finalPath, err)
	}

	if pe.logger != nil {
		pe.logger.Debug("Prometheus metrics exported to %s", finalPath)
	}

	return nil
}
