// Package report turns a finished run into the summary used by the
// notification and metrics layers.
package report

import (
	"time"

	"github.com/tis24dev/drivesave/internal/types"
	"github.com/tis24dev/drivesave/pkg/utils"
)

// ErrorSampleSize is the number of file errors carried in a summary.
const ErrorSampleSize = 5

// Status is the outcome shown to the operator.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailure Status = "failure"
)

// FileCounts groups the per-file counters.
type FileCounts struct {
	Total     int
	Succeeded int
	Failed    int
}

// Summary is the aggregated view of a run.
type Summary struct {
	RunID              string
	Kind               types.BackupKind
	Status             Status
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
	Destination        string
	Files              FileCounts
	TotalBytes         int64
	AvgThroughputMBps  float64
	PeakThroughputMBps float64
	ErrorSample        []types.FileError
	ErrorOverflow      int
	NothingToDo        bool
	Interrupted        bool
	// FatalError is set only for runs that aborted.
	FatalError string
}

// Build aggregates run. It performs no I/O.
func Build(run types.BackupRun) Summary {
	s := Summary{
		RunID:       run.ID,
		Kind:        run.Kind,
		Status:      StatusSuccess,
		StartTime:   run.StartTime,
		EndTime:     run.EndTime,
		Duration:    run.Duration(),
		Destination: run.DestinationDir,
		Files: FileCounts{
			Total:     run.TotalFiles,
			Succeeded: run.SucceededFiles,
			Failed:    run.FailedFiles,
		},
		TotalBytes:         run.TotalBytes,
		PeakThroughputMBps: run.PeakThroughputMBps,
		NothingToDo:        run.NothingToDo,
		Interrupted:        run.Interrupted,
	}
	if run.Partial() {
		s.Status = StatusPartial
	}
	if s.Duration > 0 {
		s.AvgThroughputMBps = utils.MiBPerSecond(run.TotalBytes, s.Duration)
	}

	n := len(run.Errors)
	if n > ErrorSampleSize {
		s.ErrorOverflow = n - ErrorSampleSize
		n = ErrorSampleSize
	}
	if n > 0 {
		s.ErrorSample = append([]types.FileError(nil), run.Errors[:n]...)
	}
	return s
}

// Failure builds the summary of an aborted run.
func Failure(run types.BackupRun, err error) Summary {
	s := Build(run)
	s.Status = StatusFailure
	if err != nil {
		s.FatalError = err.Error()
	}
	return s
}
