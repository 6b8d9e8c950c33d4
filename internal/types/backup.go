package types

import "time"

// RunState is a stage of the backup state machine.
type RunState int

const (
	StateIdle RunState = iota
	StateMounting
	StateEnumerating
	StateCopying
	StateReporting
	StateUnmounting
	StateDone
	StateAborted
)

// String returns the string representation of the state.
func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMounting:
		return "mounting"
	case StateEnumerating:
		return "enumerating"
	case StateCopying:
		return "copying"
	case StateReporting:
		return "reporting"
	case StateUnmounting:
		return "unmounting"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// FileRef is a file selected for copy.
type FileRef struct {
	FullPath string
	Size     int64
	ModTime  time.Time
}

// FileError records a single file that failed to copy.
type FileError struct {
	FileName string
	Message  string
}

// String renders the error as "name: message".
func (e FileError) String() string {
	return e.FileName + ": " + e.Message
}

// LastBackupMarker records the last fully successful run. The zero value
// means no run has completed yet.
type LastBackupMarker struct {
	Path      string
	Timestamp time.Time
}

// IsZero reports whether the marker is unset.
func (m LastBackupMarker) IsZero() bool {
	return m.Timestamp.IsZero()
}

// BackupRun holds the counters of a single run. It is owned by the
// orchestrator while the run is active and must not be modified after
// EndTime is set.
type BackupRun struct {
	ID             string
	Kind           BackupKind
	State          RunState
	StartTime      time.Time
	EndTime        time.Time
	Cutoff         time.Time
	Sources        []string
	DestinationDir string

	TotalFiles     int
	TotalBytes     int64
	SucceededFiles int
	FailedFiles    int
	ProcessedBytes int64
	Errors         []FileError

	PeakThroughputMBps    float64
	CurrentThroughputMBps float64

	// NothingToDo is set when no file qualified for the run.
	NothingToDo bool
	// Interrupted is set when shutdown stopped the copy loop early.
	Interrupted bool
}

// Duration returns EndTime - StartTime, or zero while the run is active.
func (r BackupRun) Duration() time.Duration {
	if r.EndTime.IsZero() || r.StartTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// Partial reports whether any file was not copied.
func (r BackupRun) Partial() bool {
	return r.FailedFiles > 0 || r.Interrupted
}

// FullySucceeded reports whether every selected file was copied. Runs with
// nothing to copy do not count.
func (r BackupRun) FullySucceeded() bool {
	return !r.Partial() && r.TotalFiles > 0 && r.SucceededFiles == r.TotalFiles
}

// ProgressEvent is a transient progress notification.
type ProgressEvent struct {
	RunID            string
	Percentage       float64
	CurrentOperation string
	CurrentFile      string
	DetailedStatus   string
	Indeterminate    bool
	Complete         bool
}
