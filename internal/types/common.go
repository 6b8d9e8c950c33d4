package types

import (
	"fmt"
	"strings"
)

// LogLevel represents the logging level.
type LogLevel int

const (
	// LogLevelDebug - Debug logs (maximum detail)
	LogLevelDebug LogLevel = 5

	// LogLevelInfo - General information
	LogLevelInfo LogLevel = 4

	// LogLevelWarning - Warnings
	LogLevelWarning LogLevel = 3

	// LogLevelError - Errors
	LogLevelError LogLevel = 2

	// LogLevelCritical - Critical errors
	LogLevelCritical LogLevel = 1

	// LogLevelNone - No logs
	LogLevelNone LogLevel = 0
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarning:
		return "WARNING"
	case LogLevelError:
		return "ERROR"
	case LogLevelCritical:
		return "CRITICAL"
	case LogLevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// BackupKind selects which files a run copies.
type BackupKind int

const (
	// BackupFull copies every file under every source root.
	BackupFull BackupKind = iota

	// BackupIncremental copies only files modified after the last marker.
	BackupIncremental
)

// String returns the persisted name of the kind ("Full" or "Incremental").
func (k BackupKind) String() string {
	switch k {
	case BackupFull:
		return "Full"
	case BackupIncremental:
		return "Incremental"
	default:
		return "Unknown"
	}
}

// FolderPrefix returns the prefix used for destination folder names.
func (k BackupKind) FolderPrefix() string {
	if k == BackupIncremental {
		return "Incr_Backup"
	}
	return "Full_Backup"
}

// ParseBackupKind accepts "full", "incremental" or "incr" in any case.
func ParseBackupKind(s string) (BackupKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "0":
		return BackupFull, nil
	case "incremental", "incr", "1":
		return BackupIncremental, nil
	default:
		return BackupFull, fmt.Errorf("unknown backup kind %q (want Full or Incremental)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k BackupKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *BackupKind) UnmarshalText(text []byte) error {
	parsed, err := ParseBackupKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseLogLevel accepts either a numeric level (0-5) or its name.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "5":
		return LogLevelDebug, nil
	case "info", "4":
		return LogLevelInfo, nil
	case "warning", "warn", "3":
		return LogLevelWarning, nil
	case "error", "2":
		return LogLevelError, nil
	case "critical", "1":
		return LogLevelCritical, nil
	case "none", "0":
		return LogLevelNone, nil
	}
	return LogLevelInfo, fmt.Errorf("invalid log level %q", s)
}
