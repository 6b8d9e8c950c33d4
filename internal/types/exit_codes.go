// Package types defines shared application data types.
package types

// ExitCode represents the application's exit codes.
type ExitCode int

const (
	// ExitSuccess - Execution completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGenericError - Unspecified generic error.
	ExitGenericError ExitCode = 1

	// ExitConfigError - Configuration error.
	ExitConfigError ExitCode = 2

	// ExitMountError - The backup volume could not be mounted.
	ExitMountError ExitCode = 3

	// ExitBackupError - Error during the backup operation (generic).
	ExitBackupError ExitCode = 4

	// ExitPartialBackup - Backup completed but some files failed to copy.
	ExitPartialBackup ExitCode = 5

	// ExitNotificationError - Error while sending a notification (test mode only).
	ExitNotificationError ExitCode = 6

	// ExitPermissionError - Permission error.
	ExitPermissionError ExitCode = 7

	// ExitStateError - Persisted state could not be written.
	ExitStateError ExitCode = 8

	// ExitLockError - Another backup run holds the run lock.
	ExitLockError ExitCode = 9

	// ExitDiskSpaceError - Insufficient disk space.
	ExitDiskSpaceError ExitCode = 12

	// ExitPanicError - Unhandled panic caught.
	ExitPanicError ExitCode = 13
)

// String returns a human-readable description of the exit code.
func (e ExitCode) String() string {
	switch e {
	case ExitSuccess:
		return "success"
	case ExitGenericError:
		return "generic error"
	case ExitConfigError:
		return "configuration error"
	case ExitMountError:
		return "mount error"
	case ExitBackupError:
		return "backup error"
	case ExitPartialBackup:
		return "partial backup"
	case ExitNotificationError:
		return "notification error"
	case ExitPermissionError:
		return "permission error"
	case ExitStateError:
		return "state error"
	case ExitLockError:
		return "lock error"
	case ExitDiskSpaceError:
		return "disk space error"
	case ExitPanicError:
		return "panic error"
	default:
		return "unknown error"
	}
}

// Int returns the exit code as an int.
func (e ExitCode) Int() int {
	return int(e)
}
