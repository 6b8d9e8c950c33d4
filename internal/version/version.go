package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// These variables are intended to be populated at build time via -ldflags:
//
//	-X github.com/tis24dev/drivesave/internal/version.Version=v1.0.0
//	-X github.com/tis24dev/drivesave/internal/version.Commit=abcdef123
//	-X github.com/tis24dev/drivesave/internal/version.Date=2026-01-01T12:34:56Z
var (
	// Version holds the semantic version of the binary.
	Version = ""

	// Commit holds the VCS commit hash used to build the binary (optional).
	Commit = ""

	// Date holds the build timestamp (optional).
	Date = ""
)

var readBuildInfo = debug.ReadBuildInfo

// String returns the effective version string. Preference order: the
// ldflags value, the main module version from build info, then
// "0.0.0-dev". A leading "v" is stripped.
func String() string {
	v := strings.TrimSpace(Version)

	if v == "" {
		if info, ok := readBuildInfo(); ok && info != nil {
			if mv := strings.TrimSpace(info.Main.Version); mv != "" && mv != "(devel)" {
				v = mv
			}
		}
	}

	if v == "" {
		v = "0.0.0-dev"
	}

	return strings.TrimPrefix(v, "v")
}

// Full returns the version with commit and build date when known.
func Full() string {
	out := String()
	if c := strings.TrimSpace(Commit); c != "" {
		if len(c) > 12 {
			c = c[:12]
		}
		out += fmt.Sprintf(" (%s)", c)
	}
	if d := strings.TrimSpace(Date); d != "" {
		out += " built " + d
	}
	return out
}
